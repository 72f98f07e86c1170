package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/chzyer/readline"
	"golang.org/x/term"

	"muza/internal/dialogue"
	"muza/internal/engine"
	"muza/internal/observability"
	"muza/internal/profile"
)

const chatWelcome = `# МУЗА — подбор выставок

Расскажите, куда и с кем собираетесь: возраст, компания, настроение,
интересы. Я задам не больше двух уточняющих вопросов и подберу выставки.

*Команды:* ` + "`выход`" + `, ` + "`exit`" + `, ` + "`quit`" + ` — завершить.`

// runChat runs the clarifying dialogue as a REPL with history and arrow
// keys. Dialogue state lives in the loop; a terminal turn resets it so
// the next line starts a fresh request.
func runChat(a *app) error {
	ctx := context.Background()
	if err := a.ensureCatalog(ctx); err != nil {
		return err
	}

	if a.cfg.PlainOutput {
		fmt.Println("МУЗА — подбор выставок. Опишите ваш запрос; 'выход' для завершения.")
	} else {
		fmt.Println(string(markdown.Render(chatWelcome, chatWidth(), 2)))
	}

	homeDir, _ := os.UserHomeDir()
	historyFile := filepath.Join(homeDir, ".muza-history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "выход",
		HistorySearchFold: true,

		Stdin:  readline.NewCancelableStdin(os.Stdin),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	var (
		conv    dialogue.Conversation
		prof    profile.Profile
		waiting bool
	)

	for {
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(input) == 0 {
				fmt.Println("\nДо встречи!")
				break
			}
			continue
		} else if err == io.EOF {
			fmt.Println("\nДо встречи!")
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "выход" || input == "exit" || input == "quit" || input == "q" {
			fmt.Println("До встречи!")
			break
		}

		turnCtx := observability.ContextWithRequestID(ctx, observability.NewRequestID())
		var turn engine.Turn
		if waiting {
			turn, err = a.engine.Answer(turnCtx, conv, prof, input)
		} else {
			turn, err = a.engine.Start(turnCtx, input)
		}
		if err != nil {
			fmt.Printf("\n%s %v\n\n", red("ошибка:"), err)
			continue
		}

		a.renderer.RenderDegraded(turn.Degraded)

		if turn.Terminal() {
			waiting = false
			if err := a.renderer.Render(*turn.Result); err != nil {
				return err
			}
			fmt.Println(gray("Опишите новый запрос или введите 'выход'."))
			continue
		}

		conv, prof = turn.Conversation, turn.Profile
		waiting = true
		a.renderer.RenderQuestion(*turn.Question)
	}

	return nil
}

func chatWidth() int {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w - 2
	}
	return width
}
