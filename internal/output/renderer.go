// Package output renders recommendation results for the terminal. Styled
// output goes through glamour markdown rendering; without a TTY (or with
// Plain set) the raw markdown is printed as-is, which stays readable.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"muza/internal/dialogue"
	"muza/internal/explain"
	"muza/internal/logging"
)

const (
	defaultWidth = 80
	maxWidth     = 120
)

var (
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#D08700"))
)

// MarkdownRenderer turns a markdown document into terminal output. Tests
// supply a lightweight implementation.
type MarkdownRenderer interface {
	Render(string) (string, error)
}

// Config wires a Renderer. Zero values mean stdout, styled output, and the
// default glamour renderer.
type Config struct {
	Writer io.Writer
	// Plain disables colors and markdown styling.
	Plain    bool
	Markdown MarkdownRenderer
	Logger   logging.Logger
}

// Renderer writes results, questions and degradation notes to a terminal.
type Renderer struct {
	w     io.Writer
	plain bool
	md    MarkdownRenderer
	log   logging.Logger
}

func NewRenderer(config Config) *Renderer {
	w := config.Writer
	if w == nil {
		w = os.Stdout
	}
	r := &Renderer{
		w:     w,
		plain: config.Plain,
		md:    config.Markdown,
		log:   logging.OrNop(config.Logger),
	}
	if r.md == nil && !r.plain {
		r.md = buildMarkdownRenderer(detectWidth(w))
	}
	return r
}

// buildMarkdownRenderer returns nil when glamour cannot be constructed;
// rendering then falls back to raw markdown.
func buildMarkdownRenderer(width int) MarkdownRenderer {
	options := []glamour.TermRendererOption{
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		options = append(options, glamour.WithAutoStyle())
	} else {
		options = append(options, glamour.WithStandardStyle("notty"))
	}
	md, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return nil
	}
	return md
}

// detectWidth reads the terminal width when the writer is one, with a
// margin and a readability cap.
func detectWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	width -= 4
	if width > maxWidth {
		width = maxWidth
	}
	if width < 20 {
		width = 20
	}
	return width
}

// Render writes the result as a styled markdown document.
func (r *Renderer) Render(result explain.Result) error {
	doc := buildMarkdown(result)
	if r.md != nil {
		rendered, err := r.md.Render(doc)
		if err == nil {
			_, err = io.WriteString(r.w, rendered)
			return err
		}
		r.log.Warn("markdown rendering failed, falling back to plain output: %v", err)
	}
	_, err := io.WriteString(r.w, doc)
	return err
}

// RenderQuestion writes one clarifying question.
func (r *Renderer) RenderQuestion(q dialogue.Question) {
	text := fmt.Sprintf("Вопрос %d: %s", q.Round, q.Text)
	if r.plain {
		fmt.Fprintln(r.w, text)
		return
	}
	fmt.Fprintln(r.w, questionStyle.Render(text))
}

// RenderDegraded notes extraction strategies that failed this turn.
func (r *Renderer) RenderDegraded(degraded []string) {
	if len(degraded) == 0 {
		return
	}
	text := "⚠ часть анализа недоступна: " + strings.Join(degraded, ", ")
	if r.plain {
		fmt.Fprintln(r.w, text)
		return
	}
	fmt.Fprintln(r.w, warnStyle.Render(text))
}

// WriteJSON writes the result as indented JSON, the same shape the HTTP
// API returns.
func WriteJSON(w io.Writer, result explain.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func buildMarkdown(result explain.Result) string {
	var b strings.Builder
	b.WriteString("# Подбор выставок\n\n")
	if result.Summary != "" {
		b.WriteString(result.Summary)
		b.WriteString("\n\n")
	}
	if result.Narrative != "" {
		b.WriteString("> ")
		b.WriteString(result.Narrative)
		b.WriteString("\n\n")
	}
	if len(result.Recommendations) == 0 {
		if result.Explanation != "" {
			b.WriteString(result.Explanation)
			b.WriteString("\n")
		}
		return b.String()
	}

	for i, rec := range result.Recommendations {
		fmt.Fprintf(&b, "## %d. «%s» — %s\n\n", i+1, rec.Title, rec.Museum)
		if rec.ShortDescription != "" {
			b.WriteString(rec.ShortDescription)
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "- **Почему подходит:** %s\n", rec.WhyFit)
		if dates := formatDates(rec.Dates); dates != "" {
			fmt.Fprintf(&b, "- **Даты:** %s\n", dates)
		}
		if rec.Location != "" {
			fmt.Fprintf(&b, "- **Где:** %s\n", rec.Location)
		}
		if len(rec.Tags) > 0 {
			fmt.Fprintf(&b, "- **Теги:** %s\n", strings.Join(rec.Tags, ", "))
		}
		fmt.Fprintf(&b, "- **Уверенность:** %.0f%%\n\n", rec.Confidence*100)
	}
	return b.String()
}

func formatDates(d explain.DateRange) string {
	switch {
	case d.Start != "" && d.End != "":
		return d.Start + " — " + d.End
	case d.Start != "":
		return "с " + d.Start
	case d.End != "":
		return "до " + d.End
	default:
		return ""
	}
}
