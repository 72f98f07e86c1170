package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"muza/internal/config"
)

func newInitCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Мастер первоначальной настройки",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTTY() {
				return errors.New("init требует интерактивный терминал")
			}
			return runInit(flags)
		},
	}
}

func runInit(flags *rootFlags) error {
	fmt.Printf("\n%s\n%s\n\n", bold("Настройка muza"),
		gray("Ответы сохраняются в конфигурационный файл; Ctrl+C — отмена."))

	updates := map[string]any{}

	providerSelect := promptui.Select{
		Label: "Провайдер LLM",
		Items: []string{"openai", "mock (офлайн, без API-ключа)"},
	}
	providerIdx, _, err := providerSelect.Run()
	if err != nil {
		return initAborted(err)
	}

	if providerIdx == 0 {
		updates["llm_provider"] = "openai"

		keyPrompt := promptui.Prompt{
			Label: "API-ключ",
			Mask:  '*',
			Validate: func(input string) error {
				if strings.TrimSpace(input) == "" {
					return errors.New("ключ не может быть пустым")
				}
				return nil
			},
		}
		key, err := keyPrompt.Run()
		if err != nil {
			return initAborted(err)
		}
		updates["api_key"] = strings.TrimSpace(key)

		modelPrompt := promptui.Prompt{
			Label:   "Модель",
			Default: config.DefaultLLMModel,
		}
		model, err := modelPrompt.Run()
		if err != nil {
			return initAborted(err)
		}
		updates["llm_model"] = strings.TrimSpace(model)

		urlPrompt := promptui.Prompt{
			Label:   "Base URL",
			Default: config.DefaultLLMBaseURL,
		}
		baseURL, err := urlPrompt.Run()
		if err != nil {
			return initAborted(err)
		}
		updates["base_url"] = strings.TrimSpace(baseURL)
	} else {
		updates["llm_provider"] = "mock"
	}

	dataDirPrompt := promptui.Prompt{
		Label:   "Каталог данных",
		Default: config.DefaultDataDir,
	}
	dataDir, err := dataDirPrompt.Run()
	if err != nil {
		return initAborted(err)
	}
	updates["data_dir"] = strings.TrimSpace(dataDir)

	languageSelect := promptui.Select{
		Label: "Язык ответов",
		Items: []string{"ru", "en"},
	}
	_, language, err := languageSelect.Run()
	if err != nil {
		return initAborted(err)
	}
	updates["language"] = language

	path, err := saveConfig(flags, updates)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s конфигурация записана в %s\n", green("✓"), bold(path))
	fmt.Printf("%s\n\n", gray("Загрузите каталог ('muza ingest --sample') и начинайте: muza chat"))
	return nil
}

func initAborted(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
		fmt.Println(gray("настройка отменена"))
		return nil
	}
	return err
}
