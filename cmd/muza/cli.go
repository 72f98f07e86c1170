package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"muza/internal/catalog"
	"muza/internal/config"
	"muza/internal/logging"
	"muza/internal/observability"
	"muza/internal/output"
	"muza/internal/server"
	"muza/internal/version"
)

// Color helpers shared by every subcommand.
var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type rootFlags struct {
	configPath string
	dataDir    string
	verbose    bool
	plain      bool
	mock       bool
}

// NewRootCommand assembles the muza CLI.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "muza [запрос]",
		Short: "Подбор музейных выставок по свободному описанию",
		Long: fmt.Sprintf(`%s

Опишите, с кем и в каком настроении вы идете в музей, и muza подберет
выставки: извлечет предпочтения из текста, при необходимости задаст
пару уточняющих вопросов и объяснит каждую рекомендацию.

%s
  muza                                  # интерактивный диалог
  muza "Мне 25, иду с девушкой"         # разовый подбор
  muza recommend "люблю живопись" -o r.json
  muza ingest --sample                  # загрузить демо-каталог
  muza serve                            # HTTP и WebSocket API
  muza init                             # мастер настройки`,
			bold("МУЗА "+version.Version()),
			bold("ПРИМЕРЫ:")),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				a, err := buildApp(flags)
				if err != nil {
					return err
				}
				defer a.Close()
				return runRecommend(a, strings.Join(args, " "), "", false)
			}
			if !isTTY() {
				return cmd.Help()
			}
			a, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(a)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "путь к файлу конфигурации")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "каталог данных индекса")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "подробные логи")
	rootCmd.PersistentFlags().BoolVar(&flags.plain, "plain", false, "вывод без оформления")
	rootCmd.PersistentFlags().BoolVar(&flags.mock, "mock", false, "офлайн-режим без внешних сервисов")

	rootCmd.AddCommand(newRecommendCommand(flags))
	rootCmd.AddCommand(newChatCommand(flags))
	rootCmd.AddCommand(newIngestCommand(flags))
	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newConfigCommand(flags))
	rootCmd.AddCommand(newInitCommand(flags))
	rootCmd.AddCommand(newVersionCommand())

	viper.SetEnvPrefix("MUZA")
	viper.AutomaticEnv()

	return rootCmd
}

func newRecommendCommand(flags *rootFlags) *cobra.Command {
	var outputPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "recommend <запрос>",
		Short: "Разовый подбор без уточняющих вопросов",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return runRecommend(a, strings.Join(args, " "), outputPath, asJSON)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "сохранить результат в JSON-файл")
	cmd.Flags().BoolVar(&asJSON, "json", false, "печатать JSON вместо оформленного вывода")
	return cmd
}

func runRecommend(a *app, text, outputPath string, asJSON bool) error {
	ctx := observability.ContextWithRequestID(context.Background(), observability.NewRequestID())
	if err := a.ensureCatalog(ctx); err != nil {
		return err
	}

	turn, err := a.engine.Recommend(ctx, text)
	if err != nil {
		return err
	}
	result := *turn.Result

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outputPath, err)
		}
		defer f.Close()
		if err := output.WriteJSON(f, result); err != nil {
			return err
		}
		fmt.Printf("%s результат сохранен в %s\n", green("✓"), bold(outputPath))
		return nil
	}
	if asJSON {
		return output.WriteJSON(os.Stdout, result)
	}

	a.renderer.RenderDegraded(turn.Degraded)
	return a.renderer.Render(result)
}

func newChatCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Интерактивный диалог с уточняющими вопросами",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(a)
		},
	}
}

func newIngestCommand(flags *rootFlags) *cobra.Command {
	var sample bool
	var reset bool
	var fromURL string

	cmd := &cobra.Command{
		Use:   "ingest [файл]",
		Short: "Загрузить каталог выставок в индекс",
		Long: `Загружает выставки в векторный индекс из JSON или CSV файла,
по URL (страница со списком выставок) или из встроенного демо-каталога.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			if reset {
				if err := a.index.Reset(ctx); err != nil {
					return fmt.Errorf("reset index: %w", err)
				}
				fmt.Printf("%s индекс очищен\n", yellow("•"))
			}

			var exhibitions []catalog.Exhibition
			switch {
			case len(args) == 1:
				exhibitions, err = catalog.LoadFile(config.ExpandPath(args[0]))
			case fromURL != "":
				exhibitions, err = catalog.FetchURL(ctx, fromURL)
			case sample:
				exhibitions = catalog.SampleCatalog(time.Now())
			default:
				return errors.New("укажите файл каталога, --url или --sample")
			}
			if err != nil {
				return err
			}

			if err := a.indexExhibitions(ctx, exhibitions); err != nil {
				return err
			}
			fmt.Printf("%s проиндексировано выставок: %s (фрагментов в индексе: %s)\n",
				green("✓"), bold(strconv.Itoa(len(exhibitions))), blue(strconv.Itoa(a.index.Count())))
			return nil
		},
	}

	cmd.Flags().BoolVar(&sample, "sample", false, "загрузить встроенный демо-каталог")
	cmd.Flags().BoolVar(&reset, "reset", false, "очистить индекс перед загрузкой")
	cmd.Flags().StringVar(&fromURL, "url", "", "загрузить каталог со страницы по URL")
	return cmd
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	var noCORS bool
	var traceExporter string
	var traceEndpoint string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP и WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := viper.BindPFlag("http_addr", cmd.Flags().Lookup("addr")); err != nil {
				return err
			}
			viper.SetDefault("http_addr", a.cfg.HTTPAddr)
			host, port, err := splitAddr(viper.GetString("http_addr"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.ensureCatalog(ctx); err != nil {
				return err
			}

			if traceExporter != "" {
				tp, err := observability.NewTracerProvider(observability.TracingConfig{
					Enabled:        true,
					Exporter:       traceExporter,
					OTLPEndpoint:   traceEndpoint,
					ZipkinEndpoint: traceEndpoint,
					ServiceName:    "muza",
					ServiceVersion: version.Version(),
				})
				if err != nil {
					return fmt.Errorf("init tracing: %w", err)
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					defer cancel()
					if err := tp.Shutdown(shutdownCtx); err != nil {
						a.log.Warn("tracing shutdown: %v", err)
					}
				}()
			}

			srv, err := server.New(server.Config{
				Host:       host,
				Port:       port,
				Debug:      a.cfg.Verbose,
				EnableCORS: !noCORS,
				Engine:     a.engine,
				Sessions:   a.sessions,
				Breakers:   a.breakers,
				Logger:     logging.FromObservabilityWithComponent(a.base, "server"),
				Metrics:    a.metrics,
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			fmt.Printf("%s muza API на %s (Ctrl+C для остановки)\n", green("▸"), bold(srv.Addr()))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return <-errCh
		},
	}

	cmd.Flags().String("addr", "", "адрес прослушивания (host:port)")
	cmd.Flags().BoolVar(&noCORS, "no-cors", false, "отключить CORS")
	cmd.Flags().StringVar(&traceExporter, "trace", "", "экспортер трассировки: otlp или zipkin")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "адрес коллектора трассировки")
	return cmd
}

func splitAddr(addr string) (string, int, error) {
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("разбор адреса %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, fmt.Errorf("разбор порта %q: %w", portText, err)
	}
	return host, port, nil
}

func newConfigCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Просмотр и изменение конфигурации",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Показать текущую конфигурацию",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, meta, err := loadRuntimeConfig(flags)
			if err != nil {
				return err
			}
			showConfig(flags, cfg, meta)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "provider <openai|mock> [модель]",
		Short: "Выбрать провайдера LLM",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := strings.ToLower(args[0])
			if provider != "openai" && provider != "mock" {
				return fmt.Errorf("неизвестный провайдер %q (доступны: openai, mock)", args[0])
			}
			updates := map[string]any{"llm_provider": provider}
			if len(args) > 1 {
				updates["llm_model"] = args[1]
			}
			path, err := saveConfig(flags, updates)
			if err != nil {
				return err
			}
			fmt.Printf("%s провайдер %s записан в %s\n", green("✓"), bold(provider), gray(path))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "apikey <ключ>",
		Short: "Сохранить API-ключ",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := saveConfig(flags, map[string]any{"api_key": args[0]})
			if err != nil {
				return err
			}
			fmt.Printf("%s ключ сохранен в %s\n", green("✓"), gray(path))
			return nil
		},
	})

	return cmd
}

func saveConfig(flags *rootFlags, updates map[string]any) (string, error) {
	opts := []config.Option{}
	if flags.configPath != "" {
		opts = append(opts, config.WithConfigPath(flags.configPath))
	}
	return config.Save(updates, opts...)
}

func showConfig(flags *rootFlags, cfg config.RuntimeConfig, meta config.Metadata) {
	path, _ := config.ConfigPath(config.WithConfigPath(flags.configPath))

	row := func(label, field, value string) {
		source := string(meta.Source(field))
		fmt.Printf("  %s: %s %s\n", bold(label), blue(value), gray("("+source+")"))
	}

	fmt.Printf("\n%s (%s)\n", bold("Конфигурация muza"), gray(path))
	row("Провайдер LLM", "llm_provider", cfg.LLMProvider)
	row("Модель", "llm_model", cfg.LLMModel)
	row("API-ключ", "api_key", maskKey(cfg.APIKey))
	row("Base URL", "base_url", cfg.BaseURL)
	row("Модель эмбеддингов", "embedding_model", cfg.EmbeddingModel)
	row("Язык", "language", cfg.Language)
	row("Top-K", "top_k", strconv.Itoa(cfg.TopK))
	row("Раунды уточнений", "max_rounds", strconv.Itoa(cfg.MaxRounds))
	row("Каталог данных", "data_dir", cfg.DataDir)
	row("Файл каталога", "catalog_path", orDash(cfg.CatalogPath))
	row("HTTP-адрес", "http_addr", cfg.HTTPAddr)
	fmt.Println()
}

func maskKey(key string) string {
	runes := []rune(key)
	switch {
	case len(runes) == 0:
		return "—"
	case len(runes) < 12:
		return "****"
	default:
		return string(runes[:5]) + "..." + string(runes[len(runes)-4:])
	}
}

func orDash(value string) string {
	if value == "" {
		return "—"
	}
	return value
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("muza %s\n", version.Version())
		},
	}
}
