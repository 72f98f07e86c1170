package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"muza/internal/catalog"
	"muza/internal/config"
	"muza/internal/dialogue"
	"muza/internal/engine"
	muzaerrors "muza/internal/errors"
	"muza/internal/explain"
	"muza/internal/extract"
	"muza/internal/index"
	"muza/internal/llm"
	"muza/internal/logging"
	"muza/internal/observability"
	"muza/internal/output"
	"muza/internal/profile"
	"muza/internal/prompts"
	"muza/internal/rank"
	"muza/internal/session"
)

// app wires the full recommendation pipeline for one CLI invocation.
type app struct {
	cfg      config.RuntimeConfig
	meta     config.Metadata
	base     *observability.Logger
	log      logging.Logger
	metrics  *observability.MetricsCollector
	breakers *muzaerrors.CircuitBreakerManager
	client   llm.CompletionClient
	index    index.Index
	engine   *engine.Engine
	sessions *session.Registry
	renderer *output.Renderer
	chunker  *catalog.Chunker
}

func buildApp(flags *rootFlags) (*app, error) {
	cfg, meta, err := loadRuntimeConfig(flags)
	if err != nil {
		return nil, err
	}

	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	base := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: "text",
		Output: os.Stderr,
	})
	logging.SetDefault(base)
	log := logging.FromObservabilityWithComponent(base, "cli")

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: true})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	breakers := muzaerrors.NewCircuitBreakerManager(muzaerrors.DefaultCircuitBreakerConfig())

	mock := cfg.LLMProvider == "mock"

	var client llm.CompletionClient
	if mock {
		client = llm.NewMockClient()
	} else {
		client, err = llm.NewOpenAIClient(llm.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.LLMModel,
		})
		if err != nil {
			return nil, fmt.Errorf("init llm client: %w", err)
		}
		client = llm.WrapWithRetry(client, muzaerrors.DefaultRetryConfig(), breakers, metrics)
	}

	var embedder index.Embedder
	if mock {
		embedder = index.NewMockEmbedder(0)
	} else {
		embedder, err = index.NewEmbedder(index.EmbedderConfig{
			Model:    cfg.EmbeddingModel,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.EmbeddingBaseURL,
			Logger:   logging.FromObservabilityWithComponent(base, "embedder"),
			Breakers: breakers,
		})
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}

	idx, err := index.NewIndex(index.Config{
		Path:    config.ExpandPath(cfg.DataDir),
		Logger:  logging.FromObservabilityWithComponent(base, "index"),
		Metrics: metrics,
	}, embedder)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	promptLoader, err := prompts.NewPromptLoader()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	vocab := profile.NewVocabulary()
	strategies := []extract.Strategy{
		extract.NewRulesStrategy(vocab, logging.FromObservabilityWithComponent(base, "extract.rules")),
		extract.NewLexicalStrategy(logging.FromObservabilityWithComponent(base, "extract.lexical")),
	}
	// The mock provider stays fully offline: deterministic strategies
	// only, canned question templates, no narrative generation.
	var phraser, narrator llm.CompletionClient
	if !mock {
		strategies = append(strategies,
			extract.NewGenerativeStrategy(client, promptLoader, vocab,
				logging.FromObservabilityWithComponent(base, "extract.generative")))
		phraser = client
		narrator = client
	}

	extractor := extract.NewExtractor(extract.Config{
		Strategies: strategies,
		Timeout:    cfg.StrategyTimeout(),
		Logger:     logging.FromObservabilityWithComponent(base, "extract"),
		Metrics:    metrics,
	})
	controller := dialogue.NewController(dialogue.Config{
		MaxRounds: cfg.MaxRounds,
		Phraser:   phraser,
		Prompts:   promptLoader,
		Logger:    logging.FromObservabilityWithComponent(base, "dialogue"),
		Metrics:   metrics,
	})
	ranker := rank.NewRanker(rank.Config{
		TopK:    cfg.TopK,
		Logger:  logging.FromObservabilityWithComponent(base, "rank"),
		Metrics: metrics,
	})
	synthesizer := explain.NewSynthesizer(explain.Config{
		Narrator: narrator,
		Prompts:  promptLoader,
		Logger:   logging.FromObservabilityWithComponent(base, "explain"),
	})

	eng, err := engine.New(engine.Config{
		Extractor:   extractor,
		Dialogue:    controller,
		Index:       idx,
		Ranker:      ranker,
		Synthesizer: synthesizer,
		TopK:        cfg.TopK,
		Logger:      logging.FromObservabilityWithComponent(base, "engine"),
		Metrics:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	sessions := session.NewRegistry(session.Config{
		TTL:     cfg.SessionTTL(),
		Logger:  logging.FromObservabilityWithComponent(base, "session"),
		Metrics: metrics,
	})

	renderer := output.NewRenderer(output.Config{
		Writer: os.Stdout,
		Plain:  cfg.PlainOutput,
		Logger: log,
	})

	return &app{
		cfg:      cfg,
		meta:     meta,
		base:     base,
		log:      log,
		metrics:  metrics,
		breakers: breakers,
		client:   client,
		index:    idx,
		engine:   eng,
		sessions: sessions,
		renderer: renderer,
		chunker:  catalog.NewChunker(catalog.ChunkerConfig{}),
	}, nil
}

func loadRuntimeConfig(flags *rootFlags) (config.RuntimeConfig, config.Metadata, error) {
	overrides := config.Overrides{}
	if flags.verbose {
		v := true
		overrides.Verbose = &v
	}
	if flags.plain {
		v := true
		overrides.PlainOutput = &v
	}
	if flags.dataDir != "" {
		overrides.DataDir = &flags.dataDir
	}
	if flags.mock {
		provider := "mock"
		overrides.LLMProvider = &provider
	}

	opts := []config.Option{config.WithOverrides(overrides)}
	if flags.configPath != "" {
		opts = append(opts, config.WithConfigPath(flags.configPath))
	}
	return config.Load(opts...)
}

func (a *app) Close() {
	a.sessions.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		a.log.Debug("metrics shutdown: %v", err)
	}
}

// ensureCatalog seeds an empty index so first runs work out of the box:
// the configured catalog file when one is set, the bundled sample
// otherwise.
func (a *app) ensureCatalog(ctx context.Context) error {
	if a.index.Count() > 0 {
		return nil
	}

	var exhibitions []catalog.Exhibition
	var err error
	if a.cfg.CatalogPath != "" {
		exhibitions, err = catalog.LoadFile(config.ExpandPath(a.cfg.CatalogPath))
		if err != nil {
			return fmt.Errorf("load catalog %s: %w", a.cfg.CatalogPath, err)
		}
		a.log.Info("индексация каталога %s (%d выставок)", a.cfg.CatalogPath, len(exhibitions))
	} else {
		exhibitions = catalog.SampleCatalog(time.Now())
		a.log.Info("индекс пуст, загружаю демонстрационный каталог (%d выставок)", len(exhibitions))
	}

	return a.indexExhibitions(ctx, exhibitions)
}

func (a *app) indexExhibitions(ctx context.Context, exhibitions []catalog.Exhibition) error {
	var chunks []catalog.Chunk
	for _, e := range catalog.Active(exhibitions, time.Now(), a.log) {
		chunks = append(chunks, a.chunker.Split(e)...)
	}
	if err := a.index.Add(ctx, chunks); err != nil {
		return fmt.Errorf("index catalog: %w", err)
	}
	return nil
}
