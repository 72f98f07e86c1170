package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for muza
type MetricsCollector struct {
	meter metric.Meter

	// Pipeline metrics
	requests        metric.Int64Counter
	requestLatency  metric.Float64Histogram
	strategyRuns    metric.Int64Counter
	strategyLatency metric.Float64Histogram
	dialogueRounds  metric.Int64Histogram
	retrievalOps    metric.Int64Counter
	candidates      metric.Int64Counter

	// LLM metrics
	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	// Session metrics
	sessionsActive metric.Int64UpDownCounter

	// Provider backing the meter; flushed on Shutdown. The collected
	// metrics are scraped through the HTTP server's /metrics route.
	provider *sdkmetric.MeterProvider
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("muza")

	requests, err := meter.Int64Counter(
		"muza.requests.total",
		metric.WithDescription("Total number of recommendation requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	requestLatency, err := meter.Float64Histogram(
		"muza.request.latency",
		metric.WithDescription("End-to-end request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request_latency histogram: %w", err)
	}

	strategyRuns, err := meter.Int64Counter(
		"muza.extract.strategy.runs.total",
		metric.WithDescription("Extraction strategy invocations by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy_runs counter: %w", err)
	}

	strategyLatency, err := meter.Float64Histogram(
		"muza.extract.strategy.latency",
		metric.WithDescription("Per-strategy extraction latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy_latency histogram: %w", err)
	}

	dialogueRounds, err := meter.Int64Histogram(
		"muza.dialogue.rounds",
		metric.WithDescription("Clarification rounds used before a terminal state"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialogue_rounds histogram: %w", err)
	}

	retrievalOps, err := meter.Int64Counter(
		"muza.retrieval.total",
		metric.WithDescription("Similarity index queries by outcome"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval counter: %w", err)
	}

	candidates, err := meter.Int64Counter(
		"muza.candidates.total",
		metric.WithDescription("Candidates seen per pipeline stage"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create candidates counter: %w", err)
	}

	llmRequests, err := meter.Int64Counter(
		"muza.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_requests counter: %w", err)
	}

	llmTokensInput, err := meter.Int64Counter(
		"muza.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_input counter: %w", err)
	}

	llmTokensOutput, err := meter.Int64Counter(
		"muza.llm.tokens.output",
		metric.WithDescription("Total output tokens from LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_output counter: %w", err)
	}

	llmLatency, err := meter.Float64Histogram(
		"muza.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_latency histogram: %w", err)
	}

	sessionsActive, err := meter.Int64UpDownCounter(
		"muza.sessions.active",
		metric.WithDescription("Number of active dialogue sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions_active gauge: %w", err)
	}

	collector := &MetricsCollector{
		meter:           meter,
		provider:        provider,
		requests:        requests,
		requestLatency:  requestLatency,
		strategyRuns:    strategyRuns,
		strategyLatency: strategyLatency,
		dialogueRounds:  dialogueRounds,
		retrievalOps:    retrievalOps,
		candidates:      candidates,
		llmRequests:     llmRequests,
		llmTokensInput:  llmTokensInput,
		llmTokensOutput: llmTokensOutput,
		llmLatency:      llmLatency,
		sessionsActive:  sessionsActive,
	}

	return collector, nil
}

// Shutdown flushes pending measurements and stops the meter provider
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// RecordRequest records one recommendation request
func (m *MetricsCollector) RecordRequest(ctx context.Context, surface string, status string, latency time.Duration) {
	if m.requests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("surface", surface),
		attribute.String("status", status),
	}

	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requestLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("surface", surface)))
}

// RecordStrategy records one extraction strategy run
func (m *MetricsCollector) RecordStrategy(ctx context.Context, strategy string, status string, duration time.Duration) {
	if m.strategyRuns == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	}

	m.strategyRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.strategyLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordDialogue records how many clarification rounds a session used
func (m *MetricsCollector) RecordDialogue(ctx context.Context, rounds int, outcome string) {
	if m.dialogueRounds == nil {
		return
	}
	m.dialogueRounds.Record(ctx, int64(rounds), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRetrieval records one similarity index query
func (m *MetricsCollector) RecordRetrieval(ctx context.Context, status string, retrieved int) {
	if m.retrievalOps == nil {
		return
	}
	m.retrievalOps.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if retrieved > 0 {
		m.candidates.Add(ctx, int64(retrieved), metric.WithAttributes(attribute.String("stage", "retrieved")))
	}
}

// RecordCandidates records candidate counts for a pipeline stage (filtered, ranked)
func (m *MetricsCollector) RecordCandidates(ctx context.Context, stage string, count int) {
	if m.candidates == nil {
		return
	}
	m.candidates.Add(ctx, int64(count), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordLLMRequest records an LLM request
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model string, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m.llmRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}

	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmTokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmTokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter
func (m *MetricsCollector) IncrementActiveSessions(ctx context.Context) {
	if m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter
func (m *MetricsCollector) DecrementActiveSessions(ctx context.Context) {
	if m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}
