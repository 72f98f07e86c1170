package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig configures distributed tracing
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"` // otlp, zipkin
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"` // 0.0 to 1.0
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

// TracerProvider wraps OpenTelemetry tracer
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerProvider creates a new tracer provider
func NewTracerProvider(config TracingConfig) (*TracerProvider, error) {
	if !config.Enabled {
		// Return noop tracer
		return &TracerProvider{
			tracer: noop.NewTracerProvider().Tracer("muza"),
		}, nil
	}

	// Default service name
	if config.ServiceName == "" {
		config.ServiceName = "muza"
	}

	// Default sample rate
	if config.SampleRate <= 0 || config.SampleRate > 1.0 {
		config.SampleRate = 1.0
	}

	// Create exporter based on config
	var exporter sdktrace.SpanExporter
	var err error

	switch config.Exporter {
	case "otlp":
		endpoint := config.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		exporter, err = otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	case "zipkin":
		endpoint := config.ZipkinEndpoint
		if endpoint == "" {
			endpoint = "http://localhost:9411/api/v2/spans"
		}
		exporter, err = zipkin.New(endpoint)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", config.Exporter)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create trace provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SampleRate)),
	)

	otel.SetTracerProvider(provider)

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer("muza"),
	}, nil
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the tracer
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// StartSpan starts a new span, attaching request/session identifiers from the context
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}

	return tp.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Common span names
const (
	SpanEngineRecommend = "muza.engine.recommend"
	SpanExtract         = "muza.extract.fuse"
	SpanExtractStrategy = "muza.extract.strategy"
	SpanDialogueRound   = "muza.dialogue.round"
	SpanIndexQuery      = "muza.index.query"
	SpanRank            = "muza.rank"
	SpanExplain         = "muza.explain"
	SpanLLMComplete     = "muza.llm.complete"
	SpanHTTPServer      = "muza.http.request"
)

// Common attribute keys
const (
	AttrRequestID    = "muza.request_id"
	AttrSessionID    = "muza.session_id"
	AttrStrategy     = "muza.extract.strategy"
	AttrRound        = "muza.dialogue.round"
	AttrModel        = "muza.llm.model"
	AttrInputTokens  = "muza.llm.input_tokens"
	AttrOutputTokens = "muza.llm.output_tokens"
	AttrCandidates   = "muza.candidates"
	AttrStatus       = "muza.status"
	AttrError        = "muza.error"
)

// Helper functions to add common attributes

// SessionAttrs creates session attributes
func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// StrategyAttrs creates extraction strategy attributes
func StrategyAttrs(strategy string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStrategy, strategy),
	}
}

// LLMAttrs creates LLM attributes
func LLMAttrs(model string, inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrModel, model),
		attribute.Int(AttrInputTokens, inputTokens),
		attribute.Int(AttrOutputTokens, outputTokens),
	}
}

// RoundAttrs creates dialogue round attributes
func RoundAttrs(round int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrRound, round),
	}
}

// CandidateAttrs creates candidate count attributes
func CandidateAttrs(count int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrCandidates, count),
	}
}

// StatusAttrs creates status attributes
func StatusAttrs(status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStatus, status),
	}
}

// ErrorAttrs creates error attributes
func ErrorAttrs(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.Bool(AttrError, true),
		attribute.String("error.message", err.Error()),
	}
}
