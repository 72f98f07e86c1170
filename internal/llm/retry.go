package llm

import (
	"context"
	"fmt"
	"time"

	muzaerrors "muza/internal/errors"
	"muza/internal/logging"
	"muza/internal/observability"
)

// completionMetrics is the slice of the metrics collector the retry client
// reports into.
type completionMetrics interface {
	RecordLLMRequest(ctx context.Context, model string, status string, latency time.Duration, inputTokens, outputTokens int)
}

// retryClient wraps a completion client with retry logic and a circuit
// breaker. Repeated provider failures open the breaker so dialogue turns
// degrade to canned templates instead of stalling on a dead endpoint.
type retryClient struct {
	underlying     CompletionClient
	retryConfig    muzaerrors.RetryConfig
	circuitBreaker *muzaerrors.CircuitBreaker
	metrics        completionMetrics
	logger         logging.Logger
}

// NewRetryClient wraps client with the given retry and breaker policies.
// Metrics may be nil; token usage and latency go unrecorded then.
func NewRetryClient(client CompletionClient, retryConfig muzaerrors.RetryConfig, circuitBreaker *muzaerrors.CircuitBreaker, metrics *observability.MetricsCollector) CompletionClient {
	c := &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("llm-retry"),
	}
	if metrics != nil {
		c.metrics = metrics
	}
	return c
}

// WrapWithRetry wraps client with a breaker named after the model. The
// breaker comes from the shared manager when one is provided, so the
// health surface can report its state alongside the other dependencies.
func WrapWithRetry(client CompletionClient, retryConfig muzaerrors.RetryConfig, breakers *muzaerrors.CircuitBreakerManager, metrics *observability.MetricsCollector) CompletionClient {
	name := fmt.Sprintf("llm-%s", client.Model())
	var breaker *muzaerrors.CircuitBreaker
	if breakers != nil {
		breaker = breakers.Get(name)
	} else {
		breaker = muzaerrors.NewCircuitBreaker(name, muzaerrors.DefaultCircuitBreakerConfig())
	}
	return NewRetryClient(client, retryConfig, breaker, metrics)
}

func (c *retryClient) Model() string { return c.underlying.Model() }

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := muzaerrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
		return muzaerrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*CompletionResponse, error) {
			return c.underlying.Complete(ctx, req)
		})
	}, c.logger)

	duration := time.Since(start)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordLLMRequest(ctx, c.Model(), "error", duration, 0, 0)
		}
		c.logger.Warn("completion failed after retries (took %v): %v", duration, err)
		if muzaerrors.IsDegraded(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%s", c.formatRetryError(err, duration))
	}

	if c.metrics != nil {
		c.metrics.RecordLLMRequest(ctx, c.Model(), "success", duration,
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if duration > 5*time.Second {
		c.logger.Debug("completion succeeded after %v", duration)
	}
	return resp, nil
}

func (c *retryClient) formatRetryError(err error, duration time.Duration) string {
	attempts := c.retryConfig.MaxAttempts + 1
	return fmt.Sprintf("%s Retried %d times over %v.",
		muzaerrors.FormatForUser(err), attempts, duration.Round(time.Second))
}
