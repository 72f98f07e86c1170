package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	muzaerrors "muza/internal/errors"
	"muza/internal/logging"
)

type flakyClient struct {
	failures int
	calls    int
}

func (c *flakyClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, muzaerrors.NewTransientError(errors.New("boom"), "temporary failure")
	}
	return &CompletionResponse{
		Content: "ok",
		Usage:   TokenUsage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19},
	}, nil
}

func (c *flakyClient) Model() string { return "flaky" }

func fastRetryConfig() muzaerrors.RetryConfig {
	return muzaerrors.RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetryClientRecoversFromTransientFailure(t *testing.T) {
	mock := &flakyClient{failures: 1}
	breaker := muzaerrors.NewCircuitBreaker("test", muzaerrors.DefaultCircuitBreakerConfig())
	client := NewRetryClient(mock, fastRetryConfig(), breaker, nil)

	resp, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, 2, mock.calls)
}

type permanentClient struct {
	calls int
}

func (c *permanentClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	c.calls++
	return nil, muzaerrors.NewPermanentError(errors.New("no such model"), "Model or endpoint not found.")
}

func (c *permanentClient) Model() string { return "permanent" }

func TestRetryClientDoesNotRetryPermanentErrors(t *testing.T) {
	mock := &permanentClient{}
	breaker := muzaerrors.NewCircuitBreaker("test", muzaerrors.DefaultCircuitBreakerConfig())
	client := NewRetryClient(mock, fastRetryConfig(), breaker, nil)

	_, err := client.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	require.Equal(t, 1, mock.calls)
}

func TestWrapWithRetryNamesBreakerAfterModel(t *testing.T) {
	mock := &flakyClient{}
	breakers := muzaerrors.NewCircuitBreakerManager(muzaerrors.DefaultCircuitBreakerConfig())
	client := WrapWithRetry(mock, fastRetryConfig(), breakers, nil)
	require.Equal(t, "flaky", client.Model())

	resp, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)

	snapshot := breakers.GetMetrics()
	require.Len(t, snapshot, 1)
	require.Equal(t, "llm-flaky", snapshot[0].Name)
}

// metricsSpy records RecordLLMRequest calls in place of the collector.
type metricsSpy struct {
	model    string
	statuses []string
	input    int
	output   int
}

func (s *metricsSpy) RecordLLMRequest(_ context.Context, model, status string, _ time.Duration, inputTokens, outputTokens int) {
	s.model = model
	s.statuses = append(s.statuses, status)
	s.input += inputTokens
	s.output += outputTokens
}

func TestRetryClientRecordsTokenUsage(t *testing.T) {
	mock := &flakyClient{}
	spy := &metricsSpy{}
	client := &retryClient{
		underlying:     mock,
		retryConfig:    fastRetryConfig(),
		circuitBreaker: muzaerrors.NewCircuitBreaker("test", muzaerrors.DefaultCircuitBreakerConfig()),
		metrics:        spy,
		logger:         logging.NewComponentLogger("test"),
	}

	_, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)

	require.Equal(t, "flaky", spy.model)
	require.Equal(t, []string{"success"}, spy.statuses)
	require.Equal(t, 12, spy.input)
	require.Equal(t, 7, spy.output)
}

func TestRetryClientRecordsFailedRequests(t *testing.T) {
	mock := &permanentClient{}
	spy := &metricsSpy{}
	client := &retryClient{
		underlying:     mock,
		retryConfig:    fastRetryConfig(),
		circuitBreaker: muzaerrors.NewCircuitBreaker("test", muzaerrors.DefaultCircuitBreakerConfig()),
		metrics:        spy,
		logger:         logging.NewComponentLogger("test"),
	}

	_, err := client.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	require.Equal(t, []string{"error"}, spy.statuses)
	require.Zero(t, spy.input)
	require.Zero(t, spy.output)
}

func TestMockClientServesScriptedResponsesInOrder(t *testing.T) {
	mock := NewMockClient("первый", "второй")

	resp, err := mock.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "первый", resp.Content)

	resp, err = mock.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "второй", resp.Content)

	_, err = mock.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	require.True(t, muzaerrors.IsDegraded(err))
	require.Len(t, mock.Requests(), 3)
}

func TestMockClientDefaultContent(t *testing.T) {
	mock := NewMockClient()
	mock.DefaultContent = "{}"

	resp, err := mock.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "{}", resp.Content)
}
