package llm

import (
	"context"
	"sync"

	muzaerrors "muza/internal/errors"
)

// MockClient implements CompletionClient for tests and for the --mock
// CLI mode. Scripted responses are returned in order; once exhausted it
// serves DefaultContent, or a degraded error when that is empty too.
type MockClient struct {
	mu             sync.Mutex
	responses      []string
	requests       []CompletionRequest
	model          string
	err            error
	DefaultContent string
}

// NewMockClient returns a mock that replies with the given contents in
// order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses, model: "mock"}
}

// NewFailingMockClient returns a mock whose Complete always fails with err.
func NewFailingMockClient(err error) *MockClient {
	return &MockClient{err: err, model: "mock"}
}

func (m *MockClient) Model() string { return m.model }

// Requests returns a copy of every request the mock has seen.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.err != nil {
		return nil, m.err
	}

	content := m.DefaultContent
	if len(m.responses) > 0 {
		content = m.responses[0]
		m.responses = m.responses[1:]
	}
	if content == "" {
		return nil, muzaerrors.NewDegradedError(nil, "mock client has no scripted response", "")
	}

	return &CompletionResponse{
		Content:    content,
		StopReason: "stop",
		Usage:      TokenUsage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}
