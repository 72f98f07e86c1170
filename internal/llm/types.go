// Package llm provides the completion client used for generative
// extraction, clarification phrasing, and recommendation narratives.
// The pipeline treats the client as optional: every caller has a
// deterministic fallback when completions fail or are disabled.
package llm

import "context"

// Message is a single chat turn in provider wire order.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is provider-agnostic; clients translate it to their
// wire format.
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// Metadata carries the request ID for log correlation.
	Metadata map[string]any
}

// TokenUsage reports prompt and completion token counts.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the aggregated completion result.
type CompletionResponse struct {
	Content    string
	StopReason string
	Usage      TokenUsage
	Metadata   map[string]any
}

// CompletionClient executes one chat completion. Implementations must be
// safe for concurrent use.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// Config carries provider settings for the OpenAI-compatible client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    int // seconds, 0 means default
	MaxRetries int
	Headers    map[string]string
}
