package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	muzaerrors "muza/internal/errors"
	"muza/internal/logging"
	"muza/internal/observability"
)

// OpenAI chat-completions compatible client. Works against api.openai.com
// and any compatible gateway (OpenRouter, vLLM, Ollama's /v1).
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
	logger     logging.Logger
}

// NewOpenAIClient constructs a completion client from provider settings.
func NewOpenAIClient(config Config) (CompletionClient, error) {
	if config.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}

	timeout := 60 * time.Second
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}

	return &openaiClient{
		model:      config.Model,
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		headers:    config.Headers,
		logger:     logging.NewComponentLogger("llm"),
	}, nil
}

func (c *openaiClient) Model() string { return c.model }

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	requestID := requestIDFrom(req.Metadata)
	if requestID == "" {
		requestID = observability.NewRequestID()
	}
	log := logging.WithRequestID(c.logger, requestID)

	wireReq := map[string]any{
		"model":       c.model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
		"stream":      false,
	}
	if req.MaxTokens > 0 {
		wireReq["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	log.Debug("POST %s model=%s messages=%d", endpoint, c.model, len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Debug("HTTP request failed: %v", err)
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	log.Debug("status=%d bytes=%d", resp.StatusCode, len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapHTTPError(resp.StatusCode, respBody, resp.Header)
	}

	var wireResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage TokenUsage `json:"usage"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if wireResp.Error != nil && wireResp.Error.Message != "" {
		msg := wireResp.Error.Message
		if wireResp.Error.Type != "" {
			msg = wireResp.Error.Type + ": " + msg
		}
		return nil, mapHTTPError(resp.StatusCode, []byte(msg), resp.Header)
	}
	if len(wireResp.Choices) == 0 {
		return nil, muzaerrors.NewTransientError(errors.New("no choices in response"), "LLM returned an empty response. Please retry.")
	}

	result := &CompletionResponse{
		Content:    wireResp.Choices[0].Message.Content,
		StopReason: wireResp.Choices[0].FinishReason,
		Usage:      wireResp.Usage,
		Metadata:   map[string]any{"request_id": requestID},
	}
	log.Debug("stop=%s content=%d chars usage=%d+%d tokens",
		result.StopReason, len(result.Content),
		result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result, nil
}

func requestIDFrom(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata["request_id"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// wrapRequestError classifies transport-level failures so the retry layer
// can decide whether to try again.
func wrapRequestError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return muzaerrors.NewTransientError(err, "LLM request failed: "+err.Error())
}

// mapHTTPError converts an HTTP error status into the error taxonomy.
// 429 honors Retry-After when the provider sends one.
func mapHTTPError(statusCode int, body []byte, header http.Header) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 300 {
		snippet = snippet[:300]
	}
	base := fmt.Errorf("API error %d: %s", statusCode, snippet)

	switch {
	case statusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if v := header.Get("Retry-After"); v != "" {
			if seconds, err := strconv.Atoi(v); err == nil {
				retryAfter = seconds
			}
		}
		return &muzaerrors.TransientError{
			Err:        base,
			StatusCode: statusCode,
			RetryAfter: retryAfter,
			Message:    "API rate limit reached. The request will be retried with backoff.",
		}
	case statusCode >= 500:
		return &muzaerrors.TransientError{
			Err:        base,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("LLM provider error (%d). The request will be retried.", statusCode),
		}
	case statusCode == http.StatusUnauthorized:
		return &muzaerrors.PermanentError{
			Err:        base,
			StatusCode: statusCode,
			Message:    "Authentication failed. Please check your API key configuration.",
		}
	case statusCode == http.StatusNotFound:
		return &muzaerrors.PermanentError{
			Err:        base,
			StatusCode: statusCode,
			Message:    "Model or endpoint not found. Please verify the model name.",
		}
	default:
		return &muzaerrors.PermanentError{
			Err:        base,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("LLM request rejected (%d).", statusCode),
		}
	}
}
