package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	muzaerrors "muza/internal/errors"
)

func TestOpenAIClientCompleteSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.URL.Path; got != "/chat/completions" {
			t.Fatalf("unexpected path: %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("expected Authorization header, got %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload["model"] != "test-model" {
			t.Fatalf("unexpected model: %v", payload["model"])
		}
		if payload["stream"] != false {
			t.Fatalf("expected stream=false, got %v", payload["stream"])
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"choices": []any{
				map[string]any{
					"message":       map[string]any{"content": "привет"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     3,
				"completion_tokens": 4,
				"total_tokens":      7,
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("write response: %v", err)
		}
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{
		Model:   "test-model",
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 2,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "привет" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestOpenAIClientRateLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{Model: "test-model", BaseURL: server.URL, Timeout: 2})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !muzaerrors.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}

	var transient *muzaerrors.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected *TransientError, got %T", err)
	}
	if transient.RetryAfter != 7 {
		t.Fatalf("expected RetryAfter=7, got %d", transient.RetryAfter)
	}
}

func TestOpenAIClientAuthFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{Model: "test-model", BaseURL: server.URL, Timeout: 2})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !muzaerrors.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{Model: "test-model", BaseURL: server.URL, Timeout: 2})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	_, err = client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !muzaerrors.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNewOpenAIClientRequiresModel(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIClient(Config{}); err == nil {
		t.Fatal("expected error for missing model")
	}
}
