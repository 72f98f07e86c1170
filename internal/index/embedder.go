// Package index owns the vector side of retrieval: embedding catalog
// chunks, persisting them in a chromem collection, and answering
// similarity queries with deduplicated exhibition candidates. Index
// unavailability is the one hard failure of the pipeline.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	muzaerrors "muza/internal/errors"
	"muza/internal/logging"
	"muza/internal/observability"
)

// Embedder turns text into a fixed-length vector. Implementations must be
// deterministic for identical input, or ranking stops being reproducible.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// embedBatchLimit caps one embeddings API call.
const embedBatchLimit = 100

var embeddingDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// EmbedderConfig holds embedding service configuration.
type EmbedderConfig struct {
	Model     string // defaults to text-embedding-3-small
	APIKey    string
	BaseURL   string // defaults to the OpenAI endpoint
	CacheSize int    // LRU entries, defaults to 10000
	Logger    logging.Logger
	// Breakers, when set, supplies the "embeddings" circuit breaker so
	// its state shows up on the shared health surface.
	Breakers *muzaerrors.CircuitBreakerManager
}

// openaiEmbedder calls an OpenAI-compatible embeddings endpoint behind an
// LRU cache, retry/backoff, and a circuit breaker.
type openaiEmbedder struct {
	config  EmbedderConfig
	client  *http.Client
	cache   *lru.Cache[string, []float32]
	retry   muzaerrors.RetryConfig
	breaker *muzaerrors.CircuitBreaker
	im      *observability.IndexMetrics
	log     logging.Logger
}

// NewEmbedder creates an embedder for the configured service.
func NewEmbedder(config EmbedderConfig) (Embedder, error) {
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 10000
	}

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	breaker := muzaerrors.NewCircuitBreaker("embeddings", muzaerrors.DefaultCircuitBreakerConfig())
	if config.Breakers != nil {
		breaker = config.Breakers.Get("embeddings")
	}

	return &openaiEmbedder{
		config:  config,
		client:  &http.Client{Timeout: 60 * time.Second},
		cache:   cache,
		retry:   muzaerrors.DefaultRetryConfig(),
		breaker: breaker,
		im:      observability.NewIndexMetrics(),
		log:     logging.OrNop(config.Logger),
	}, nil
}

func (e *openaiEmbedder) Dimensions() int {
	if dim, ok := embeddingDimensions[e.config.Model]; ok {
		return dim
	}
	return 1536
}

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		e.im.RecordEmbedCache(true)
		return cached, nil
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *openaiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}
	if len(texts) > embedBatchLimit {
		return nil, fmt.Errorf("embedding batch of %d exceeds limit %d", len(texts), embedBatchLimit)
	}

	results := make([][]float32, len(texts))
	var missingIdx []int
	var missing []string
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			e.im.RecordEmbedCache(true)
			results[i] = cached
			continue
		}
		e.im.RecordEmbedCache(false)
		missingIdx = append(missingIdx, i)
		missing = append(missing, text)
	}
	if len(missing) == 0 {
		return results, nil
	}

	vectors, err := muzaerrors.RetryWithResultAndLog(ctx, e.retry, func(ctx context.Context) ([][]float32, error) {
		return muzaerrors.ExecuteFunc(e.breaker, ctx, func(ctx context.Context) ([][]float32, error) {
			return e.callAPI(ctx, missing)
		})
	}, e.log)
	if err != nil {
		return nil, err
	}

	for i, idx := range missingIdx {
		e.cache.Add(texts[idx], vectors[i])
		results[idx] = vectors[i]
	}
	return results, nil
}

func (e *openaiEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"model": e.config.Model,
		"input": texts,
	})
	if err != nil {
		return nil, muzaerrors.NewPermanentError(err, "marshal embeddings request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, muzaerrors.NewPermanentError(err, "build embeddings request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, muzaerrors.NewTransientError(err, "embeddings endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		message := fmt.Sprintf("embeddings API replied %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, muzaerrors.NewTransientError(nil, message)
		}
		return nil, muzaerrors.NewPermanentError(nil, message)
	}

	var decoded struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, muzaerrors.NewTransientError(err, "decode embeddings response")
	}
	if len(decoded.Data) != len(texts) {
		return nil, muzaerrors.NewTransientError(nil,
			fmt.Sprintf("embeddings response has %d vectors for %d inputs", len(decoded.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, muzaerrors.NewTransientError(nil, fmt.Sprintf("embeddings response index %d out of range", item.Index))
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
