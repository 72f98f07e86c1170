package index

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// hashEmbedder is a deterministic offline embedder using the feature
// hashing trick: every token lights up one signed dimension, so texts
// sharing words land near each other in cosine space. Good enough for
// tests and the --mock demo mode; identical input always yields the
// identical vector.
type hashEmbedder struct {
	dim int
}

// DefaultMockDimensions is the vector width of the mock embedder.
const DefaultMockDimensions = 256

// tokenPrefixRunes crudely folds Russian inflection: tokens are truncated
// to this many runes before hashing, so "фотографию" and "фотография"
// share a feature.
const tokenPrefixRunes = 5

// NewMockEmbedder returns the deterministic hash embedder. A dim <= 0
// falls back to DefaultMockDimensions.
func NewMockEmbedder(dim int) Embedder {
	if dim <= 0 {
		dim = DefaultMockDimensions
	}
	return &hashEmbedder{dim: dim}
}

func (h *hashEmbedder) Dimensions() int { return h.dim }

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, token := range hashTokens(text) {
		idx, sign := hashFeature(token, h.dim)
		vec[idx] += sign
	}
	normalize(vec)
	return vec, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func hashTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		runes := []rune(f)
		if len(runes) > tokenPrefixRunes {
			runes = runes[:tokenPrefixRunes]
		}
		out = append(out, string(runes))
	}
	return out
}

func hashFeature(token string, dim int) (int, float32) {
	idx := fnv.New32a()
	idx.Write([]byte(token))
	sign := fnv.New32()
	sign.Write([]byte(token))

	s := float32(1)
	if sign.Sum32()%2 == 1 {
		s = -1
	}
	return int(idx.Sum32() % uint32(dim)), s
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
