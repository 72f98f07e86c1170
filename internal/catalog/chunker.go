package catalog

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultChunkTokens caps one embedded chunk.
	DefaultChunkTokens = 512
	// DefaultOverlapTokens of trailing context carry into the next chunk.
	DefaultOverlapTokens = 50

	encodingName = "cl100k_base"
)

// Chunk is one embeddable slice of an exhibition description. The full
// exhibition rides along so retrieval metadata can rebuild the candidate
// without a second lookup.
type Chunk struct {
	ID         string
	Ordinal    int
	Text       string
	Exhibition Exhibition
}

// ChunkerConfig holds chunking parameters.
type ChunkerConfig struct {
	ChunkTokens   int // defaults to DefaultChunkTokens
	OverlapTokens int // defaults to DefaultOverlapTokens
}

// Chunker splits exhibition descriptions on sentence boundaries, keeping
// each chunk within a token budget. When the cl100k_base encoding cannot
// be initialized (offline environments) it degrades to a rune-based
// estimate instead of failing.
type Chunker struct {
	config   ChunkerConfig
	encoding *tiktoken.Tiktoken
}

// NewChunker creates a Chunker with cl100k_base token accounting.
func NewChunker(config ChunkerConfig) *Chunker {
	if config.ChunkTokens <= 0 {
		config.ChunkTokens = DefaultChunkTokens
	}
	if config.OverlapTokens < 0 {
		config.OverlapTokens = 0
	} else if config.OverlapTokens == 0 {
		config.OverlapTokens = DefaultOverlapTokens
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		encoding = nil
	}
	return &Chunker{config: config, encoding: encoding}
}

// CountTokens returns the token count of text, or a heuristic estimate
// when the encoding is unavailable.
func (c *Chunker) CountTokens(text string) int {
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens approximates cl100k_base: max(runes/4, word count).
func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// Split breaks the exhibition description into sentence-aligned chunks of
// at most ChunkTokens tokens, carrying up to OverlapTokens of trailing
// sentences into the next chunk. Short descriptions yield a single chunk
// that keeps the exhibition's own ID.
func (c *Chunker) Split(e Exhibition) []Chunk {
	description := strings.TrimSpace(e.Description)
	if description == "" || c.CountTokens(description) <= c.config.ChunkTokens {
		return []Chunk{{ID: e.ID, Ordinal: 0, Text: description, Exhibition: e}}
	}

	var texts []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		texts = append(texts, strings.Join(current, " "))
		current = c.overlapTail(current)
		currentTokens = 0
		for _, s := range current {
			currentTokens += c.CountTokens(s)
		}
	}

	for _, sentence := range splitSentences(description) {
		tokens := c.CountTokens(sentence)
		if tokens > c.config.ChunkTokens {
			// A single runaway sentence: flush and split it hard on
			// token boundaries.
			flush()
			texts = append(texts, c.splitLongSentence(sentence)...)
			current = nil
			currentTokens = 0
			continue
		}
		if currentTokens+tokens > c.config.ChunkTokens && len(current) > 0 {
			flush()
		}
		current = append(current, sentence)
		currentTokens += tokens
	}
	if len(current) > 0 {
		texts = append(texts, strings.Join(current, " "))
	}

	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", e.ID, i),
			Ordinal:    i,
			Text:       text,
			Exhibition: e,
		})
	}
	return chunks
}

// overlapTail collects trailing sentences of the finished chunk totalling
// at most OverlapTokens, oldest first.
func (c *Chunker) overlapTail(sentences []string) []string {
	if c.config.OverlapTokens == 0 {
		return nil
	}
	tokens := 0
	var tail []string
	for i := len(sentences) - 1; i >= 0; i-- {
		n := c.CountTokens(sentences[i])
		if tokens+n > c.config.OverlapTokens {
			break
		}
		tail = append([]string{sentences[i]}, tail...)
		tokens += n
	}
	return tail
}

func (c *Chunker) splitLongSentence(sentence string) []string {
	var parts []string
	if c.encoding == nil {
		// Estimate-only mode: window by runes at ~4 per token.
		runes := []rune(sentence)
		step := c.config.ChunkTokens * 4
		for start := 0; start < len(runes); start += step {
			end := start + step
			if end > len(runes) {
				end = len(runes)
			}
			if part := strings.TrimSpace(string(runes[start:end])); part != "" {
				parts = append(parts, part)
			}
		}
		return parts
	}

	ids := c.encoding.Encode(sentence, nil, nil)
	for start := 0; start < len(ids); start += c.config.ChunkTokens {
		end := start + c.config.ChunkTokens
		if end > len(ids) {
			end = len(ids)
		}
		if part := strings.TrimSpace(c.encoding.Decode(ids[start:end])); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// splitSentences cuts prose after terminal punctuation followed by
// whitespace. Terminators stay attached to their sentence.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		b.WriteRune(r)
		if !isTerminator(r) {
			continue
		}
		atEnd := i == len(runes)-1
		nextIsSpace := !atEnd && unicode.IsSpace(runes[i+1])
		nextIsTerminator := !atEnd && isTerminator(runes[i+1])
		if (atEnd || nextIsSpace) && !nextIsTerminator {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}
