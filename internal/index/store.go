package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"muza/internal/catalog"
	muzaerrors "muza/internal/errors"
	"muza/internal/logging"
	"muza/internal/observability"
)

// CollectionName is the chromem collection holding exhibition chunks.
const CollectionName = "exhibitions"

// defaultQuerySize is used when a caller passes no positive top-k.
const defaultQuerySize = 5

// Candidate is one retrieved exhibition with its best chunk similarity.
type Candidate struct {
	Exhibition catalog.Exhibition
	Similarity float64
	// Fragment is the text of the best-matching chunk.
	Fragment string
}

// Index is the retrieval boundary: add catalog chunks, query by text.
type Index interface {
	Add(ctx context.Context, chunks []catalog.Chunk) error
	Query(ctx context.Context, text string, topK int) ([]Candidate, error)
	Count() int
	Reset(ctx context.Context) error
}

// Config wires an Index.
type Config struct {
	// Path is the data directory the index persists under; empty keeps
	// everything in memory.
	Path    string
	Logger  logging.Logger
	Metrics *observability.MetricsCollector
}

type chromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	embedFunc  chromem.EmbeddingFunc
	log        logging.Logger
	metrics    *observability.MetricsCollector
	im         *observability.IndexMetrics
}

// NewIndex opens (or creates) the exhibition collection backed by the
// given embedder.
func NewIndex(config Config, embedder Embedder) (Index, error) {
	var db *chromem.DB
	var err error
	if config.Path != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(config.Path, "index"), false)
		if err != nil {
			return nil, muzaerrors.NewRetrievalUnavailable("vector index", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(CollectionName, nil, embedFunc)
	if err != nil {
		return nil, muzaerrors.NewRetrievalUnavailable("vector index", err)
	}

	return &chromemIndex{
		db:         db,
		collection: collection,
		embedder:   embedder,
		embedFunc:  embedFunc,
		log:        logging.OrNop(config.Logger),
		metrics:    config.Metrics,
		im:         observability.NewIndexMetrics(),
	}, nil
}

// Add embeds and stores catalog chunks. Malformed exhibitions are skipped
// with a log line; embedding failures abort the batch.
func (x *chromemIndex) Add(ctx context.Context, chunks []catalog.Chunk) error {
	log := logging.FromContext(ctx, x.log)

	var valid []catalog.Chunk
	var contents []string
	for _, chunk := range chunks {
		if err := chunk.Exhibition.Validate(); err != nil {
			log.Warn("skipping chunk %s: %v", chunk.ID, err)
			x.im.RecordDocumentSkipped("malformed")
			continue
		}
		valid = append(valid, chunk)
		contents = append(contents, embeddingText(chunk))
	}
	if len(valid) == 0 {
		return nil
	}

	for start := 0; start < len(valid); start += embedBatchLimit {
		end := start + embedBatchLimit
		if end > len(valid) {
			end = len(valid)
		}
		vectors, err := x.embedder.EmbedBatch(ctx, contents[start:end])
		if err != nil {
			return fmt.Errorf("embed chunk batch: %w", err)
		}
		for i, chunk := range valid[start:end] {
			doc := chromem.Document{
				ID:        chunk.ID,
				Content:   contents[start+i],
				Embedding: vectors[i],
				Metadata:  chunkMetadata(chunk),
			}
			if err := x.collection.AddDocument(ctx, doc); err != nil {
				return fmt.Errorf("add chunk %s: %w", chunk.ID, err)
			}
		}
	}

	if x.metrics != nil {
		x.metrics.RecordCandidates(ctx, "indexed", len(valid))
	}
	x.im.RecordChunksIndexed(len(valid))
	x.im.RecordCollectionSize(x.collection.Count())
	log.Debug("indexed %d chunks (collection now holds %d)", len(valid), x.collection.Count())
	return nil
}

// Query embeds the search text and returns up to topK exhibitions,
// deduplicated across chunks with the best chunk similarity kept. An
// empty collection yields an empty result, not an error.
func (x *chromemIndex) Query(ctx context.Context, text string, topK int) ([]Candidate, error) {
	log := logging.FromContext(ctx, x.log)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = defaultQuerySize
	}

	count := x.collection.Count()
	if count == 0 {
		return nil, nil
	}
	n := topK
	if n > count {
		n = count
	}

	results, err := x.collection.Query(ctx, text, n, nil, nil)
	if err != nil {
		if x.metrics != nil {
			x.metrics.RecordRetrieval(ctx, "error", 0)
		}
		return nil, muzaerrors.NewRetrievalUnavailable("vector index", err)
	}

	best := map[string]Candidate{}
	for _, r := range results {
		candidate, err := candidateFromResult(r)
		if err != nil {
			log.Warn("skipping retrieved record %s: %v", r.ID, err)
			continue
		}
		id := candidate.Exhibition.ID
		if prev, ok := best[id]; !ok || candidate.Similarity > prev.Similarity {
			best[id] = candidate
		}
	}

	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Exhibition.ID < out[j].Exhibition.ID
	})
	if len(out) > topK {
		out = out[:topK]
	}

	if x.metrics != nil {
		x.metrics.RecordRetrieval(ctx, "success", len(out))
	}
	log.Debug("query returned %d candidates from %d chunks", len(out), len(results))
	return out, nil
}

func (x *chromemIndex) Count() int {
	return x.collection.Count()
}

// Reset drops and recreates the collection. Not safe under concurrent
// queries; meant for the ingest path.
func (x *chromemIndex) Reset(ctx context.Context) error {
	if err := x.db.DeleteCollection(CollectionName); err != nil {
		return muzaerrors.NewRetrievalUnavailable("vector index", err)
	}
	collection, err := x.db.GetOrCreateCollection(CollectionName, nil, x.embedFunc)
	if err != nil {
		return muzaerrors.NewRetrievalUnavailable("vector index", err)
	}
	x.collection = collection
	x.im.RecordCollectionSize(0)
	return nil
}

// embeddingText is what gets vectorized: title plus chunk body, the same
// composition the query side competes against.
func embeddingText(chunk catalog.Chunk) string {
	title := strings.TrimSpace(chunk.Exhibition.Title)
	if title == "" {
		return chunk.Text
	}
	if chunk.Text == "" {
		return title
	}
	return title + ". " + chunk.Text
}

func chunkMetadata(chunk catalog.Chunk) map[string]string {
	e := chunk.Exhibition
	return map[string]string{
		"exhibition_id": e.ID,
		"museum":        e.Museum,
		"title":         e.Title,
		"description":   e.Description,
		"start_date":    e.StartDate.String(),
		"end_date":      e.EndDate.String(),
		"tags":          strings.Join(e.Tags, ";"),
		"accessibility": strings.Join(e.Accessibility, ";"),
		"audience":      strings.Join(e.Audience, ";"),
		"location":      e.Location,
		"ordinal":       strconv.Itoa(chunk.Ordinal),
	}
}

// candidateFromResult rebuilds the exhibition from chunk metadata.
func candidateFromResult(r chromem.Result) (Candidate, error) {
	meta := r.Metadata
	id := meta["exhibition_id"]
	if id == "" {
		return Candidate{}, &muzaerrors.MalformedCandidateError{ID: r.ID, Reason: "metadata misses exhibition_id"}
	}

	start, err := catalog.ParseDate(meta["start_date"])
	if err != nil {
		return Candidate{}, &muzaerrors.MalformedCandidateError{ID: id, Reason: "bad start_date in metadata"}
	}
	end, err := catalog.ParseDate(meta["end_date"])
	if err != nil {
		return Candidate{}, &muzaerrors.MalformedCandidateError{ID: id, Reason: "bad end_date in metadata"}
	}

	exhibition := catalog.Exhibition{
		ID:            id,
		Museum:        meta["museum"],
		Title:         meta["title"],
		Description:   meta["description"],
		StartDate:     start,
		EndDate:       end,
		Tags:          catalog.SplitList(meta["tags"]),
		Accessibility: catalog.SplitList(meta["accessibility"]),
		Audience:      catalog.SplitList(meta["audience"]),
		Location:      meta["location"],
	}
	if err := exhibition.Validate(); err != nil {
		return Candidate{}, err
	}

	return Candidate{
		Exhibition: exhibition,
		Similarity: float64(r.Similarity),
		Fragment:   r.Content,
	}, nil
}
