// Package retrieval turns a user query into the context block and source
// list fed to the generation model: embed the query once, search the
// user's vector index, keep the best hit per document, and rank by
// similarity.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/docsage/docsage/internal/ai"
	"github.com/docsage/docsage/internal/vectorindex"
)

// DefaultTopK is how many chunks a retrieval returns when the caller does
// not say otherwise.
const DefaultTopK = 4

// Truncation limits applied when rendering results for the model and the
// response payload.
const (
	contextTextLimit = 1000
	sourceTextLimit  = 200
)

// Searcher is the slice of the vector index retrieval needs.
type Searcher interface {
	Search(query []float32, k int, documentIDs []string) []vectorindex.Result
}

// IndexProvider resolves the per-user index.
type IndexProvider interface {
	GetOrCreate(userID string) (*vectorindex.Index, error)
}

// Chunk is one retrieved piece of a document.
type Chunk struct {
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	VectorID   string  `json:"vector_id"`
	Score      float32 `json:"score"`
}

// Source identifies a document that contributed to an answer, with a short
// excerpt. One entry per document regardless of how many chunks matched.
type Source struct {
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// Engine performs retrieval against per-user indexes.
type Engine struct {
	embedder ai.Embedder
	indexes  IndexProvider
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(embedder ai.Embedder, indexes IndexProvider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, indexes: indexes, logger: logger}
}

// Retrieve returns up to k chunks relevant to query, at most one per
// document, ranked most similar first. When documentIDs is non-empty the
// search is restricted to those documents.
func (e *Engine) Retrieve(ctx context.Context, userID, query string, k int, documentIDs []string) ([]Chunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	e.logger.Info("retrieval started", "user_id", userID, "query", truncate(query, 100))

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding query: %w", ai.ErrEmptyResponse)
	}

	idx, err := e.indexes.GetOrCreate(userID)
	if err != nil {
		return nil, fmt.Errorf("opening index for user %s: %w", userID, err)
	}

	// Request double so the per-document dedup below can still fill k.
	hits := idx.Search(vectors[0], k*2, documentIDs)
	chunks := filterAndRank(hits, k)

	e.logger.Info("retrieval completed", "user_id", userID, "results", len(chunks))
	return chunks, nil
}

// filterAndRank keeps the first (nearest) hit per document, sorts by
// ascending distance, and truncates to k.
func filterAndRank(hits []vectorindex.Result, k int) []Chunk {
	if len(hits) == 0 {
		return nil
	}

	byDoc := make(map[string]struct{}, len(hits))
	chunks := make([]Chunk, 0, len(hits))

	for _, hit := range hits {
		if _, ok := byDoc[hit.DocumentID]; ok {
			continue
		}
		byDoc[hit.DocumentID] = struct{}{}
		chunks = append(chunks, Chunk{
			Text:       hit.Text,
			DocumentID: hit.DocumentID,
			VectorID:   hit.VectorID,
			Score:      hit.Score,
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score < chunks[j].Score
	})

	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks
}

// GetContext renders retrieval results as the model-facing context block
// plus the source list for the response. Both are empty when nothing
// matched.
func (e *Engine) GetContext(ctx context.Context, userID, query string, k int, documentIDs []string) (string, []Source, error) {
	chunks, err := e.Retrieve(ctx, userID, query, k, documentIDs)
	if err != nil {
		return "", nil, err
	}
	context, sources := RenderContext(chunks)
	return context, sources, nil
}

// RenderContext formats chunks into the numbered context block and the
// deduplicated source list.
func RenderContext(chunks []Chunk) (string, []Source) {
	if len(chunks) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(chunks))
	sources := make([]Source, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))

	for i, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("[Document %d]\n%s", i+1, truncate(chunk.Text, contextTextLimit)))

		if _, ok := seen[chunk.DocumentID]; ok {
			continue
		}
		seen[chunk.DocumentID] = struct{}{}
		sources = append(sources, Source{
			DocumentID: chunk.DocumentID,
			Text:       truncate(chunk.Text, sourceTextLimit),
			Score:      chunk.Score,
		})
	}

	return strings.Join(parts, "\n\n"), sources
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back up to a rune boundary so the cut never splits a character.
	for limit > 0 && !isRuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
