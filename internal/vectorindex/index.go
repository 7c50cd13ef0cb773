// Package vectorindex provides the per-user flat vector index used for
// similarity search over document segments.
//
// Each user owns one Index: a dense slice of embedding vectors plus a
// positionally aligned metadata list. Search is an exact squared-L2 scan
// (lower score = more similar). The index persists to two companion
// artifacts under the user's directory — a binary vector file and a JSON
// metadata file — written together after every mutation and reloaded on
// startup. Corrupt artifacts reset the index to empty rather than failing
// the caller.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Sentinel errors for index operations.
var (
	// ErrLengthMismatch indicates the vectors, texts, and document id
	// sequences passed to Add have different lengths.
	ErrLengthMismatch = errors.New("vectors, texts, and document ids must have equal length")

	// ErrDimensionMismatch indicates a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// searchOversample is how many extra candidates Search pulls from the scan
// to compensate for shrinkage from the document filter and segment dedup.
const searchOversample = 2

// EmbedFunc produces embedding vectors for a batch of texts. The index uses
// it to re-embed surviving segments when rebuilding after a deletion.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Segment is the indexed unit: a bounded piece of a document's text.
// Its position in the metadata list matches its vector's position.
type Segment struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
}

// Result is a single search hit. Score is a squared-L2 distance:
// lower means more similar.
type Result struct {
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	VectorID   string  `json:"vector_id"`
	Score      float32 `json:"score"`
}

// Index is a per-user flat vector index with durable storage.
//
// All mutating operations (Add, DeleteByDocument) take the write lock;
// Search takes the read lock. This serializes concurrent mutation for a
// user while allowing concurrent reads.
type Index struct {
	mu sync.RWMutex

	userID    string
	dimension int
	vectors   [][]float32
	metadata  []Segment

	dir    string // per-user storage directory
	embed  EmbedFunc
	logger *slog.Logger
}

// Open loads the user's index from dir, or initializes an empty one when no
// artifacts exist or they fail to parse.
func Open(userID, dir string, dimension int, embed EmbedFunc, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}

	idx := &Index{
		userID:    userID,
		dimension: dimension,
		dir:       dir,
		embed:     embed,
		logger:    logger,
	}

	if err := idx.load(); err != nil {
		// Structural corruption is recoverable: start empty, never crash.
		logger.Warn("index load failed, reinitializing empty",
			"user_id", userID, "error", err)
		idx.vectors = nil
		idx.metadata = nil
	}

	return idx, nil
}

// Add appends vectors with their segment texts and owning document ids.
// The three sequences pair positionally and must have equal length.
// Assigned ids are sequential ("vec_N") and returned in input order.
// Empty input is a no-op returning an empty slice.
func (idx *Index) Add(ctx context.Context, vectors [][]float32, texts []string, documentIDs []string) ([]string, error) {
	if len(vectors) != len(texts) || len(texts) != len(documentIDs) {
		return nil, fmt.Errorf("%w: %d vectors, %d texts, %d document ids",
			ErrLengthMismatch, len(vectors), len(texts), len(documentIDs))
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	for i, v := range vectors {
		if len(v) != idx.dimension {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, index has %d",
				ErrDimensionMismatch, i, len(v), idx.dimension)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	start := len(idx.metadata)
	ids := make([]string, len(vectors))

	for i := range vectors {
		id := fmt.Sprintf("vec_%d", start+i)
		ids[i] = id
		idx.vectors = append(idx.vectors, vectors[i])
		idx.metadata = append(idx.metadata, Segment{
			ID:         id,
			Text:       texts[i],
			DocumentID: documentIDs[i],
		})
	}

	if err := idx.save(); err != nil {
		return nil, fmt.Errorf("persisting index: %w", err)
	}

	idx.logger.Info("vectors added",
		"user_id", idx.userID, "count", len(vectors), "total", len(idx.metadata))
	return ids, nil
}

// Search returns the segments nearest to query, up to k of them.
//
// Internally the scan requests 2k candidates (capped at the index size) so
// that the document filter and segment dedup below do not starve the result
// set. Results come back nearest-first. When documentIDs is non-empty, hits
// outside that set are dropped.
func (idx *Index) Search(query []float32, k int, documentIDs []string) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 || k <= 0 {
		return nil
	}

	candidateK := k * searchOversample
	if candidateK > len(idx.vectors) {
		candidateK = len(idx.vectors)
	}

	candidates := idx.nearest(query, candidateK)

	var filter map[string]struct{}
	if len(documentIDs) > 0 {
		filter = make(map[string]struct{}, len(documentIDs))
		for _, id := range documentIDs {
			filter[id] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	results := make([]Result, 0, len(candidates))

	for _, c := range candidates {
		meta := idx.metadata[c.position]

		if filter != nil {
			if _, ok := filter[meta.DocumentID]; !ok {
				continue
			}
		}
		if _, ok := seen[meta.ID]; ok {
			continue
		}
		seen[meta.ID] = struct{}{}

		results = append(results, Result{
			Text:       meta.Text,
			DocumentID: meta.DocumentID,
			VectorID:   meta.ID,
			Score:      c.distance,
		})
	}

	if len(results) > k {
		results = results[:k]
	}
	return results
}

type candidate struct {
	position int
	distance float32
}

// nearest scans all vectors and returns the k closest by squared L2,
// ordered nearest-first. Caller holds at least the read lock.
func (idx *Index) nearest(query []float32, k int) []candidate {
	candidates := make([]candidate, 0, len(idx.vectors))
	for i, v := range idx.vectors {
		candidates = append(candidates, candidate{position: i, distance: squaredL2(query, v)})
	}

	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].distance < candidates[b].distance
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// squaredL2 computes the squared Euclidean distance between two vectors.
// When lengths differ, the comparison covers the shorter prefix.
func squaredL2(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// DeleteByDocument removes every segment owned by documentID. It reports
// false when nothing matched (the index is left untouched). On removal the
// vector structure is rebuilt from scratch by re-embedding the surviving
// segments' text — a blocking O(remaining) operation, since the flat
// structure has no point deletion. A rebuild failure leaves the index in
// its pre-delete state.
func (idx *Index) DeleteByDocument(ctx context.Context, documentID string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	survivors := make([]Segment, 0, len(idx.metadata))
	for _, m := range idx.metadata {
		if m.DocumentID != documentID {
			survivors = append(survivors, m)
		}
	}

	if len(survivors) == len(idx.metadata) {
		return false, nil
	}

	// Re-embed before touching the live slices so a failure cannot leave
	// vectors and metadata out of alignment.
	vectors, err := idx.reembed(ctx, survivors)
	if err != nil {
		return false, fmt.Errorf("rebuilding index after delete: %w", err)
	}

	// Survivors take fresh sequential ids, keeping ids unique against
	// later adds that number from the metadata length.
	for i := range survivors {
		survivors[i].ID = fmt.Sprintf("vec_%d", i)
	}

	idx.metadata = survivors
	idx.vectors = vectors
	if err := idx.save(); err != nil {
		return false, fmt.Errorf("persisting index after delete: %w", err)
	}

	idx.logger.Info("vectors deleted", "user_id", idx.userID, "document_id", documentID)
	return true, nil
}

// reembed produces vectors for the given segments without mutating the
// index. Caller holds the write lock.
func (idx *Index) reembed(ctx context.Context, segments []Segment) ([][]float32, error) {
	if len(segments) == 0 {
		return nil, nil
	}

	texts := make([]string, len(segments))
	for i, m := range segments {
		texts[i] = m.Text
	}

	vectors, err := idx.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("re-embedding %d segments: %w", len(texts), err)
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d segments", len(vectors), len(segments))
	}
	return vectors, nil
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.metadata)
}

// Stats summarizes the index contents.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	docs := make(map[string]struct{}, len(idx.metadata))
	for _, m := range idx.metadata {
		docs[m.DocumentID] = struct{}{}
	}

	return Stats{
		UserID:       idx.userID,
		TotalVectors: len(idx.metadata),
		Documents:    len(docs),
	}
}

// Stats describes an index's contents.
type Stats struct {
	UserID       string `json:"user_id"`
	TotalVectors int    `json:"total_vectors"`
	Documents    int    `json:"documents"`
}
