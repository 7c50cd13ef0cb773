package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/docsage/docsage/internal/log"
	"github.com/docsage/docsage/internal/vectorindex"
)

// fakeEmbedder returns a fixed vector per known text.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0}
		}
	}
	return out, nil
}

func newEngine(t *testing.T) (*Engine, *vectorindex.Registry) {
	t.Helper()
	reg := vectorindex.NewRegistry(t.TempDir(), 2, nil, log.NewNop())
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"query": {0, 0},
	}}
	return NewEngine(embedder, reg, log.NewNop()), reg
}

func seed(t *testing.T, reg *vectorindex.Registry, userID string, vectors [][]float32, texts, docIDs []string) {
	t.Helper()
	idx, err := reg.GetOrCreate(userID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := idx.Add(context.Background(), vectors, texts, docIDs); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestRetrieveDedupsPerDocument(t *testing.T) {
	engine, reg := newEngine(t)

	seed(t, reg, "u1",
		[][]float32{{0.1, 0}, {0.2, 0}, {1, 0}},
		[]string{"docA chunk near", "docA chunk far", "docB chunk"},
		[]string{"docA", "docA", "docB"})

	chunks, err := engine.Retrieve(context.Background(), "u1", "query", 4, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 (one per document): %+v", len(chunks), chunks)
	}
	if chunks[0].DocumentID != "docA" || chunks[0].Text != "docA chunk near" {
		t.Errorf("first chunk should be docA's nearest hit: %+v", chunks[0])
	}
	if chunks[1].DocumentID != "docB" {
		t.Errorf("second chunk should come from docB: %+v", chunks[1])
	}
	if chunks[0].Score > chunks[1].Score {
		t.Errorf("chunks not ranked by ascending distance: %+v", chunks)
	}
}

func TestRetrieveDedupDoesNotStarveK(t *testing.T) {
	engine, reg := newEngine(t)

	// Both docA chunks sit nearer than docB's. With k=2 the search must
	// still surface docB once the nearer duplicate is collapsed.
	seed(t, reg, "u1",
		[][]float32{{0.1, 0}, {0.2, 0}, {1, 0}},
		[]string{"docA chunk near", "docA chunk far", "docB chunk"},
		[]string{"docA", "docA", "docB"})

	chunks, err := engine.Retrieve(context.Background(), "u1", "query", 2, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[1].DocumentID != "docB" {
		t.Errorf("second chunk should come from docB: %+v", chunks[1])
	}
}

func TestRetrieveDocumentFilter(t *testing.T) {
	engine, reg := newEngine(t)

	seed(t, reg, "u1",
		[][]float32{{0.1, 0}, {2, 0}},
		[]string{"from docA", "from docB"},
		[]string{"docA", "docB"})

	chunks, err := engine.Retrieve(context.Background(), "u1", "query", 4, []string{"docB"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 1 || chunks[0].DocumentID != "docB" {
		t.Errorf("filter not applied: %+v", chunks)
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	engine, reg := newEngine(t)

	seed(t, reg, "u1",
		[][]float32{{0.1, 0}, {0.2, 0}, {0.3, 0}},
		[]string{"a", "b", "c"},
		[]string{"d1", "d2", "d3"})

	chunks, err := engine.Retrieve(context.Background(), "u1", "query", 2, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
}

func TestGetContextEmptyIndex(t *testing.T) {
	engine, _ := newEngine(t)

	contextText, sources, err := engine.GetContext(context.Background(), "u1", "query", 4, nil)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if contextText != "" || len(sources) != 0 {
		t.Errorf("empty index should produce empty context, got %q with %d sources", contextText, len(sources))
	}
}

func TestGetContextFormat(t *testing.T) {
	engine, reg := newEngine(t)

	long := strings.Repeat("x", 1500)
	seed(t, reg, "u1",
		[][]float32{{0.1, 0}, {0.5, 0}},
		[]string{long, "short text"},
		[]string{"docA", "docB"})

	contextText, sources, err := engine.GetContext(context.Background(), "u1", "query", 4, nil)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}

	if !strings.HasPrefix(contextText, "[Document 1]\n") {
		t.Errorf("context missing first label: %q", contextText[:40])
	}
	if !strings.Contains(contextText, "\n\n[Document 2]\nshort text") {
		t.Errorf("context missing second block:\n%s", contextText)
	}
	if strings.Contains(contextText, strings.Repeat("x", 1001)) {
		t.Error("context text not truncated to 1000 characters")
	}

	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if len(sources[0].Text) != 200 {
		t.Errorf("source excerpt length = %d, want 200", len(sources[0].Text))
	}
	if sources[1].Text != "short text" {
		t.Errorf("short source should pass through: %q", sources[1].Text)
	}
}

func TestRenderContextSourceDedup(t *testing.T) {
	chunks := []Chunk{
		{Text: "one", DocumentID: "docA", Score: 0.1},
		{Text: "two", DocumentID: "docA", Score: 0.2},
		{Text: "three", DocumentID: "docB", Score: 0.3},
	}

	contextText, sources := RenderContext(chunks)
	if !strings.Contains(contextText, "[Document 3]\nthree") {
		t.Errorf("all chunks should appear in context:\n%s", contextText)
	}
	if len(sources) != 2 {
		t.Errorf("sources should dedup by document: %+v", sources)
	}
}
