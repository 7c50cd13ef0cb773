package vectorindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/docsage/docsage/internal/log"
)

// stubEmbed returns a fixed vector per known text, for rebuild paths.
func stubEmbed(byText map[string][]float32) EmbedFunc {
	return func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			v, ok := byText[t]
			if !ok {
				return nil, errors.New("unknown text: " + t)
			}
			out[i] = v
		}
		return out, nil
	}
}

func newTestIndex(t *testing.T, embed EmbedFunc) *Index {
	t.Helper()
	idx, err := Open("u1", t.TempDir(), 2, embed, log.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return idx
}

func TestAddAssignsSequentialIDs(t *testing.T) {
	idx := newTestIndex(t, nil)
	ctx := context.Background()

	ids, err := idx.Add(ctx,
		[][]float32{{1, 0}, {0, 1}},
		[]string{"first", "second"},
		[]string{"docA", "docA"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(ids) != 2 || ids[0] != "vec_0" || ids[1] != "vec_1" {
		t.Errorf("ids = %v, want [vec_0 vec_1]", ids)
	}

	ids, err = idx.Add(ctx, [][]float32{{1, 1}}, []string{"third"}, []string{"docB"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(ids) != 1 || ids[0] != "vec_2" {
		t.Errorf("ids = %v, want [vec_2]", ids)
	}
}

func TestAddLengthMismatch(t *testing.T) {
	idx := newTestIndex(t, nil)

	_, err := idx.Add(context.Background(),
		[][]float32{{1, 0}}, []string{"a", "b"}, []string{"docA"})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("err = %v, want ErrLengthMismatch", err)
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, nil)

	_, err := idx.Add(context.Background(),
		[][]float32{{1, 0, 0}}, []string{"a"}, []string{"docA"})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestAddEmptyIsNoop(t *testing.T) {
	idx := newTestIndex(t, nil)

	ids, err := idx.Add(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(ids) != 0 || idx.Len() != 0 {
		t.Errorf("empty Add mutated the index: ids=%v len=%d", ids, idx.Len())
	}
}

func TestSearchNearestFirst(t *testing.T) {
	idx := newTestIndex(t, nil)

	_, err := idx.Add(context.Background(),
		[][]float32{{0, 0}, {3, 0}, {1, 0}},
		[]string{"origin", "far", "near"},
		[]string{"docA", "docA", "docA"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	got := idx.Search([]float32{0, 0}, 2, nil)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Text != "origin" || got[1].Text != "near" {
		t.Errorf("results out of order: %+v", got)
	}
	if got[0].Score > got[1].Score {
		t.Errorf("scores not ascending: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestSearchDocumentFilter(t *testing.T) {
	idx := newTestIndex(t, nil)

	// docA vectors crowd the neighborhood of the query; docB sits farther
	// out. The 2k oversampled scan must still surface docB hits once the
	// filter drops the docA ones.
	_, err := idx.Add(context.Background(),
		[][]float32{{0, 0}, {0.1, 0}, {5, 0}, {6, 0}},
		[]string{"a1", "a2", "b1", "b2"},
		[]string{"docA", "docA", "docB", "docB"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	got := idx.Search([]float32{0, 0}, 2, []string{"docB"})
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(got), got)
	}
	for _, r := range got {
		if r.DocumentID != "docB" {
			t.Errorf("filter leaked %q from %q", r.Text, r.DocumentID)
		}
	}
	if got[0].Text != "b1" || got[1].Text != "b2" {
		t.Errorf("filtered results out of order: %+v", got)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := newTestIndex(t, nil)
	if got := idx.Search([]float32{0, 0}, 5, nil); len(got) != 0 {
		t.Errorf("search on empty index returned %v", got)
	}
}

func TestDeleteByDocumentRebuilds(t *testing.T) {
	vectors := map[string][]float32{
		"keep one": {1, 0},
		"keep two": {0, 1},
		"drop":     {5, 5},
	}
	idx := newTestIndex(t, stubEmbed(vectors))
	ctx := context.Background()

	_, err := idx.Add(ctx,
		[][]float32{vectors["keep one"], vectors["drop"], vectors["keep two"]},
		[]string{"keep one", "drop", "keep two"},
		[]string{"docA", "docB", "docA"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	removed, err := idx.DeleteByDocument(ctx, "docB")
	if err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	if !removed {
		t.Fatal("expected removal to be reported")
	}
	if idx.Len() != 2 {
		t.Fatalf("Len = %d, want 2", idx.Len())
	}

	got := idx.Search([]float32{1, 0}, 5, nil)
	for _, r := range got {
		if r.DocumentID == "docB" {
			t.Errorf("deleted document still searchable: %+v", r)
		}
	}
	if len(got) != 2 {
		t.Errorf("got %d results after delete, want 2", len(got))
	}
}

func TestDeleteByDocumentEmbedFailureLeavesIndexIntact(t *testing.T) {
	embed := func(_ context.Context, _ []string) ([][]float32, error) {
		return nil, errors.New("model unavailable")
	}
	idx := newTestIndex(t, embed)
	ctx := context.Background()

	_, err := idx.Add(ctx,
		[][]float32{{1, 0}, {5, 5}, {0, 1}},
		[]string{"keep one", "drop", "keep two"},
		[]string{"docA", "docB", "docA"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := idx.DeleteByDocument(ctx, "docB"); err == nil {
		t.Fatal("expected rebuild error when embedding fails")
	}

	// The failed delete must not leave vectors and metadata out of step.
	if idx.Len() != 3 {
		t.Fatalf("Len = %d, want 3 after failed delete", idx.Len())
	}
	got := idx.Search([]float32{0, 0}, 5, nil)
	if len(got) != 3 {
		t.Fatalf("got %d results after failed delete, want 3: %+v", len(got), got)
	}
}

func TestAddAfterDeleteKeepsIDsUnique(t *testing.T) {
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
		"c": {1, 1},
	}
	idx := newTestIndex(t, stubEmbed(vectors))
	ctx := context.Background()

	_, err := idx.Add(ctx,
		[][]float32{vectors["a"], vectors["b"], vectors["c"]},
		[]string{"a", "b", "c"},
		[]string{"docA", "docB", "docA"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := idx.DeleteByDocument(ctx, "docA"); err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}

	ids, err := idx.Add(ctx,
		[][]float32{{2, 0}, {0, 2}},
		[]string{"d", "e"},
		[]string{"docC", "docC"})
	if err != nil {
		t.Fatalf("Add after delete: %v", err)
	}
	if len(ids) != 2 || ids[0] != "vec_1" || ids[1] != "vec_2" {
		t.Errorf("ids after delete-rebuild = %v, want [vec_1 vec_2]", ids)
	}

	seen := map[string]int{}
	for _, r := range idx.Search([]float32{0, 0}, 10, nil) {
		seen[r.VectorID]++
	}
	if len(seen) != 3 {
		t.Fatalf("distinct ids = %d, want 3: %v", len(seen), seen)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("segment id %q appears %d times", id, n)
		}
	}
}

func TestDeleteByDocumentNoMatch(t *testing.T) {
	idx := newTestIndex(t, stubEmbed(nil))

	_, err := idx.Add(context.Background(),
		[][]float32{{1, 0}}, []string{"a"}, []string{"docA"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	removed, err := idx.DeleteByDocument(context.Background(), "missing")
	if err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	if removed {
		t.Error("reported removal for an unknown document")
	}
	if idx.Len() != 1 {
		t.Errorf("index mutated on no-op delete: Len = %d", idx.Len())
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := Open("u1", dir, 2, nil, log.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = idx.Add(ctx,
		[][]float32{{1.5, -2.25}, {0, 3}},
		[]string{"alpha", "beta"},
		[]string{"docA", "docB"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded, err := Open("u1", dir, 2, nil, log.NewNop())
	if err != nil {
		t.Fatalf("Open (reload): %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("reloaded Len = %d, want 2", reloaded.Len())
	}

	got := reloaded.Search([]float32{1.5, -2.25}, 1, nil)
	if len(got) != 1 || got[0].Text != "alpha" || got[0].Score != 0 {
		t.Errorf("reloaded search = %+v, want exact alpha hit", got)
	}
	if got[0].VectorID != "vec_0" {
		t.Errorf("VectorID = %q, want vec_0", got[0].VectorID)
	}
}

func TestCorruptArtifactsResetToEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, vectorsFile), []byte("not an index"), 0o644); err != nil {
		t.Fatal(err)
	}

	idx, err := Open("u1", dir, 2, nil, log.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("corrupt index should reset to empty, Len = %d", idx.Len())
	}
}

func TestStats(t *testing.T) {
	idx := newTestIndex(t, nil)

	_, err := idx.Add(context.Background(),
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
		[]string{"a", "b", "c"},
		[]string{"docA", "docA", "docB"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	stats := idx.Stats()
	if stats.TotalVectors != 3 || stats.Documents != 2 || stats.UserID != "u1" {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestRegistryReturnsSameInstance(t *testing.T) {
	reg := NewRegistry(t.TempDir(), 2, nil, log.NewNop())

	a, err := reg.GetOrCreate("u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := reg.GetOrCreate("u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a != b {
		t.Error("expected the cached instance on second access")
	}

	if !reg.Evict("u1") {
		t.Error("Evict should report a cached index")
	}
	if reg.Evict("u1") {
		t.Error("second Evict should report nothing cached")
	}
}

func TestRegistryEvictReloadsFromDisk(t *testing.T) {
	base := t.TempDir()
	reg := NewRegistry(base, 2, nil, log.NewNop())

	idx, err := reg.GetOrCreate("u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	_, err = idx.Add(context.Background(),
		[][]float32{{1, 0}}, []string{"a"}, []string{"docA"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	reg.Evict("u1")

	again, err := reg.GetOrCreate("u1")
	if err != nil {
		t.Fatalf("GetOrCreate after evict: %v", err)
	}
	if again.Len() != 1 {
		t.Errorf("reloaded index Len = %d, want 1", again.Len())
	}
}
