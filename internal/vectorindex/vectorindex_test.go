package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"codeintel/internal/chunker"
)

// fakeEngine is a deterministic stand-in embedding engine: it hashes text
// into a small fixed-dimension vector so cosine similarity is meaningful
// without a network call.
type fakeEngine struct{}

func (fakeEngine) Name() string    { return "fake" }
func (fakeEngine) Dimensions() int { return 8 }

func (f fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r % 31)
	}
	return vec, nil
}

func (f fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.Embed(ctx, t)
	}
	return out, nil
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")
	idx, err := Open(Config{DBPath: dbPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	idx.SetEngine(fakeEngine{})
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestUpsertForestChunksAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	chunks := []chunker.Chunk{
		{Path: "a.go", Kind: chunker.KindFunction, Name: "Add", Content: "func Add(a, b int) int { return a + b }", StartLine: 1, EndLine: 3},
		{Path: "a.go", Kind: chunker.KindFunction, Name: "Sub", Content: "func Sub(a, b int) int { return a - b }", StartLine: 5, EndLine: 7},
	}

	n, err := idx.UpsertForestChunks(ctx, "a.go", chunks)
	if err != nil {
		t.Fatalf("UpsertForestChunks: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 chunks stored, got %d", n)
	}

	result, err := idx.Search(ctx, "func Add(a, b int) int { return a + b }", "", CollectionForest, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if result.Hits[0].ID == "" {
		t.Error("expected a non-empty hit ID")
	}
}

func TestDeleteForestFileRemovesChunks(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	chunks := []chunker.Chunk{
		{Path: "a.go", Kind: chunker.KindFunction, Name: "Add", Content: "func Add() {}", StartLine: 1, EndLine: 1},
	}
	if _, err := idx.UpsertForestChunks(ctx, "a.go", chunks); err != nil {
		t.Fatalf("UpsertForestChunks: %v", err)
	}

	if err := idx.DeleteForestFile(ctx, "a.go"); err != nil {
		t.Fatalf("DeleteForestFile: %v", err)
	}

	stats, err := idx.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ForestCount != 0 {
		t.Errorf("expected 0 forest entries after delete, got %d", stats.ForestCount)
	}
}

func TestMapShortCircuit(t *testing.T) {
	idx := newTestIndex(t)
	idx.cfg.MapShortCircuitThreshold = 0.99 // require near-identity match to short-circuit
	ctx := context.Background()

	query := "how do I add two numbers"
	if err := idx.UpsertMapAgreement(ctx, "doc1", query, map[string]string{"symbol": "Add"}); err != nil {
		t.Fatalf("UpsertMapAgreement: %v", err)
	}

	result, err := idx.Search(ctx, query, "", CollectionAuto, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Source != CollectionMap || !result.SkipForest {
		t.Errorf("expected an exact-query match to short-circuit to map, got source=%s skip=%v", result.Source, result.SkipForest)
	}
}

func TestStats(t *testing.T) {
	idx := newTestIndex(t)
	stats, err := idx.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EmbeddingModel != "fake" {
		t.Errorf("expected embedding model 'fake', got %q", stats.EmbeddingModel)
	}
}
