package emstore

import (
	"context"
	"errors"
	"testing"

	"loom/internal/documents"
	"loom/internal/llm"
)

// stubGateway returns one deterministic vector per text and counts calls.
type stubGateway struct {
	embedCalls int
	embedTexts int
	fail       bool
	vectorFor  func(text string) []float32
}

func (s *stubGateway) Chat(ctx context.Context, class llm.ModelClass, msgs []llm.Message, opts llm.ChatOptions) (string, error) {
	return "", errors.New("not used")
}

func (s *stubGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.embedCalls++
	s.embedTexts += len(texts)
	if s.fail {
		return nil, &llm.ProviderError{Provider: "stub", Err: errors.New("down")}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if s.vectorFor != nil {
			out[i] = s.vectorFor(t)
		} else {
			out[i] = []float32{float32(len(t)), 1, 0}
		}
	}
	return out, nil
}

func doc(id, text string) documents.Document {
	return documents.Document{
		Corpus: "kb",
		ID:     id,
		Title:  id,
		Text:   text,
		Source: "/src/" + id,
		Hash:   documents.HashBytes([]byte(text)),
	}
}

func TestFileStoreSyncIdempotent(t *testing.T) {
	gw := &stubGateway{}
	store, err := NewFileStore(gw, t.TempDir(), 16)
	if err != nil {
		t.Fatal(err)
	}
	docs := []documents.Document{doc("a.txt", "alpha"), doc("b.txt", "beta")}

	stats, err := store.Sync(context.Background(), "kb", docs)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if stats.Embedded != 2 {
		t.Fatalf("expected 2 embedded, got %+v", stats)
	}

	callsAfterFirst := gw.embedCalls
	stats, err = store.Sync(context.Background(), "kb", docs)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if gw.embedCalls != callsAfterFirst {
		t.Fatalf("second sync must issue zero embedding calls, went %d -> %d", callsAfterFirst, gw.embedCalls)
	}
	if stats.Embedded != 0 || stats.Reused != 2 {
		t.Fatalf("unexpected second sync stats: %+v", stats)
	}
}

func TestFileStoreSyncReembedsChangedAndEvictsRemoved(t *testing.T) {
	gw := &stubGateway{}
	store, err := NewFileStore(gw, t.TempDir(), 16)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := store.Sync(ctx, "kb", []documents.Document{doc("a.txt", "alpha"), doc("b.txt", "beta")}); err != nil {
		t.Fatal(err)
	}

	// a.txt changes content, b.txt disappears, c.txt is new.
	stats, err := store.Sync(ctx, "kb", []documents.Document{doc("a.txt", "alpha v2"), doc("c.txt", "gamma")})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Embedded != 2 || stats.Deleted != 1 || stats.Reused != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	n, err := store.Count(ctx, "kb")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records after eviction, got %d", n)
	}
}

func TestFileStoreSyncSurvivesEmbeddingFailure(t *testing.T) {
	gw := &stubGateway{fail: true}
	store, err := NewFileStore(gw, t.TempDir(), 16)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := store.Sync(context.Background(), "kb", []documents.Document{doc("a.txt", "alpha")})
	if err != nil {
		t.Fatalf("sync must not fail hard on batch errors: %v", err)
	}
	if stats.Failed != 1 || stats.Embedded != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	// one retry per batch
	if gw.embedCalls != 2 {
		t.Fatalf("expected 2 attempts for the failing batch, got %d", gw.embedCalls)
	}
}

func TestFileStoreSyncBatches(t *testing.T) {
	gw := &stubGateway{}
	store, err := NewFileStore(gw, t.TempDir(), 2)
	if err != nil {
		t.Fatal(err)
	}
	docs := []documents.Document{
		doc("1", "one"), doc("2", "two"), doc("3", "three"), doc("4", "four"), doc("5", "five"),
	}
	if _, err := store.Sync(context.Background(), "kb", docs); err != nil {
		t.Fatal(err)
	}
	if gw.embedCalls != 3 {
		t.Fatalf("expected 3 batches of size <=2 for 5 docs, got %d calls", gw.embedCalls)
	}
	if gw.embedTexts != 5 {
		t.Fatalf("expected 5 texts embedded, got %d", gw.embedTexts)
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	gw := &stubGateway{}
	store, err := NewFileStore(gw, dir, 16)
	if err != nil {
		t.Fatal(err)
	}
	docs := []documents.Document{doc("a.txt", "alpha")}
	if _, err := store.Sync(context.Background(), "kb", docs); err != nil {
		t.Fatal(err)
	}

	gw2 := &stubGateway{}
	store2, err := NewFileStore(gw2, dir, 16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store2.Sync(context.Background(), "kb", docs); err != nil {
		t.Fatal(err)
	}
	if gw2.embedCalls != 0 {
		t.Fatalf("fresh instance over the same file must reuse cached vectors, got %d calls", gw2.embedCalls)
	}
}

func TestFileStoreSearchOrdering(t *testing.T) {
	gw := &stubGateway{vectorFor: func(text string) []float32 {
		switch text {
		case "north":
			return []float32{0, 1}
		case "east":
			return []float32{1, 0}
		case "northeast", "northeast2":
			return []float32{1, 1}
		}
		return []float32{0, 0}
	}}
	store, err := NewFileStore(gw, t.TempDir(), 16)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	docs := []documents.Document{
		doc("n", "north"), doc("e", "east"), doc("z-ne", "northeast"), doc("a-ne", "northeast2"),
	}
	if _, err := store.Sync(ctx, "kb", docs); err != nil {
		t.Fatal(err)
	}

	hits, err := store.Search(ctx, "kb", []float32{1, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	// a-ne and z-ne both have similarity 1; ties break by doc id ascending.
	if hits[0].DocID != "a-ne" || hits[1].DocID != "z-ne" {
		t.Fatalf("expected tie-break by id, got %v", hits)
	}
	if hits[0].Score <= hits[2].Score {
		t.Fatalf("scores must descend, got %v", hits)
	}
}

func TestFileStoreSearchZeroQueryVector(t *testing.T) {
	gw := &stubGateway{}
	store, err := NewFileStore(gw, t.TempDir(), 16)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := store.Sync(ctx, "kb", []documents.Document{doc("a", "alpha")}); err != nil {
		t.Fatal(err)
	}
	hits, err := store.Search(ctx, "kb", []float32{0, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("zero query vector must behave as no match, got %v", hits)
	}
}

func TestFileStoreEmptyCorpus(t *testing.T) {
	gw := &stubGateway{}
	store, err := NewFileStore(gw, t.TempDir(), 16)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := store.Search(context.Background(), "missing", []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits from an empty corpus, got %v", hits)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("identical vectors: got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); got != -1 {
		t.Errorf("opposite vectors: got %v", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector: got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("dimension mismatch: got %v", got)
	}
}

func TestPlanSync(t *testing.T) {
	stored := map[string]string{
		"keep":   documents.HashBytes([]byte("same")),
		"stale":  "old-hash",
		"gone-b": "x",
		"gone-a": "y",
	}
	docs := []documents.Document{
		doc("keep", "same"),
		doc("stale", "new content"),
		doc("new", "brand new"),
	}
	p := planSync(stored, docs)
	if len(p.reuse) != 1 || p.reuse[0] != "keep" {
		t.Fatalf("reuse: %v", p.reuse)
	}
	if len(p.embed) != 2 {
		t.Fatalf("embed: %v", p.embed)
	}
	if len(p.delete) != 2 || p.delete[0] != "gone-a" || p.delete[1] != "gone-b" {
		t.Fatalf("delete must be sorted for determinism: %v", p.delete)
	}
}
