// Package emstore persists per-corpus document embeddings keyed by content
// hash, and serves cosine top-K search over them. Three backends share one
// contract: a JSON file per corpus, Postgres+pgvector, and Qdrant.
package emstore

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"loom/internal/documents"
	"loom/internal/llm"
)

// Scored is one search result: a document id and its cosine similarity.
type Scored struct {
	DocID string
	Score float64
}

// SyncStats summarizes one Sync pass.
type SyncStats struct {
	Embedded int // documents (re)embedded this pass
	Reused   int // documents whose cached vector was still valid
	Deleted  int // records evicted because the document disappeared
	Failed   int // documents skipped because their embedding batch failed
}

// Store is the embedding cache contract. After Sync returns, every surviving
// document has exactly one record matching its current content hash; Search
// returns the k highest cosine similarities in descending order with ties
// broken by document id ascending.
type Store interface {
	Sync(ctx context.Context, corpus string, docs []documents.Document) (SyncStats, error)
	Search(ctx context.Context, corpus string, query []float32, k int) ([]Scored, error)
	Count(ctx context.Context, corpus string) (int, error)
}

// syncPlan separates a document set into work lists given the stored hashes.
type syncPlan struct {
	embed  []documents.Document // missing or stale
	reuse  []string             // doc ids with valid cached vectors
	delete []string             // stored ids no longer present
}

func planSync(stored map[string]string, docs []documents.Document) syncPlan {
	var p syncPlan
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		present[d.ID] = true
		if stored[d.ID] == d.Hash {
			p.reuse = append(p.reuse, d.ID)
		} else {
			p.embed = append(p.embed, d)
		}
	}
	for id := range stored {
		if !present[id] {
			p.delete = append(p.delete, id)
		}
	}
	sort.Strings(p.delete)
	return p
}

// embedBatches embeds the documents' text in groups of batchSize. A failing
// batch is retried once and then skipped; the returned slice is aligned with
// docs, with nil vectors for skipped entries.
func embedBatches(ctx context.Context, gw llm.Gateway, docs []documents.Document, batchSize int) ([][]float32, int) {
	if batchSize <= 0 {
		batchSize = 16
	}
	vectors := make([][]float32, len(docs))
	failed := 0
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Text)
		}

		vecs, err := gw.Embed(ctx, texts)
		if err != nil {
			vecs, err = gw.Embed(ctx, texts)
		}
		if err != nil {
			log.Warn().Err(err).Int("batch_start", start).Int("batch_size", len(texts)).
				Msg("embedding batch failed twice, skipping")
			failed += end - start
			continue
		}
		for i, v := range vecs {
			vectors[start+i] = v
		}
	}
	return vectors, failed
}

// Cosine returns the cosine similarity of two vectors, 0 when either is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topK sorts scored results descending with ties broken by doc id ascending
// and truncates to k.
func topK(scored []Scored, k int) []Scored {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].DocID < scored[j].DocID
	})
	if k >= 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// isZeroVector reports whether every component is zero. Some providers embed
// degenerate queries to the zero vector; search treats that as no match.
func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
