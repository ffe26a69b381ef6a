// Package retriever serves relevance-ranked document snippets: cosine top-K
// over the embedding store with an optional LLM rerank pass.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"loom/internal/documents"
	"loom/internal/emstore"
	"loom/internal/llm"
)

// Hit is one retrieval result. Score is the raw cosine similarity in [-1, 1];
// callers decide whether to threshold.
type Hit struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

type Retriever struct {
	Gateway      llm.Gateway
	Store        emstore.Store
	Library      *documents.Library
	SnippetChars int
}

func New(gateway llm.Gateway, store emstore.Store, library *documents.Library, snippetChars int) *Retriever {
	if snippetChars <= 0 {
		snippetChars = 700
	}
	return &Retriever{Gateway: gateway, Store: store, Library: library, SnippetChars: snippetChars}
}

// Retrieve embeds the query, pulls candidates from the store and materializes
// the first k hits. With rerank enabled it fetches rerankK candidates and asks
// the small model for a permutation; on any parse trouble the pre-rerank order
// stands.
func (r *Retriever) Retrieve(ctx context.Context, corpus, query string, k int, rerank bool, rerankK int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if rerankK < k {
		rerankK = k
	}

	vecs, err := r.Gateway.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}

	fetch := k
	if rerank {
		fetch = rerankK
	}
	scored, err := r.Store.Search(ctx, corpus, vecs[0], fetch)
	if err != nil {
		return nil, fmt.Errorf("search corpus %s: %w", corpus, err)
	}
	if len(scored) == 0 {
		return nil, nil
	}

	if rerank && len(scored) > 1 {
		scored = r.rerank(ctx, corpus, query, scored, k)
	}

	hits := make([]Hit, 0, k)
	for _, s := range scored {
		if len(hits) == k {
			break
		}
		hits = append(hits, r.materialize(corpus, s))
	}
	return hits, nil
}

func (r *Retriever) materialize(corpus string, s emstore.Scored) Hit {
	doc, ok := r.Library.Get(corpus, s.DocID)
	if !ok {
		// The store knows a document the library does not; surface the id so
		// the mismatch is visible instead of silently dropping the hit.
		return Hit{Title: s.DocID, Score: s.Score}
	}
	return Hit{
		Title:   doc.Title,
		Snippet: snippet(doc.Text, r.SnippetChars),
		Score:   s.Score,
		Source:  doc.Source,
	}
}

func snippet(text string, budget int) string {
	text = strings.TrimSpace(text)
	if len(text) <= budget {
		return text
	}
	return text[:budget]
}

// rerank asks the small model to reorder the candidates. Logged and ignored
// on failure: retrieval quality degrades, the run does not.
func (r *Retriever) rerank(ctx context.Context, corpus, query string, scored []emstore.Scored, k int) []emstore.Scored {
	snippets := make([]string, len(scored))
	for i, s := range scored {
		if doc, ok := r.Library.Get(corpus, s.DocID); ok {
			snippets[i] = snippet(doc.Text, rerankSnippetChars)
		} else {
			snippets[i] = s.DocID
		}
	}

	out, err := r.Gateway.Chat(ctx, llm.ModelSmall, llm.SystemUser(rerankSystemPrompt, rerankUserPrompt(query, snippets)), llm.ChatOptions{})
	if err != nil {
		log.Warn().Err(err).Msg("rerank call failed, keeping similarity order")
		return scored
	}
	perm, ok := parsePermutation(out, len(scored))
	if !ok || len(perm) < k {
		log.Debug().Str("raw", out).Msg("rerank response unusable, keeping similarity order")
		return scored
	}
	reordered := make([]emstore.Scored, 0, len(perm))
	for _, idx := range perm {
		reordered = append(reordered, scored[idx])
	}
	return reordered
}
