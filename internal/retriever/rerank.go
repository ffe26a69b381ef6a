package retriever

import (
	"fmt"
	"strconv"
	"strings"
)

const rerankSnippetChars = 400

const rerankSystemPrompt = "You rank document snippets by relevance to a query. " +
	"Reply with the snippet numbers only, most relevant first, comma-separated. " +
	"Example: 3,1,2"

func rerankUserPrompt(query string, snippets []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nSnippets:\n", query)
	for i, s := range snippets {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	fmt.Fprintf(&sb, "\nReturn the numbers 1-%d ordered by relevance.", len(snippets))
	return sb.String()
}

// parsePermutation extracts a permutation of 0-based indices from the model's
// reply. It tolerates prose around the numbers, deduplicates, and rejects
// out-of-range values. ok is false when nothing usable was found.
func parsePermutation(raw string, n int) ([]int, bool) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r < '0' || r > '9'
	})
	seen := make(map[int]bool, n)
	perm := make([]int, 0, n)
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		idx := v - 1 // the prompt numbers snippets from 1
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		perm = append(perm, idx)
	}
	if len(perm) == 0 {
		return nil, false
	}
	return perm, true
}
