package reranker

import (
	"context"
	"sort"
	"strings"
)

// OverlapReranker ranks by lexical term overlap blended with the original
// similarity score. No model, no network; it sharpens results where the
// query uses the exact identifiers the snippet contains.
type OverlapReranker struct{}

// NewOverlapReranker creates an OverlapReranker.
func NewOverlapReranker() *OverlapReranker {
	return &OverlapReranker{}
}

// Rerank scores each candidate as 50% original similarity plus 50% query
// term overlap, sorts descending, and returns the top K.
func (r *OverlapReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Ranked, error) {
	if topK <= 0 {
		topK = len(candidates)
	}
	if len(candidates) == 0 {
		return []Ranked{}, nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return fallbackRank(candidates, topK), nil
	}

	type scored struct {
		ranked   Ranked
		combined float32
	}
	all := make([]scored, len(candidates))
	for i, c := range candidates {
		overlap := termOverlap(queryTokens, tokenize(c.Text))
		all[i] = scored{
			ranked:   Ranked{Candidate: c, RerankScore: overlap, OriginalRank: i},
			combined: 0.5*c.Score + 0.5*overlap,
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].combined > all[j].combined
	})

	if topK > len(all) {
		topK = len(all)
	}
	out := make([]Ranked, topK)
	for i := 0; i < topK; i++ {
		out[i] = all[i].ranked
	}
	return out, nil
}

// tokenize lowercases and splits on non-identifier runes, dropping
// stopwords and tokens shorter than three runes.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isIdentRune(r)
	})
	filtered := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) > 2 && !stopwords[tok] {
			filtered = append(filtered, tok)
		}
	}
	return filtered
}

func isIdentRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "these": true, "those": true, "are": true,
	"was": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true,
	"what": true, "which": true, "who": true, "when": true, "where": true,
	"why": true, "how": true, "you": true, "they": true,
}

// termOverlap returns the fraction of unique query tokens present in the
// candidate tokens, in [0, 1].
func termOverlap(queryTokens, docTokens []string) float32 {
	if len(queryTokens) == 0 {
		return 0
	}
	docSet := make(map[string]bool, len(docTokens))
	for _, tok := range docTokens {
		docSet[tok] = true
	}
	matched := make(map[string]bool)
	for _, tok := range queryTokens {
		if docSet[tok] {
			matched[tok] = true
		}
	}
	unique := make(map[string]bool, len(queryTokens))
	for _, tok := range queryTokens {
		unique[tok] = true
	}
	return float32(len(matched)) / float32(len(unique))
}

// fallbackRank keeps the original similarity order when the query yields
// no usable tokens.
func fallbackRank(candidates []Candidate, topK int) []Ranked {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if topK > len(sorted) {
		topK = len(sorted)
	}
	out := make([]Ranked, topK)
	for i := 0; i < topK; i++ {
		out[i] = Ranked{Candidate: sorted[i], RerankScore: sorted[i].Score, OriginalRank: i}
	}
	return out
}
