// Package reranker reorders search candidates after vector similarity
// retrieval. Reranking is best-effort: callers fall back to similarity
// order when it fails.
package reranker

import "context"

// Candidate is one search hit entering the reranker.
type Candidate struct {
	ID string
	// Text is what the reranker scores against the query, typically the
	// snippet title, description and code concatenated.
	Text string
	// Score is the similarity score from the vector store.
	Score float32
}

// Ranked is a candidate with its post-rerank score.
type Ranked struct {
	Candidate
	RerankScore  float32
	OriginalRank int
}

// Reranker reorders candidates by relevance to the query and truncates
// to topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Ranked, error)
}
