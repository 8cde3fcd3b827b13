package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankBoostsTermOverlap(t *testing.T) {
	r := NewOverlapReranker()

	candidates := []Candidate{
		{ID: "semantic", Text: "walks a directory tree collecting files", Score: 0.9},
		{ID: "lexical", Text: "retry with exponential backoff and jitter", Score: 0.6},
	}

	got, err := r.Rerank(context.Background(), "exponential backoff retry", candidates, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// full term overlap (0.6*0.5 + 1.0*0.5 = 0.8) beats pure similarity (0.45)
	assert.Equal(t, "lexical", got[0].ID)
	assert.Equal(t, float32(1), got[0].RerankScore)
}

func TestRerankTruncatesToTopK(t *testing.T) {
	r := NewOverlapReranker()
	candidates := []Candidate{
		{ID: "a", Text: "alpha", Score: 0.3},
		{ID: "b", Text: "beta", Score: 0.2},
		{ID: "c", Text: "gamma", Score: 0.1},
	}

	got, err := r.Rerank(context.Background(), "alpha", candidates, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := NewOverlapReranker()
	got, err := r.Rerank(context.Background(), "anything", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRerankStopwordOnlyQueryFallsBack(t *testing.T) {
	r := NewOverlapReranker()
	candidates := []Candidate{
		{ID: "low", Text: "x", Score: 0.2},
		{ID: "high", Text: "y", Score: 0.8},
	}

	got, err := r.Rerank(context.Background(), "how can the", candidates, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].ID, "fallback keeps similarity order")
}

func TestTermOverlap(t *testing.T) {
	tests := []struct {
		name  string
		query string
		doc   string
		want  float32
	}{
		{"full overlap", "retry backoff", "retry with backoff", 1},
		{"half overlap", "retry backoff", "retry loop", 0.5},
		{"no overlap", "retry backoff", "http handler", 0},
		{"duplicates count once", "retry retry backoff", "retry loop", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := termOverlap(tokenize(tt.query), tokenize(tt.doc))
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}
