// Package search orchestrates the query path: embed, retrieve, rerank,
// truncate. It is the single entry point shared by the HTTP API and the
// MCP tool surface.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/embeddings"
	"github.com/fyrsmithlabs/snipd/internal/reranker"
	"github.com/fyrsmithlabs/snipd/internal/vectorstore"
)

const (
	// DefaultLimit applies when the caller does not set one.
	DefaultLimit = 5
	// MaxLimit is the hard ceiling on returned results.
	MaxLimit = 50
)

var (
	// ErrEmptyQuery rejects blank or whitespace-only queries.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrInvalidLimit rejects limits outside [1, MaxLimit].
	ErrInvalidLimit = fmt.Errorf("limit must be between 1 and %d", MaxLimit)
)

// Request is one search invocation. A zero Limit means DefaultLimit;
// RepoName and Language are optional equality filters.
type Request struct {
	Query    string
	Limit    int
	RepoName string
	Language string
}

// Result is one snippet hit.
type Result struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Language    string  `json:"language"`
	Code        string  `json:"code"`
	Path        string  `json:"path"`
	RepoName    string  `json:"repo_name"`
	RepoURL     string  `json:"repo_url"`
	Score       float32 `json:"score"`
}

// Response echoes the trimmed query alongside the hits.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Metrics collects search path counters and timings.
type Metrics struct {
	Searches prometheus.Counter
	Duration prometheus.Histogram
}

// NewMetrics creates and registers the search metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snipd",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search requests served.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snipd",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search request duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Searches, m.Duration)
	}
	return m
}

// Orchestrator runs searches against the stored snippets. The embedder
// must be the one used at ingestion so vectors share a space. The
// reranker is optional; rerank failures degrade to similarity order.
type Orchestrator struct {
	embedder  embeddings.Embedder
	vectors   vectorstore.Store
	reranker  reranker.Reranker
	overfetch int
	metrics   *Metrics
	logger    *zap.Logger
}

// NewOrchestrator wires the search path. reranker may be nil.
func NewOrchestrator(embedder embeddings.Embedder, vectors vectorstore.Store,
	rr reranker.Reranker, overfetch int, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	if overfetch <= 0 {
		overfetch = 20
	}
	return &Orchestrator{
		embedder:  embedder,
		vectors:   vectors,
		reranker:  rr,
		overfetch: overfetch,
		metrics:   metrics,
		logger:    logger,
	}
}

// Search validates the request, embeds the query, retrieves an
// over-fetched candidate set, optionally reranks, and truncates to the
// limit.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.Searches.Inc()
			o.metrics.Duration.Observe(time.Since(start).Seconds())
		}
	}()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return nil, ErrInvalidLimit
	}

	vector, err := o.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	k := o.overfetch
	if limit > k {
		k = limit
	}
	hits, err := o.vectors.Search(ctx, vector, vectorstore.Filter{
		RepoName: req.RepoName,
		Language: req.Language,
	}, k)
	if err != nil {
		return nil, fmt.Errorf("searching snippets: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ID:          h.ID,
			Title:       h.Payload["title"],
			Description: h.Payload["description"],
			Language:    h.Payload["language"],
			Code:        h.Payload["code"],
			Path:        h.Payload["path"],
			RepoName:    h.Payload["repo_name"],
			RepoURL:     h.Payload["repo_url"],
			Score:       h.Score,
		}
	}

	results = o.rerank(ctx, query, results, limit)
	if len(results) > limit {
		results = results[:limit]
	}
	return &Response{Query: query, Results: results}, nil
}

// rerank reorders results when a reranker is wired. Any failure keeps the
// similarity order; a degraded ranking beats a failed search.
func (o *Orchestrator) rerank(ctx context.Context, query string, results []Result, limit int) []Result {
	if o.reranker == nil || len(results) < 2 {
		return results
	}

	byID := make(map[string]Result, len(results))
	candidates := make([]reranker.Candidate, len(results))
	for i, r := range results {
		byID[r.ID] = r
		candidates[i] = reranker.Candidate{
			ID:    r.ID,
			Text:  r.Title + "\n" + r.Description + "\n" + r.Code,
			Score: r.Score,
		}
	}

	ranked, err := o.reranker.Rerank(ctx, query, candidates, limit)
	if err != nil {
		o.logger.Warn("rerank failed, keeping similarity order", zap.Error(err))
		return results
	}

	out := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		if res, ok := byID[r.ID]; ok {
			out = append(out, res)
		}
	}
	return out
}
