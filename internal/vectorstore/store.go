// Package vectorstore provides vector storage backends for snippet
// vectors. Embedding happens upstream; stores only persist and search
// precomputed vectors with their payloads.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates unusable store configuration.
	ErrInvalidConfig = errors.New("invalid vector store config")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("vector store connection failed")

	// ErrStorage wraps backend failures during upsert, search or delete.
	ErrStorage = errors.New("vector store operation failed")
)

// Point is one stored vector with its payload. Payload values are flat
// strings; snippet metadata needs nothing richer.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Filter narrows searches and deletes with exact payload matches. Empty
// fields do not constrain.
type Filter struct {
	RepoName string
	Language string
	IngestID string
}

// matches returns the non-empty filter fields keyed by payload name.
func (f Filter) matches() map[string]string {
	m := make(map[string]string, 3)
	if f.RepoName != "" {
		m["repo_name"] = f.RepoName
	}
	if f.Language != "" {
		m["language"] = f.Language
	}
	if f.IngestID != "" {
		m["ingest_id"] = f.IngestID
	}
	return m
}

// Store is the vector storage contract. Upserts with an existing ID
// replace the stored point, which makes re-ingestion idempotent.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, f Filter, k int) ([]ScoredPoint, error)
	DeleteByFilter(ctx context.Context, f Filter) error
	Close() error
}
