package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the embedded chromem store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only,
	// which is what tests use.
	Path       string
	Collection string
	Compress   bool
}

// ChromemStore is the embedded Store implementation. No external service
// is needed, which makes it the default for local development.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

// noEmbedding satisfies chromem's embedding hook. All vectors arrive
// precomputed, so a call here means a wiring bug.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("vectors are computed upstream, not by the store")
}

// NewChromemStore opens (or creates) the snippet collection.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if config.Collection == "" || !collectionNamePattern.MatchString(config.Collection) {
		return nil, fmt.Errorf("%w: collection must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, config.Collection)
	}

	var (
		db  *chromem.DB
		err error
	)
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path := expandHome(config.Path)
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", config.Collection, err)
	}
	logger.Debug("chromem store ready",
		zap.String("collection", config.Collection),
		zap.Int("documents", collection.Count()))
	return &ChromemStore{db: db, collection: collection, logger: logger}, nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func (s *ChromemStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Payload["code"],
			Metadata:  p.Payload,
			Embedding: p.Vector,
		}
	}
	// concurrency 1: vectors are already computed, nothing to parallelize
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, vector []float32, f Filter, k int) ([]ScoredPoint, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrStorage, k)
	}

	// chromem requires nResults <= document count
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	where := f.matches()
	if len(where) == 0 {
		where = nil
	}
	results, err := s.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	out := make([]ScoredPoint, len(results))
	for i, r := range results {
		out[i] = ScoredPoint{ID: r.ID, Score: r.Similarity, Payload: r.Metadata}
	}
	return out, nil
}

func (s *ChromemStore) DeleteByFilter(ctx context.Context, f Filter) error {
	where := f.matches()
	if len(where) == 0 {
		return fmt.Errorf("%w: refusing unfiltered delete", ErrStorage)
	}
	if err := s.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error { return nil }
