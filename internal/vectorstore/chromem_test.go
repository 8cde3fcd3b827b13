package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(ChromemConfig{Collection: "snipd_test"}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func point(id string, v []float32, repo, lang string) Point {
	return Point{
		ID:     id,
		Vector: v,
		Payload: map[string]string{
			"title":     "t-" + id,
			"code":      "code-" + id,
			"repo_name": repo,
			"language":  lang,
		},
	}
}

func TestChromemUpsertAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Point{
		point("11111111-1111-1111-1111-111111111111", []float32{1, 0, 0}, "acme/widgets", "go"),
		point("22222222-2222-2222-2222-222222222222", []float32{0, 1, 0}, "acme/widgets", "python"),
		point("33333333-3333-3333-3333-333333333333", []float32{0, 0, 1}, "acme/gadgets", "go"),
	}))

	hits, err := s.Search(ctx, []float32{1, 0, 0}, Filter{}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", hits[0].ID)
	assert.Equal(t, "t-11111111-1111-1111-1111-111111111111", hits[0].Payload["title"])
}

func TestChromemSearchWithFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Point{
		point("11111111-1111-1111-1111-111111111111", []float32{1, 0, 0}, "acme/widgets", "go"),
		point("22222222-2222-2222-2222-222222222222", []float32{0.9, 0.1, 0}, "acme/widgets", "python"),
		point("33333333-3333-3333-3333-333333333333", []float32{0.8, 0.2, 0}, "acme/gadgets", "go"),
	}))

	hits, err := s.Search(ctx, []float32{1, 0, 0}, Filter{RepoName: "acme/widgets", Language: "go"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", hits[0].ID)
}

func TestChromemUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := point("11111111-1111-1111-1111-111111111111", []float32{1, 0, 0}, "acme/widgets", "go")
	require.NoError(t, s.Upsert(ctx, []Point{p}))
	require.NoError(t, s.Upsert(ctx, []Point{p}))

	hits, err := s.Search(ctx, []float32{1, 0, 0}, Filter{}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestChromemDeleteByFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Point{
		point("11111111-1111-1111-1111-111111111111", []float32{1, 0, 0}, "acme/widgets", "go"),
		point("22222222-2222-2222-2222-222222222222", []float32{0, 1, 0}, "acme/gadgets", "go"),
	}))

	require.NoError(t, s.DeleteByFilter(ctx, Filter{RepoName: "acme/widgets"}))

	hits, err := s.Search(ctx, []float32{1, 0, 0}, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", hits[0].ID)

	err = s.DeleteByFilter(ctx, Filter{})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestChromemSearchEmptyCollection(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.Search(context.Background(), []float32{1, 0, 0}, Filter{}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New("pinecone", QdrantConfig{}, ChromemConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
