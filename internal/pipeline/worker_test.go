package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/job"
)

func TestPoolProcessesQueuedJobs(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.go": "package a"})
	e := newEnv(t, dir, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids := make([]string, 0, 3)
	for _, repo := range []string{"acme/a", "acme/b", "acme/c"} {
		id, err := e.store.Enqueue(ctx, &job.Job{
			URL:      "https://github.com/" + repo + ".git",
			RepoName: repo,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	pool := NewPool(e.store, e.processor, 2, zap.NewNop())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			j, err := e.store.Get(context.Background(), id)
			if err != nil || j.Status != job.StatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "all jobs should complete")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}

	for _, id := range ids {
		j, err := e.store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1, j.SnippetCount)
	}
}
