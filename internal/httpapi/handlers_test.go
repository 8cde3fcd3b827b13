package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/job"
	"github.com/fyrsmithlabs/snipd/internal/search"
	"github.com/fyrsmithlabs/snipd/internal/vectorstore"
)

type testEmbedder struct{}

func (testEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (testEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fixture struct {
	server  *Server
	store   *job.MemoryStore
	vectors vectorstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := job.NewMemoryStore(16)
	vectors, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "snipd_test"}, zap.NewNop())
	require.NoError(t, err)

	searcher := search.NewOrchestrator(testEmbedder{}, vectors, nil, 20, nil, zap.NewNop())
	srv := New(Config{Host: "127.0.0.1", Port: 0}, store, searcher, vectors,
		prometheus.NewRegistry(), zap.NewNop())
	return &fixture{server: srv, store: store, vectors: vectors}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.server.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestCreateJobAccepted(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/widgets.git"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "acme/widgets", resp.RepoName)
	assert.Equal(t, "queued", resp.Status)
	assert.Nil(t, resp.Progress)
	assert.Contains(t, rec.Body.String(), `"progress":null`)
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/jobs", `{"url": "not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeDetail(t, rec), "invalid repository url")

	rec = f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/a/b", "config": {"max_file_size": -1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeDetail(t, rec), "max_file_size")
}

func TestCreateJobTopLevelFilterOptions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/jobs",
		`{"url": "https://github.com/acme/widgets.git", "max_file_size": -5, "include_tests": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeDetail(t, rec), "max_file_size")

	rec = f.do(http.MethodPost, "/jobs",
		`{"url": "https://github.com/acme/widgets.git", "extensions": [".go"], "ignore_patterns": ["vendor"], "max_file_size": 2048, "include_tests": true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	j, err := f.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{".go"}, j.Config.Extensions)
	assert.Equal(t, []string{"vendor"}, j.Config.IgnorePatterns)
	assert.Equal(t, int64(2048), j.Config.MaxFileSize)
	assert.True(t, j.Config.IncludeTests)
}

func TestCreateJobTopLevelWinsOverConfigAlias(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/jobs",
		`{"url": "https://github.com/acme/widgets.git", "max_file_size": 512, "config": {"max_file_size": 4096, "extensions": [".py"]}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	j, err := f.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(512), j.Config.MaxFileSize)
	assert.Equal(t, []string{".py"}, j.Config.Extensions)
}

func TestCreateJobDuplicateActiveConflicts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/widgets.git"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/widgets.git"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeDetail(t, rec), "acme/widgets")
}

func TestConflictClearsAfterTerminalJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/widgets.git"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	j, err := f.store.Get(ctx, resp.ID)
	require.NoError(t, err)
	failed := job.StatusFailed
	reason := job.FailClone
	require.NoError(t, f.store.UpdateStatus(ctx, resp.ID, j.Version, job.Update{
		Status: &failed, FailReason: &reason,
	}))

	rec = f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/widgets.git"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestGetJob(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/widgets.git", "branch": "main"}`)
	var created createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(http.MethodGet, "/jobs/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail jobDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "main", detail.Branch)
	assert.Equal(t, "queued", detail.Status)
	assert.Equal(t, 0, detail.SnippetCount)

	rec = f.do(http.MethodGet, "/jobs/unknown-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "job not found", decodeDetail(t, rec))
}

func TestListJobsWithStatusFilter(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/a.git"}`)
	f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/b.git"}`)

	rec := f.do(http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []jobSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = f.do(http.MethodGet, "/jobs?status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var completed []jobSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completed))
	assert.Empty(t, completed)

	rec = f.do(http.MethodGet, "/jobs?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsCarriesFailureState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/widgets.git"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	j, err := f.store.Get(ctx, created.ID)
	require.NoError(t, err)
	failed := job.StatusFailed
	reason := job.FailClone
	msg := "remote hung up"
	require.NoError(t, f.store.UpdateStatus(ctx, created.ID, j.Version, job.Update{
		Status: &failed, FailReason: &reason, ProcessMessage: &msg,
	}))

	rec = f.do(http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []jobSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, string(job.FailClone), all[0].FailReason)
	assert.Equal(t, "remote hung up", all[0].ProcessMessage)
}

func TestDeleteJobCascadesToVectors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(http.MethodPost, "/jobs", `{"url": "https://github.com/acme/widgets.git"}`)
	var created createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	require.NoError(t, f.vectors.Upsert(ctx, []vectorstore.Point{{
		ID:     "11111111-1111-1111-1111-111111111111",
		Vector: []float32{1, 0, 0},
		Payload: map[string]string{
			"title": "stored snippet", "code": "x", "repo_name": "acme/widgets",
		},
	}}))

	rec = f.do(http.MethodDelete, "/jobs/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// record gone
	rec = f.do(http.MethodGet, "/jobs/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// snippets unsearchable
	hits, err := f.vectors.Search(ctx, []float32{1, 0, 0},
		vectorstore.Filter{RepoName: "acme/widgets"}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	rec = f.do(http.MethodDelete, "/jobs/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchSnippets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.vectors.Upsert(ctx, []vectorstore.Point{
		{
			ID:     "11111111-1111-1111-1111-111111111111",
			Vector: []float32{1, 0, 0},
			Payload: map[string]string{
				"title": "bounded retry", "description": "retry with backoff",
				"language": "go", "code": "func Retry() {}", "path": "pkg/retry.go",
				"repo_name": "acme/widgets", "repo_url": "https://github.com/acme/widgets.git",
			},
		},
		{
			ID:     "22222222-2222-2222-2222-222222222222",
			Vector: []float32{0, 1, 0},
			Payload: map[string]string{
				"title": "http handler", "language": "python", "code": "def handle(): pass",
				"repo_name": "acme/gadgets",
			},
		},
	}))

	rec := f.do(http.MethodGet, "/snippets?query=retry+backoff", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp search.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "retry backoff", resp.Query)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "bounded retry", resp.Results[0].Title)

	rec = f.do(http.MethodGet, "/snippets?query=retry&language=python", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = search.Response{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "http handler", resp.Results[0].Title)
}

func TestSearchSnippetsValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/snippets?query=", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/snippets?query=%20%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/snippets?query=q&limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/snippets?query=q&limit=51", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/snippets?query=q&limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.server.Shutdown(ctx))
}
