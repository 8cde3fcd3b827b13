package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/job"
	"github.com/fyrsmithlabs/snipd/internal/search"
	"github.com/fyrsmithlabs/snipd/internal/vectorstore"
)

type errorBody struct {
	Detail string `json:"detail"`
}

type jobConfigBody struct {
	Extensions     []string `json:"extensions,omitempty"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
	MaxFileSize    int64    `json:"max_file_size,omitempty"`
	IncludeTests   bool     `json:"include_tests,omitempty"`
}

// createJobBody carries the filtering options at the top level; a nested
// config object is accepted as an alias, with top-level fields winning.
type createJobBody struct {
	URL            string         `json:"url"`
	Branch         string         `json:"branch,omitempty"`
	RepoName       string         `json:"repo_name,omitempty"`
	Extensions     []string       `json:"extensions,omitempty"`
	IgnorePatterns []string       `json:"ignore_patterns,omitempty"`
	MaxFileSize    *int64         `json:"max_file_size,omitempty"`
	IncludeTests   *bool          `json:"include_tests,omitempty"`
	Config         *jobConfigBody `json:"config,omitempty"`
}

func (b *createJobBody) jobConfig() job.Config {
	var cfg job.Config
	if b.Config != nil {
		cfg = job.Config{
			Extensions:     b.Config.Extensions,
			IgnorePatterns: b.Config.IgnorePatterns,
			MaxFileSize:    b.Config.MaxFileSize,
			IncludeTests:   b.Config.IncludeTests,
		}
	}
	if len(b.Extensions) > 0 {
		cfg.Extensions = b.Extensions
	}
	if len(b.IgnorePatterns) > 0 {
		cfg.IgnorePatterns = b.IgnorePatterns
	}
	if b.MaxFileSize != nil {
		cfg.MaxFileSize = *b.MaxFileSize
	}
	if b.IncludeTests != nil {
		cfg.IncludeTests = *b.IncludeTests
	}
	return cfg
}

type createJobResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	RepoName string `json:"repo_name"`
	Status   string `json:"status"`
	Progress *int   `json:"progress"`
}

// jobSummary carries fail_reason and process_message so a polling client
// can show failure state without a detail fetch.
type jobSummary struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	RepoName       string    `json:"repo_name"`
	Status         string    `json:"status"`
	Progress       *int      `json:"progress"`
	SnippetCount   int       `json:"snippet_count"`
	FailReason     string    `json:"fail_reason,omitempty"`
	ProcessMessage string    `json:"process_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type jobDetail struct {
	jobSummary
	Branch string `json:"branch,omitempty"`
}

func toSummary(j *job.Job) jobSummary {
	s := jobSummary{
		ID:             j.ID,
		URL:            j.URL,
		RepoName:       j.RepoName,
		Status:         string(j.Status),
		SnippetCount:   j.SnippetCount,
		FailReason:     string(j.FailReason),
		ProcessMessage: j.ProcessMessage,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	// progress is null until processing starts
	if j.Status != job.StatusQueued {
		p := j.Progress
		s.Progress = &p
	}
	return s
}

func toDetail(j *job.Job) jobDetail {
	return jobDetail{
		jobSummary: toSummary(j),
		Branch:     j.Branch,
	}
}

func (s *Server) createJob(c echo.Context) error {
	var body createJobBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	parsed, err := url.Parse(body.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid repository url")
	}
	cfg := body.jobConfig()
	if cfg.MaxFileSize < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "max_file_size must not be negative")
	}

	repoName := body.RepoName
	if repoName == "" {
		repoName = job.DeriveRepoName(body.URL)
	}
	if repoName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "could not derive repository name from url")
	}

	j := &job.Job{
		URL:      body.URL,
		Branch:   body.Branch,
		RepoName: repoName,
		Config:   cfg,
	}

	id, err := s.jobs.Enqueue(c.Request().Context(), j)
	if errors.Is(err, job.ErrActiveJobExists) {
		return echo.NewHTTPError(http.StatusConflict,
			"an active job already exists for repository "+repoName)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, createJobResponse{
		ID:       id,
		URL:      body.URL,
		RepoName: repoName,
		Status:   string(job.StatusQueued),
	})
}

func (s *Server) listJobs(c echo.Context) error {
	var filter job.ListFilter
	if raw := c.QueryParam("status"); raw != "" {
		st := job.Status(raw)
		if !st.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown status "+raw)
		}
		filter.Status = st
	}

	jobs, err := s.jobs.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	out := make([]jobSummary, len(jobs))
	for i, j := range jobs {
		out[i] = toSummary(j)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getJob(c echo.Context) error {
	j, err := s.jobs.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, job.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDetail(j))
}

// deleteJob removes the job record and cascades: an active job is
// cancelled so its worker stops, and stored vectors for the repository
// are removed best-effort.
func (s *Server) deleteJob(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	j, err := s.jobs.Get(ctx, id)
	if errors.Is(err, job.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	if err != nil {
		return err
	}

	if err := s.jobs.Delete(ctx, id); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return err
	}

	if err := s.vectors.DeleteByFilter(ctx, vectorstore.Filter{RepoName: j.RepoName}); err != nil {
		// record is gone; vector cleanup failure must not resurrect it
		s.logger.Warn("failed to delete snippets for removed job",
			zap.String("job_id", id),
			zap.String("repo", j.RepoName),
			zap.Error(err))
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) searchSnippets(c echo.Context) error {
	req := search.Request{
		Query:    c.QueryParam("query"),
		RepoName: c.QueryParam("repo_name"),
		Language: c.QueryParam("language"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		// an explicit limit must be in range; only absence means default
		if limit < 1 || limit > search.MaxLimit {
			return echo.NewHTTPError(http.StatusBadRequest, search.ErrInvalidLimit.Error())
		}
		req.Limit = limit
	}

	resp, err := s.searcher.Search(c.Request().Context(), req)
	if errors.Is(err, search.ErrEmptyQuery) || errors.Is(err, search.ErrInvalidLimit) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
