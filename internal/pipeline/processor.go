package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/snipd/internal/embeddings"
	"github.com/fyrsmithlabs/snipd/internal/extraction"
	"github.com/fyrsmithlabs/snipd/internal/gitclone"
	"github.com/fyrsmithlabs/snipd/internal/job"
	"github.com/fyrsmithlabs/snipd/internal/snippet"
	"github.com/fyrsmithlabs/snipd/internal/vectorstore"
	"go.uber.org/zap"
)

// errAbandoned signals that another writer (delete or cancel) won a status
// race; the processor stops without further writes.
var errAbandoned = errors.New("job abandoned to a newer writer")

// errCancelled signals an observed cooperative cancellation.
var errCancelled = errors.New("job cancelled")

// Options configures a Processor.
type Options struct {
	// ExtractConcurrency bounds in-flight extraction calls per job.
	ExtractConcurrency int
	// BatchSize is the embedding and storage batch size.
	BatchSize int
	// ProgressInterval throttles persisted progress updates.
	ProgressInterval time.Duration
	// DefaultMaxFileSize applies when the job sets no cap.
	DefaultMaxFileSize int64
	// Retry bounds embedding and storage batch retries.
	Retry RetryPolicy
}

func (o *Options) applyDefaults() {
	if o.ExtractConcurrency <= 0 {
		o.ExtractConcurrency = 8
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 2 * time.Second
	}
	if o.DefaultMaxFileSize <= 0 {
		o.DefaultMaxFileSize = 1024 * 1024
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = DefaultRetryPolicy()
	}
}

// Processor runs one ingestion job through its full lifecycle. It is
// stateless across jobs; a single Processor is shared by all workers.
type Processor struct {
	jobs      job.Store
	cloner    gitclone.Cloner
	extractor extraction.Extractor
	embedder  embeddings.Embedder
	vectors   vectorstore.Store
	opts      Options
	metrics   *Metrics
	logger    *zap.Logger
}

// NewProcessor wires a Processor from its adapters.
func NewProcessor(jobs job.Store, cloner gitclone.Cloner, extractor extraction.Extractor,
	embedder embeddings.Embedder, vectors vectorstore.Store,
	opts Options, metrics *Metrics, logger *zap.Logger) *Processor {
	opts.applyDefaults()
	return &Processor{
		jobs:      jobs,
		cloner:    cloner,
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
	}
}

// run tracks the mutable per-job state: the version the processor believes
// the record has, bumped on each successful write.
type run struct {
	job     *job.Job
	version int
	status  job.Status
}

// Process executes the claimed job. Terminal status is always written
// here unless a delete or cancel took the record over.
func (p *Processor) Process(ctx context.Context, claimed *job.Job) {
	start := time.Now()
	log := p.logger.With(zap.String("job_id", claimed.ID), zap.String("repo", claimed.RepoName))
	r := &run{job: claimed, version: claimed.Version, status: claimed.Status}

	err := p.process(ctx, r, log)
	switch {
	case err == nil:
		p.metrics.JobsProcessed.WithLabelValues(string(job.StatusCompleted)).Inc()
		log.Info("job completed",
			zap.Int("snippets", r.job.SnippetCount),
			zap.Duration("took", time.Since(start)))
	case errors.Is(err, errAbandoned):
		log.Info("job taken over by a newer writer, stopping")
	default:
		p.metrics.JobsProcessed.WithLabelValues(string(job.StatusFailed)).Inc()
		log.Warn("job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
	}
	p.metrics.JobDuration.Observe(time.Since(start).Seconds())
}

func (p *Processor) process(ctx context.Context, r *run, log *zap.Logger) error {
	// Clone
	if err := p.advance(ctx, r, job.StatusCloning, "Cloning repository"); err != nil {
		return err
	}
	dir, cleanup, err := p.cloner.Clone(ctx, r.job.URL, r.job.Branch)
	if err != nil {
		return p.fail(ctx, r, job.FailClone, err)
	}
	defer cleanup()

	// Filter
	if err := p.advance(ctx, r, job.StatusFiltering, "Scanning repository files"); err != nil {
		return err
	}
	files, err := CollectFiles(dir, r.job.Config, p.opts.DefaultMaxFileSize)
	if err != nil {
		return p.fail(ctx, r, job.FailExtraction, err)
	}
	if len(files) == 0 {
		return p.complete(ctx, r, 0)
	}

	// Extract
	if err := p.advance(ctx, r, job.StatusExtracting, "Extracting snippets from repository"); err != nil {
		return err
	}
	candidates, err := p.extractAll(ctx, r, dir, files, log)
	if err != nil {
		if errors.Is(err, errCancelled) {
			return p.cancelled(ctx, r, log)
		}
		if errors.Is(err, errAbandoned) {
			return err
		}
		return p.fail(ctx, r, job.FailExtraction, err)
	}

	snippets := p.buildSnippets(r.job, candidates)
	if len(snippets) == 0 {
		return p.complete(ctx, r, 0)
	}

	// Embed
	if err := p.advance(ctx, r, job.StatusEmbedding, "Generating embeddings"); err != nil {
		return err
	}
	vectors, err := p.embedAll(ctx, r, snippets)
	if err != nil {
		if errors.Is(err, errCancelled) {
			return p.cancelled(ctx, r, log)
		}
		return p.fail(ctx, r, job.FailEmbedding, err)
	}

	// Store
	if err := p.advance(ctx, r, job.StatusStoring, "Storing snippets"); err != nil {
		return err
	}
	stored, err := p.storeAll(ctx, r, snippets, vectors)
	if err != nil {
		if errors.Is(err, errCancelled) {
			return p.cancelled(ctx, r, log)
		}
		if errors.Is(err, errAbandoned) {
			return err
		}
		// committed batches stay; the count reflects what is durable
		return p.fail(ctx, r, job.FailStorage, err)
	}

	return p.complete(ctx, r, stored)
}

// extractAll fans extraction out over the eligible files with bounded
// concurrency. Per-file failures are logged and skipped; only a fully
// failed extraction pass fails the job.
func (p *Processor) extractAll(ctx context.Context, r *run, dir string, files []FileCandidate, log *zap.Logger) ([]fileCandidates, error) {
	var (
		mu         sync.Mutex
		results    []fileCandidates
		attempted  int
		failed     int
		lastUpdate time.Time
	)

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(p.opts.ExtractConcurrency))

	for _, f := range files {
		f := f
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			if p.jobs.Cancelled(gctx, r.job.ID) {
				return errCancelled
			}

			cands, extractErr := p.extractFile(gctx, dir, f)

			mu.Lock()
			defer mu.Unlock()
			attempted++
			if extractErr != nil {
				failed++
				p.metrics.FilesFailed.Inc()
				log.Debug("file extraction failed",
					zap.String("path", f.Path), zap.Error(extractErr))
			} else {
				p.metrics.FilesExtracted.Inc()
				if len(cands) > 0 {
					results = append(results, fileCandidates{path: f.Path, candidates: cands})
				}
			}

			// throttled progress write; conflicts abort the whole job
			if time.Since(lastUpdate) >= p.opts.ProgressInterval || attempted == len(files) {
				lastUpdate = time.Now()
				progress := attempted * 99 / len(files)
				if err := p.writeProgress(gctx, r, progress); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failed == len(files) {
		return nil, fmt.Errorf("%w: all %d files failed", extraction.ErrExtraction, len(files))
	}
	return results, nil
}

type fileCandidates struct {
	path       string
	candidates []extraction.Candidate
}

// extractFile reads one file and asks the extractor for candidates.
// Binary or non-UTF-8 content is skipped, not failed.
func (p *Processor) extractFile(ctx context.Context, dir string, f FileCandidate) ([]extraction.Candidate, error) {
	content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	if !utf8.Valid(content) {
		return nil, nil
	}
	return p.extractor.Extract(ctx, extraction.FileInput{
		Path:     f.Path,
		Language: snippet.LanguageForPath(f.Path),
		Content:  string(content),
	})
}

// buildSnippets assigns deterministic identities and deduplicates.
func (p *Processor) buildSnippets(j *job.Job, results []fileCandidates) []snippet.Snippet {
	seen := make(map[string]bool)
	var out []snippet.Snippet
	for _, fr := range results {
		for _, c := range fr.candidates {
			lang := c.Language
			if lang == "" {
				lang = snippet.LanguageForPath(fr.path)
			}
			id := snippet.DeterministicID(j.RepoName, fr.path, c.Code)
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, snippet.Snippet{
				ID:          id,
				Title:       c.Title,
				Description: c.Description,
				Language:    lang,
				Code:        c.Code,
				Path:        fr.path,
				RepoName:    j.RepoName,
				RepoURL:     j.URL,
				IngestID:    j.ID,
			})
		}
	}
	return out
}

// embedAll embeds snippets in batches with bounded retries. The returned
// slice is index-aligned with snippets.
func (p *Processor) embedAll(ctx context.Context, r *run, snippets []snippet.Snippet) ([][]float32, error) {
	vectors := make([][]float32, 0, len(snippets))
	for lo := 0; lo < len(snippets); lo += p.opts.BatchSize {
		if p.jobs.Cancelled(ctx, r.job.ID) {
			return nil, errCancelled
		}
		hi := lo + p.opts.BatchSize
		if hi > len(snippets) {
			hi = len(snippets)
		}
		texts := make([]string, hi-lo)
		for i, s := range snippets[lo:hi] {
			texts[i] = s.Title + "\n" + s.Description + "\n" + s.Code
		}

		var batch [][]float32
		err := retry(ctx, p.opts.Retry, func() error {
			var embErr error
			batch, embErr = p.embedder.EmbedDocuments(ctx, texts)
			if embErr != nil {
				p.metrics.BatchRetries.Inc()
			}
			return embErr
		})
		if err != nil {
			return nil, fmt.Errorf("embedding batch at %d: %w", lo, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// storeAll upserts in batches, advancing the durable snippet count after
// each committed batch.
func (p *Processor) storeAll(ctx context.Context, r *run, snippets []snippet.Snippet, vectors [][]float32) (int, error) {
	stored := 0
	for lo := 0; lo < len(snippets); lo += p.opts.BatchSize {
		if p.jobs.Cancelled(ctx, r.job.ID) {
			return stored, errCancelled
		}
		hi := lo + p.opts.BatchSize
		if hi > len(snippets) {
			hi = len(snippets)
		}
		points := make([]vectorstore.Point, hi-lo)
		for i, s := range snippets[lo:hi] {
			points[i] = vectorstore.Point{
				ID:     s.ID,
				Vector: vectors[lo+i],
				Payload: map[string]string{
					"title":       s.Title,
					"description": s.Description,
					"language":    s.Language,
					"code":        s.Code,
					"path":        s.Path,
					"repo_name":   s.RepoName,
					"repo_url":    s.RepoURL,
					"ingest_id":   s.IngestID,
				},
			}
		}

		err := retry(ctx, p.opts.Retry, func() error {
			upErr := p.vectors.Upsert(ctx, points)
			if upErr != nil {
				p.metrics.BatchRetries.Inc()
			}
			return upErr
		})
		if err != nil {
			return stored, fmt.Errorf("storing batch at %d: %w", lo, err)
		}

		stored += len(points)
		p.metrics.SnippetsStored.Add(float64(len(points)))
		if err := p.writeCount(ctx, r, stored); err != nil {
			return stored, err
		}
	}
	return stored, nil
}

// advance moves the job to the next status with a phase message.
func (p *Processor) advance(ctx context.Context, r *run, next job.Status, msg string) error {
	if err := p.write(ctx, r, job.Update{Status: &next, ProcessMessage: &msg}); err != nil {
		return err
	}
	r.status = next
	return nil
}

func (p *Processor) writeProgress(ctx context.Context, r *run, progress int) error {
	return p.write(ctx, r, job.Update{Progress: &progress})
}

func (p *Processor) writeCount(ctx context.Context, r *run, count int) error {
	msg := fmt.Sprintf("Stored %d snippets", count)
	return p.write(ctx, r, job.Update{SnippetCount: &count, ProcessMessage: &msg})
}

func (p *Processor) write(ctx context.Context, r *run, u job.Update) error {
	err := p.jobs.UpdateStatus(ctx, r.job.ID, r.version, u)
	switch {
	case err == nil:
		r.version++
		return nil
	case errors.Is(err, job.ErrVersionConflict), errors.Is(err, job.ErrNotFound):
		return errAbandoned
	default:
		return fmt.Errorf("updating job: %w", err)
	}
}

// complete writes the terminal success state, fast-forwarding through any
// phases that had no work so the lifecycle stays strict.
func (p *Processor) complete(ctx context.Context, r *run, count int) error {
	msg := fmt.Sprintf("Stored %d snippets", count)
	for r.status != job.StatusStoring {
		next, ok := job.Next(r.status)
		if !ok {
			return fmt.Errorf("cannot complete from status %s", r.status)
		}
		if err := p.advance(ctx, r, next, msg); err != nil {
			return err
		}
	}
	status := job.StatusCompleted
	if err := p.write(ctx, r, job.Update{
		Status:         &status,
		SnippetCount:   &count,
		ProcessMessage: &msg,
	}); err != nil {
		return err
	}
	r.status = status
	return nil
}

// fail writes the terminal failure state with its classification.
func (p *Processor) fail(ctx context.Context, r *run, reason job.FailReason, cause error) error {
	status := job.StatusFailed
	msg := cause.Error()
	if err := p.write(ctx, r, job.Update{
		Status:         &status,
		FailReason:     &reason,
		ProcessMessage: &msg,
	}); err != nil {
		return err
	}
	return cause
}

// cancelled reverts already-stored points for this ingest (best effort)
// and marks the job failed with the cancellation reason.
func (p *Processor) cancelled(ctx context.Context, r *run, log *zap.Logger) error {
	if err := p.vectors.DeleteByFilter(ctx, vectorstore.Filter{IngestID: r.job.ID}); err != nil {
		log.Warn("failed to revert stored snippets after cancellation", zap.Error(err))
	}
	return p.fail(ctx, r, job.FailCancelled, errCancelled)
}
