package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no job exists with the given id.
	ErrNotFound = errors.New("job not found")

	// ErrActiveJobExists is returned by Enqueue when a non-terminal job
	// already exists for the same repository identity.
	ErrActiveJobExists = errors.New("active job already exists for repository")

	// ErrVersionConflict is returned by UpdateStatus when the caller's
	// expected version no longer matches the stored record.
	ErrVersionConflict = errors.New("job version conflict")

	// ErrInvalidTransition is returned by UpdateStatus for a status change
	// the lifecycle does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrQueueClosed is returned by Enqueue after the store is closed.
	ErrQueueClosed = errors.New("job queue closed")
)

// Update carries a partial mutation applied by UpdateStatus. Nil fields are
// left untouched.
type Update struct {
	Status         *Status
	Progress       *int
	FailReason     *FailReason
	ProcessMessage *string
	SnippetCount   *int
}

// ListFilter narrows List results. Zero value matches everything.
type ListFilter struct {
	Status Status
}

// Store is the job store and queue contract. A single implementation backs
// both the HTTP surface and the worker pool; the processor never reaches
// around it.
type Store interface {
	// Enqueue persists a new job in StatusQueued and makes it claimable.
	// Rejects submissions whose repository identity already has an active
	// job with ErrActiveJobExists.
	Enqueue(ctx context.Context, j *Job) (string, error)

	// Claim blocks until a queued job is available or ctx is done. Each
	// enqueued job is delivered to exactly one claimer.
	Claim(ctx context.Context) (*Job, bool)

	// Get returns a copy of the job, or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// List returns copies of jobs matching the filter, newest first.
	List(ctx context.Context, f ListFilter) ([]*Job, error)

	// UpdateStatus applies u if the stored version equals expectedVersion,
	// incrementing the version. Returns ErrVersionConflict on mismatch and
	// ErrInvalidTransition for a disallowed status change.
	UpdateStatus(ctx context.Context, id string, expectedVersion int, u Update) error

	// Delete removes the job record. Active jobs are cancelled first so
	// the owning worker stops at its next checkpoint.
	Delete(ctx context.Context, id string) error

	// Cancel flags the job for cooperative cancellation.
	Cancel(ctx context.Context, id string) error

	// Cancelled reports whether the job has been flagged for cancellation
	// (or no longer exists, which workers treat the same way).
	Cancelled(ctx context.Context, id string) bool
}

// MemoryStore is a mutex-guarded in-process Store. The queue is a buffered
// channel of job ids; Claim re-reads the record so cancellations between
// enqueue and claim are not lost.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	cancelled map[string]bool
	queue     chan string
	closed    bool
}

// NewMemoryStore returns a MemoryStore able to hold queueSize undelivered
// jobs before Enqueue blocks.
func NewMemoryStore(queueSize int) *MemoryStore {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &MemoryStore{
		jobs:      make(map[string]*Job),
		cancelled: make(map[string]bool),
		queue:     make(chan string, queueSize),
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, j *Job) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrQueueClosed
	}
	for _, existing := range s.jobs {
		if existing.RepoName == j.RepoName && !existing.Status.IsTerminal() {
			s.mu.Unlock()
			return "", ErrActiveJobExists
		}
	}

	cp := *j
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cp.Status = StatusQueued
	cp.Progress = 0
	cp.SnippetCount = 0
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.Version = 1
	s.jobs[cp.ID] = &cp
	s.mu.Unlock()

	select {
	case s.queue <- cp.ID:
		return cp.ID, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.jobs, cp.ID)
		s.mu.Unlock()
		return "", ctx.Err()
	}
}

func (s *MemoryStore) Claim(ctx context.Context) (*Job, bool) {
	for {
		select {
		case id := <-s.queue:
			s.mu.Lock()
			j, ok := s.jobs[id]
			// A job deleted while queued is simply skipped.
			if !ok || j.Status != StatusQueued {
				s.mu.Unlock()
				continue
			}
			cp := *j
			s.mu.Unlock()
			return &cp, true
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]*Job, error) {
	s.mu.Lock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, expectedVersion int, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Version != expectedVersion {
		return ErrVersionConflict
	}
	if u.Status != nil && *u.Status != j.Status {
		if !CanTransition(j.Status, *u.Status) {
			return ErrInvalidTransition
		}
		j.Status = *u.Status
	}
	if u.Progress != nil && *u.Progress > j.Progress {
		p := *u.Progress
		// 100 belongs to Completed alone, whatever the writer claims
		if p > 99 && j.Status != StatusCompleted {
			p = 99
		}
		j.Progress = p
	}
	if u.FailReason != nil {
		j.FailReason = *u.FailReason
	}
	if u.ProcessMessage != nil {
		j.ProcessMessage = *u.ProcessMessage
	}
	if u.SnippetCount != nil {
		j.SnippetCount = *u.SnippetCount
	}
	if j.Status == StatusCompleted {
		j.Progress = 100
	}
	j.UpdatedAt = time.Now().UTC()
	j.Version++
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !j.Status.IsTerminal() {
		s.cancelled[id] = true
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	s.cancelled[id] = true
	return nil
}

func (s *MemoryStore) Cancelled(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled[id] {
		return true
	}
	_, ok := s.jobs[id]
	return !ok
}

// Close stops accepting new jobs. Pending claims drain normally.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
