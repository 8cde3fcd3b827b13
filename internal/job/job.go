// Package job defines ingestion job records, their status lifecycle, and
// the store/queue contract used by the HTTP surface and the worker pool.
package job

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an ingestion job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusCloning    Status = "cloning"
	StatusFiltering  Status = "filtering"
	StatusExtracting Status = "extracting"
	StatusEmbedding  Status = "embedding"
	StatusStoring    Status = "storing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// FailReason classifies why a job reached StatusFailed.
type FailReason string

const (
	FailClone      FailReason = "clone_error"
	FailExtraction FailReason = "extraction_error"
	FailEmbedding  FailReason = "embedding_error"
	FailStorage    FailReason = "storage_error"
	FailCancelled  FailReason = "cancelled"
)

// activeOrder encodes the forward progression of non-terminal states.
var activeOrder = map[Status]int{
	StatusQueued:     0,
	StatusCloning:    1,
	StatusFiltering:  2,
	StatusExtracting: 3,
	StatusEmbedding:  4,
	StatusStoring:    5,
}

// Next returns the following active status, or StatusCompleted after
// StatusStoring. ok is false for terminal or unknown states.
func Next(s Status) (next Status, ok bool) {
	switch s {
	case StatusQueued:
		return StatusCloning, true
	case StatusCloning:
		return StatusFiltering, true
	case StatusFiltering:
		return StatusExtracting, true
	case StatusExtracting:
		return StatusEmbedding, true
	case StatusEmbedding:
		return StatusStoring, true
	case StatusStoring:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	if s.IsTerminal() {
		return true
	}
	_, ok := activeOrder[s]
	return ok
}

// CanTransition reports whether a job may move from one status to the next.
// Active states advance strictly forward one step, StatusStoring completes,
// and StatusFailed is reachable from any non-terminal state. Terminal
// states admit nothing.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	if to == StatusCompleted {
		return from == StatusStoring
	}
	fi, ok := activeOrder[from]
	if !ok {
		return false
	}
	ti, ok := activeOrder[to]
	if !ok {
		return false
	}
	return ti == fi+1
}

// Config holds the per-job extraction settings supplied at submission.
type Config struct {
	Extensions     []string `json:"extensions,omitempty"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
	MaxFileSize    int64    `json:"max_file_size,omitempty"`
	IncludeTests   bool     `json:"include_tests,omitempty"`
}

// Job is a single repository ingestion request and its progress record.
type Job struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	Branch         string     `json:"branch,omitempty"`
	RepoName       string     `json:"repo_name"`
	Config         Config     `json:"config"`
	Status         Status     `json:"status"`
	Progress       int        `json:"progress"`
	FailReason     FailReason `json:"fail_reason,omitempty"`
	ProcessMessage string     `json:"process_message,omitempty"`
	SnippetCount   int        `json:"snippet_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Version increments on every store write. Writers supply the version
	// they read; a mismatch means another writer got there first.
	Version int `json:"-"`
}

// DeriveRepoName extracts an owner/repo style identity from a clone URL.
// The scheme and host are dropped, a trailing .git suffix is stripped, and
// the remaining path is returned as-is. Returns "" for unusable input.
func DeriveRepoName(url string) string {
	name := strings.TrimSpace(url)
	name = strings.TrimSuffix(name, "/")
	name = strings.TrimSuffix(name, ".git")

	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
		// drop the host segment
		if j := strings.Index(name, "/"); j >= 0 {
			name = name[j+1:]
		} else {
			return ""
		}
	} else if i := strings.Index(name, "@"); i >= 0 {
		// scp-like syntax: git@host:owner/repo
		name = name[i+1:]
		if j := strings.Index(name, ":"); j >= 0 {
			name = name[j+1:]
		}
	}
	return strings.Trim(name, "/")
}
