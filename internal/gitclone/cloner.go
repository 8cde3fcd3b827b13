// Package gitclone performs bounded shallow clones of source repositories
// into per-job workspaces.
package gitclone

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// ErrClone wraps any failure to materialize a working tree.
var ErrClone = errors.New("clone failed")

// Cloner materializes a repository working tree on local disk.
type Cloner interface {
	// Clone checks out url (optionally a specific branch) and returns the
	// workspace directory plus a cleanup func that removes it.
	Clone(ctx context.Context, url, branch string) (dir string, cleanup func(), err error)
}

// Options configures a GitCloner.
type Options struct {
	// WorkspaceDir is the parent for per-job clone directories. Empty
	// means the system temp dir.
	WorkspaceDir string
	// Timeout bounds a single clone end to end.
	Timeout time.Duration
}

// GitCloner is the go-git backed Cloner. Clones are depth-1 and
// single-branch; history is never needed for extraction.
type GitCloner struct {
	opts   Options
	logger *zap.Logger
}

// NewGitCloner returns a Cloner writing under opts.WorkspaceDir.
func NewGitCloner(opts Options, logger *zap.Logger) *GitCloner {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &GitCloner{opts: opts, logger: logger}
}

func (c *GitCloner) Clone(ctx context.Context, url, branch string) (string, func(), error) {
	dir, err := os.MkdirTemp(c.opts.WorkspaceDir, "snipd-clone-*")
	if err != nil {
		return "", nil, fmt.Errorf("%w: create workspace: %v", ErrClone, err)
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			c.logger.Warn("failed to remove clone workspace",
				zap.String("dir", dir), zap.Error(rmErr))
		}
	}

	cloneCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	cloneOpts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	start := time.Now()
	if _, err := git.PlainCloneContext(cloneCtx, dir, false, cloneOpts); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w: %s: %v", ErrClone, url, err)
	}
	c.logger.Debug("repository cloned",
		zap.String("url", url),
		zap.String("branch", branch),
		zap.Duration("took", time.Since(start)))

	return dir, cleanup, nil
}
