// Package pipeline runs ingestion jobs end to end: clone, filter,
// extract, embed, store. The processor owns the job status lifecycle;
// everything else is an injected adapter.
package pipeline

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/snipd/internal/job"
	"github.com/fyrsmithlabs/snipd/internal/snippet"
)

// defaultSkipDirs are never descended into regardless of job config.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".next":        true,
	".cache":       true,
}

// FileCandidate is a repository file that passed filtering and is headed
// for extraction.
type FileCandidate struct {
	// Path is relative to the repository root, slash separated.
	Path string
	Size int64
}

// CollectFiles walks the cloned tree and returns the files eligible for
// extraction, applying the job's extension allow-list, ignore patterns,
// size cap, and test exclusion. Filtering happens entirely here; nothing
// rejected is ever read again.
func CollectFiles(root string, cfg job.Config, defaultMaxSize int64) ([]FileCandidate, error) {
	maxSize := cfg.MaxFileSize
	if maxSize == 0 {
		maxSize = defaultMaxSize
	}

	var out []FileCandidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if defaultSkipDirs[d.Name()] || matchesAny(cfg.IgnorePatterns, rel, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !extensionAllowed(rel, cfg.Extensions) {
			return nil
		}
		if matchesAny(cfg.IgnorePatterns, rel, d.Name()) {
			return nil
		}
		if !cfg.IncludeTests && isTestPath(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if maxSize > 0 && info.Size() > maxSize {
			return nil
		}

		out = append(out, FileCandidate{Path: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking repository tree: %w", err)
	}
	return out, nil
}

// extensionAllowed checks the job's extension allow-list; with no list,
// any file with a recognized language extension qualifies.
func extensionAllowed(rel string, extensions []string) bool {
	if len(extensions) == 0 {
		return snippet.LanguageForPath(rel) != ""
	}
	ext := strings.ToLower(filepath.Ext(rel))
	for _, allowed := range extensions {
		if !strings.HasPrefix(allowed, ".") {
			allowed = "." + allowed
		}
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// matchesAny applies glob-style ignore patterns against both the relative
// path and the base name. A "**/" prefix matches at any depth.
func matchesAny(patterns []string, rel, base string) bool {
	for _, pattern := range patterns {
		p := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		// bare directory-name patterns apply to any path segment
		if !strings.ContainsAny(p, "*?[/") {
			for _, seg := range strings.Split(rel, "/") {
				if seg == p {
					return true
				}
			}
		}
	}
	return false
}

// isTestPath recognizes the common test layouts across languages.
func isTestPath(rel string) bool {
	base := filepath.Base(rel)
	if strings.HasSuffix(base, "_test.go") || strings.HasPrefix(base, "test_") {
		return true
	}
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	for _, seg := range strings.Split(filepath.Dir(rel), "/") {
		if seg == "test" || seg == "tests" || seg == "__tests__" || seg == "testdata" {
			return true
		}
	}
	return false
}
