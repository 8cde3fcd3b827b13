// Package snippet defines the snippet model shared by the ingestion
// pipeline and the search path.
//
// A snippet is one extracted, embedded, stored unit of reusable code.
// Snippet IDs are deterministic: derived from the repository identity,
// the file path, and a hash of the code, so re-processing identical
// content overwrites the stored point instead of duplicating it.
package snippet

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// nsSnippet is the UUIDv5 namespace for deterministic snippet IDs.
var nsSnippet = uuid.MustParse("a2c9f1de-5b0a-4f3c-9d41-8e27c6b0f5a3")

// Snippet is one extracted code fragment with its metadata.
//
// The vector representation is owned entirely by the vector store;
// it never appears on this model.
type Snippet struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Path        string `json:"path"`
	RepoName    string `json:"repo_name,omitempty"`
	RepoURL     string `json:"repo_url,omitempty"`

	// IngestID is the job that stored this snippet, kept in the payload
	// so deletion can cascade by ingest as well as by repository.
	IngestID string `json:"ingest_id,omitempty"`
}

// DeterministicID derives a stable snippet identifier from the repository
// identity, the file path, and the content hash.
func DeterministicID(repoName, path, code string) string {
	sum := sha256.Sum256([]byte(code))
	key := repoName + "|" + path + "|" + hex.EncodeToString(sum[:])
	return uuid.NewSHA1(nsSnippet, []byte(key)).String()
}

// languageByExt maps file extensions to language identifiers used in
// snippet payloads and search filters.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
}

// LanguageForPath infers a language identifier from a file path.
// Returns "" when the extension is not recognized.
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return languageByExt[ext]
}
