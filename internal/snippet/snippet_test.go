package snippet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicID(t *testing.T) {
	a := DeterministicID("acme/widgets", "pkg/retry.go", "func Retry() {}")
	b := DeterministicID("acme/widgets", "pkg/retry.go", "func Retry() {}")
	assert.Equal(t, a, b, "same inputs must produce the same id")

	changedContent := DeterministicID("acme/widgets", "pkg/retry.go", "func Retry() { /* v2 */ }")
	assert.NotEqual(t, a, changedContent)

	changedPath := DeterministicID("acme/widgets", "pkg/backoff.go", "func Retry() {}")
	assert.NotEqual(t, a, changedPath)

	changedRepo := DeterministicID("acme/gadgets", "pkg/retry.go", "func Retry() {}")
	assert.NotEqual(t, a, changedRepo)
}

func TestDeterministicIDIsUUID(t *testing.T) {
	id := DeterministicID("r", "p", "c")
	assert.Len(t, id, 36)
}

func TestLanguageForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"internal/pipeline/retry.go", "go"},
		{"src/app.PY", "python"},
		{"web/index.tsx", "typescript"},
		{"README.md", ""},
		{"Makefile", ""},
		{"lib/util.rb", "ruby"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, LanguageForPath(tt.path))
		})
	}
}
