package job

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"queued to cloning", StatusQueued, StatusCloning, true},
		{"cloning to filtering", StatusCloning, StatusFiltering, true},
		{"filtering to extracting", StatusFiltering, StatusExtracting, true},
		{"extracting to embedding", StatusExtracting, StatusEmbedding, true},
		{"embedding to storing", StatusEmbedding, StatusStoring, true},
		{"storing to completed", StatusStoring, StatusCompleted, true},
		{"queued to failed", StatusQueued, StatusFailed, true},
		{"storing to failed", StatusStoring, StatusFailed, true},
		{"skip ahead", StatusQueued, StatusExtracting, false},
		{"backwards", StatusEmbedding, StatusCloning, false},
		{"complete early", StatusCloning, StatusCompleted, false},
		{"completed is terminal", StatusCompleted, StatusFailed, false},
		{"failed is terminal", StatusFailed, StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestDeriveRepoName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/widgets.git", "acme/widgets"},
		{"https://github.com/acme/widgets", "acme/widgets"},
		{"https://github.com/acme/widgets/", "acme/widgets"},
		{"http://gitlab.example.com/group/sub/project.git", "group/sub/project"},
		{"git@github.com:acme/widgets.git", "acme/widgets"},
		{"https://github.com", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := DeriveRepoName(tt.url); got != tt.want {
				t.Errorf("DeriveRepoName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
