package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	origVersion := Version
	origCommit := Commit
	defer func() {
		Version = origVersion
		Commit = origCommit
	}()

	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{"unknown commit", "1.0.0", "unknown", "1.0.0"},
		{"short commit", "1.0.0", "abc", "1.0.0"},
		{"long commit", "1.2.3", "0123456789abcdef", "1.2.3 (0123456)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version = tt.version
			Commit = tt.commit
			if got := Info(); got != tt.want {
				t.Errorf("Info() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFull(t *testing.T) {
	got := Full()
	for _, part := range []string{"bsl-index version", "Commit:", "Built:", "Cache format: 1"} {
		if !strings.Contains(got, part) {
			t.Errorf("Full() = %q, missing %q", got, part)
		}
	}
}
