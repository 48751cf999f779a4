package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewBslError(t *testing.T) {
	cause := errors.New("underlying error")
	fixes := []FixAction{{Type: RunCommand, Command: "bsl-index status"}}

	err := NewBslError(CacheIO, "cannot write cache", cause, fixes)

	if err.Code != CacheIO {
		t.Errorf("Code = %v, want %v", err.Code, CacheIO)
	}
	if err.Message != "cannot write cache" {
		t.Errorf("Message = %q, want %q", err.Message, "cannot write cache")
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
}

func TestBslError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      ConfigInvalid,
			message:   "Configuration.xml is malformed",
			cause:     errors.New("unexpected EOF"),
			wantParts: []string{"CONFIG_INVALID", "Configuration.xml is malformed", "unexpected EOF"},
		},
		{
			name:      "without cause",
			code:      EntityNotFound,
			message:   "entity 'Foo' not found",
			wantParts: []string{"ENTITY_NOT_FOUND", "entity 'Foo' not found"},
		},
		{
			name:      "missing platform cache names the import step",
			code:      PlatformCacheMissing,
			message:   "no platform cache for 8.3.24",
			wantParts: []string{"PLATFORM_CACHE_MISSING", "bsl-index platform import"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, should contain %q", got, part)
				}
			}
		})
	}
}

func TestBslError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := New(CacheIO, "read failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	wrapped := fmt.Errorf("build: %w", err)
	if CodeOf(wrapped) != CacheIO {
		t.Errorf("CodeOf(wrapped) = %q, want %q", CodeOf(wrapped), CacheIO)
	}
	if !HasCode(wrapped, CacheIO) {
		t.Error("HasCode should see through wrapping")
	}
	if CodeOf(cause) != "" {
		t.Error("plain errors carry no code")
	}
}

func TestWithFixAndDetails(t *testing.T) {
	err := New(PlatformCacheMissing, "missing", nil).
		WithFix("bsl-index platform import --platform 8.3.24", "import docs").
		WithDetails(map[string]string{"version": "8.3.24"})

	if len(err.SuggestedFixes) != 1 || err.SuggestedFixes[0].Command != "bsl-index platform import --platform 8.3.24" {
		t.Errorf("unexpected fixes: %+v", err.SuggestedFixes)
	}
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(PlatformCacheMissing); len(fixes) == 0 {
		t.Error("PlatformCacheMissing should have fixes")
	}
	if fixes := GetSuggestedFixes(InternalError); fixes != nil {
		t.Errorf("InternalError should have no fixes, got %v", fixes)
	}

	// Mutating the returned slice must not touch the registry.
	fixes := GetSuggestedFixes(PlatformCacheMissing)
	fixes[0].Command = "changed"
	if ErrorActions[PlatformCacheMissing][0].Command == "changed" {
		t.Error("GetSuggestedFixes returned the shared slice")
	}
}
