package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ConfigNotFound indicates the configuration path or Configuration.xml is missing
	ConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	// ConfigInvalid indicates the configuration descriptor could not be parsed
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// PlatformCacheMissing indicates no platform cache exists for a version
	PlatformCacheMissing ErrorCode = "PLATFORM_CACHE_MISSING"
	// PlatformCacheCorrupt indicates a platform cache record failed to decode
	PlatformCacheCorrupt ErrorCode = "PLATFORM_CACHE_CORRUPT"
	// ProjectCacheCorrupt indicates a project manifest or entity file is unreadable
	ProjectCacheCorrupt ErrorCode = "PROJECT_CACHE_CORRUPT"
	// CacheIO indicates a filesystem failure while reading or writing a cache
	CacheIO ErrorCode = "CACHE_IO"
	// CacheLocked indicates another process holds a cache writer lock
	CacheLocked ErrorCode = "CACHE_LOCKED"
	// IncrementalUnsafe indicates an incremental patch cannot be applied safely
	IncrementalUnsafe ErrorCode = "INCREMENTAL_UNSAFE"
	// EntityNotFound indicates a name did not resolve to an entity
	EntityNotFound ErrorCode = "ENTITY_NOT_FOUND"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// BslError represents an analyzer error with code, message, and suggestions
type BslError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a BslError with the default fixes registered for code.
func New(code ErrorCode, message string, cause error) *BslError {
	return &BslError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// NewBslError creates a new BslError with explicit fixes
func NewBslError(code ErrorCode, message string, cause error, suggestedFixes []FixAction) *BslError {
	return &BslError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: suggestedFixes,
	}
}

// Error implements the error interface
func (e *BslError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	for _, fix := range e.SuggestedFixes {
		if fix.Type == RunCommand && fix.Command != "" {
			fmt.Fprintf(&b, " (run: %s)", fix.Command)
			break
		}
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *BslError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *BslError) WithDetails(details interface{}) *BslError {
	e.Details = details
	return e
}

// WithFix replaces the suggested fixes with a single command fix.
func (e *BslError) WithFix(command, description string) *BslError {
	e.SuggestedFixes = []FixAction{{
		Type:        RunCommand,
		Command:     command,
		Safe:        true,
		Description: description,
	}}
	return e
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	PlatformCacheMissing: {
		{
			Type:        RunCommand,
			Command:     "bsl-index platform import --platform ${version} --docs <extracted-docs-dir>",
			Safe:        true,
			Description: "Extract the platform documentation archive and import it into the platform cache",
		},
	},
	PlatformCacheCorrupt: {
		{
			Type:        RunCommand,
			Command:     "bsl-index platform import --platform ${version} --force",
			Safe:        true,
			Description: "Rebuild the platform cache from the documentation tree",
		},
	},
	ProjectCacheCorrupt: {
		{
			Type:        RunCommand,
			Command:     "bsl-index projects forget --config <path>",
			Safe:        true,
			Description: "Drop the project cache; the next build recreates it",
		},
	},
	ConfigNotFound: {
		{
			Type:        OpenDocs,
			Description: "Point --config at a directory produced by 'Dump configuration to files' containing Configuration.xml",
		},
	},
	CacheLocked: {
		{
			Type:        RunCommand,
			Command:     "bsl-index status",
			Safe:        true,
			Description: "Another build is writing this cache; retry when it finishes",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		out := make([]FixAction, len(fixes))
		copy(out, fixes)
		return out
	}
	return nil
}

// CodeOf returns the ErrorCode carried anywhere in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var be *BslError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// HasCode reports whether err carries code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
