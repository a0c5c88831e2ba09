package scenario

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidVersion is returned for a version that is not semver.
	ErrInvalidVersion = errors.New("scenario: invalid version")

	// ErrUnsupportedVersion is returned for a version this build cannot
	// run.
	ErrUnsupportedVersion = errors.New("scenario: unsupported version")

	// ErrExpectation is returned when an expect_* operation fails.
	ErrExpectation = errors.New("scenario: expectation failed")
)

// ValidationError reports a problem at a specific place in a scenario.
//
// Format: file: thread "name" op #index (op): message
//
// Parts that do not apply are left out. If Suggestion is non-empty it is
// appended on its own line.
type ValidationError struct {
	File       string // Scenario file, empty when parsed from memory
	Thread     string // Thread name, empty for file-level problems
	Index      int    // 1-based op index, 0 for thread-level problems
	Op         string // Op name at Index
	Message    string // What is wrong
	Suggestion string // Optional hint
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	var where []string
	if e.Thread != "" {
		where = append(where, fmt.Sprintf("thread %q", e.Thread))
	}
	if e.Index > 0 {
		where = append(where, fmt.Sprintf("op #%d (%s)", e.Index, e.Op))
	}
	if len(where) > 0 {
		b.WriteString(strings.Join(where, " "))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Suggestion != "" {
		b.WriteString("\n\nSuggestion: ")
		b.WriteString(e.Suggestion)
	}
	return b.String()
}
