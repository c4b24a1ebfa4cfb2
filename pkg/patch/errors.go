package patch

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes attached to *Error.
const (
	CodeConflict    = "PATCH_CONFLICT"
	CodeMissingFile = "MISSING_FILE"
	CodeParse       = "PARSE_ERROR"
)

var (
	// ErrPatchConflict matches errors whose hunk context was not found.
	ErrPatchConflict = errors.New("patch conflict")
	// ErrMissingFile matches errors for patches whose target does not exist.
	ErrMissingFile = errors.New("missing file")
	// ErrParse matches errors for patch files that could not be parsed.
	ErrParse = errors.New("malformed patch")
)

// Error represents a structured failure while applying a patch to one file.
type Error struct {
	Message         string
	Code            string
	RelativePath    string
	PatchPath       string
	OriginalContent string
	HunkStatuses    []HunkStatus
	FailedHunk      *FailedHunk
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return "patch error"
}

// Is maps error codes onto the package sentinels.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrPatchConflict:
		return e.Code == CodeConflict
	case ErrMissingFile:
		return e.Code == CodeMissingFile
	case ErrParse:
		return e.Code == CodeParse
	}
	return false
}

// HunkNumber returns the 1-based index of the failing hunk, or 0.
func (e *Error) HunkNumber() int {
	if e == nil || e.FailedHunk == nil {
		return 0
	}
	return e.FailedHunk.Number
}

// RunError aggregates every per-file failure of a tree operation.
type RunError struct {
	Op       string
	Failures []*Error
}

func (e *RunError) Error() string {
	paths := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		paths = append(paths, failure.RelativePath)
	}
	return fmt.Sprintf("%s: %d file(s) failed: %s", e.Op, len(e.Failures), strings.Join(paths, ", "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, failure := range e.Failures {
		errs = append(errs, failure)
	}
	return errs
}

func missingFileError(rel, patchPath string) *Error {
	return &Error{
		Message:      fmt.Sprintf("Patch %s targets %s, which does not exist.", patchPath, rel),
		Code:         CodeMissingFile,
		RelativePath: rel,
		PatchPath:    patchPath,
	}
}

func parseError(rel, patchPath string, err error) *Error {
	return &Error{
		Message:      fmt.Sprintf("Cannot parse %s: %v", patchPath, err),
		Code:         CodeParse,
		RelativePath: rel,
		PatchPath:    patchPath,
	}
}
