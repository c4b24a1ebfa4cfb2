package patch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"unicode"
)

type workspace interface {
	Ensure(path string, create bool) (*state, error)
	Delete(path string) error
	Commit() ([]Result, error)
}

type state struct {
	path            string
	relativePath    string
	lines           []string
	normalizedLines []string
	endsWithNewline bool
	originalContent string
	originalMode    fs.FileMode
	touched         bool
	cursor          int
	offset          int
	hunkStatuses    []HunkStatus
	isNew           bool
	deleted         bool
	options         Options
}

func newState(path, rel, content string, mode fs.FileMode, opts Options) *state {
	lines, ends := splitContent(content)
	st := &state{
		path:            path,
		relativePath:    rel,
		lines:           lines,
		endsWithNewline: ends,
		originalContent: content,
		originalMode:    mode,
		options:         opts,
	}
	if opts.IgnoreWhitespace {
		st.normalizedLines = ensureNormalizedLines(st)
	}
	return st
}

// content renders the current lines back into file content.
func (s *state) content() string {
	if len(s.lines) == 0 {
		return ""
	}
	out := strings.Join(s.lines, "\n")
	if s.endsWithNewline {
		out += "\n"
	}
	return out
}

func splitContent(content string) ([]string, bool) {
	if content == "" {
		return []string{}, true
	}
	if trimmed, ok := strings.CutSuffix(content, "\n"); ok {
		return strings.Split(trimmed, "\n"), true
	}
	return strings.Split(content, "\n"), false
}

func apply(ctx context.Context, operations []Operation, ws workspace) ([]Result, error) {
	if ws == nil {
		return nil, errors.New("nil workspace")
	}
	for _, op := range operations {
		if ctx.Err() != nil {
			return nil, &Error{Message: ctx.Err().Error()}
		}
		switch op.Type {
		case OperationDelete:
			if len(op.Hunks) > 0 {
				st, err := ws.Ensure(op.Path, false)
				if err != nil {
					return nil, asPatchError(err)
				}
				if err := applyOperation(st, op); err != nil {
					return nil, err
				}
			}
			if err := ws.Delete(op.Path); err != nil {
				return nil, asPatchError(err)
			}
		case OperationUpdate, OperationAdd:
			st, err := ws.Ensure(op.Path, op.Type == OperationAdd)
			if err != nil {
				return nil, asPatchError(err)
			}
			if err := applyOperation(st, op); err != nil {
				return nil, err
			}
		default:
			return nil, &Error{Message: fmt.Sprintf("unsupported patch operation for %s: %s", op.Path, op.Type)}
		}
	}
	results, err := ws.Commit()
	if err != nil {
		return nil, asPatchError(err)
	}
	return results, nil
}

func asPatchError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Message: err.Error()}
}

// applyOperation applies every hunk of op to st, stopping at the first hunk
// whose context cannot be located.
func applyOperation(st *state, op Operation) *Error {
	st.cursor = 0
	st.offset = 0
	st.hunkStatuses = nil
	for index, hunk := range op.Hunks {
		number := index + 1
		if err := applyHunk(st, hunk); err != nil {
			return enhanceHunkError(err, st, hunk, number)
		}
		st.hunkStatuses = append(st.hunkStatuses, HunkStatus{Number: number, Status: "applied"})
		st.touched = true
	}
	switch op.Type {
	case OperationAdd:
		st.touched = true
	case OperationDelete:
		st.deleted = true
		st.touched = true
	}
	return nil
}

func applyHunk(state *state, hunk Hunk) error {
	if state == nil {
		return errors.New("missing file state")
	}

	before := hunk.Before
	after := hunk.After

	if len(before) == 0 {
		insertionIndex := hunk.OldStart + state.offset
		if insertionIndex < 0 || insertionIndex > len(state.lines) {
			return &Error{
				Message:         fmt.Sprintf("Hunk inserts after line %d, but %s has %d line(s).", insertionIndex, state.relativePath, len(state.lines)),
				Code:            CodeConflict,
				RelativePath:    state.relativePath,
				OriginalContent: state.originalContent,
			}
		}
		state.lines = splice(state.lines, insertionIndex, 0, after)
		updateNormalizedLines(state, insertionIndex, 0, after)
		state.cursor = insertionIndex + len(after)
		state.offset += len(after)
		applyNewlineMarkers(state, hunk)
		return nil
	}

	expected := hunk.OldStart - 1 + state.offset
	matchIndex := -1
	if matchesAt(state.lines, before, expected, hunk.OldNoNewline) {
		matchIndex = expected
	}
	if matchIndex == -1 && !state.options.Strict {
		matchIndex = findSubsequence(state.lines, before, state.cursor, hunk.OldNoNewline)
		if matchIndex == -1 {
			matchIndex = findSubsequence(state.lines, before, 0, hunk.OldNoNewline)
		}
	}

	if matchIndex == -1 && state.options.IgnoreWhitespace {
		normalizedBefore := make([]string, len(before))
		for i, line := range before {
			normalizedBefore[i] = normalizeLine(line)
		}
		normalizedLines := ensureNormalizedLines(state)
		if matchesAt(normalizedLines, normalizedBefore, expected, hunk.OldNoNewline) {
			matchIndex = expected
		} else if !state.options.Strict {
			matchIndex = findSubsequence(normalizedLines, normalizedBefore, state.cursor, hunk.OldNoNewline)
			if matchIndex == -1 {
				matchIndex = findSubsequence(normalizedLines, normalizedBefore, 0, hunk.OldNoNewline)
			}
		}
	}

	if matchIndex == -1 {
		return &Error{
			Message:         fmt.Sprintf("Hunk context not found in %s.", state.relativePath),
			Code:            CodeConflict,
			RelativePath:    state.relativePath,
			OriginalContent: state.originalContent,
		}
	}

	state.lines = splice(state.lines, matchIndex, len(before), after)
	updateNormalizedLines(state, matchIndex, len(before), after)
	state.cursor = matchIndex + len(after)
	state.offset = matchIndex - (hunk.OldStart - 1) + len(after) - len(before)
	applyNewlineMarkers(state, hunk)
	return nil
}

func applyNewlineMarkers(state *state, hunk Hunk) {
	switch {
	case hunk.NewNoNewline:
		state.endsWithNewline = false
	case hunk.OldNoNewline:
		state.endsWithNewline = true
	}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func splice(target []string, index, deleteCount int, replacement []string) []string {
	if deleteCount == 0 && len(replacement) == 0 {
		return target
	}
	result := make([]string, 0, len(target)-deleteCount+len(replacement))
	result = append(result, target[:index]...)
	result = append(result, replacement...)
	result = append(result, target[index+deleteCount:]...)
	return result
}

func matchesAt(haystack, needle []string, index int, requireEOF bool) bool {
	if index < 0 || index+len(needle) > len(haystack) {
		return false
	}
	if requireEOF && index+len(needle) != len(haystack) {
		return false
	}
	for j := range needle {
		if haystack[index+j] != needle[j] {
			return false
		}
	}
	return true
}

func findSubsequence(haystack, needle []string, startIndex int, requireEOF bool) int {
	if len(needle) == 0 {
		return -1
	}
	startIndex = clamp(startIndex, 0, len(haystack))
	for i := startIndex; i <= len(haystack)-len(needle); i++ {
		if matchesAt(haystack, needle, i, requireEOF) {
			return i
		}
	}
	return -1
}

func ensureNormalizedLines(state *state) []string {
	if state == nil {
		return nil
	}
	if !state.options.IgnoreWhitespace {
		return state.lines
	}
	if state.normalizedLines != nil {
		return state.normalizedLines
	}
	normalized := make([]string, len(state.lines))
	for i, line := range state.lines {
		normalized[i] = normalizeLine(line)
	}
	state.normalizedLines = normalized
	return normalized
}

func updateNormalizedLines(state *state, index, deleteCount int, replacement []string) {
	if state == nil || !state.options.IgnoreWhitespace {
		return
	}
	normalized := ensureNormalizedLines(state)
	replacementNormalized := make([]string, len(replacement))
	for i, line := range replacement {
		replacementNormalized[i] = normalizeLine(line)
	}
	state.normalizedLines = splice(normalized, index, deleteCount, replacementNormalized)
}

func normalizeLine(line string) string {
	if line == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(line))
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func enhanceHunkError(err error, state *state, hunk Hunk, number int) *Error {
	var pe *Error
	if !errors.As(err, &pe) {
		pe = &Error{Message: err.Error()}
	}

	statuses := append([]HunkStatus{}, state.hunkStatuses...)
	statuses = append(statuses, HunkStatus{Number: number, Status: "no-match"})
	pe.HunkStatuses = statuses

	if pe.Code == "" {
		pe.Code = CodeConflict
	}
	if pe.RelativePath == "" {
		pe.RelativePath = state.relativePath
	}
	if pe.Code == CodeConflict {
		pe.Message = fmt.Sprintf("Hunk %d does not apply to %s.", number, pe.RelativePath)
	}
	if pe.OriginalContent == "" {
		if state.originalContent != "" {
			pe.OriginalContent = state.originalContent
		} else {
			pe.OriginalContent = state.content()
		}
	}
	if pe.FailedHunk == nil {
		rawLines := append([]string(nil), hunk.RawPatchLines...)
		pe.FailedHunk = &FailedHunk{Number: number, RawPatchLines: rawLines}
	}
	return pe
}

func describeHunkStatuses(statuses []HunkStatus) string {
	if len(statuses) == 0 {
		return ""
	}
	var applied []string
	var failed string
	for _, status := range statuses {
		if status.Status == "applied" {
			applied = append(applied, fmt.Sprintf("%d", status.Number))
			continue
		}
		if failed == "" {
			failed = fmt.Sprintf("No match for hunk %d.", status.Number)
		}
	}

	parts := make([]string, 0, 2)
	if len(applied) > 0 {
		parts = append(parts, fmt.Sprintf("Hunks applied: %s.", strings.Join(applied, ", ")))
	}
	if failed != "" {
		parts = append(parts, failed)
	}
	return strings.Join(parts, "\n")
}

// FormatError renders Error values into a human readable message suitable for
// surfacing to end users. The original file content is only included when
// withContent is set since vendored sources tend to be long.
func FormatError(err *Error, withContent bool) string {
	if err == nil {
		return "Unknown error occurred."
	}
	message := err.Message
	if message == "" {
		message = "Unknown error occurred."
	}
	if err.Code != CodeConflict {
		return message
	}

	relativePath := err.RelativePath
	if relativePath == "" {
		relativePath = "unknown file"
	}
	displayPath := relativePath
	if !strings.HasPrefix(displayPath, "./") {
		displayPath = "./" + displayPath
	}
	var parts []string
	parts = append(parts, message)
	if err.PatchPath != "" {
		parts = append(parts, fmt.Sprintf("Patch file: %s", err.PatchPath))
	}
	if summary := describeHunkStatuses(err.HunkStatuses); summary != "" {
		parts = append(parts, "", summary)
	}
	if err.FailedHunk != nil && len(err.FailedHunk.RawPatchLines) > 0 {
		parts = append(parts, "", "Offending hunk:")
		parts = append(parts, strings.Join(err.FailedHunk.RawPatchLines, "\n"))
	}
	if withContent && err.OriginalContent != "" {
		parts = append(parts, "", fmt.Sprintf("Full content of file: %s::::", displayPath), err.OriginalContent)
	}
	return strings.Join(parts, "\n")
}
