package patch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// OperationType identifies the kind of change described by a patch operation.
type OperationType string

const (
	// OperationAdd represents a diff whose old side is /dev/null.
	OperationAdd OperationType = "add"
	// OperationUpdate represents a diff between two versions of one file.
	OperationUpdate OperationType = "update"
	// OperationDelete represents a diff whose new side is /dev/null.
	OperationDelete OperationType = "delete"
)

const (
	devNull         = "/dev/null"
	noNewlineMarker = `\ No newline at end of file`
)

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Operation describes the changes a unified diff makes to a single file.
//
// Path is taken from the "+++" header (or the "---" header for deletions).
// It is empty for header-less patches, in which case the caller supplies the
// target, usually from the patch file name.
type Operation struct {
	Type  OperationType
	Path  string
	Hunks []Hunk
}

// Hunk captures a unified-diff hunk belonging to an Operation.
type Hunk struct {
	Header        string
	OldStart      int
	OldLines      int
	NewStart      int
	NewLines      int
	Lines         []string
	RawPatchLines []string
	Before        []string
	After         []string
	// OldNoNewline and NewNoNewline record "\ No newline at end of file"
	// markers on the respective side. A hunk with OldNoNewline must match at
	// the end of the file.
	OldNoNewline bool
	NewNoNewline bool
}

// HunkStatus tracks how a hunk was applied when processing a patch.
type HunkStatus struct {
	Number int    `json:"number"`
	Status string `json:"status"`
}

// FailedHunk stores the raw lines of the hunk that could not be applied.
type FailedHunk struct {
	Number        int      `json:"number"`
	RawPatchLines []string `json:"rawPatchLines"`
}

// Options configure how hunks are matched against file content.
type Options struct {
	// IgnoreWhitespace compares lines with all whitespace removed when the
	// exact context cannot be found.
	IgnoreWhitespace bool
	// Strict only accepts a hunk at the position named by its header.
	Strict bool
}

// Result describes the outcome for a single file when applying a patch.
type Result struct {
	Status string
	Path   string
}

// Parse converts unified-diff text into one operation per file section.
// Preamble lines such as "diff --git" or "index" are ignored.
func Parse(input string) ([]Operation, error) {
	lines := splitLines(input)
	var (
		operations []Operation
		current    *Operation
	)

	flush := func() {
		if current != nil {
			operations = append(operations, *current)
			current = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ "):
			flush()
			oldPath := headerPath(line[len("--- "):])
			newPath := headerPath(lines[i+1][len("+++ "):])
			op := &Operation{Type: OperationUpdate, Path: newPath}
			switch {
			case oldPath == devNull && newPath == devNull:
				return nil, fmt.Errorf("line %d: both sides of the diff are %s", i+1, devNull)
			case oldPath == devNull:
				op.Type = OperationAdd
			case newPath == devNull:
				op.Type = OperationDelete
				op.Path = oldPath
			}
			current = op
			i++
		case strings.HasPrefix(line, "@@"):
			if current == nil {
				current = &Operation{Type: OperationUpdate}
			}
			hunk, next, err := parseHunk(lines, i)
			if err != nil {
				return nil, err
			}
			current.Hunks = append(current.Hunks, hunk)
			i = next - 1
		}
	}
	flush()

	if len(operations) == 0 {
		return nil, errors.New("no hunks found")
	}
	for _, op := range operations {
		if len(op.Hunks) == 0 && op.Type == OperationUpdate {
			return nil, fmt.Errorf("no hunks provided for %s", op.Path)
		}
	}
	return operations, nil
}

// parseHunk reads the hunk starting at lines[start] and returns it together
// with the index of the first line after it.
func parseHunk(lines []string, start int) (Hunk, int, error) {
	header := lines[start]
	match := hunkHeaderPattern.FindStringSubmatch(header)
	if match == nil {
		return Hunk{}, 0, fmt.Errorf("line %d: malformed hunk header %q", start+1, header)
	}
	hunk := Hunk{
		Header:   header,
		OldStart: atoi(match[1], 0),
		OldLines: atoi(match[2], 1),
		NewStart: atoi(match[3], 0),
		NewLines: atoi(match[4], 1),
	}

	var (
		oldCount, newCount int
		prev               byte
		i                  = start + 1
	)
	for ; i < len(lines); i++ {
		raw := lines[i]
		if strings.HasPrefix(raw, `\`) {
			switch prev {
			case '-':
				hunk.OldNoNewline = true
			case '+':
				hunk.NewNoNewline = true
			case ' ':
				hunk.OldNoNewline = true
				hunk.NewNoNewline = true
			default:
				return Hunk{}, 0, fmt.Errorf("line %d: marker without a preceding line", i+1)
			}
			hunk.Lines = append(hunk.Lines, raw)
			continue
		}
		if oldCount >= hunk.OldLines && newCount >= hunk.NewLines {
			break
		}
		// Some editors strip the single space from blank context lines.
		if raw == "" {
			raw = " "
		}
		switch raw[0] {
		case ' ':
			hunk.Before = append(hunk.Before, raw[1:])
			hunk.After = append(hunk.After, raw[1:])
			oldCount++
			newCount++
		case '-':
			hunk.Before = append(hunk.Before, raw[1:])
			oldCount++
		case '+':
			hunk.After = append(hunk.After, raw[1:])
			newCount++
		default:
			return Hunk{}, 0, fmt.Errorf("line %d: unsupported hunk line %q", i+1, raw)
		}
		prev = raw[0]
		hunk.Lines = append(hunk.Lines, raw)
	}
	if oldCount != hunk.OldLines || newCount != hunk.NewLines {
		return Hunk{}, 0, fmt.Errorf("line %d: hunk %q is truncated: got -%d +%d lines", start+1, header, oldCount, newCount)
	}

	hunk.RawPatchLines = append(hunk.RawPatchLines, header)
	hunk.RawPatchLines = append(hunk.RawPatchLines, hunk.Lines...)
	return hunk, i, nil
}

// headerPath strips the timestamp and the conventional a/ or b/ prefix from a
// ---/+++ header value.
func headerPath(value string) string {
	if idx := strings.IndexByte(value, '\t'); idx >= 0 {
		value = value[:idx]
	}
	value = strings.TrimSpace(value)
	if value == devNull {
		return value
	}
	if strings.HasPrefix(value, "a/") || strings.HasPrefix(value, "b/") {
		return value[2:]
	}
	return value
}

func atoi(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func splitLines(input string) []string {
	input = strings.TrimSuffix(input, "\n")
	if input == "" {
		return nil
	}
	return strings.Split(input, "\n")
}
