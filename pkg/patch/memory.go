package patch

import (
	"context"
	"path"
	"strings"
)

// ApplyToMemory applies operations to an in-memory file tree keyed by
// slash-separated relative path. The provided map is copied before mutation
// and the updated snapshot is returned.
func ApplyToMemory(ctx context.Context, operations []Operation, files map[string]string, opts Options) (map[string]string, []Result, error) {
	snapshot := make(map[string]string, len(files))
	for k, v := range files {
		snapshot[k] = v
	}
	ws := newMemoryWorkspace(snapshot, opts)
	results, err := apply(ctx, operations, ws)
	if err != nil {
		return nil, nil, err
	}
	return ws.files, results, nil
}

// ApplyMemoryPatch parses a unified diff and applies it to an in-memory map of files.
func ApplyMemoryPatch(ctx context.Context, patchBody string, files map[string]string, opts Options) (map[string]string, []Result, error) {
	operations, err := Parse(patchBody)
	if err != nil {
		return nil, nil, err
	}
	return ApplyToMemory(ctx, operations, files, opts)
}

type memoryWorkspace struct {
	options   Options
	files     map[string]string
	states    map[string]*state
	deletions []Result
}

func newMemoryWorkspace(files map[string]string, opts Options) *memoryWorkspace {
	return &memoryWorkspace{
		options: opts,
		files:   files,
		states:  make(map[string]*state),
	}
}

func cleanKey(p string) string {
	rel := strings.TrimSpace(p)
	if rel == "" {
		return ""
	}
	rel = path.Clean(rel)
	if rel == "." {
		return ""
	}
	return rel
}

func (ws *memoryWorkspace) Ensure(p string, create bool) (*state, error) {
	rel := cleanKey(p)
	if rel == "" {
		return nil, &Error{Message: "invalid patch path", Code: CodeParse}
	}
	if st, ok := ws.states[rel]; ok {
		return st, nil
	}

	content, ok := ws.files[rel]
	if !ok {
		if !create {
			return nil, missingFileError(rel, "")
		}
		st := newState(rel, rel, "", 0, ws.options)
		st.isNew = true
		ws.states[rel] = st
		return st, nil
	}
	if create {
		return nil, &Error{
			Message:      "Cannot add " + rel + ": file already exists.",
			Code:         CodeConflict,
			RelativePath: rel,
		}
	}

	st := newState(rel, rel, content, 0, ws.options)
	ws.states[rel] = st
	return st, nil
}

func (ws *memoryWorkspace) Delete(p string) error {
	rel := cleanKey(p)
	if rel == "" {
		return &Error{Message: "invalid patch path", Code: CodeParse}
	}
	if _, ok := ws.files[rel]; !ok {
		return missingFileError(rel, "")
	}
	delete(ws.files, rel)
	delete(ws.states, rel)
	ws.deletions = append(ws.deletions, Result{Status: "D", Path: rel})
	return nil
}

func (ws *memoryWorkspace) Commit() ([]Result, error) {
	results := append([]Result{}, ws.deletions...)
	for key, st := range ws.states {
		if !st.touched || st.deleted {
			continue
		}
		ws.files[key] = st.content()

		status := "M"
		if st.isNew {
			status = "A"
		}
		results = append(results, Result{Status: status, Path: st.relativePath})
	}
	sortResults(results)
	return results, nil
}
