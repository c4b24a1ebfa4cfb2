package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/asynkron/srcpatch/internal/fsutil"
)

// Suffix is appended to a target path to name its patch file.
const Suffix = ".patch"

// PatchFile is one entry of a patch set: a unified diff for exactly one target.
type PatchFile struct {
	// Target is the slash-separated path of the patched file, relative to
	// the original tree.
	Target string
	// Source is the slash-separated path of the patch file, relative to the
	// patch directory.
	Source string
	Body   string
}

// LoadPatchSet reads every *.patch file under dir. The target of each patch
// is its relative path with the suffix removed. The result is sorted by
// target.
func LoadPatchSet(dir string) ([]PatchFile, error) {
	files, err := fsutil.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("patch: load patch set: %w", err)
	}
	var set []PatchFile
	for _, rel := range files {
		target, ok := strings.CutSuffix(rel, Suffix)
		if !ok || target == "" {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("patch: read %s: %w", rel, err)
		}
		set = append(set, PatchFile{Target: target, Source: rel, Body: string(body)})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].Target < set[j].Target })
	return set, nil
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
}

func sortFailures(failures []*Error) {
	sort.Slice(failures, func(i, j int) bool { return failures[i].RelativePath < failures[j].RelativePath })
}
