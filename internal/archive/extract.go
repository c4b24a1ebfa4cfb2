// Package archive copies selected entries out of a zip or jar file.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"github.com/asynkron/srcpatch/internal/fsutil"
	"github.com/bmatcuk/doublestar"
	"github.com/klauspost/compress/zip"
)

// ErrNoMatch is returned when no entry of the archive matched the include
// patterns.
var ErrNoMatch = errors.New("archive: no entries matched")

// Report lists the extracted entries, sorted.
type Report struct {
	Files   []string
	Skipped int
}

// Extract writes every regular entry of the archive at path whose name
// matches one of the include patterns into dstDir, keeping the entry's
// relative path. Existing files are overwritten; nothing else in dstDir is
// touched.
func Extract(ctx context.Context, path, dstDir string, include []string) (*Report, error) {
	if len(include) == 0 {
		return nil, errors.New("archive: at least one include pattern is required")
	}
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer rc.Close()

	report := &Report{}
	for _, f := range rc.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		rel, err := fsutil.SafeRel(f.Name)
		if err != nil {
			return nil, fmt.Errorf("archive: %s: %w", path, err)
		}
		ok, err := matchAny(include, rel)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.Skipped++
			continue
		}
		if err := extractFile(f, dstDir, rel); err != nil {
			return nil, fmt.Errorf("archive: extract %s: %w", rel, err)
		}
		report.Files = append(report.Files, rel)
	}
	if len(report.Files) == 0 {
		return report, fmt.Errorf("%w %v in %s", ErrNoMatch, include, path)
	}
	sort.Strings(report.Files)
	return report, nil
}

func matchAny(patterns []string, rel string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("archive: include pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func extractFile(f *zip.File, dstDir, rel string) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var perm fs.FileMode = 0o644
	if f.Mode()&0o111 != 0 {
		perm = 0o755
	}
	return fsutil.WriteFile(dstDir, rel, data, perm)
}
