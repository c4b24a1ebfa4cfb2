package rename

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/asynkron/srcpatch/internal/fsutil"
	"golang.org/x/sync/errgroup"
)

// Options configure Rewrite.
type Options struct {
	// Workers bounds the number of files rewritten concurrently. Zero means
	// runtime.NumCPU().
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// File records one rewritten file.
type File struct {
	Source      string
	Destination string
	// Written is false when the destination already held the rewritten
	// content.
	Written bool
}

// Report summarises a rewrite.
type Report struct {
	// Files is sorted by destination.
	Files []File
	// Skipped counts source files the filter did not select.
	Skipped int
}

// Rewrite copies every file of srcDir selected by filter into dstDir,
// relocating it and its content with rules. An empty filter selects the old
// prefix directories of the rules. Files already in dstDir that the rewrite
// does not produce are left alone; srcDir is never modified.
func Rewrite(ctx context.Context, srcDir, dstDir string, rules Rules, filter Filter, opts Options) (*Report, error) {
	if len(rules) == 0 {
		return nil, invalidRule("no rename rules given")
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if filter.Empty() {
		filter = DefaultFilter(rules)
	}
	if err := fsutil.CheckDisjoint(dstDir, srcDir); err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	files, err := fsutil.ListFiles(srcDir)
	if err != nil {
		return nil, fmt.Errorf("rename: list source tree: %w", err)
	}

	report := &Report{}
	var selected []File
	sources := make(map[string]string)
	for _, rel := range files {
		ok, err := filter.Match(rel)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.Skipped++
			continue
		}
		dest := rules.RewritePath(rel)
		if prev, dup := sources[dest]; dup {
			return nil, ambiguousDestination(prev, rel, dest, rules)
		}
		sources[dest] = rel
		selected = append(selected, File{Source: rel, Destination: dest})
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, f := range selected {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			written, err := rewriteFile(srcDir, dstDir, f, rules)
			if err != nil {
				return fmt.Errorf("rename: %s: %w", f.Source, err)
			}
			f.Written = written
			mu.Lock()
			report.Files = append(report.Files, f)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(report.Files, func(i, j int) bool { return report.Files[i].Destination < report.Files[j].Destination })
	return report, nil
}

func rewriteFile(srcDir, dstDir string, f File, rules Rules) (bool, error) {
	data, mode, err := fsutil.ReadFile(srcDir, f.Source)
	if err != nil {
		return false, err
	}
	content := rules.RewriteContent(data)

	target := filepath.Join(dstDir, filepath.FromSlash(f.Destination))
	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, content) {
		if info, err := os.Stat(target); err == nil && info.Mode().Perm() == mode.Perm() {
			return false, nil
		}
	}
	if err := fsutil.WriteFile(dstDir, f.Destination, content, mode&fs.ModePerm); err != nil {
		return false, err
	}
	return true, nil
}

func ambiguousDestination(first, second, dest string, rules Rules) *RuleError {
	return &RuleError{
		Code:    CodeAmbiguousRule,
		Message: fmt.Sprintf("%s and %s would both be written to %s", first, second, dest),
		Rules:   rules,
	}
}
