package patch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asynkron/srcpatch/internal/fsutil"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"
)

// DefaultContext is the number of unchanged lines surrounding each change.
const DefaultContext = 3

// Diff returns the unified diff that turns before into after for path, or an
// empty string when the contents are identical.
func Diff(path, before, after string) (string, error) {
	return unifiedDiff("a/"+path, "b/"+path, before, after)
}

// DiffAdded returns a diff that creates path with content. An empty file
// gets a diff made of the two header lines only.
func DiffAdded(path, content string) (string, error) {
	if content == "" {
		return headerOnly(devNull, "b/"+path), nil
	}
	return unifiedDiff(devNull, "b/"+path, "", content)
}

// DiffDeleted returns a diff that removes path, whose current content is
// given.
func DiffDeleted(path, content string) (string, error) {
	if content == "" {
		return headerOnly("a/"+path, devNull), nil
	}
	return unifiedDiff("a/"+path, devNull, content, "")
}

func headerOnly(fromFile, toFile string) string {
	return "--- " + fromFile + "\n+++ " + toFile + "\n"
}

func unifiedDiff(fromFile, toFile, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        diffLines(before),
		B:        diffLines(after),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  DefaultContext,
	})
	if err != nil {
		return "", fmt.Errorf("patch: diff %s: %w", toFile, err)
	}
	return text, nil
}

// diffLines splits content into newline-terminated lines. A final line
// without a newline carries the "\ No newline at end of file" marker so that
// a change in the trailing newline alone still shows up as a difference.
func diffLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	lines[last] += "\n" + noNewlineMarker + "\n"
	return lines
}

// GenerateTree writes one patch per file that differs between originalDir
// and modifiedDir into outputDir. Identical files produce no patch and
// patches left in outputDir by earlier runs for such files are removed.
func GenerateTree(ctx context.Context, originalDir, modifiedDir, outputDir string, opts TreeOptions) (*Report, error) {
	if err := fsutil.CheckDisjoint(outputDir, originalDir, modifiedDir); err != nil {
		return nil, fmt.Errorf("patch: generate: %w", err)
	}
	originals, err := fsutil.ListFiles(originalDir)
	if err != nil {
		return nil, fmt.Errorf("patch: generate: list original tree: %w", err)
	}
	modified, err := fsutil.ListFiles(modifiedDir)
	if err != nil {
		return nil, fmt.Errorf("patch: generate: list modified tree: %w", err)
	}

	inOriginal := make(map[string]bool, len(originals))
	for _, rel := range originals {
		inOriginal[rel] = true
	}
	inModified := make(map[string]bool, len(modified))
	paths := append([]string(nil), originals...)
	for _, rel := range modified {
		inModified[rel] = true
		if !inOriginal[rel] {
			paths = append(paths, rel)
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("patch: generate: %w", err)
	}

	var c collector
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := generateOne(originalDir, modifiedDir, outputDir, rel, inOriginal[rel], inModified[rel])
			if err != nil {
				return err
			}
			if result.Status != "" {
				c.result(result)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("patch: generate: %w", err)
	}

	if err := removeStalePatches(outputDir, c.report.Results); err != nil {
		return nil, fmt.Errorf("patch: generate: %w", err)
	}
	return c.finish("make-patches")
}

func generateOne(originalDir, modifiedDir, outputDir, rel string, inOriginal, inModified bool) (Result, error) {
	read := func(root string) (string, error) {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		return string(data), err
	}

	var (
		text   string
		status string
		err    error
	)
	switch {
	case inOriginal && inModified:
		before, rerr := read(originalDir)
		if rerr != nil {
			return Result{}, rerr
		}
		after, rerr := read(modifiedDir)
		if rerr != nil {
			return Result{}, rerr
		}
		text, err = Diff(rel, before, after)
		status = "M"
	case inModified:
		after, rerr := read(modifiedDir)
		if rerr != nil {
			return Result{}, rerr
		}
		text, err = DiffAdded(rel, after)
		status = "A"
	default:
		before, rerr := read(originalDir)
		if rerr != nil {
			return Result{}, rerr
		}
		text, err = DiffDeleted(rel, before)
		status = "D"
	}
	if err != nil {
		return Result{}, err
	}
	if text == "" {
		return Result{}, nil
	}

	target := rel + Suffix
	existing, rerr := os.ReadFile(filepath.Join(outputDir, filepath.FromSlash(target)))
	if rerr == nil && bytes.Equal(existing, []byte(text)) {
		return Result{Status: status, Path: rel}, nil
	}
	if err := fsutil.WriteFile(outputDir, target, []byte(text), 0o644); err != nil {
		return Result{}, err
	}
	return Result{Status: status, Path: rel}, nil
}

func removeStalePatches(outputDir string, results []Result) error {
	keep := make(map[string]bool, len(results))
	for _, r := range results {
		keep[r.Path+Suffix] = true
	}
	existing, err := fsutil.ListFiles(outputDir)
	if err != nil {
		return err
	}
	for _, rel := range existing {
		if !strings.HasSuffix(rel, Suffix) || keep[rel] {
			continue
		}
		if err := fsutil.Remove(outputDir, rel); err != nil {
			return err
		}
	}
	return nil
}
