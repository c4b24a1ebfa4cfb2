package patch

import (
	"context"
	"fmt"
	"io/fs"
	"runtime"
	"sync"

	"github.com/asynkron/srcpatch/internal/fsutil"
	"golang.org/x/sync/errgroup"
)

// TreeOptions configure ApplyTree and GenerateTree.
type TreeOptions struct {
	Options
	// Workers bounds the number of files processed concurrently. Zero means
	// runtime.NumCPU().
	Workers int
}

func (o TreeOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// Report summarises a tree operation.
type Report struct {
	// Results lists every file the operation created, modified or deleted,
	// sorted by path.
	Results []Result
	// Copied counts files carried over unchanged.
	Copied   int
	Failures []*Error
}

type collector struct {
	mu     sync.Mutex
	report Report
}

func (c *collector) result(r Result) {
	c.mu.Lock()
	c.report.Results = append(c.report.Results, r)
	c.mu.Unlock()
}

func (c *collector) copied() {
	c.mu.Lock()
	c.report.Copied++
	c.mu.Unlock()
}

func (c *collector) failure(e *Error) {
	c.mu.Lock()
	c.report.Failures = append(c.report.Failures, e)
	c.mu.Unlock()
}

func (c *collector) finish(op string) (*Report, error) {
	sortResults(c.report.Results)
	sortFailures(c.report.Failures)
	report := c.report
	if len(report.Failures) > 0 {
		return &report, &RunError{Op: op, Failures: report.Failures}
	}
	return &report, nil
}

// ApplyTree copies originalDir into outputDir and applies every patch found
// in patchDir to its target. The output directory is reset first; the inputs
// are never modified.
//
// Failures are collected per file: a conflicting or unparsable patch, or one
// whose target is missing, leaves no file at that path in the output and is
// reported through *RunError once every file has been processed.
func ApplyTree(ctx context.Context, originalDir, patchDir, outputDir string, opts TreeOptions) (*Report, error) {
	if err := fsutil.CheckDisjoint(outputDir, originalDir, patchDir); err != nil {
		return nil, fmt.Errorf("patch: apply: %w", err)
	}
	originals, err := fsutil.ListFiles(originalDir)
	if err != nil {
		return nil, fmt.Errorf("patch: apply: list original tree: %w", err)
	}
	set, err := LoadPatchSet(patchDir)
	if err != nil {
		return nil, fmt.Errorf("patch: apply: %w", err)
	}
	if err := fsutil.ResetDir(outputDir); err != nil {
		return nil, fmt.Errorf("patch: apply: reset output: %w", err)
	}

	patched := make(map[string]bool, len(set))
	for _, pf := range set {
		patched[pf.Target] = true
	}
	present := make(map[string]bool, len(originals))
	for _, rel := range originals {
		present[rel] = true
	}

	var c collector
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	for _, rel := range originals {
		if patched[rel] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fsutil.CopyFile(originalDir, outputDir, rel); err != nil {
				return err
			}
			c.copied()
			return nil
		})
	}
	for _, pf := range set {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, perr, err := applyPatchFile(originalDir, outputDir, pf, present[pf.Target], opts.Options)
			if err != nil {
				return err
			}
			if perr != nil {
				c.failure(perr)
				return nil
			}
			c.result(result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("patch: apply: %w", err)
	}
	return c.finish("apply-patches")
}

// applyPatchFile applies one patch. Per-file problems come back as *Error;
// the plain error is reserved for I/O failures that abort the run.
func applyPatchFile(originalDir, outputDir string, pf PatchFile, exists bool, opts Options) (Result, *Error, error) {
	ops, err := Parse(pf.Body)
	if err != nil {
		return Result{}, parseError(pf.Target, pf.Source, err), nil
	}
	if len(ops) != 1 {
		return Result{}, parseError(pf.Target, pf.Source, fmt.Errorf("expected a diff for one file, found %d", len(ops))), nil
	}
	op := ops[0]

	var (
		content string
		mode    fs.FileMode
	)
	switch {
	case op.Type == OperationAdd && exists:
		return Result{}, &Error{
			Message:      fmt.Sprintf("Patch %s adds %s, which already exists.", pf.Source, pf.Target),
			Code:         CodeConflict,
			RelativePath: pf.Target,
			PatchPath:    pf.Source,
		}, nil
	case op.Type != OperationAdd && !exists:
		return Result{}, missingFileError(pf.Target, pf.Source), nil
	case exists:
		data, m, err := fsutil.ReadFile(originalDir, pf.Target)
		if err != nil {
			return Result{}, nil, err
		}
		content, mode = string(data), m
	}

	st := newState(pf.Target, pf.Target, content, mode, opts)
	st.isNew = op.Type == OperationAdd
	if perr := applyOperation(st, op); perr != nil {
		perr.PatchPath = pf.Source
		return Result{}, perr, nil
	}
	if st.deleted {
		return Result{Status: "D", Path: pf.Target}, nil, nil
	}
	if err := fsutil.WriteFile(outputDir, pf.Target, []byte(st.content()), mode); err != nil {
		return Result{}, nil, err
	}
	status := "M"
	if st.isNew {
		status = "A"
	}
	return Result{Status: status, Path: pf.Target}, nil, nil
}
