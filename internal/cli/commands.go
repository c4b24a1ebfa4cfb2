package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asynkron/srcpatch/internal/archive"
	"github.com/asynkron/srcpatch/internal/fsutil"
	"github.com/asynkron/srcpatch/internal/logging"
	"github.com/asynkron/srcpatch/internal/metrics"
	"github.com/asynkron/srcpatch/pkg/patch"
	"github.com/asynkron/srcpatch/pkg/rename"
)

func (a *app) applyPatchesCommand() *cobra.Command {
	var (
		patchDir, originalDir, outputDir string
		opts                             patch.Options
		showContent                      bool
	)
	cmd := &cobra.Command{
		Use:   "apply-patches",
		Short: "Apply a patch directory to a source tree",
		Long: `Copy the original tree into the output directory and apply every <path>.patch
found in the patch directory to <path>. Every failing file is reported before
the command exits with status 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "patches", "original", "output"); err != nil {
				return err
			}
			return a.applyPatches(cmd, originalDir, patchDir, outputDir, opts, showContent)
		},
	}
	cmd.Flags().StringVar(&patchDir, "patches", "", "directory of <path>.patch files")
	cmd.Flags().StringVar(&originalDir, "original", "", "unmodified source tree")
	cmd.Flags().StringVar(&outputDir, "output", "", "directory receiving the patched tree (reset first)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "only apply hunks at the position named by their header")
	cmd.Flags().BoolVar(&opts.IgnoreWhitespace, "ignore-whitespace", false, "fall back to whitespace-insensitive matching")
	cmd.Flags().BoolVar(&showContent, "show-content", false, "print the full original file for conflicting hunks")
	return cmd
}

func (a *app) applyPatches(cmd *cobra.Command, originalDir, patchDir, outputDir string, opts patch.Options, showContent bool) error {
	ctx := cmd.Context()
	timer := metrics.Start(a.metrics, "apply-patches")
	a.log.Debug(ctx, "applying patches", logging.F("original", originalDir), logging.F("patches", patchDir), logging.F("output", outputDir))
	if existing, err := fsutil.ListFiles(outputDir); err == nil && len(existing) > 0 {
		a.log.Warn(ctx, "resetting output directory", logging.F("output", outputDir), logging.F("files", len(existing)))
	}

	res, err := patch.ApplyTree(ctx, originalDir, patchDir, outputDir, patch.TreeOptions{Options: opts, Workers: a.workers})
	if res == nil {
		timer.Stop(0, 0)
		return err
	}
	elapsed := timer.Stop(len(res.Results)+res.Copied+len(res.Failures), len(res.Failures))

	a.out.Heading("apply-patches")
	for _, r := range res.Results {
		a.out.Status(r.Status, r.Path)
	}
	a.out.Note("%d file(s) patched, %d copied unchanged", len(res.Results), res.Copied)
	for _, failure := range res.Failures {
		a.errOut.Failure(failure, showContent)
		a.log.Error(ctx, "patch failed", failure, logging.F("path", failure.RelativePath), logging.F("code", failure.Code))
	}
	a.log.Info(ctx, "apply-patches finished", logging.F("patched", len(res.Results)), logging.F("failed", len(res.Failures)), logging.F("elapsed", elapsed))
	if err != nil {
		a.errOut.Error(err)
		return reportedError{err: err}
	}
	return nil
}

func (a *app) makePatchesCommand() *cobra.Command {
	var originalDir, modifiedDir, outputDir string
	cmd := &cobra.Command{
		Use:   "make-patches",
		Short: "Write one patch per file that differs between two trees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "original", "modified", "output"); err != nil {
				return err
			}
			return a.makePatches(cmd, originalDir, modifiedDir, outputDir)
		},
	}
	cmd.Flags().StringVar(&originalDir, "original", "", "unmodified source tree")
	cmd.Flags().StringVar(&modifiedDir, "modified", "", "edited source tree")
	cmd.Flags().StringVar(&outputDir, "output", "", "patch directory to write")
	return cmd
}

func (a *app) makePatches(cmd *cobra.Command, originalDir, modifiedDir, outputDir string) error {
	ctx := cmd.Context()
	timer := metrics.Start(a.metrics, "make-patches")
	res, err := patch.GenerateTree(ctx, originalDir, modifiedDir, outputDir, patch.TreeOptions{Workers: a.workers})
	if err != nil {
		timer.Stop(0, 1)
		return err
	}
	timer.Stop(len(res.Results), 0)

	a.out.Heading("make-patches")
	for _, r := range res.Results {
		a.out.Status(r.Status, r.Path+patch.Suffix)
	}
	a.out.Note("%d patch(es) in %s", len(res.Results), outputDir)
	a.log.Info(ctx, "make-patches finished", logging.F("patches", len(res.Results)))
	return nil
}

func (a *app) renameCommand() *cobra.Command {
	var (
		from    []string
		include []string
		srcDir  string
		dstDir  string
		invert  bool
	)
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Relocate packages of a source tree into a new namespace",
		Long: `Copy the selected files of the source tree into the destination tree, moving
them from the directory of each old prefix to the directory of its new prefix
and replacing every dotted occurrence of the old prefix in their content.
Without --include, every file under an old prefix directory is selected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "from", "src", "dst"); err != nil {
				return err
			}
			rules, err := rename.ParseRules(from)
			if err != nil {
				if errors.Is(err, rename.ErrInvalidRule) {
					return usageError{err: err}
				}
				return err
			}
			if invert {
				rules = rules.Invert()
			}
			filter, err := rename.NewFilter(include)
			if err != nil {
				return usageError{err: err}
			}
			return a.rename(cmd, srcDir, dstDir, rules, filter)
		},
	}
	cmd.Flags().StringSliceVar(&from, "from", nil, "rename rules old=new, comma separated or repeated")
	cmd.Flags().StringVar(&srcDir, "src", "", "source tree")
	cmd.Flags().StringVar(&dstDir, "dst", "", "destination tree")
	cmd.Flags().StringArrayVar(&include, "include", nil, "glob selecting source files (repeatable, ** allowed)")
	cmd.Flags().BoolVar(&invert, "invert", false, "apply the rules from new to old")
	return cmd
}

func (a *app) rename(cmd *cobra.Command, srcDir, dstDir string, rules rename.Rules, filter rename.Filter) error {
	ctx := cmd.Context()
	timer := metrics.Start(a.metrics, "rename")
	a.log.Debug(ctx, "renaming", logging.F("rules", rules.String()), logging.F("src", srcDir), logging.F("dst", dstDir))

	res, err := rename.Rewrite(ctx, srcDir, dstDir, rules, filter, rename.Options{Workers: a.workers})
	if err != nil {
		timer.Stop(0, 1)
		return err
	}
	timer.Stop(len(res.Files), 0)

	a.out.Heading("rename")
	written := 0
	for _, f := range res.Files {
		if f.Written {
			written++
			a.out.Status("R", fmt.Sprintf("%s -> %s", f.Source, f.Destination))
		}
	}
	a.out.Note("%d file(s) relocated, %d already up to date, %d not selected", written, len(res.Files)-written, res.Skipped)
	a.log.Info(ctx, "rename finished", logging.F("files", len(res.Files)), logging.F("written", written))
	return nil
}

func (a *app) extractCommand() *cobra.Command {
	var (
		archivePath string
		dstDir      string
		include     []string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Copy matching entries out of a zip or jar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "archive", "dst", "include"); err != nil {
				return err
			}
			return a.extract(cmd, archivePath, dstDir, include)
		},
	}
	cmd.Flags().StringVar(&archivePath, "archive", "", "zip or jar file")
	cmd.Flags().StringVar(&dstDir, "dst", "", "destination directory")
	cmd.Flags().StringArrayVar(&include, "include", nil, "glob selecting entries (repeatable, ** allowed)")
	return cmd
}

func (a *app) extract(cmd *cobra.Command, archivePath, dstDir string, include []string) error {
	ctx := cmd.Context()
	timer := metrics.Start(a.metrics, "extract")
	res, err := archive.Extract(ctx, archivePath, dstDir, include)
	if err != nil {
		timer.Stop(0, 1)
		return err
	}
	timer.Stop(len(res.Files), 0)

	a.out.Heading("extract")
	for _, f := range res.Files {
		a.out.Status("X", f)
	}
	a.out.Note("%d file(s) extracted from %s", len(res.Files), archivePath)
	a.log.Info(ctx, "extract finished", logging.F("archive", archivePath), logging.F("files", len(res.Files)))
	return nil
}
