package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asynkron/srcpatch/internal/logging"
	"github.com/asynkron/srcpatch/internal/project"
	"github.com/asynkron/srcpatch/pkg/patch"
	"github.com/asynkron/srcpatch/pkg/rename"
)

func (a *app) setupCommand() *cobra.Command {
	var projectPath string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Extract, patch and relocate the sources described by the project file",
		Long: `Run the whole pipeline of a project file: extract the configured entries of the
archive into the original tree (skipped when no archive is set), apply the
patch directory into the patched tree, and relocate the patched tree into the
renamed tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.loadProject(cmd, projectPath)
			if err != nil {
				return err
			}
			return a.runSetup(cmd, p)
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", os.Getenv(EnvProject), "project file (default srcpatch.yaml in the working directory)")
	return cmd
}

func (a *app) rebuildPatchesCommand() *cobra.Command {
	var projectPath string
	cmd := &cobra.Command{
		Use:   "rebuild-patches",
		Short: "Regenerate the patch directory from the edited renamed tree",
		Long: `Relocate the renamed tree back into the patched tree with the inverted rules,
then write one patch per file that differs from the original tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.loadProject(cmd, projectPath)
			if err != nil {
				return err
			}
			return a.runRebuild(cmd, p)
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", os.Getenv(EnvProject), "project file (default srcpatch.yaml in the working directory)")
	return cmd
}

func (a *app) loadProject(cmd *cobra.Command, path string) (*project.Project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	path, err = project.Find(strings.TrimSpace(path), cwd)
	if err != nil {
		return nil, usageError{err: err}
	}
	p, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("workers") && os.Getenv(EnvWorkers) == "" && p.Workers > 0 {
		a.workers = p.Workers
	}
	a.log.Debug(cmd.Context(), "loaded project", logging.F("path", path), logging.F("rules", len(p.Rules)))
	return p, nil
}

func (a *app) runSetup(cmd *cobra.Command, p *project.Project) error {
	rules, err := p.RenameRules()
	if err != nil {
		return err
	}
	originalDir := p.Resolve(p.Original)
	patchDir := p.Resolve(p.Patches)
	patchedDir := p.Resolve(p.Patched)
	renamedDir := p.Resolve(p.Renamed)

	if p.Archive != "" {
		include := p.Include
		if len(include) == 0 {
			include = rename.DefaultFilter(rules).Include
		}
		if err := a.extract(cmd, p.Resolve(p.Archive), originalDir, include); err != nil {
			return err
		}
	} else {
		a.out.Note("no archive configured; using %s as is", originalDir)
	}

	if err := os.MkdirAll(patchDir, 0o755); err != nil {
		return err
	}
	opts := patch.Options{Strict: p.Strict, IgnoreWhitespace: p.IgnoreWhitespace}
	if err := a.applyPatches(cmd, originalDir, patchDir, patchedDir, opts, false); err != nil {
		return err
	}
	if err := a.rename(cmd, patchedDir, renamedDir, rules, rename.Filter{}); err != nil {
		return err
	}
	a.out.Summary(a.metrics.Snapshot())
	return nil
}

func (a *app) runRebuild(cmd *cobra.Command, p *project.Project) error {
	rules, err := p.RenameRules()
	if err != nil {
		return err
	}
	if err := a.rename(cmd, p.Resolve(p.Renamed), p.Resolve(p.Patched), rules.Invert(), rename.Filter{}); err != nil {
		return err
	}
	if err := a.makePatches(cmd, p.Resolve(p.Original), p.Resolve(p.Patched), p.Resolve(p.Patches)); err != nil {
		return err
	}
	a.out.Summary(a.metrics.Snapshot())
	return nil
}
