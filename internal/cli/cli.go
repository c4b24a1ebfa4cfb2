// Package cli wires the srcpatch commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/asynkron/srcpatch/internal/logging"
	"github.com/asynkron/srcpatch/internal/metrics"
	"github.com/asynkron/srcpatch/internal/report"
)

// Environment variables read as flag defaults.
const (
	EnvLogLevel = "SRCPATCH_LOG_LEVEL"
	EnvWorkers  = "SRCPATCH_WORKERS"
	EnvProject  = "SRCPATCH_PROJECT"
	EnvNoColor  = "NO_COLOR"
)

// Exit codes returned by Run.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// usageError marks problems with the command line itself.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// reportedError marks failures whose details were already printed.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

type app struct {
	stdout io.Writer
	stderr io.Writer

	logLevel string
	noColor  bool
	workers  int

	log     logging.Logger
	metrics *metrics.InMemory
	out     *report.Printer
	errOut  *report.Printer
}

// Run executes srcpatch with the provided CLI arguments and returns a
// POSIX-style exit code: 0 on success, 1 when any file or step failed and 2
// on usage errors.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	if err := godotenv.Load(); err != nil {
		// A missing .env file is fine, but other errors should be surfaced to help with debugging.
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(stderr, "failed to load .env: %v\n", err)
			return ExitFailure
		}
	}

	a := &app{stdout: stdout, stderr: stderr, log: logging.Nop{}, metrics: metrics.NewInMemory()}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return a.exitCode(err)
}

func (a *app) exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var reported reportedError
	if errors.As(err, &reported) {
		return ExitFailure
	}
	printer := a.errOut
	if printer == nil {
		printer = report.New(a.stderr, false)
	}
	var usage usageError
	if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
		printer.Error(err)
		fmt.Fprintln(a.stderr, "Run 'srcpatch --help' for usage.")
		return ExitUsage
	}
	// The logger is still Nop when the failure happened before setup.
	a.log.Error(context.Background(), "command failed", err)
	printer.Error(err)
	return ExitFailure
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "srcpatch",
		Short:         "Patch and relocate vendored source trees",
		Long:          "srcpatch applies unified-diff patch sets to a source tree, relocates the result into a new\nnamespace, and regenerates the patches from an edited copy.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usagef("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			_ = cmd.Help()
			return usagef("a command is required")
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	defaultWorkers := 0
	if value := strings.TrimSpace(os.Getenv(EnvWorkers)); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			defaultWorkers = n
		} else {
			defaultWorkers = -1
		}
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", os.Getenv(EnvLogLevel), "log level written to stderr (debug, info, warn, error); default warn")
	flags.BoolVar(&a.noColor, "no-color", os.Getenv(EnvNoColor) != "", "disable colored output")
	flags.IntVar(&a.workers, "workers", defaultWorkers, "files processed concurrently (0 means one per CPU)")

	root.AddCommand(
		a.applyPatchesCommand(),
		a.makePatchesCommand(),
		a.renameCommand(),
		a.extractCommand(),
		a.setupCommand(),
		a.rebuildPatchesCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	level := logging.LevelWarn
	if strings.TrimSpace(a.logLevel) != "" {
		parsed, err := logging.ParseLevel(a.logLevel)
		if err != nil {
			return usageError{err: err}
		}
		level = parsed
	}
	if a.workers < 0 {
		return usagef("workers must be a non-negative integer (check --workers and %s)", EnvWorkers)
	}

	a.log = logging.New(level, a.stderr).With(logging.F("cmd", cmd.Name()))
	a.out = report.New(a.stdout, !a.noColor)
	a.errOut = report.New(a.stderr, !a.noColor)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.WithRunID(ctx, logging.NewRunID()))
	return nil
}

// requireFlags reports every listed flag that was left empty.
func requireFlags(cmd *cobra.Command, names ...string) error {
	var missing []string
	for _, name := range names {
		if flagEmpty(cmd.Flags().Lookup(name)) {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return usagef("%s: missing required flag(s) %s", cmd.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func flagEmpty(flag *pflag.Flag) bool {
	if flag == nil {
		return true
	}
	if values, ok := flag.Value.(pflag.SliceValue); ok {
		return len(values.GetSlice()) == 0
	}
	return strings.TrimSpace(flag.Value.String()) == ""
}
