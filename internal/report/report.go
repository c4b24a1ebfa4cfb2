// Package report renders command results for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/asynkron/srcpatch/internal/metrics"
	"github.com/asynkron/srcpatch/pkg/patch"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Printer writes styled status lines.
type Printer struct {
	w        io.Writer
	heading  lipgloss.Style
	added    lipgloss.Style
	modified lipgloss.Style
	deleted  lipgloss.Style
	failed   lipgloss.Style
	muted    lipgloss.Style
}

// New returns a printer for w. When color is false every style renders as
// plain text.
func New(w io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return newPrinter(w, r)
}

func newPrinter(w io.Writer, r *lipgloss.Renderer) *Printer {
	return &Printer{
		w:        w,
		heading:  r.NewStyle().Bold(true),
		added:    r.NewStyle().Foreground(lipgloss.Color("2")),
		modified: r.NewStyle().Foreground(lipgloss.Color("3")),
		deleted:  r.NewStyle().Foreground(lipgloss.Color("5")),
		failed:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:    r.NewStyle().Faint(true),
	}
}

// Heading prints a stage title.
func (p *Printer) Heading(format string, args ...any) {
	fmt.Fprintln(p.w, p.heading.Render(fmt.Sprintf(format, args...)))
}

// Status prints one file result: A added, M modified, D deleted, R
// relocated, X extracted.
func (p *Printer) Status(status, path string) {
	style := p.modified
	switch status {
	case "A", "X":
		style = p.added
	case "D":
		style = p.deleted
	}
	fmt.Fprintf(p.w, "  %s %s\n", style.Render(status), path)
}

// Note prints a de-emphasised line.
func (p *Printer) Note(format string, args ...any) {
	fmt.Fprintln(p.w, p.muted.Render(fmt.Sprintf(format, args...)))
}

// Failure prints a failed path and the indented details of its error.
func (p *Printer) Failure(err *patch.Error, withContent bool) {
	fmt.Fprintf(p.w, "  %s %s\n", p.failed.Render("!"), err.RelativePath)
	for _, line := range strings.Split(strings.TrimRight(patch.FormatError(err, withContent), "\n"), "\n") {
		fmt.Fprintf(p.w, "      %s\n", line)
	}
}

// Error prints a failure that is not tied to a single file.
func (p *Printer) Error(err error) {
	fmt.Fprintf(p.w, "%s %v\n", p.failed.Render("error:"), err)
}

// Summary prints one line per recorded stage, followed by a total when more
// than one stage ran.
func (p *Printer) Summary(snap metrics.Snapshot) {
	if len(snap.Stages) == 0 {
		return
	}
	stages := snap.Stages
	if len(stages) > 1 {
		stages = append(stages[:len(stages):len(stages)], snap.Totals())
	}
	width := 0
	for _, st := range stages {
		width = max(width, len(st.Name))
	}
	for _, st := range stages {
		line := fmt.Sprintf("%-*s %d file(s)", width, st.Name, st.Files)
		if st.Failed > 0 {
			line += ", " + p.failed.Render(fmt.Sprintf("%d failed", st.Failed))
		}
		line += p.muted.Render(fmt.Sprintf(" in %s", st.TotalTime.Round(time.Millisecond)))
		fmt.Fprintln(p.w, line)
	}
}
