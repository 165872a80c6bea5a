package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/artpar/lambdaship/internal/core/deployment"
	"github.com/artpar/lambdaship/internal/shell/journal"
)

// =============================================================================
// Styles
// =============================================================================

var (
	colorAccent  = lipgloss.Color("#20B9B4")
	colorBorder  = lipgloss.Color("#16858E")
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#2C4A54")
)

// styles holds the history styling bound to one output. Colors are dropped
// when the output is not a terminal.
type styles struct {
	header  lipgloss.Style
	cell    lipgloss.Style
	border  lipgloss.Style
	err     lipgloss.Style
	success lipgloss.Style
	failed  lipgloss.Style
	pending lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(colorAccent),
		cell:    r.NewStyle(),
		border:  r.NewStyle().Foreground(colorBorder),
		err:     r.NewStyle().Foreground(colorError),
		success: r.NewStyle().Foreground(colorSuccess),
		failed:  r.NewStyle().Foreground(colorError),
		pending: r.NewStyle().Foreground(colorMuted),
	}
}

// status colors text by run status.
func (s styles) status(status journal.RunStatus) lipgloss.Style {
	switch status {
	case journal.StatusSucceeded:
		return s.success
	case journal.StatusFailed:
		return s.failed
	default:
		return s.pending
	}
}

// table returns a bordered table with padded cells.
func (s styles) table(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.border).
		Headers(headers...)
}

// =============================================================================
// History Tables
// =============================================================================

const runStatusColumn = 2

// renderRuns renders one row per run, newest first as given.
func (s styles) renderRuns(runs []journal.Run) string {
	t := s.table("RUN", "STARTED", "STATUS", "FUNCTIONS", "ENVIRONMENTS").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return s.header.Padding(0, 1)
			case col == runStatusColumn && row < len(runs):
				return s.status(runs[row].Status).Padding(0, 1)
			default:
				return s.cell.Padding(0, 1)
			}
		})

	for _, r := range runs {
		t.Row(
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Status),
			strings.Join(r.Functions, ","),
			environmentList(r.Environments),
		)
	}
	return t.String()
}

// renderRunDetail renders the status line of a run followed by its
// deployments.
func (s styles) renderRunDetail(run *journal.Run, deployments []journal.Deployment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s\n", run.ID, s.status(run.Status).Render(string(run.Status)))
	if run.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", s.err.Render(run.Error))
	}

	t := s.table("ENVIRONMENT", "FUNCTION", "REMOTE NAME", "SIZE", "DEPLOYED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header.Padding(0, 1)
			}
			return s.cell.Padding(0, 1)
		})

	for _, d := range deployments {
		t.Row(
			deployment.Environment(d.Environment).String(),
			d.FunctionName,
			d.RemoteName,
			strconv.FormatInt(d.ZipSize, 10),
			d.DeployedAt.Local().Format(time.DateTime),
		)
	}
	b.WriteString(t.String())
	return b.String()
}

func environmentList(envs []string) string {
	if len(envs) == 0 {
		return deployment.DefaultEnvironment.String()
	}
	return strings.Join(envs, ",")
}
