package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"modpatch/internal/diag"
	"modpatch/internal/driver"
)

const summaryLabelWidth = 12

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	unchangedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	rewrittenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	fatalStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

type summaryRow struct {
	label string
	count int
	style lipgloss.Style
}

// printSummary writes the per-outcome counts of a batch. failed counts
// modules that could not even be read.
func printSummary(out io.Writer, s driver.Summary, failed int) {
	rows := []summaryRow{
		{"unchanged", s.Unchanged, unchangedStyle},
		{"rewritten", s.Rewritten, rewrittenStyle},
		{"warning", s.Warning, warningStyle},
		{"fatal", s.Fatal + failed, fatalStyle},
	}
	if s.Defects > 0 {
		rows = append(rows, summaryRow{"rule defects", s.Defects, fatalStyle})
	}
	if s.Cached > 0 {
		rows = append(rows, summaryRow{"from cache", s.Cached, unchangedStyle})
	}

	fmt.Fprintln(out, styled(titleStyle, fmt.Sprintf("%d module(s)", s.Total+failed)))
	for _, r := range rows {
		if r.count == 0 && r.label != "fatal" {
			continue
		}
		label := padRight(r.label, summaryLabelWidth)
		fmt.Fprintf(out, "  %s %s\n", styled(r.style, label), fmt.Sprint(r.count))
	}
}

func styled(st lipgloss.Style, s string) string {
	if color.NoColor {
		return s
	}
	return st.Render(s)
}

func padRight(s string, width int) string {
	if w := runewidth.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return runewidth.Truncate(s, width, "")
}

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	noteColor    = color.New(color.Faint)
)

// printDiagnostics writes the bag sorted, one line per diagnostic followed
// by its notes. INFO lines are skipped when quiet.
func printDiagnostics(out io.Writer, bag *diag.Bag, quiet bool) {
	bag.Sort()
	for _, d := range bag.Items() {
		if quiet && d.Severity == diag.SevInfo {
			continue
		}
		fmt.Fprintln(out, severityColor(d.Severity).Sprint(d.Severity.String())+strings.TrimPrefix(d.Line(), d.Severity.String()))
		for _, n := range d.Notes {
			fmt.Fprintln(out, noteColor.Sprint("  note: "+n))
		}
	}
}

func severityColor(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return errorColor
	case diag.SevWarning:
		return warningColor
	default:
		return infoColor
	}
}
