package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/patchpilot/internal/model"
)

var (
	boldStyle   = lipgloss.NewStyle().Bold(true)
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true) // red
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))           // yellow
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))           // green
)

// TextFormatter writes human-readable output grouped by file.
type TextFormatter struct {
	color bool
}

// NewTextFormatter creates a text formatter with optional color.
func NewTextFormatter(color bool) *TextFormatter {
	return &TextFormatter{color: color}
}

func (f *TextFormatter) Format(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "%s — %d files, %d findings\n\n",
		f.render(boldStyle, "patchpilot scan"), r.FilesScanned, len(r.Findings))

	var file string
	for _, fd := range r.Findings {
		if fd.FilePath != file {
			if file != "" {
				fmt.Fprintln(w)
			}
			file = fd.FilePath
			fmt.Fprintln(w, f.render(boldStyle, file))
		}
		fmt.Fprintf(w, "  %s %5d  %-14s %s\n",
			f.severityLabel(fd.Severity), fd.LineNumber, fd.Category, fd.Title)
		if fd.Description != "" {
			fmt.Fprintf(w, "                %s\n", f.render(lowStyle, fd.Description))
		}
	}
	if file != "" {
		fmt.Fprintln(w)
	}

	m := r.Metrics
	var parts []string
	for _, sev := range []model.Severity{model.SeverityHigh, model.SeverityMedium, model.SeverityLow} {
		if n := m.BySeverity[sev]; n > 0 {
			parts = append(parts, f.render(f.severityStyle(sev), fmt.Sprintf("%d %s", n, strings.ToLower(sev.String()))))
		}
	}
	fmt.Fprintf(w, "Summary: %d files scanned", r.FilesScanned)
	if len(parts) > 0 {
		fmt.Fprintf(w, ", %s", strings.Join(parts, ", "))
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, ", %d skipped", len(r.Skipped))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Scores: security %s  performance %s  quality %s  overall %s\n",
		f.score(m.SecurityScore), f.score(m.PerformanceScore), f.score(m.QualityScore), f.score(m.OverallScore))
	return nil
}

func (f *TextFormatter) render(s lipgloss.Style, text string) string {
	if !f.color {
		return text
	}
	return s.Render(text)
}

func (f *TextFormatter) severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityHigh:
		return highStyle
	case model.SeverityMedium:
		return mediumStyle
	default:
		return lowStyle
	}
}

func (f *TextFormatter) severityLabel(s model.Severity) string {
	return f.render(f.severityStyle(s), fmt.Sprintf("%-6s", s))
}

func (f *TextFormatter) score(n int) string {
	text := fmt.Sprintf("%d", n)
	switch {
	case n >= 80:
		return f.render(goodStyle, text)
	case n >= 50:
		return f.render(mediumStyle, text)
	default:
		return f.render(highStyle, text)
	}
}
