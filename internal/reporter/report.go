// Package reporter renders analysis results as text, JSON or SARIF, and
// provides the live run view.
package reporter

import (
	"fmt"
	"io"
	"sort"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/scan"
	"github.com/ppiankov/patchpilot/internal/score"
)

// Report is one analysis ready for rendering.
type Report struct {
	Root         string          `json:"root"`
	FilesScanned int             `json:"files_scanned"`
	Skipped      []string        `json:"skipped,omitempty"`
	Metrics      model.Metrics   `json:"metrics"`
	Findings     []model.Finding `json:"findings"`
}

// FromResult builds a report from a directory scan. Findings are ordered by
// file, then line; order within a line is kept.
func FromResult(res *scan.Result) *Report {
	findings := make([]model.Finding, len(res.Findings))
	copy(findings, res.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].FilePath != findings[j].FilePath {
			return findings[i].FilePath < findings[j].FilePath
		}
		return findings[i].LineNumber < findings[j].LineNumber
	})
	if findings == nil {
		findings = []model.Finding{}
	}
	return &Report{
		Root:         res.Root,
		FilesScanned: len(res.FilesScanned),
		Skipped:      res.Skipped,
		Metrics:      score.Aggregate(findings),
		Findings:     findings,
	}
}

// Formatter writes a report.
type Formatter interface {
	Format(w io.Writer, r *Report) error
}

// ForFormat returns the formatter for name: text, json or sarif.
func ForFormat(name string, color bool) (Formatter, error) {
	switch name {
	case "", "text":
		return NewTextFormatter(color), nil
	case "json":
		return NewJSONFormatter(), nil
	case "sarif":
		return NewSARIFFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want text, json or sarif)", name)
	}
}
