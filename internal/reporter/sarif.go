package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/patchpilot/internal/model"
)

const (
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"
	sarifVersion = "2.1.0"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine,omitempty"`
}

// SARIFFormatter writes a SARIF v2.1.0 log with one result per finding.
type SARIFFormatter struct{}

func NewSARIFFormatter() *SARIFFormatter { return &SARIFFormatter{} }

func (f *SARIFFormatter) Format(w io.Writer, r *Report) error {
	results := make([]sarifResult, 0, len(r.Findings))
	var rules []sarifRule
	seen := make(map[string]bool)

	for _, fd := range r.Findings {
		id := RuleID(fd)
		if !seen[id] {
			seen[id] = true
			rules = append(rules, sarifRule{
				ID:               id,
				Name:             fd.Title,
				ShortDescription: sarifMessage{Text: fd.Title},
			})
		}

		region := &sarifRegion{StartLine: fd.LineNumber}
		if fd.EndLineNumber > fd.LineNumber {
			region.EndLine = fd.EndLineNumber
		}
		results = append(results, sarifResult{
			RuleID:  id,
			Level:   sarifLevel(fd.Severity),
			Message: sarifMessage{Text: fd.Description},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: fd.FilePath},
					Region:           region,
				},
			}},
		})
	}

	sarif := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: "patchpilot", Rules: rules}},
			Results: results,
		}},
	}

	data, err := json.MarshalIndent(sarif, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sarif: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write sarif: %w", err)
	}
	return nil
}

// RuleID derives a stable rule identifier from a finding's category and
// title, e.g. "security/hardcoded-credentials-detected".
func RuleID(f model.Finding) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, f.Title)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.ToLower(string(f.Category)) + "/" + strings.Trim(slug, "-")
}

func sarifLevel(s model.Severity) string {
	switch s {
	case model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
