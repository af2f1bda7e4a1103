package scan

import (
	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/rules"
)

// Scanner applies a rule catalog and the heuristic analyzers to file content.
// It holds no mutable state and is safe for concurrent use.
type Scanner struct {
	catalog *rules.Catalog
}

// NewScanner creates a scanner over the given catalog.
func NewScanner(catalog *rules.Catalog) *Scanner {
	return &Scanner{catalog: catalog}
}

// Scan matches every catalog rule against content and returns one finding
// per non-overlapping match. Within a category, findings follow rule order
// and then match order.
func (s *Scanner) Scan(filePath, content string) []model.Finding {
	return s.scan(newSource(filePath, content))
}

// Analyze runs the rule scan, the complexity analyzer and the best-practice
// checks over one file.
func (s *Scanner) Analyze(filePath, content string) []model.Finding {
	src := newSource(filePath, content)
	findings := s.scan(src)
	findings = append(findings, analyzeComplexity(src)...)
	findings = append(findings, checkPractices(src)...)
	return findings
}

func (s *Scanner) scan(src *source) []model.Finding {
	var findings []model.Finding
	for _, cat := range s.catalog.Categories() {
		for _, rule := range s.catalog.RulesFor(cat) {
			for _, loc := range rule.Pattern.FindAllStringIndex(src.text, -1) {
				line := src.lineAt(loc[0])
				findings = append(findings, src.finding(
					line, rule.Severity, rule.Category,
					rule.Title, rule.Description,
					src.snippet(rule.Category, line),
				))
			}
		}
	}
	return findings
}
