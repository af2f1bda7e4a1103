package scan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/patchpilot/internal/model"
)

const (
	cyclomaticThreshold     = 10
	cognitiveThreshold      = 15
	cyclomaticHighThreshold = 20
	cognitiveHighThreshold  = 30

	longMethodLines     = 50
	longMethodHighLines = 100
)

var (
	branchPattern  = regexp.MustCompile(`\b(if|else if|for|while|switch|case|catch)\b`)
	ifPattern      = regexp.MustCompile(`\b(if|else if)\b`)
	loopPattern    = regexp.MustCompile(`\b(for|while|do)\b`)
	switchPattern  = regexp.MustCompile(`\bswitch\b`)
	catchPattern   = regexp.MustCompile(`\bcatch\b`)
	nestingPattern = regexp.MustCompile(`\{[^{}]*\{[^{}]*\{`)

	// modifiers and a return type may sit between the keyword and the name
	methodPattern = regexp.MustCompile(`(function|def|public|private|protected)(\s+[\w<>\[\],]+)*?\s+\w+\s*\([^)]*\)\s*\{([^{}]|\{[^{}]*\})*\}`)
)

// Scores holds the complexity metrics of one file.
type Scores struct {
	Cyclomatic int `json:"cyclomatic"`
	Cognitive  int `json:"cognitive"`
}

// Complexity computes cyclomatic and cognitive scores for content.
func Complexity(content string) Scores {
	cyclomatic := 1 + count(branchPattern, content) +
		strings.Count(content, "&&") + strings.Count(content, "||")

	cognitive := count(ifPattern, content) +
		2*count(loopPattern, content) +
		count(switchPattern, content) +
		count(catchPattern, content) +
		3*count(nestingPattern, content)

	return Scores{Cyclomatic: cyclomatic, Cognitive: cognitive}
}

func count(re *regexp.Regexp, s string) int {
	return len(re.FindAllStringIndex(s, -1))
}

func analyzeComplexity(src *source) []model.Finding {
	var findings []model.Finding

	sc := Complexity(src.text)
	if sc.Cyclomatic > cyclomaticThreshold || sc.Cognitive > cognitiveThreshold {
		sev := model.SeverityMedium
		if sc.Cyclomatic > cyclomaticHighThreshold || sc.Cognitive > cognitiveHighThreshold {
			sev = model.SeverityHigh
		}
		findings = append(findings, src.finding(1, sev, model.CategoryComplexity,
			"High Code Complexity Detected",
			fmt.Sprintf("Cyclomatic: %d, Cognitive: %d. Consider refactoring to reduce complexity.", sc.Cyclomatic, sc.Cognitive),
			"File complexity analysis",
		))
	}

	for _, loc := range methodPattern.FindAllStringIndex(src.text, -1) {
		n := strings.Count(src.text[loc[0]:loc[1]], "\n") + 1
		if n <= longMethodLines {
			continue
		}
		sev := model.SeverityMedium
		if n > longMethodHighLines {
			sev = model.SeverityHigh
		}
		line := src.lineAt(loc[0])
		f := src.finding(line, sev, model.CategoryComplexity,
			"Long Method Detected",
			fmt.Sprintf("This method has %d lines. Consider breaking it into smaller functions.", n),
			src.line(line),
		)
		f.EndLineNumber = src.lineAt(loc[1] - 1)
		findings = append(findings, f)
	}

	return findings
}
