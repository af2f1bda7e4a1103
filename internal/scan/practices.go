package scan

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/patchpilot/internal/model"
)

var (
	todoPattern    = regexp.MustCompile(`//\s*(TODO|FIXME|HACK|XXX)\s*:?\s*(.*)`)
	consolePattern = regexp.MustCompile(`console\.(log|debug|info|warn|error)`)
)

// scriptExtensions are the file types where console calls are flagged.
var scriptExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".ts":  true,
	".tsx": true,
	".mjs": true,
	".cjs": true,
}

// IsScript reports whether path belongs to the script family.
func IsScript(path string) bool {
	return scriptExtensions[strings.ToLower(filepath.Ext(path))]
}

func checkPractices(src *source) []model.Finding {
	var findings []model.Finding

	if strings.Contains(src.text, "catch") &&
		strings.Contains(src.text, "Exception") &&
		!strings.Contains(src.text, "log") {
		findings = append(findings, src.finding(1, model.SeverityMedium, model.CategoryBestPractice,
			"Missing Error Logging",
			"Caught exceptions should be logged for debugging purposes.",
			"",
		))
	}

	for _, m := range todoPattern.FindAllStringSubmatchIndex(src.text, -1) {
		line := src.lineAt(m[0])
		text := ""
		if m[4] >= 0 {
			text = src.text[m[4]:m[5]]
		}
		findings = append(findings, src.finding(line, model.SeverityLow, model.CategoryBestPractice,
			"Unresolved TODO Comment",
			"TODO comment found: "+text,
			src.line(line),
		))
	}

	if IsScript(src.path) {
		for _, loc := range consolePattern.FindAllStringIndex(src.text, -1) {
			line := src.lineAt(loc[0])
			findings = append(findings, src.finding(line, model.SeverityLow, model.CategoryBestPractice,
				"Console Statement in Production Code",
				"Remove console statements before deploying to production.",
				src.line(line),
			))
		}
	}

	return findings
}
