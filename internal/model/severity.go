package model

import (
	"fmt"
	"strings"
)

// Severity represents the importance level of a finding.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity converts a string to Severity. Returns 0 if unrecognized.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(s) {
	case "LOW":
		return SeverityLow
	case "MEDIUM":
		return SeverityMedium
	case "HIGH":
		return SeverityHigh
	default:
		return 0
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	v := ParseSeverity(string(b))
	if v == 0 {
		return fmt.Errorf("unknown severity %q", string(b))
	}
	*s = v
	return nil
}

// Category groups findings by the kind of issue they describe.
type Category string

const (
	CategorySecurity      Category = "SECURITY"
	CategoryPerformance   Category = "PERFORMANCE"
	CategoryCodeQuality   Category = "CODE_QUALITY"
	CategoryVulnerability Category = "VULNERABILITY"
	CategoryAIInsight     Category = "AI_INSIGHT"
	CategoryArchitecture  Category = "ARCHITECTURE"
	CategoryComplexity    Category = "COMPLEXITY"
	CategoryBestPractice  Category = "BEST_PRACTICE"
)

// AllCategories lists every category in reporting order.
var AllCategories = []Category{
	CategorySecurity,
	CategoryVulnerability,
	CategoryPerformance,
	CategoryCodeQuality,
	CategoryAIInsight,
	CategoryArchitecture,
	CategoryComplexity,
	CategoryBestPractice,
}
