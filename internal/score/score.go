// Package score reduces a run's findings to counts and 0-100 scores.
package score

import (
	"sort"

	"github.com/ppiankov/patchpilot/internal/model"
)

// Score weights per finding.
const (
	securityWeight      = 10
	vulnerabilityWeight = 15
	performanceWeight   = 8
	codeQualityWeight   = 5
	bestPracticeWeight  = 3
)

// Aggregate computes metrics over findings. It is pure and the result does
// not depend on input order.
func Aggregate(findings []model.Finding) model.Metrics {
	m := model.Metrics{
		Total:      len(findings),
		BySeverity: make(map[model.Severity]int),
		ByCategory: make(map[model.Category]int),
		Files:      []string{},
	}

	files := make(map[string]bool)
	for _, f := range findings {
		m.BySeverity[f.Severity]++
		m.ByCategory[f.Category]++
		if f.FilePath != "" && !files[f.FilePath] {
			files[f.FilePath] = true
			m.Files = append(m.Files, f.FilePath)
		}
	}
	sort.Strings(m.Files)

	c := m.ByCategory
	m.SecurityScore = floorZero(100 -
		securityWeight*c[model.CategorySecurity] -
		vulnerabilityWeight*c[model.CategoryVulnerability])
	m.PerformanceScore = floorZero(100 - performanceWeight*c[model.CategoryPerformance])
	m.QualityScore = floorZero(100 -
		codeQualityWeight*c[model.CategoryCodeQuality] -
		bestPracticeWeight*c[model.CategoryBestPractice])
	m.OverallScore = (m.SecurityScore + m.PerformanceScore + m.QualityScore) / 3

	return m
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
