package score

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/patchpilot/internal/model"
)

func findings(cat model.Category, sev model.Severity, file string, n int) []model.Finding {
	out := make([]model.Finding, n)
	for i := range out {
		out[i] = model.Finding{Category: cat, Severity: sev, FilePath: file}
	}
	return out
}

func TestAggregate_Empty(t *testing.T) {
	m := Aggregate(nil)
	assert.Equal(t, 0, m.Total)
	assert.Equal(t, 100, m.SecurityScore)
	assert.Equal(t, 100, m.PerformanceScore)
	assert.Equal(t, 100, m.QualityScore)
	assert.Equal(t, 100, m.OverallScore)
	assert.Empty(t, m.Files)
}

func TestAggregate_Scores(t *testing.T) {
	var fs []model.Finding
	fs = append(fs, findings(model.CategorySecurity, model.SeverityHigh, "a.java", 2)...)
	fs = append(fs, findings(model.CategoryVulnerability, model.SeverityHigh, "b.c", 1)...)
	fs = append(fs, findings(model.CategoryPerformance, model.SeverityMedium, "a.java", 3)...)
	fs = append(fs, findings(model.CategoryCodeQuality, model.SeverityLow, "c.go", 4)...)
	fs = append(fs, findings(model.CategoryBestPractice, model.SeverityLow, "c.go", 5)...)

	m := Aggregate(fs)
	assert.Equal(t, 15, m.Total)
	assert.Equal(t, 100-20-15, m.SecurityScore)
	assert.Equal(t, 100-24, m.PerformanceScore)
	assert.Equal(t, 100-20-15, m.QualityScore)
	assert.Equal(t, (65+76+65)/3, m.OverallScore)
	assert.Equal(t, 3, m.BySeverity[model.SeverityHigh])
	assert.Equal(t, 3, m.BySeverity[model.SeverityMedium])
	assert.Equal(t, 9, m.BySeverity[model.SeverityLow])
	assert.Equal(t, 4, m.ByCategory[model.CategoryCodeQuality])
	assert.Equal(t, []string{"a.java", "b.c", "c.go"}, m.Files)
}

func TestAggregate_ScoresFloorAtZero(t *testing.T) {
	fs := findings(model.CategoryVulnerability, model.SeverityHigh, "x.c", 20)
	fs = append(fs, findings(model.CategoryPerformance, model.SeverityMedium, "x.c", 13)...)
	m := Aggregate(fs)
	assert.Equal(t, 0, m.SecurityScore)
	assert.Equal(t, 0, m.PerformanceScore)
	assert.Equal(t, 100, m.QualityScore)
	assert.Equal(t, 33, m.OverallScore)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	var fs []model.Finding
	fs = append(fs, findings(model.CategorySecurity, model.SeverityHigh, "z.js", 3)...)
	fs = append(fs, findings(model.CategoryComplexity, model.SeverityMedium, "a.js", 2)...)
	fs = append(fs, findings(model.CategoryBestPractice, model.SeverityLow, "m.js", 4)...)
	fs = append(fs, findings(model.CategoryArchitecture, model.SeverityMedium, "a.js", 1)...)

	want := Aggregate(fs)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]model.Finding(nil), fs...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Aggregate(shuffled))
	}
}
