package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/scan"
)

func sampleResult() *scan.Result {
	return &scan.Result{
		Root:         "/src",
		FilesScanned: []string{"b.js", "a.java"},
		Skipped:      []string{"big.js"},
		Findings: []model.Finding{
			{FilePath: "b.js", LineNumber: 4, Severity: model.SeverityLow, Category: model.CategoryBestPractice,
				Title: "Console Statement in Production Code", Description: "Remove console statements."},
			{FilePath: "a.java", LineNumber: 2, Severity: model.SeverityHigh, Category: model.CategorySecurity,
				Title: "Hardcoded Credentials Detected", Description: "Credentials in code."},
			{FilePath: "a.java", LineNumber: 1, EndLineNumber: 120, Severity: model.SeverityHigh, Category: model.CategoryComplexity,
				Title: "Long Method Detected", Description: "This method has 120 lines."},
		},
	}
}

func TestFromResult(t *testing.T) {
	r := FromResult(sampleResult())
	if r.FilesScanned != 2 {
		t.Errorf("FilesScanned = %d, want 2", r.FilesScanned)
	}
	if r.Findings[0].FilePath != "a.java" || r.Findings[0].LineNumber != 1 {
		t.Errorf("first finding = %s:%d, want a.java:1", r.Findings[0].FilePath, r.Findings[0].LineNumber)
	}
	if r.Metrics.Total != 3 || r.Metrics.SecurityScore != 90 {
		t.Errorf("metrics = %+v", r.Metrics)
	}
}

func TestForFormat(t *testing.T) {
	for _, name := range []string{"", "text", "json", "sarif"} {
		if _, err := ForFormat(name, false); err != nil {
			t.Errorf("ForFormat(%q): %v", name, err)
		}
	}
	if _, err := ForFormat("xml", false); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextFormatter(false).Format(&buf, FromResult(sampleResult())); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"patchpilot scan — 2 files, 3 findings",
		"a.java",
		"Hardcoded Credentials Detected",
		"HIGH",
		"Summary: 2 files scanned, 2 high, 1 low, 1 skipped",
		"security 90",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("color disabled but output has escape codes")
	}
	if strings.Index(out, "a.java") > strings.Index(out, "b.js") {
		t.Error("files should be listed in order")
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter().Format(&buf, FromResult(sampleResult())); err != nil {
		t.Fatal(err)
	}
	var got Report
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(got.Findings) != 3 {
		t.Errorf("findings = %d, want 3", len(got.Findings))
	}
	if !strings.Contains(buf.String(), `"severity": "HIGH"`) {
		t.Error("severity should be encoded by name")
	}
}
