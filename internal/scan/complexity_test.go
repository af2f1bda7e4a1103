package scan

import (
	"strconv"
	"strings"
	"testing"

	"github.com/ppiankov/patchpilot/internal/model"
)

func method(header string, lines int) string {
	var b strings.Builder
	b.WriteString(header + " {\n")
	for i := 0; i < lines-2; i++ {
		b.WriteString("    counter++;\n")
	}
	b.WriteString("}")
	return b.String()
}

func complexityFindings(findings []model.Finding) []model.Finding {
	var out []model.Finding
	for _, f := range findings {
		if f.Category == model.CategoryComplexity {
			out = append(out, f)
		}
	}
	return out
}

func TestComplexity(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		cyclomatic int
		cognitive  int
	}{
		{"empty", "", 1, 0},
		{"operators", "if (a && b || c) { for (;;) { while (x) { } } }", 6, 8},
		{"else if counted once", "if (a) {} else if (b) {}", 3, 2},
		{"switch", "switch (x) { case 1: break; case 2: break; }", 4, 1},
		{"catch", "try { } catch (e) { }", 2, 1},
		{"do loop", "do { } while (x);", 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Complexity(tt.content)
			if got.Cyclomatic != tt.cyclomatic {
				t.Errorf("Cyclomatic = %d, want %d", got.Cyclomatic, tt.cyclomatic)
			}
			if got.Cognitive != tt.cognitive {
				t.Errorf("Cognitive = %d, want %d", got.Cognitive, tt.cognitive)
			}
		})
	}
}

func TestAnalyzeComplexity_FileLevel(t *testing.T) {
	tests := []struct {
		ifs  int
		want model.Severity
	}{
		{5, 0},
		{12, model.SeverityMedium},
		{25, model.SeverityHigh},
	}
	for _, tt := range tests {
		content := strings.Repeat("if (x) y();\n", tt.ifs)
		got := complexityFindings(analyzeComplexity(newSource("f.js", content)))
		if tt.want == 0 {
			if len(got) != 0 {
				t.Errorf("%d ifs: findings = %d, want 0", tt.ifs, len(got))
			}
			continue
		}
		if len(got) != 1 {
			t.Fatalf("%d ifs: findings = %d, want 1", tt.ifs, len(got))
		}
		f := got[0]
		if f.Severity != tt.want {
			t.Errorf("%d ifs: severity = %s, want %s", tt.ifs, f.Severity, tt.want)
		}
		if f.LineNumber != 1 || f.Title != "High Code Complexity Detected" {
			t.Errorf("unexpected finding %+v", f)
		}
		sc := Complexity(content)
		for _, n := range []int{sc.Cyclomatic, sc.Cognitive} {
			if !strings.Contains(f.Description, strconv.Itoa(n)) {
				t.Errorf("description %q missing %d", f.Description, n)
			}
		}
	}
}

func TestAnalyze_LongMethod120Lines(t *testing.T) {
	content := method("public void process()", 120)
	if n := strings.Count(content, "\n") + 1; n != 120 {
		t.Fatalf("fixture has %d lines", n)
	}

	got := complexityFindings(newTestScanner().Analyze("Processor.java", content))
	if len(got) != 1 {
		t.Fatalf("complexity findings = %d, want 1: %+v", len(got), got)
	}
	f := got[0]
	if f.Severity != model.SeverityHigh {
		t.Errorf("Severity = %s, want HIGH", f.Severity)
	}
	if !strings.Contains(f.Description, "120") {
		t.Errorf("Description = %q, want it to contain 120", f.Description)
	}
	if f.LineNumber != 1 || f.EndLineNumber != 120 {
		t.Errorf("lines = %d-%d, want 1-120", f.LineNumber, f.EndLineNumber)
	}
}

func TestAnalyzeComplexity_MethodLengths(t *testing.T) {
	tests := []struct {
		name  string
		lines int
		want  model.Severity
	}{
		{"short", 30, 0},
		{"exactly fifty", 50, 0},
		{"long", 60, model.SeverityMedium},
		{"very long", 101, model.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "// header\n" + method("function handle(req)", tt.lines)
			got := complexityFindings(analyzeComplexity(newSource("h.js", content)))
			if tt.want == 0 {
				if len(got) != 0 {
					t.Fatalf("findings = %d, want 0", len(got))
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("findings = %d, want 1", len(got))
			}
			if got[0].Severity != tt.want {
				t.Errorf("Severity = %s, want %s", got[0].Severity, tt.want)
			}
			if got[0].LineNumber != 2 {
				t.Errorf("LineNumber = %d, want 2", got[0].LineNumber)
			}
		})
	}
}
