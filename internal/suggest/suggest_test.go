package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/patchpilot/internal/model"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func highFinding(id string) model.Finding {
	return model.Finding{
		ID:          id,
		FilePath:    "Login.java",
		LineNumber:  3,
		Severity:    model.SeverityHigh,
		Category:    model.CategorySecurity,
		Title:       "Hardcoded Credentials Detected",
		Description: "Sensitive credentials should never be hardcoded.",
		CodeSnippet: `String password = "hunter2";`,
	}
}

func TestSuggest_AIPreferred(t *testing.T) {
	fc := &fakeCompleter{reply: "move it to a vault"}
	g := NewWithCompleter(fc, 0)

	text, src := g.Suggest(context.Background(), highFinding("f1"))
	assert.Equal(t, "move it to a vault", text)
	assert.Equal(t, SourceAI, src)
	require.Len(t, fc.prompts, 1)
	assert.Contains(t, fc.prompts[0], "Issue Type: SECURITY")
	assert.Contains(t, fc.prompts[0], "Severity: HIGH")
	assert.Contains(t, fc.prompts[0], "Line: 3")
}

func TestSuggest_FallsBackOnAIFailure(t *testing.T) {
	for _, fc := range []*fakeCompleter{
		{err: errors.New("timeout")},
		{reply: ""},
	} {
		g := NewWithCompleter(fc, 0)
		text, src := g.Suggest(context.Background(), highFinding("f1"))
		assert.Equal(t, SourceRules, src)
		assert.Equal(t, RuleBased(highFinding("f1")), text)
	}
}

func TestSuggest_RulesWhenAIDisabled(t *testing.T) {
	g := New(Config{AI: &AIConfig{BaseURL: "http://127.0.0.1:1"}})
	assert.False(t, g.AIEnabled(), "AI must stay off without an API key")

	text, src := g.Suggest(context.Background(), highFinding("f1"))
	assert.Equal(t, SourceRules, src)
	assert.NotEmpty(t, text)
}

func TestRuleBased_Sections(t *testing.T) {
	text := RuleBased(highFinding("f1"))
	for _, heading := range []string{"**Root Cause:**", "**Impact:**", "**Recommended Fix:**", "**Best Practices:**", "**Prevention:**"} {
		assert.Contains(t, text, heading)
	}
	assert.Contains(t, text, "embedded directly in the source code")
	assert.Contains(t, text, "Critical security risk")
	assert.Contains(t, text, "System.getenv")
	assert.Contains(t, text, "least privilege")
}

func TestRuleBased_UnknownTitleAndCategory(t *testing.T) {
	f := model.Finding{Title: "Something New", Category: "MYSTERY", Severity: model.SeverityHigh}
	text := RuleBased(f)
	assert.Contains(t, text, "violates security, performance, or quality standards")
	assert.Contains(t, text, "Review and refactor the code")
	assert.Contains(t, text, "Code maintainability issues")
	assert.Contains(t, text, "SOLID")
}

func TestSuggestAll_HighOnlyAndCapped(t *testing.T) {
	var findings []model.Finding
	for i := 0; i < 30; i++ {
		f := highFinding("high-" + string(rune('a'+i)))
		findings = append(findings, f)
		findings = append(findings, model.Finding{ID: "low", Severity: model.SeverityLow, Title: "x"})
	}

	fc := &fakeCompleter{reply: "ok"}
	g := NewWithCompleter(fc, 0)
	patches := g.SuggestAll(context.Background(), findings)

	require.Len(t, patches, DefaultMaxSuggestions)
	assert.Len(t, fc.prompts, DefaultMaxSuggestions)
	for i, p := range patches {
		assert.Equal(t, findings[2*i].ID, p.FindingID)
		assert.Equal(t, "ok", p.Explanation)
		assert.Empty(t, p.UnifiedDiff)
		assert.False(t, p.Applied)
		assert.NotEmpty(t, p.ID)
	}
}

func TestSuggestAll_NoHighFindings(t *testing.T) {
	g := NewWithCompleter(nil, 5)
	patches := g.SuggestAll(context.Background(), []model.Finding{
		{ID: "a", Severity: model.SeverityMedium},
		{ID: "b", Severity: model.SeverityLow},
	})
	assert.Empty(t, patches)
}

func TestBuildPrompt_RedactsSecrets(t *testing.T) {
	f := highFinding("f1")
	key := "sk-" + strings.Repeat("x1", 15)
	f.CodeSnippet = `apiKey = "` + key + `"`
	p := BuildPrompt(f)
	assert.NotContains(t, p, key)
	assert.Contains(t, p, "[REDACTED]")
	assert.Contains(t, p, "5. Prevention tips for the future")
}
