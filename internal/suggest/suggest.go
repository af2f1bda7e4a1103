// Package suggest produces remediation text for high-severity findings,
// preferring an AI completion and falling back to a rule-based document.
package suggest

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/telemetry"
)

// DefaultMaxSuggestions caps suggestions per run.
const DefaultMaxSuggestions = 20

// Source records which strategy produced a suggestion.
type Source string

const (
	SourceAI    Source = "ai"
	SourceRules Source = "rules"
)

// Completer is the external text-completion collaborator.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config selects the strategy once at construction.
type Config struct {
	AI             *AIConfig // nil disables the AI strategy
	MaxSuggestions int       // 0 means DefaultMaxSuggestions
}

// Generator produces suggestions. It is safe for concurrent use.
type Generator struct {
	ai  Completer
	max int
	now func() time.Time
}

// New creates a generator. The AI strategy is used only when cfg.AI is set
// and carries an API key.
func New(cfg Config) *Generator {
	var ai Completer
	if cfg.AI != nil && cfg.AI.APIKey != "" {
		ai = NewClient(*cfg.AI)
	}
	return NewWithCompleter(ai, cfg.MaxSuggestions)
}

// NewWithCompleter creates a generator around an explicit completer, which
// may be nil for rule-based only.
func NewWithCompleter(ai Completer, maxSuggestions int) *Generator {
	if maxSuggestions <= 0 {
		maxSuggestions = DefaultMaxSuggestions
	}
	return &Generator{ai: ai, max: maxSuggestions, now: time.Now}
}

// AIEnabled reports whether the AI strategy is active.
func (g *Generator) AIEnabled() bool {
	return g.ai != nil
}

// Suggest returns remediation text for one finding. AI failures of any kind
// fall back to the rule-based text, so the result is never empty.
func (g *Generator) Suggest(ctx context.Context, f model.Finding) (string, Source) {
	if g.ai != nil {
		text, err := g.ai.Complete(ctx, systemPrompt, BuildPrompt(f))
		if err == nil && text != "" {
			return text, SourceAI
		}
		slog.Warn("ai suggestion failed, using rule-based fallback",
			"finding", f.ID, "title", f.Title, "error", err)
	}
	return RuleBased(f), SourceRules
}

// SuggestAll generates patches for HIGH findings in input order, stopping at
// the configured cap. Findings past the cap get no suggestion. Calls are
// sequential.
func (g *Generator) SuggestAll(ctx context.Context, findings []model.Finding) []model.SuggestedPatch {
	var patches []model.SuggestedPatch
	for _, f := range findings {
		if len(patches) >= g.max {
			break
		}
		if f.Severity != model.SeverityHigh {
			continue
		}
		text, src := g.Suggest(ctx, f)
		telemetry.SuggestionsTotal.WithLabelValues(string(src)).Inc()
		patches = append(patches, model.SuggestedPatch{
			ID:          model.NewID(),
			FindingID:   f.ID,
			Explanation: text,
			CreatedAt:   g.now(),
		})
	}
	return patches
}
