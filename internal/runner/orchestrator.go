// Package runner drives runs through their lifecycle: it acquires a
// workspace, analyzes it, persists the results and releases the workspace
// on every exit path. The Dispatcher feeds run ids to a pool of workers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/redact"
	"github.com/ppiankov/patchpilot/internal/scan"
	"github.com/ppiankov/patchpilot/internal/score"
	"github.com/ppiankov/patchpilot/internal/store"
	"github.com/ppiankov/patchpilot/internal/suggest"
	"github.com/ppiankov/patchpilot/internal/telemetry"
	"github.com/ppiankov/patchpilot/internal/workspace"
)

// ErrNoFiles is recorded when a workspace holds nothing to analyze.
var ErrNoFiles = errors.New("no analyzable files")

// Config wires an Orchestrator to its collaborators.
type Config struct {
	Store     store.Store
	Workspace workspace.Provider
	Scanner   *scan.Scanner
	Suggester *suggest.Generator
	Scan      scan.Options
	// Secrets are literal values removed from persisted error messages.
	Secrets []string
}

// Orchestrator executes runs.
type Orchestrator struct {
	cfg Config
	now func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, now: time.Now}
}

// Execute moves a PENDING run to a terminal state. Runs that are not
// PENDING are left untouched, so a run id delivered twice executes once.
// The returned error describes why the run failed; the failure itself is
// already recorded on the run.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	run, err := o.cfg.Store.ClaimRun(ctx, runID, o.now())
	if errors.Is(err, store.ErrRunNotPending) {
		slog.Info("run is not pending, skipping", "run", runID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	slog.Info("run started", "run", runID, "pull_request", run.PullRequestID, "commit", run.CommitSHA)

	findings, patches, metrics, err := o.analyze(ctx, run)
	if err != nil {
		return o.fail(ctx, run, err)
	}

	completed := o.now()
	run.Status = model.RunCompleted
	run.CompletedAt = &completed
	run.Metrics = &metrics
	if err := o.cfg.Store.CompleteRun(ctx, run, findings, patches); err != nil {
		return o.fail(ctx, run, fmt.Errorf("persist results: %w", err))
	}

	telemetry.RunsTotal.WithLabelValues(string(model.RunCompleted)).Inc()
	telemetry.RunDuration.Observe(completed.Sub(*run.StartedAt).Seconds())
	for _, f := range findings {
		telemetry.FindingsTotal.WithLabelValues(string(f.Category)).Inc()
	}
	slog.Info("run completed", "run", runID,
		"findings", len(findings),
		"suggestions", len(patches),
		"overall_score", metrics.OverallScore,
		"duration", completed.Sub(*run.StartedAt).Round(time.Millisecond))
	return nil
}

// analyze acquires the workspace, scans it and builds the run's results.
// Nothing is persisted here.
func (o *Orchestrator) analyze(ctx context.Context, run *model.Run) ([]model.Finding, []model.SuggestedPatch, model.Metrics, error) {
	pr, err := o.cfg.Store.PullRequest(ctx, run.PullRequestID)
	if err != nil {
		return nil, nil, model.Metrics{}, fmt.Errorf("load pull request %s: %w", run.PullRequestID, err)
	}
	repo, err := o.cfg.Store.Repo(ctx, pr.RepoID)
	if err != nil {
		return nil, nil, model.Metrics{}, fmt.Errorf("load repo %s: %w", pr.RepoID, err)
	}

	owner, name := model.SplitRepoName(repo.Name)
	target := workspace.Target{
		RunID:     run.ID,
		Owner:     owner,
		Repo:      name,
		Branch:    pr.SourceBranch,
		PRNumber:  pr.Number,
		CommitSHA: run.CommitSHA,
		CloneURL:  repo.CloneURL,
	}

	dir, err := o.cfg.Workspace.Acquire(ctx, target)
	defer o.release(run.ID, dir)
	if err != nil {
		return nil, nil, model.Metrics{}, err
	}

	result, err := o.cfg.Scanner.ScanDir(ctx, dir, o.cfg.Scan)
	if err != nil {
		return nil, nil, model.Metrics{}, fmt.Errorf("scan workspace: %w", err)
	}
	if len(result.FilesScanned) == 0 {
		return nil, nil, model.Metrics{}, ErrNoFiles
	}

	now := o.now()
	findings := result.Findings
	for i := range findings {
		findings[i].ID = model.NewID()
		findings[i].RunID = run.ID
		findings[i].CreatedAt = now
	}

	metrics := score.Aggregate(findings)
	slog.Info("analysis finished", "run", run.ID,
		"files", len(result.FilesScanned),
		"skipped", len(result.Skipped),
		"findings", metrics.Total,
		"security_score", metrics.SecurityScore,
		"performance_score", metrics.PerformanceScore,
		"quality_score", metrics.QualityScore)

	var patches []model.SuggestedPatch
	if o.cfg.Suggester != nil {
		patches = o.cfg.Suggester.SuggestAll(ctx, findings)
	}
	return findings, patches, metrics, nil
}

func (o *Orchestrator) release(runID, dir string) {
	if err := o.cfg.Workspace.Release(dir); err != nil {
		slog.Warn("release workspace", "run", runID, "path", dir, "error", err)
	}
}

// fail records the run as FAILED. The persisted message has credentials
// redacted.
func (o *Orchestrator) fail(ctx context.Context, run *model.Run, cause error) error {
	msg, _ := redact.String(cause.Error())
	msg = redact.Values(msg, o.cfg.Secrets...)

	completed := o.now()
	run.Status = model.RunFailed
	run.ErrorMessage = msg
	run.CompletedAt = &completed
	run.Metrics = nil

	// the failure is recorded even when the caller's context is done
	if err := o.cfg.Store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Error("record run failure", "run", run.ID, "error", err)
	}

	telemetry.RunsTotal.WithLabelValues(string(model.RunFailed)).Inc()
	if run.StartedAt != nil {
		telemetry.RunDuration.Observe(completed.Sub(*run.StartedAt).Seconds())
	}

	var ce *workspace.CloneError
	if errors.As(cause, &ce) {
		slog.Warn("run failed: workspace unavailable", "run", run.ID, "repo", ce.Repo, "branch", ce.Branch)
	} else {
		slog.Warn("run failed", "run", run.ID, "error", msg)
	}
	return fmt.Errorf("run %s: %w", run.ID, cause)
}
