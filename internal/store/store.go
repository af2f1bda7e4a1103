// Package store persists repositories, pull requests, runs, findings and
// suggested patches. Ownership is by id only: deleting a run removes its
// patches, then its findings, then the run itself.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/patchpilot/internal/model"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPatchAlreadyApplied = errors.New("patch already applied")
	ErrRunTerminal         = errors.New("run is in a terminal state")
	ErrRunNotPending       = errors.New("run is not pending")
)

// Store is the persistence boundary. Implementations are safe for
// concurrent use.
type Store interface {
	SaveRepo(ctx context.Context, r *model.Repo) error
	Repo(ctx context.Context, id string) (*model.Repo, error)
	RepoByName(ctx context.Context, name string) (*model.Repo, error)
	Repos(ctx context.Context) ([]model.Repo, error)

	SavePullRequest(ctx context.Context, pr *model.PullRequest) error
	PullRequest(ctx context.Context, id string) (*model.PullRequest, error)
	PullRequestByNumber(ctx context.Context, repoID string, number int) (*model.PullRequest, error)
	PullRequestsForRepo(ctx context.Context, repoID string) ([]model.PullRequest, error)

	// SaveRun inserts or updates a run. Updating a run that is already
	// terminal returns ErrRunTerminal.
	SaveRun(ctx context.Context, r *model.Run) error
	Run(ctx context.Context, id string) (*model.Run, error)
	// ClaimRun moves a PENDING run to IN_PROGRESS with StartedAt set and
	// returns it. Only one caller can claim a run; the others get
	// ErrRunNotPending.
	ClaimRun(ctx context.Context, id string, at time.Time) (*model.Run, error)
	// RunsForPullRequest returns runs newest first.
	RunsForPullRequest(ctx context.Context, pullRequestID string) ([]model.Run, error)
	RunsByStatus(ctx context.Context, status model.RunStatus) ([]model.Run, error)
	RecentRuns(ctx context.Context, limit int) ([]model.Run, error)

	// CompleteRun saves the terminal run together with its findings and
	// patches. Either everything is written or nothing is.
	CompleteRun(ctx context.Context, r *model.Run, findings []model.Finding, patches []model.SuggestedPatch) error
	FindingsForRun(ctx context.Context, runID string) ([]model.Finding, error)
	Patch(ctx context.Context, id string) (*model.SuggestedPatch, error)
	PatchesForFinding(ctx context.Context, findingID string) ([]model.SuggestedPatch, error)
	// ApplyPatch marks a patch applied. A patch that is already applied is
	// left unchanged and ErrPatchAlreadyApplied is returned.
	ApplyPatch(ctx context.Context, id, appliedBy string, at time.Time) (*model.SuggestedPatch, error)

	DeleteRun(ctx context.Context, id string) error
	Close() error
}

// Open returns the backend named by driver ("sqlite" or "memory").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// LatestRun returns the newest run of a pull request, or nil if it has none.
func LatestRun(ctx context.Context, s Store, pullRequestID string) (*model.Run, error) {
	runs, err := s.RunsForPullRequest(ctx, pullRequestID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	r := runs[0]
	return &r, nil
}

func checkCompletion(r *model.Run, findings []model.Finding, patches []model.SuggestedPatch) error {
	if !r.Status.IsTerminal() {
		return fmt.Errorf("complete run %s: status %s is not terminal", r.ID, r.Status)
	}
	ids := make(map[string]bool, len(findings))
	for _, f := range findings {
		if f.RunID != r.ID {
			return fmt.Errorf("complete run %s: finding %s belongs to run %s", r.ID, f.ID, f.RunID)
		}
		ids[f.ID] = true
	}
	for _, p := range patches {
		if !ids[p.FindingID] {
			return fmt.Errorf("complete run %s: patch %s references unknown finding %s", r.ID, p.ID, p.FindingID)
		}
	}
	return nil
}
