// Package model holds the entities shared by the analysis engine, the run
// orchestrator and the store. Ownership runs one way: a Finding carries its
// RunID and a SuggestedPatch carries its FindingID.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunPending    RunStatus = "PENDING"
	RunInProgress RunStatus = "IN_PROGRESS"
	RunCompleted  RunStatus = "COMPLETED"
	RunFailed     RunStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

// Repo is a source repository known to the system.
type Repo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"` // owner/repo
	CloneURL      string    `json:"clone_url,omitempty"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PullRequest mirrors the source-control pull request a run targets.
type PullRequest struct {
	ID           string    `json:"id"`
	RepoID       string    `json:"repo_id"`
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Author       string    `json:"author,omitempty"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch,omitempty"`
	State        string    `json:"state,omitempty"`
	HeadSHA      string    `json:"head_sha,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Metrics is the aggregate computed over one run's findings.
type Metrics struct {
	Total            int              `json:"total"`
	BySeverity       map[Severity]int `json:"by_severity"`
	ByCategory       map[Category]int `json:"by_category"`
	Files            []string         `json:"files"`
	SecurityScore    int              `json:"security_score"`
	PerformanceScore int              `json:"performance_score"`
	QualityScore     int              `json:"quality_score"`
	OverallScore     int              `json:"overall_score"`
}

// Run is one execution of the analysis pipeline against a pull request.
type Run struct {
	ID            string     `json:"id"`
	PullRequestID string     `json:"pull_request_id"`
	Status        RunStatus  `json:"status"`
	CommitSHA     string     `json:"commit_sha,omitempty"`
	TriggeredBy   string     `json:"triggered_by"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Metrics       *Metrics   `json:"metrics,omitempty"`
}

// NewRun creates a PENDING run for the given pull request.
func NewRun(pullRequestID, commitSHA, triggeredBy string, now time.Time) *Run {
	return &Run{
		ID:            NewID(),
		PullRequestID: pullRequestID,
		Status:        RunPending,
		CommitSHA:     commitSHA,
		TriggeredBy:   triggeredBy,
		CreatedAt:     now,
	}
}

// Finding is one detected issue at a specific file and line.
type Finding struct {
	ID               string           `json:"id"`
	RunID            string           `json:"run_id"`
	FilePath         string           `json:"file_path"`
	LineNumber       int              `json:"line_number"`
	EndLineNumber    int              `json:"end_line_number,omitempty"`
	Severity         Severity         `json:"severity"`
	Category         Category         `json:"category"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	CodeSnippet      string           `json:"code_snippet,omitempty"`
	IsResolved       bool             `json:"is_resolved"`
	CreatedAt        time.Time        `json:"created_at"`
	SuggestedPatches []SuggestedPatch `json:"suggested_patches,omitempty"`
}

// SuggestedPatch is remediation text attached to a finding.
type SuggestedPatch struct {
	ID          string     `json:"id"`
	FindingID   string     `json:"finding_id"`
	UnifiedDiff string     `json:"unified_diff,omitempty"`
	Explanation string     `json:"explanation"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
	AppliedBy   string     `json:"applied_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
