// Package workspace acquires disposable local checkouts for runs and
// guarantees their removal.
package workspace

import (
	"context"
	"fmt"
)

// Target identifies what to check out for one run.
type Target struct {
	RunID     string
	Owner     string
	Repo      string
	Branch    string
	PRNumber  int
	CommitSHA string
	CloneURL  string // overrides the URL derived from Owner/Repo
}

// Provider acquires and releases workspaces. Each Acquire returns a
// directory private to the target's run. The path is returned even when
// Acquire fails; releasing it is always safe.
type Provider interface {
	Acquire(ctx context.Context, t Target) (string, error)
	Release(path string) error
}

// CloneError reports that no checkout could be produced for a target.
type CloneError struct {
	Repo   string
	Branch string
	Err    error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone %s@%s: %v", e.Repo, e.Branch, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }
