package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const defaultGitBaseURL = "https://github.com"

// GitConfig configures a GitProvider.
type GitConfig struct {
	Root    string // parent of all run directories
	Token   string // optional access token for private repositories
	BaseURL string // default "https://github.com"
}

// cloneFunc clones ref of url into dir and returns the checked-out head.
type cloneFunc func(ctx context.Context, dir, url string, ref plumbing.ReferenceName, auth *githttp.BasicAuth) (*git.Repository, error)

// GitProvider clones repositories with go-git into <root>/run-<id>.
type GitProvider struct {
	cfg   GitConfig
	clone cloneFunc
}

// NewGitProvider creates a provider rooted at cfg.Root.
func NewGitProvider(cfg GitConfig) (*GitProvider, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	cfg.Root = root
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGitBaseURL
	}
	return &GitProvider{cfg: cfg, clone: plainClone}, nil
}

func plainClone(ctx context.Context, dir, url string, ref plumbing.ReferenceName, auth *githttp.BasicAuth) (*git.Repository, error) {
	opts := &git.CloneOptions{
		URL:           url,
		ReferenceName: ref,
		SingleBranch:  true,
		Depth:         1,
		Tags:          git.NoTags,
	}
	if auth != nil {
		opts.Auth = auth
	}
	return git.PlainCloneContext(ctx, dir, false, opts)
}

// URL returns the clone URL for a target.
func (p *GitProvider) URL(t Target) string {
	if t.CloneURL != "" {
		return t.CloneURL
	}
	return fmt.Sprintf("%s/%s/%s.git", strings.TrimRight(p.cfg.BaseURL, "/"), t.Owner, t.Repo)
}

// Dir returns the private directory of a run.
func (p *GitProvider) Dir(runID string) string {
	return filepath.Join(p.cfg.Root, "run-"+runID)
}

// refs lists the references tried in order: the source branch, the pull
// request head, then main and master.
func refs(t Target) []plumbing.ReferenceName {
	var out []plumbing.ReferenceName
	seen := make(map[plumbing.ReferenceName]bool)
	add := func(r plumbing.ReferenceName) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	if t.Branch != "" {
		add(plumbing.NewBranchReferenceName(t.Branch))
	}
	if t.PRNumber > 0 {
		add(plumbing.ReferenceName(fmt.Sprintf("refs/pull/%d/head", t.PRNumber)))
	}
	add(plumbing.NewBranchReferenceName("main"))
	add(plumbing.NewBranchReferenceName("master"))
	return out
}

// Acquire clones the target into the run's private directory. On failure
// the directory is removed and a *CloneError is returned together with the
// directory path, so callers can release unconditionally.
func (p *GitProvider) Acquire(ctx context.Context, t Target) (string, error) {
	if t.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	dir := p.Dir(t.RunID)
	if err := os.MkdirAll(p.cfg.Root, 0o755); err != nil {
		return dir, &CloneError{Repo: t.Owner + "/" + t.Repo, Branch: t.Branch, Err: err}
	}
	if err := os.RemoveAll(dir); err != nil {
		return dir, &CloneError{Repo: t.Owner + "/" + t.Repo, Branch: t.Branch, Err: err}
	}

	var auth *githttp.BasicAuth
	if p.cfg.Token != "" {
		auth = &githttp.BasicAuth{Username: "x-access-token", Password: p.cfg.Token}
	}

	url := p.URL(t)
	var lastErr error
	for _, ref := range refs(t) {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		slog.Info("cloning", "run", t.RunID, "url", url, "ref", ref)
		repo, err := p.clone(ctx, dir, url, ref, auth)
		if err != nil {
			slog.Warn("clone failed", "run", t.RunID, "ref", ref, "error", err)
			lastErr = err
			_ = os.RemoveAll(dir)
			continue
		}
		if t.CommitSHA != "" {
			checkoutCommit(repo, t)
		}
		return dir, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no reference to clone")
	}
	return dir, &CloneError{Repo: t.Owner + "/" + t.Repo, Branch: t.Branch, Err: lastErr}
}

// checkoutCommit moves the worktree to the requested commit when it is
// present in the shallow clone. Otherwise the branch head is kept.
func checkoutCommit(repo *git.Repository, t Target) {
	if repo == nil {
		return
	}
	head, err := repo.Head()
	if err == nil && head.Hash().String() == t.CommitSHA {
		return
	}
	wt, err := repo.Worktree()
	if err != nil {
		slog.Warn("open worktree", "run", t.RunID, "error", err)
		return
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(t.CommitSHA)}); err != nil {
		slog.Warn("commit not in shallow clone, analyzing branch head",
			"run", t.RunID, "commit", t.CommitSHA, "error", err)
	}
}

// Release removes a workspace directory. Paths outside the provider root
// are refused.
func (p *GitProvider) Release(path string) error {
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	rel, err := filepath.Rel(p.cfg.Root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s: outside workspace root", path)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	slog.Debug("workspace released", "path", abs)
	return nil
}
