package model

import (
	"fmt"
	"strings"
)

// NormalizeRepoName reduces a repository reference to "owner/repo".
// Accepted forms: owner/repo, https://github.com/owner/repo(.git),
// git@github.com:owner/repo.git.
func NormalizeRepoName(ref string) (string, error) {
	s := strings.TrimSpace(ref)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}

	switch {
	case strings.HasPrefix(s, "git@"):
		idx := strings.Index(s, ":")
		if idx < 0 {
			return "", fmt.Errorf("invalid repository reference %q", ref)
		}
		s = s[idx+1:]
	case strings.Contains(s, "://"):
		s = s[strings.Index(s, "://")+3:]
		idx := strings.Index(s, "/")
		if idx < 0 {
			return "", fmt.Errorf("invalid repository reference %q", ref)
		}
		s = s[idx+1:]
	case strings.HasPrefix(s, "github.com/"):
		s = strings.TrimPrefix(s, "github.com/")
	}

	s = strings.Trim(s, "/")
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid repository reference %q: want owner/repo", ref)
	}
	owner := parts[0]
	repo := strings.TrimSuffix(parts[1], ".git")
	if owner == "" || repo == "" {
		return "", fmt.Errorf("invalid repository reference %q: want owner/repo", ref)
	}
	return owner + "/" + repo, nil
}

// SplitRepoName splits "owner/repo" into its parts.
func SplitRepoName(name string) (owner, repo string) {
	owner, repo, _ = strings.Cut(name, "/")
	return owner, repo
}
