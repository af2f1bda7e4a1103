// Package scm is a small client for the GitHub REST API: enough to list and
// fetch pull requests for polling.
package scm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/patchpilot/internal/model"
)

const (
	DefaultAPIURL = "https://api.github.com"
	pageSize      = 100
	maxPages      = 10
)

// User is a GitHub account reference.
type User struct {
	Login string `json:"login"`
}

// Ref is one side of a pull request.
type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PullRequest is the subset of the GitHub pull request object patchpilot
// uses. Webhook payloads carry the same shape.
type PullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	User      User      `json:"user"`
	Head      Ref       `json:"head"`
	Base      Ref       `json:"base"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyTo copies the pull request's mutable fields onto pr.
func (p PullRequest) ApplyTo(pr *model.PullRequest) {
	pr.Number = p.Number
	pr.Title = p.Title
	pr.Description = p.Body
	pr.Author = p.User.Login
	pr.SourceBranch = p.Head.Ref
	pr.TargetBranch = p.Base.Ref
	pr.State = p.State
	pr.HeadSHA = p.Head.SHA
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api: status %d: %s", e.StatusCode, e.Message)
}

// Config holds client parameters.
type Config struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// Client talks to the GitHub REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client. An empty APIURL selects api.github.com.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}
}

// ListOpenPullRequests returns the open pull requests of repo ("owner/name").
func (c *Client) ListOpenPullRequests(ctx context.Context, repo string) ([]PullRequest, error) {
	owner, name := model.SplitRepoName(repo)
	if owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository %q", repo)
	}

	var all []PullRequest
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("state", "open")
		q.Set("per_page", fmt.Sprint(pageSize))
		q.Set("page", fmt.Sprint(page))
		path := fmt.Sprintf("/repos/%s/%s/pulls?%s", url.PathEscape(owner), url.PathEscape(name), q.Encode())

		var batch []PullRequest
		if err := c.get(ctx, path, &batch); err != nil {
			return nil, fmt.Errorf("list pull requests of %s: %w", repo, err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			break
		}
	}
	return all, nil
}

// GetPullRequest fetches one pull request.
func (c *Client) GetPullRequest(ctx context.Context, repo string, number int) (*PullRequest, error) {
	owner, name := model.SplitRepoName(repo)
	if owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository %q", repo)
	}
	var pr PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", url.PathEscape(owner), url.PathEscape(name), number)
	if err := c.get(ctx, path, &pr); err != nil {
		return nil, fmt.Errorf("get pull request %s#%d: %w", repo, number, err)
	}
	return &pr, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "patchpilot")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
