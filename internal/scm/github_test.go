package scm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/patchpilot/internal/model"
)

func TestListOpenPullRequests(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if r.URL.Query().Get("state") != "open" {
			t.Errorf("state = %q, want open", r.URL.Query().Get("state"))
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"number": 7,
				"title":  "Add login",
				"body":   "adds login",
				"state":  "open",
				"user":   map[string]any{"login": "octocat"},
				"head":   map[string]any{"ref": "feature/login", "sha": "abc123"},
				"base":   map[string]any{"ref": "main", "sha": "def456"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL, Token: "tok"})
	prs, err := c.ListOpenPullRequests(context.Background(), "acme/widgets")
	if err != nil {
		t.Fatalf("ListOpenPullRequests: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok")
	}
	if gotPath != "/repos/acme/widgets/pulls" {
		t.Errorf("path = %q", gotPath)
	}
	if len(prs) != 1 {
		t.Fatalf("len = %d, want 1", len(prs))
	}

	var pr model.PullRequest
	prs[0].ApplyTo(&pr)
	if pr.Number != 7 || pr.Author != "octocat" || pr.SourceBranch != "feature/login" ||
		pr.TargetBranch != "main" || pr.HeadSHA != "abc123" || pr.Description != "adds login" {
		t.Errorf("ApplyTo = %+v", pr)
	}
}

func TestListOpenPullRequests_Paginates(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		n := pageSize
		if r.URL.Query().Get("page") == "2" {
			n = 3
		}
		batch := make([]PullRequest, n)
		for i := range batch {
			batch[i].Number = i + 1
		}
		_ = json.NewEncoder(w).Encode(batch)
	}))
	defer srv.Close()

	prs, err := NewClient(Config{APIURL: srv.URL}).ListOpenPullRequests(context.Background(), "acme/widgets")
	if err != nil {
		t.Fatalf("ListOpenPullRequests: %v", err)
	}
	if pages != 2 {
		t.Errorf("pages = %d, want 2", pages)
	}
	if len(prs) != pageSize+3 {
		t.Errorf("len = %d, want %d", len(prs), pageSize+3)
	}
}

func TestGetPullRequest_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"message":"Not Found"}`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIURL: srv.URL}).GetPullRequest(context.Background(), "acme/widgets", 9)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Not Found" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestInvalidRepo(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.ListOpenPullRequests(context.Background(), "nope"); err == nil {
		t.Error("expected error for repo without owner")
	}
}
