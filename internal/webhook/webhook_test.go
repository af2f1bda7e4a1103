package webhook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/store"
)

const secret = "It's a Secret to Everybody"

func TestVerifySignature_KnownDigest(t *testing.T) {
	// sample from GitHub's webhook validation documentation
	header := "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"
	assert.NoError(t, VerifySignature([]byte("Hello, World!"), header, secret))
}

func TestVerifySignature_Rejects(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	valid := SignatureHeaderValue(payload, secret)
	require.NoError(t, VerifySignature(payload, valid, secret))

	flipped := []byte(valid)
	last := len(flipped) - 1
	if flipped[last] == '0' {
		flipped[last] = '1'
	} else {
		flipped[last] = '0'
	}

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
	}{
		{"flipped signature byte", payload, string(flipped), secret},
		{"tampered payload", []byte(`{"action":"closed"}`), valid, secret},
		{"missing prefix", payload, strings.TrimPrefix(valid, "sha256="), secret},
		{"sha1 prefix", payload, "sha1=" + strings.TrimPrefix(valid, "sha256="), secret},
		{"short digest", payload, valid[:len(valid)-2], secret},
		{"non hex", payload, "sha256=" + strings.Repeat("zz", 32), secret},
		{"empty header", payload, "", secret},
		{"wrong secret", payload, valid, "other"},
		{"no secret configured", payload, valid, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.payload, tt.header, tt.secret)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *fakeQueue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true
}

const openedPayload = `{
  "action": "opened",
  "number": 12,
  "pull_request": {
    "number": 12,
    "title": "Add cache",
    "body": "speeds things up",
    "state": "open",
    "user": {"login": "octocat"},
    "head": {"ref": "feature/cache", "sha": "abc123"},
    "base": {"ref": "main", "sha": "fff000"}
  },
  "repository": {"full_name": "acme/widgets", "clone_url": "https://github.com/acme/widgets.git", "default_branch": "main"},
  "sender": {"login": "hubot"}
}`

func TestHandle_Opened(t *testing.T) {
	st := store.NewMemoryStore()
	q := &fakeQueue{}
	tr := NewTrigger(st, q, secret)
	ctx := context.Background()

	body := []byte(openedPayload)
	require.NoError(t, tr.Handle(ctx, body, SignatureHeaderValue(body, secret)))

	repo, err := st.RepoByName(ctx, "acme/widgets")
	require.NoError(t, err, "unknown repositories are registered")
	assert.Equal(t, "https://github.com/acme/widgets.git", repo.CloneURL)

	pr, err := st.PullRequestByNumber(ctx, repo.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, "Add cache", pr.Title)
	assert.Equal(t, "speeds things up", pr.Description)
	assert.Equal(t, "octocat", pr.Author)
	assert.Equal(t, "feature/cache", pr.SourceBranch)
	assert.Equal(t, "main", pr.TargetBranch)

	require.Len(t, q.ids, 1)
	run, err := st.Run(ctx, q.ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.RunPending, run.Status)
	assert.Equal(t, "abc123", run.CommitSHA)
	assert.Equal(t, "hubot", run.TriggeredBy)
	assert.Equal(t, pr.ID, run.PullRequestID)
}

func TestHandle_SynchronizeReusesPullRequest(t *testing.T) {
	st := store.NewMemoryStore()
	q := &fakeQueue{}
	tr := NewTrigger(st, q, secret)
	ctx := context.Background()

	first := []byte(openedPayload)
	require.NoError(t, tr.Handle(ctx, first, SignatureHeaderValue(first, secret)))

	update := []byte(strings.Replace(strings.Replace(openedPayload, `"opened"`, `"synchronize"`, 1), "abc123", "def456", 1))
	require.NoError(t, tr.Handle(ctx, update, SignatureHeaderValue(update, secret)))

	repo, err := st.RepoByName(ctx, "acme/widgets")
	require.NoError(t, err)
	prs, err := st.PullRequestsForRepo(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, "def456", prs[0].HeadSHA)

	runs, err := st.RunsForPullRequest(ctx, prs[0].ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Len(t, q.ids, 2)
}

func TestHandle_IgnoredAction(t *testing.T) {
	st := store.NewMemoryStore()
	q := &fakeQueue{}
	tr := NewTrigger(st, q, secret)

	body := []byte(strings.Replace(openedPayload, `"opened"`, `"closed"`, 1))
	require.NoError(t, tr.Handle(context.Background(), body, SignatureHeaderValue(body, secret)))
	assert.Empty(t, q.ids)

	repos, err := st.Repos(context.Background())
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestHandle_BadSignatureParsesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	q := &fakeQueue{}
	tr := NewTrigger(st, q, secret)

	err := tr.Handle(context.Background(), []byte("{not json"), "sha256="+strings.Repeat("00", 32))
	assert.True(t, errors.Is(err, ErrInvalidSignature))
	assert.Empty(t, q.ids)
}

func TestHandle_MalformedPayload(t *testing.T) {
	tr := NewTrigger(store.NewMemoryStore(), &fakeQueue{}, secret)
	body := []byte("{not json")
	err := tr.Handle(context.Background(), body, SignatureHeaderValue(body, secret))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidSignature))
}

func TestTrigger_Verify(t *testing.T) {
	tr := NewTrigger(store.NewMemoryStore(), &fakeQueue{}, secret)
	payload := []byte(`{"zen":"Keep it logically awesome."}`)

	assert.NoError(t, tr.Verify(payload, SignatureHeaderValue(payload, secret)))
	assert.ErrorIs(t, tr.Verify(payload, "sha256=deadbeef"), ErrInvalidSignature)
	assert.ErrorIs(t, tr.Verify(payload, ""), ErrInvalidSignature)

	unset := NewTrigger(store.NewMemoryStore(), &fakeQueue{}, "")
	assert.ErrorIs(t, unset.Verify(payload, SignatureHeaderValue(payload, "")), ErrInvalidSignature)
}
