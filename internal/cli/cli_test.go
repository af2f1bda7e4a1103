package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/patchpilot/internal/config"
	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/reporter"
	"github.com/ppiankov/patchpilot/internal/scan"
	"github.com/ppiankov/patchpilot/internal/store"
)

// writeConfig creates a config file whose sqlite store lives in a temp dir.
func writeConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "patchpilot.db")
	cfgPath = filepath.Join(dir, "patchpilot.yml")
	data := fmt.Sprintf("store:\n  driver: sqlite\n  path: %s\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(data), 0o644))
	return cfgPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "scan", "repo", "runs", "watch", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.Equal(t, config.DefaultPath, root.PersistentFlags().Lookup("config").DefValue)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "patchpilot dev (commit: none")
}

func TestScan_JSON(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/Login.java": "class Login {\n  String password = \"hunter2\";\n}\n",
		"web/app.js":     "console.log(\"debug\");\n",
		"README.md":      "ignored",
	})
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "scan", dir, "--format", "json")
	require.NoError(t, err)

	var rep reporter.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 2, rep.FilesScanned)

	titles := make(map[string]int)
	for _, f := range rep.Findings {
		titles[f.Title] = f.LineNumber
	}
	assert.Equal(t, 2, titles["Hardcoded Credentials Detected"])
	assert.Equal(t, 1, titles["Console Statement in Production Code"])
}

func TestScan_SARIFToFile(t *testing.T) {
	dir := writeTree(t, map[string]string{"app.js": "console.log(1);\n"})
	cfgPath, _ := writeConfig(t)
	outPath := filepath.Join(t.TempDir(), "out.sarif")

	out, err := execute(t, "--config", cfgPath, "scan", dir, "--format", "sarif", "-o", outPath)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.1.0"`)
	assert.Contains(t, string(data), "best_practice/console-statement-in-production-code")
}

func TestScan_Errors(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := execute(t, "--config", cfgPath, "scan", t.TempDir(), "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = execute(t, "--config", cfgPath, "scan", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = execute(t, "--config", cfgPath, "scan")
	assert.Error(t, err, "directory argument is required")
}

func TestRepoAddAndList(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "repo", "add", "https://github.com/acme/widgets.git")
	require.NoError(t, err)
	assert.Contains(t, out, "registered acme/widgets")

	out, err = execute(t, "--config", cfgPath, "repo", "add", "acme/widgets")
	require.NoError(t, err)
	assert.Contains(t, out, "already registered")

	_, err = execute(t, "--config", cfgPath, "repo", "add", "widgets")
	assert.Error(t, err)

	out, err = execute(t, "--config", cfgPath, "repo", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "acme/widgets")
	assert.Contains(t, out, "main")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	repos, err := st.Repos(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "https://github.com/acme/widgets.git", repos[0].CloneURL)
}

// seedRuns stores a repo, a pull request and two runs in the sqlite db.
func seedRuns(t *testing.T, dbPath string) *model.PullRequest {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := &model.Repo{ID: model.NewID(), Name: "acme/widgets", CreatedAt: now}
	require.NoError(t, st.SaveRepo(ctx, repo))
	pr := &model.PullRequest{ID: model.NewID(), RepoID: repo.ID, Number: 42, Title: "Add login",
		SourceBranch: "feature/login", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.SavePullRequest(ctx, pr))

	failed := model.NewRun(pr.ID, "abc", "poller", now)
	failed.Status = model.RunFailed
	failed.ErrorMessage = "clone failed"
	require.NoError(t, st.SaveRun(ctx, failed))

	done := model.NewRun(pr.ID, "def", "webhook", now.Add(time.Hour))
	done.Status = model.RunCompleted
	done.Metrics = &model.Metrics{Total: 4, OverallScore: 88}
	require.NoError(t, st.CompleteRun(ctx, done, nil, nil))
	return pr
}

func TestRuns(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	pr := seedRuns(t, dbPath)

	out, err := execute(t, "--config", cfgPath, "runs", "acme/widgets#42")
	require.NoError(t, err)
	assert.Contains(t, out, "#42 Add login (feature/login)")
	assert.Contains(t, out, "clone failed")
	assert.Contains(t, out, "88")
	assert.Less(t, strings.Index(out, "COMPLETED"), strings.Index(out, "FAILED"), "newest run first")

	out, err = execute(t, "--config", cfgPath, "runs", pr.ID, "--json")
	require.NoError(t, err)
	var runs []model.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Len(t, runs, 2)

	_, err = execute(t, "--config", cfgPath, "runs", "acme/widgets#7")
	assert.ErrorContains(t, err, "not found")
	_, err = execute(t, "--config", cfgPath, "runs", "acme/other#1")
	assert.ErrorContains(t, err, "not registered")
	_, err = execute(t, "--config", cfgPath, "runs", "acme/widgets#x")
	assert.ErrorContains(t, err, "invalid pull request number")
}

func TestRunRowLoader(t *testing.T) {
	_, dbPath := writeConfig(t)
	seedRuns(t, dbPath)

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	rows, err := runRowLoader(st, 10)()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "acme/widgets", r.Repo)
		assert.Equal(t, 42, r.PRNumber)
	}
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("PP_TEST_TOKEN", "tok")
	cfg := config.Defaults()
	cfg.GitHub.Token = "env:PP_TEST_TOKEN"
	cfg.GitHub.WebhookSecret = "literal"
	cfg.AI.APIKey = "env:PP_TEST_UNSET"

	sec, err := resolveSecrets(cfg)
	require.NoError(t, err, "ai key is not resolved while ai is disabled")
	assert.Equal(t, "tok", sec.githubToken)
	assert.Equal(t, "literal", sec.webhookSecret)
	assert.False(t, newSuggester(cfg, sec.aiKey).AIEnabled())

	cfg.AI.Enabled = true
	_, err = resolveSecrets(cfg)
	assert.ErrorContains(t, err, "ai.api_key")

	assert.True(t, newSuggester(cfg, "sk-test").AIEnabled())
	assert.False(t, newSuggester(cfg, "").AIEnabled())
}

func TestWatchTree_RescansOnChange(t *testing.T) {
	dir := writeTree(t, map[string]string{"app.js": "let a = 1;\n"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- watchTree(ctx, dir, scan.Options{}, 20*time.Millisecond, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	// the watcher registers asynchronously; keep touching until it fires
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1);\n"), 0o644)
		select {
		case <-fired:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watchTree did not return after cancel")
	}
}

func TestWatchTree_IgnoresOtherFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{"README.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 10)
	go func() {
		_ = watchTree(ctx, dir, scan.Options{}, 10*time.Millisecond, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("b"), 0o644))
	select {
	case <-fired:
		t.Fatal("markdown change should not trigger a rescan")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRunServe_ShutsDownOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Listen = "127.0.0.1:0"
	cfg.Store.Driver = "memory"
	cfg.WorkspaceDir = t.TempDir()
	cfg.GitHub.WebhookSecret = "s3cret"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
}
