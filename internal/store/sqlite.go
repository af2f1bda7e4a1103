package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/patchpilot/internal/model"
)

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and migrates the
// schema. The parent directory is created if needed. ":memory:" is accepted.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection serializes writers and keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repos (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		clone_url TEXT NOT NULL DEFAULT '',
		default_branch TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pull_requests (
		id TEXT PRIMARY KEY,
		repo_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		source_branch TEXT NOT NULL DEFAULT '',
		target_branch TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		head_sha TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (repo_id, number)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pull_request_id TEXT NOT NULL,
		status TEXT NOT NULL,
		commit_sha TEXT NOT NULL DEFAULT '',
		triggered_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		error_message TEXT NOT NULL DEFAULT '',
		metrics TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_pr_created ON runs(pull_request_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		line_number INTEGER NOT NULL,
		end_line_number INTEGER NOT NULL DEFAULT 0,
		severity TEXT NOT NULL,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		code_snippet TEXT NOT NULL DEFAULT '',
		is_resolved INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);

	CREATE TABLE IF NOT EXISTS suggested_patches (
		id TEXT PRIMARY KEY,
		finding_id TEXT NOT NULL,
		unified_diff TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL,
		applied INTEGER NOT NULL DEFAULT 0,
		applied_at TEXT,
		applied_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_patches_finding ON suggested_patches(finding_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed width so that text order in SQL is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- repos ---

const repoColumns = `id, name, clone_url, default_branch, created_at`

func (s *SQLiteStore) SaveRepo(ctx context.Context, r *model.Repo) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO repos (`+repoColumns+`) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		clone_url = excluded.clone_url,
		default_branch = excluded.default_branch`,
		r.ID, r.Name, r.CloneURL, r.DefaultBranch, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("save repo %s: %w", r.Name, err)
	}
	return nil
}

func scanRepo(row scanner) (*model.Repo, error) {
	var r model.Repo
	var created string
	if err := row.Scan(&r.ID, &r.Name, &r.CloneURL, &r.DefaultBranch, &created); err != nil {
		return nil, notFound(err)
	}
	r.CreatedAt = parseTime(created)
	return &r, nil
}

func (s *SQLiteStore) Repo(ctx context.Context, id string) (*model.Repo, error) {
	return scanRepo(s.db.QueryRowContext(ctx, `SELECT `+repoColumns+` FROM repos WHERE id = ?`, id))
}

func (s *SQLiteStore) RepoByName(ctx context.Context, name string) (*model.Repo, error) {
	return scanRepo(s.db.QueryRowContext(ctx, `SELECT `+repoColumns+` FROM repos WHERE name = ?`, name))
}

func (s *SQLiteStore) Repos(ctx context.Context) ([]model.Repo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+repoColumns+` FROM repos ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repo: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// --- pull requests ---

const prColumns = `id, repo_id, number, title, description, author, source_branch, target_branch, state, head_sha, created_at, updated_at`

func (s *SQLiteStore) SavePullRequest(ctx context.Context, pr *model.PullRequest) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO pull_requests (`+prColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		author = excluded.author,
		source_branch = excluded.source_branch,
		target_branch = excluded.target_branch,
		state = excluded.state,
		head_sha = excluded.head_sha,
		updated_at = excluded.updated_at`,
		pr.ID, pr.RepoID, pr.Number, pr.Title, pr.Description, pr.Author,
		pr.SourceBranch, pr.TargetBranch, pr.State, pr.HeadSHA,
		formatTime(pr.CreatedAt), formatTime(pr.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save pull request #%d: %w", pr.Number, err)
	}
	return nil
}

func scanPullRequest(row scanner) (*model.PullRequest, error) {
	var pr model.PullRequest
	var created, updated string
	err := row.Scan(&pr.ID, &pr.RepoID, &pr.Number, &pr.Title, &pr.Description, &pr.Author,
		&pr.SourceBranch, &pr.TargetBranch, &pr.State, &pr.HeadSHA, &created, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	pr.CreatedAt = parseTime(created)
	pr.UpdatedAt = parseTime(updated)
	return &pr, nil
}

func (s *SQLiteStore) PullRequest(ctx context.Context, id string) (*model.PullRequest, error) {
	return scanPullRequest(s.db.QueryRowContext(ctx, `SELECT `+prColumns+` FROM pull_requests WHERE id = ?`, id))
}

func (s *SQLiteStore) PullRequestByNumber(ctx context.Context, repoID string, number int) (*model.PullRequest, error) {
	return scanPullRequest(s.db.QueryRowContext(ctx,
		`SELECT `+prColumns+` FROM pull_requests WHERE repo_id = ? AND number = ?`, repoID, number))
}

func (s *SQLiteStore) PullRequestsForRepo(ctx context.Context, repoID string) ([]model.PullRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prColumns+` FROM pull_requests WHERE repo_id = ? ORDER BY number`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PullRequest
	for rows.Next() {
		pr, err := scanPullRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

// --- runs ---

const runColumns = `id, pull_request_id, status, commit_sha, triggered_by, created_at, started_at, completed_at, error_message, metrics`

func saveRunTx(ctx context.Context, tx *sql.Tx, r *model.Run) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, r.ID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load run %s: %w", r.ID, err)
	case model.RunStatus(status).IsTerminal():
		return ErrRunTerminal
	}

	var metrics *string
	if r.Metrics != nil {
		data, err := json.Marshal(r.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics: %w", err)
		}
		m := string(data)
		metrics = &m
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		commit_sha = excluded.commit_sha,
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		error_message = excluded.error_message,
		metrics = excluded.metrics`,
		r.ID, r.PullRequestID, string(r.Status), r.CommitSHA, r.TriggeredBy,
		formatTime(r.CreatedAt), formatTimePtr(r.StartedAt), formatTimePtr(r.CompletedAt),
		r.ErrorMessage, metrics)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, r *model.Run) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return saveRunTx(ctx, tx, r)
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanRun(row scanner) (*model.Run, error) {
	var r model.Run
	var status, created string
	var started, completed, metrics sql.NullString
	err := row.Scan(&r.ID, &r.PullRequestID, &status, &r.CommitSHA, &r.TriggeredBy,
		&created, &started, &completed, &r.ErrorMessage, &metrics)
	if err != nil {
		return nil, notFound(err)
	}
	r.Status = model.RunStatus(status)
	r.CreatedAt = parseTime(created)
	r.StartedAt = parseTimePtr(started)
	r.CompletedAt = parseTimePtr(completed)
	if metrics.Valid && metrics.String != "" {
		var m model.Metrics
		if err := json.Unmarshal([]byte(metrics.String), &m); err != nil {
			return nil, fmt.Errorf("decode metrics of run %s: %w", r.ID, err)
		}
		r.Metrics = &m
	}
	return &r, nil
}

func (s *SQLiteStore) ClaimRun(ctx context.Context, id string, at time.Time) (*model.Run, error) {
	var claimed *model.Run
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			string(model.RunInProgress), formatTime(at), id, string(model.RunPending))
		if err != nil {
			return fmt.Errorf("claim run %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim run %s: %w", id, err)
		}
		row := tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
		r, err := scanRun(row)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRunNotPending
		}
		claimed = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *SQLiteStore) Run(ctx context.Context, id string) (*model.Run, error) {
	return scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

func (s *SQLiteStore) queryRuns(ctx context.Context, query string, args ...any) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RunsForPullRequest(ctx context.Context, pullRequestID string) ([]model.Run, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE pull_request_id = ?
		ORDER BY created_at DESC, id DESC`, pullRequestID)
}

func (s *SQLiteStore) RunsByStatus(ctx context.Context, status model.RunStatus) ([]model.Run, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE status = ?
		ORDER BY created_at DESC, id DESC`, string(status))
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// --- findings and patches ---

const findingColumns = `id, run_id, file_path, line_number, end_line_number, severity, category, title, description, code_snippet, is_resolved, created_at`

const patchColumns = `id, finding_id, unified_diff, explanation, applied, applied_at, applied_by, created_at`

func (s *SQLiteStore) CompleteRun(ctx context.Context, r *model.Run, findings []model.Finding, patches []model.SuggestedPatch) error {
	if err := checkCompletion(r, findings, patches); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := saveRunTx(ctx, tx, r); err != nil {
			return err
		}

		fstmt, err := tx.PrepareContext(ctx,
			`INSERT INTO findings (`+findingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare finding insert: %w", err)
		}
		defer func() { _ = fstmt.Close() }()
		for _, f := range findings {
			_, err := fstmt.ExecContext(ctx, f.ID, f.RunID, f.FilePath, f.LineNumber, f.EndLineNumber,
				f.Severity.String(), string(f.Category), f.Title, f.Description, f.CodeSnippet,
				f.IsResolved, formatTime(f.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert finding: %w", err)
			}
		}

		pstmt, err := tx.PrepareContext(ctx,
			`INSERT INTO suggested_patches (`+patchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare patch insert: %w", err)
		}
		defer func() { _ = pstmt.Close() }()
		for _, p := range patches {
			_, err := pstmt.ExecContext(ctx, p.ID, p.FindingID, p.UnifiedDiff, p.Explanation,
				p.Applied, formatTimePtr(p.AppliedAt), p.AppliedBy, formatTime(p.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert patch: %w", err)
			}
		}
		return nil
	})
}

func scanFinding(row scanner) (*model.Finding, error) {
	var f model.Finding
	var sev, cat, created string
	err := row.Scan(&f.ID, &f.RunID, &f.FilePath, &f.LineNumber, &f.EndLineNumber,
		&sev, &cat, &f.Title, &f.Description, &f.CodeSnippet, &f.IsResolved, &created)
	if err != nil {
		return nil, notFound(err)
	}
	f.Severity = model.ParseSeverity(sev)
	f.Category = model.Category(cat)
	f.CreatedAt = parseTime(created)
	return &f, nil
}

func (s *SQLiteStore) FindingsForRun(ctx context.Context, runID string) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+findingColumns+` FROM findings WHERE run_id = ?
		ORDER BY file_path, line_number, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanPatch(row scanner) (*model.SuggestedPatch, error) {
	var p model.SuggestedPatch
	var appliedAt sql.NullString
	var created string
	err := row.Scan(&p.ID, &p.FindingID, &p.UnifiedDiff, &p.Explanation, &p.Applied,
		&appliedAt, &p.AppliedBy, &created)
	if err != nil {
		return nil, notFound(err)
	}
	p.AppliedAt = parseTimePtr(appliedAt)
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func (s *SQLiteStore) Patch(ctx context.Context, id string) (*model.SuggestedPatch, error) {
	return scanPatch(s.db.QueryRowContext(ctx, `SELECT `+patchColumns+` FROM suggested_patches WHERE id = ?`, id))
}

func (s *SQLiteStore) PatchesForFinding(ctx context.Context, findingID string) ([]model.SuggestedPatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patchColumns+` FROM suggested_patches WHERE finding_id = ?
		ORDER BY created_at, id`, findingID)
	if err != nil {
		return nil, fmt.Errorf("list patches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SuggestedPatch
	for rows.Next() {
		p, err := scanPatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patch: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ApplyPatch(ctx context.Context, id, appliedBy string, at time.Time) (*model.SuggestedPatch, error) {
	var out *model.SuggestedPatch
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := scanPatch(tx.QueryRowContext(ctx, `SELECT `+patchColumns+` FROM suggested_patches WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if p.Applied {
			return ErrPatchAlreadyApplied
		}
		_, err = tx.ExecContext(ctx, `UPDATE suggested_patches SET applied = 1, applied_at = ?, applied_by = ?
			WHERE id = ? AND applied = 0`, formatTime(at), appliedBy, id)
		if err != nil {
			return fmt.Errorf("apply patch %s: %w", id, err)
		}
		p.Applied = true
		p.AppliedAt = &at
		p.AppliedBy = appliedBy
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRun removes a run's patches, then its findings, then the run.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM suggested_patches WHERE finding_id IN
			(SELECT id FROM findings WHERE run_id = ?)`, id); err != nil {
			return fmt.Errorf("delete patches: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("delete findings: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
