// Package poller periodically re-reads open pull requests for every known
// repository and creates runs for the ones that need a fresh analysis.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/scm"
	"github.com/ppiankov/patchpilot/internal/store"
	"github.com/ppiankov/patchpilot/internal/telemetry"
)

const (
	DefaultInterval    = 30 * time.Minute
	DefaultTick        = time.Minute
	DefaultConcurrency = 4

	// TriggeredBy is recorded on runs the poller creates.
	TriggeredBy = "poller"
)

// Lister lists open pull requests of a repository ("owner/name").
type Lister interface {
	ListOpenPullRequests(ctx context.Context, repo string) ([]scm.PullRequest, error)
}

// Enqueuer hands a run id to the executor without blocking.
type Enqueuer interface {
	Enqueue(runID string) bool
}

// Config holds poller parameters.
type Config struct {
	Interval    time.Duration // time between polls while active
	Tick        time.Duration // how often the schedule is checked
	Concurrency int           // repositories polled at once
}

// Status is a snapshot of the polling schedule.
type Status struct {
	IsPolling       bool       `json:"isPolling"`
	IntervalMinutes int        `json:"intervalMinutes"`
	LastPollTime    *time.Time `json:"lastPollTime,omitempty"`
	NextPollTime    *time.Time `json:"nextPollTime,omitempty"`
}

// Summary describes one poll.
type Summary struct {
	Repos        int `json:"repos"`
	PullRequests int `json:"pullRequests"`
	RunsCreated  int `json:"runsCreated"`
	Errors       int `json:"errors"`
}

// Poller decides when repositories are polled. Start and Stop toggle the
// schedule; Run drives the tick.
type Poller struct {
	store store.Store
	scm   Lister
	queue Enqueuer
	cfg   Config

	active atomic.Bool

	mu   sync.Mutex
	last time.Time
	next time.Time

	// serializes polls so a manual poll and a tick never race on dedup
	pollMu sync.Mutex

	cron *cron.Cron
	now  func() time.Time
}

// New creates a stopped poller. Zero config values take defaults.
func New(st store.Store, lister Lister, queue Enqueuer, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Poller{
		store: st,
		scm:   lister,
		queue: queue,
		cfg:   cfg,
		now:   time.Now,
	}
}

// ShouldTrigger reports whether a pull request whose newest run is last
// needs a new run at now. A missing or FAILED last run always triggers;
// otherwise the last run must be at least one interval old.
func ShouldTrigger(last *model.Run, now time.Time, interval time.Duration) bool {
	if last == nil || last.Status == model.RunFailed {
		return true
	}
	return now.Sub(last.CreatedAt) >= interval
}

// Run starts the tick schedule. It returns immediately; Close stops it.
func (p *Poller) Run(ctx context.Context) error {
	p.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", p.cfg.Tick)
	if _, err := p.cron.AddFunc(spec, func() { p.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule poll tick: %w", err)
	}
	p.cron.Start()
	slog.Debug("poll schedule running", "tick", p.cfg.Tick)
	return nil
}

// Close stops the tick schedule and waits for a running poll to finish.
func (p *Poller) Close() {
	if p.cron == nil {
		return
	}
	done := p.cron.Stop()
	<-done.Done()
}

// Start activates polling. The first poll happens one interval from now.
// Starting an active poller is a no-op and returns false.
func (p *Poller) Start() bool {
	if !p.active.CompareAndSwap(false, true) {
		slog.Info("polling already running")
		return false
	}
	p.mu.Lock()
	p.next = p.now().Add(p.cfg.Interval)
	p.mu.Unlock()
	slog.Info("polling started", "interval", p.cfg.Interval)
	return true
}

// Stop deactivates polling. Stopping an inactive poller is a no-op and
// returns false.
func (p *Poller) Stop() bool {
	if !p.active.CompareAndSwap(true, false) {
		slog.Info("polling not running")
		return false
	}
	p.mu.Lock()
	p.next = time.Time{}
	p.mu.Unlock()
	slog.Info("polling stopped")
	return true
}

// Status returns the current schedule.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		IsPolling:       p.active.Load(),
		IntervalMinutes: int((p.cfg.Interval + time.Minute - 1) / time.Minute),
	}
	if !p.last.IsZero() {
		last := p.last
		st.LastPollTime = &last
	}
	if !p.next.IsZero() {
		next := p.next
		st.NextPollTime = &next
	}
	return st
}

// tick polls when polling is active and the next poll time has come.
func (p *Poller) tick(ctx context.Context) {
	if !p.active.Load() {
		return
	}
	now := p.now()
	p.mu.Lock()
	if !p.next.IsZero() && now.Before(p.next) {
		p.mu.Unlock()
		return
	}
	p.last = now
	p.next = now.Add(p.cfg.Interval)
	p.mu.Unlock()

	slog.Info("starting scheduled poll")
	if _, err := p.poll(ctx); err != nil {
		slog.Error("scheduled poll", "error", err)
	}
}

// PollNow polls every repository immediately. When polling is active the
// next scheduled poll moves one interval out.
func (p *Poller) PollNow(ctx context.Context) (Summary, error) {
	slog.Info("manual poll triggered")
	sum, err := p.poll(ctx)

	p.mu.Lock()
	p.last = p.now()
	if p.active.Load() {
		p.next = p.last.Add(p.cfg.Interval)
	}
	p.mu.Unlock()
	return sum, err
}

func (p *Poller) poll(ctx context.Context) (Summary, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	repos, err := p.store.Repos(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list repos: %w", err)
	}

	var prs, created, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, repo := range repos {
		g.Go(func() error {
			n, c, err := p.pollRepo(ctx, repo)
			prs.Add(int64(n))
			created.Add(int64(c))
			if err != nil {
				// one repository failing never affects the others
				failed.Add(1)
				telemetry.PollErrors.Inc()
				slog.Error("poll repository", "repo", repo.Name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	telemetry.PollsTotal.Inc()

	sum := Summary{
		Repos:        len(repos),
		PullRequests: int(prs.Load()),
		RunsCreated:  int(created.Load()),
		Errors:       int(failed.Load()),
	}
	slog.Info("poll complete", "repos", sum.Repos, "pull_requests", sum.PullRequests,
		"runs_created", sum.RunsCreated, "errors", sum.Errors)
	return sum, nil
}

// pollRepo upserts the repository's open pull requests and creates runs
// where dedup allows. It returns how many pull requests it saw and how
// many runs it created.
func (p *Poller) pollRepo(ctx context.Context, repo model.Repo) (int, int, error) {
	slog.Debug("polling repository", "repo", repo.Name)
	open, err := p.scm.ListOpenPullRequests(ctx, repo.Name)
	if err != nil {
		return 0, 0, err
	}

	created := 0
	for _, gh := range open {
		now := p.now()
		pr, err := p.store.PullRequestByNumber(ctx, repo.ID, gh.Number)
		switch {
		case errors.Is(err, store.ErrNotFound):
			pr = &model.PullRequest{ID: model.NewID(), RepoID: repo.ID, CreatedAt: now}
		case err != nil:
			return len(open), created, fmt.Errorf("load pull request #%d: %w", gh.Number, err)
		}
		gh.ApplyTo(pr)
		pr.UpdatedAt = now
		if err := p.store.SavePullRequest(ctx, pr); err != nil {
			return len(open), created, err
		}

		last, err := store.LatestRun(ctx, p.store, pr.ID)
		if err != nil {
			return len(open), created, fmt.Errorf("latest run of #%d: %w", gh.Number, err)
		}
		if !ShouldTrigger(last, now, p.cfg.Interval) {
			slog.Debug("recent run exists, skipping", "repo", repo.Name, "pr", gh.Number, "run", last.ID)
			continue
		}

		run := model.NewRun(pr.ID, pr.HeadSHA, TriggeredBy, now)
		if err := p.store.SaveRun(ctx, run); err != nil {
			return len(open), created, fmt.Errorf("create run for #%d: %w", gh.Number, err)
		}
		created++
		slog.Info("run created", "repo", repo.Name, "pr", gh.Number, "run", run.ID)
		p.queue.Enqueue(run.ID)
	}
	return len(open), created, nil
}
