// Package webhook turns verified GitHub pull request deliveries into runs.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/scm"
	"github.com/ppiankov/patchpilot/internal/store"
	"github.com/ppiankov/patchpilot/internal/telemetry"
)

// Enqueuer hands a run id to the executor without blocking.
type Enqueuer interface {
	Enqueue(runID string) bool
}

// Payload is the part of a pull_request delivery the trigger reads.
type Payload struct {
	Action      string          `json:"action"`
	Number      int             `json:"number"`
	PullRequest scm.PullRequest `json:"pull_request"`
	Repository  struct {
		FullName      string `json:"full_name"`
		CloneURL      string `json:"clone_url"`
		DefaultBranch string `json:"default_branch"`
	} `json:"repository"`
	Sender scm.User `json:"sender"`
}

// Trigger verifies deliveries and creates runs for opened and synchronized
// pull requests.
type Trigger struct {
	store  store.Store
	queue  Enqueuer
	secret string
	now    func() time.Time
}

// NewTrigger creates a trigger. An empty secret rejects every delivery.
func NewTrigger(st store.Store, queue Enqueuer, secret string) *Trigger {
	return &Trigger{store: st, queue: queue, secret: secret, now: time.Now}
}

// Verify checks a delivery's signature without parsing it.
func (t *Trigger) Verify(payload []byte, signature string) error {
	if err := VerifySignature(payload, signature, t.secret); err != nil {
		telemetry.WebhookEvents.WithLabelValues("invalid_signature").Inc()
		return err
	}
	return nil
}

// Handle processes one delivery. The signature is checked before the body
// is parsed. Actions other than opened and synchronize are ignored.
func (t *Trigger) Handle(ctx context.Context, payload []byte, signature string) error {
	if err := t.Verify(payload, signature); err != nil {
		return err
	}

	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		telemetry.WebhookEvents.WithLabelValues("error").Inc()
		return fmt.Errorf("parse payload: %w", err)
	}

	if p.Action != "opened" && p.Action != "synchronize" {
		telemetry.WebhookEvents.WithLabelValues("ignored").Inc()
		slog.Debug("ignoring webhook action", "action", p.Action)
		return nil
	}

	run, err := t.createRun(ctx, &p)
	if err != nil {
		telemetry.WebhookEvents.WithLabelValues("error").Inc()
		return err
	}
	telemetry.WebhookEvents.WithLabelValues("accepted").Inc()
	slog.Info("webhook run created", "repo", p.Repository.FullName,
		"pr", p.PullRequest.Number, "action", p.Action, "run", run.ID)
	t.queue.Enqueue(run.ID)
	return nil
}

func (t *Trigger) createRun(ctx context.Context, p *Payload) (*model.Run, error) {
	name, err := model.NormalizeRepoName(p.Repository.FullName)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	number := p.PullRequest.Number
	if number == 0 {
		number = p.Number
	}
	if number <= 0 {
		return nil, fmt.Errorf("pull request number missing")
	}
	now := t.now()

	repo, err := t.store.RepoByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		repo = &model.Repo{
			ID:            model.NewID(),
			Name:          name,
			CloneURL:      p.Repository.CloneURL,
			DefaultBranch: p.Repository.DefaultBranch,
			CreatedAt:     now,
		}
		if err := t.store.SaveRepo(ctx, repo); err != nil {
			return nil, fmt.Errorf("register repo %s: %w", name, err)
		}
		slog.Info("registered repository from webhook", "repo", name)
	} else if err != nil {
		return nil, fmt.Errorf("load repo %s: %w", name, err)
	}

	pr, err := t.store.PullRequestByNumber(ctx, repo.ID, number)
	if errors.Is(err, store.ErrNotFound) {
		pr = &model.PullRequest{ID: model.NewID(), RepoID: repo.ID, CreatedAt: now}
	} else if err != nil {
		return nil, fmt.Errorf("load pull request #%d: %w", number, err)
	}
	p.PullRequest.Number = number
	p.PullRequest.ApplyTo(pr)
	pr.UpdatedAt = now
	if err := t.store.SavePullRequest(ctx, pr); err != nil {
		return nil, fmt.Errorf("save pull request #%d: %w", number, err)
	}

	run := model.NewRun(pr.ID, p.PullRequest.Head.SHA, p.Sender.Login, now)
	if err := t.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}
