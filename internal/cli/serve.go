package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/patchpilot/internal/config"
	"github.com/ppiankov/patchpilot/internal/poller"
	"github.com/ppiankov/patchpilot/internal/rules"
	"github.com/ppiankov/patchpilot/internal/runner"
	"github.com/ppiankov/patchpilot/internal/scan"
	"github.com/ppiankov/patchpilot/internal/scm"
	"github.com/ppiankov/patchpilot/internal/server"
	"github.com/ppiankov/patchpilot/internal/store"
	"github.com/ppiankov/patchpilot/internal/suggest"
	"github.com/ppiankov/patchpilot/internal/webhook"
	"github.com/ppiankov/patchpilot/internal/workspace"
)

// drainTimeout bounds how long shutdown waits for in-flight runs.
const drainTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, run dispatcher and pull request poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			setLogLevel(slog.LevelInfo)

			cfg, err := config.LoadSettings(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "HTTP listen address")

	return cmd
}

// secrets holds the resolved credentials from settings.
type secrets struct {
	githubToken   string
	webhookSecret string
	aiKey         string
}

func (s secrets) values() []string {
	return []string{s.githubToken, s.webhookSecret, s.aiKey}
}

func resolveSecrets(cfg *config.Settings) (secrets, error) {
	var s secrets
	var err error
	if s.githubToken, err = config.ResolveSecret(cfg.GitHub.Token); err != nil {
		return s, fmt.Errorf("github.token: %w", err)
	}
	if s.webhookSecret, err = config.ResolveSecret(cfg.GitHub.WebhookSecret); err != nil {
		return s, fmt.Errorf("github.webhook_secret: %w", err)
	}
	if cfg.AI.Enabled {
		if s.aiKey, err = config.ResolveSecret(cfg.AI.APIKey); err != nil {
			return s, fmt.Errorf("ai.api_key: %w", err)
		}
	}
	return s, nil
}

// newSuggester enables AI suggestions only when configured with a key.
func newSuggester(cfg *config.Settings, key string) *suggest.Generator {
	sc := suggest.Config{MaxSuggestions: cfg.AI.MaxSuggestions}
	switch {
	case cfg.AI.Enabled && key != "":
		sc.AI = &suggest.AIConfig{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  key,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		}
	case cfg.AI.Enabled:
		slog.Warn("ai enabled without api_key, using rule-based suggestions")
	}
	return suggest.New(sc)
}

func runServe(ctx context.Context, cfg *config.Settings) error {
	sec, err := resolveSecrets(cfg)
	if err != nil {
		return err
	}

	if err := workspace.Lock(cfg.WorkspaceDir, cfg.Listen); err != nil {
		return err
	}
	defer workspace.Unlock(cfg.WorkspaceDir)

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ws, err := workspace.NewGitProvider(workspace.GitConfig{
		Root:  cfg.WorkspaceDir,
		Token: sec.githubToken,
	})
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	orch := runner.NewOrchestrator(runner.Config{
		Store:     st,
		Workspace: ws,
		Scanner:   scan.NewScanner(rules.Default()),
		Suggester: newSuggester(cfg, sec.aiKey),
		Scan: scan.Options{
			Extensions:   cfg.Analysis.Extensions,
			MaxFileBytes: cfg.Analysis.MaxFileBytes,
		},
		Secrets: sec.values(),
	})

	disp := runner.NewDispatcher(orch, st, runner.DispatcherConfig{
		Workers:   cfg.Runner.Workers,
		QueueSize: cfg.Runner.QueueSize,
	})
	if err := disp.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := disp.Stop(stopCtx); err != nil {
			slog.Warn("dispatcher stop", "error", err)
		}
	}()

	gh := scm.NewClient(scm.Config{APIURL: cfg.GitHub.APIURL, Token: sec.githubToken})
	pl := poller.New(st, gh, disp, poller.Config{
		Interval:    cfg.Poll.Interval,
		Tick:        cfg.Poll.Tick,
		Concurrency: cfg.Poll.Concurrency,
	})
	if err := pl.Run(ctx); err != nil {
		return err
	}
	defer pl.Close()
	if cfg.Poll.Enabled {
		pl.Start()
	}

	if sec.webhookSecret == "" {
		slog.Warn("github.webhook_secret is empty, all webhook deliveries will be rejected")
	}
	trig := webhook.NewTrigger(st, disp, sec.webhookSecret)

	srv := server.New(server.Config{
		Listen:  cfg.Listen,
		Store:   st,
		Webhook: trig,
		Poller:  pl,
	})
	addr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	slog.Info("patchpilot serving", "addr", addr, "store", cfg.Store.Driver, "polling", cfg.Poll.Enabled)

	<-ctx.Done()
	slog.Info("shutting down")
	if err := srv.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("server stop", "error", err)
	}
	return nil
}
