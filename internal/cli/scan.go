package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/patchpilot/internal/config"
	"github.com/ppiankov/patchpilot/internal/reporter"
	"github.com/ppiankov/patchpilot/internal/rules"
	"github.com/ppiankov/patchpilot/internal/scan"
)

func newScanCmd() *cobra.Command {
	var (
		format   string
		output   string
		watch    bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Analyze a local source tree",
		Long:  "Run the security, performance and quality analyzers over a directory and print the findings. With --watch the tree is re-scanned whenever a source file changes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSettings(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			w := cmd.OutOrStdout()
			color := isTerminal()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer func() { _ = f.Close() }()
				w = f
				color = false
			}

			formatter, err := reporter.ForFormat(format, color)
			if err != nil {
				return err
			}

			job := &scanJob{
				dir:       args[0],
				scanner:   scan.NewScanner(rules.Default()),
				formatter: formatter,
				w:         w,
				opts: scan.Options{
					Extensions:   cfg.Analysis.Extensions,
					MaxFileBytes: cfg.Analysis.MaxFileBytes,
				},
			}

			if !watch {
				return job.run(cmd.Context())
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := job.run(ctx); err != nil {
				return err
			}
			return watchTree(ctx, job.dir, job.opts, debounce, func() {
				if err := job.run(ctx); err != nil {
					slog.Error("rescan", "dir", job.dir, "error", err)
				}
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, sarif")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write output to file instead of stdout")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-scan when source files change")
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period before a re-scan")

	return cmd
}

type scanJob struct {
	dir       string
	scanner   *scan.Scanner
	formatter reporter.Formatter
	opts      scan.Options
	w         io.Writer

	// serializes re-scans fired by the watcher
	mu sync.Mutex
}

func (j *scanJob) run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.scanner.ScanDir(ctx, j.dir, j.opts)
	if err != nil {
		return fmt.Errorf("scan %s: %w", j.dir, err)
	}
	return j.formatter.Format(j.w, reporter.FromResult(res))
}
