package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ppiankov/patchpilot/internal/reporter"
	"github.com/ppiankov/patchpilot/internal/store"
)

func newWatchCmd() *cobra.Command {
	var (
		limit    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor analysis runs in real-time",
		Long:  "Watch provides a top-like TUI over the most recent runs in the configured store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			model := reporter.NewTUIModel(runRowLoader(st, limit), interval)
			p := tea.NewProgram(model, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "number of recent runs to show")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")

	return cmd
}

// runRowLoader returns a loader of the newest runs joined with their pull
// request and repository. Lookups are cached across refreshes.
func runRowLoader(st store.Store, limit int) func() ([]reporter.RunRow, error) {
	type prInfo struct {
		repo   string
		number int
		title  string
	}
	cache := make(map[string]prInfo)
	repoNames := make(map[string]string)
	var mu sync.Mutex

	return func() ([]reporter.RunRow, error) {
		mu.Lock()
		defer mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		runs, err := st.RecentRuns(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("recent runs: %w", err)
		}

		rows := make([]reporter.RunRow, 0, len(runs))
		for _, r := range runs {
			info, ok := cache[r.PullRequestID]
			if !ok {
				if pr, err := st.PullRequest(ctx, r.PullRequestID); err == nil {
					name, known := repoNames[pr.RepoID]
					if !known {
						if repo, err := st.Repo(ctx, pr.RepoID); err == nil {
							name = repo.Name
							repoNames[pr.RepoID] = name
						}
					}
					info = prInfo{repo: name, number: pr.Number, title: pr.Title}
					cache[r.PullRequestID] = info
				}
			}
			rows = append(rows, reporter.RunRow{
				Run:      r,
				Repo:     info.repo,
				PRNumber: info.number,
				PRTitle:  info.title,
			})
		}
		return rows, nil
	}
}
