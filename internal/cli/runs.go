package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/store"
)

func newRunsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs <pr-id | owner/repo#number>",
		Short: "List analysis runs of a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := cmd.Context()
			pr, err := resolvePullRequest(ctx, st, args[0])
			if err != nil {
				return err
			}
			runs, err := st.RunsForPullRequest(ctx, pr.ID)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			fmt.Fprintf(out, "#%d %s (%s)\n", pr.Number, pr.Title, pr.SourceBranch)
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "RUN\tSTATUS\tTRIGGER\tCREATED\tFINDINGS\tSCORE\tERROR\n")
			for _, r := range runs {
				findings, score := "-", "-"
				if r.Metrics != nil {
					findings = strconv.Itoa(r.Metrics.Total)
					score = strconv.Itoa(r.Metrics.OverallScore)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Status, r.TriggeredBy, r.CreatedAt.Format("2006-01-02 15:04"),
					findings, score, r.ErrorMessage)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs as JSON")

	return cmd
}

// resolvePullRequest accepts a stored pull request id or owner/repo#number.
func resolvePullRequest(ctx context.Context, st store.Store, ref string) (*model.PullRequest, error) {
	repoRef, num, ok := strings.Cut(ref, "#")
	if !ok {
		pr, err := st.PullRequest(ctx, ref)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("pull request %s not found", ref)
		}
		return pr, err
	}

	name, err := model.NormalizeRepoName(repoRef)
	if err != nil {
		return nil, err
	}
	number, err := strconv.Atoi(num)
	if err != nil || number <= 0 {
		return nil, fmt.Errorf("invalid pull request number %q", num)
	}
	repo, err := st.RepoByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("repository %s is not registered", name)
	}
	if err != nil {
		return nil, err
	}
	pr, err := st.PullRequestByNumber(ctx, repo.ID, number)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("pull request %s#%d not found", name, number)
	}
	return pr, err
}
