package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/patchpilot/internal/model"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories watched for pull requests",
	}
	cmd.AddCommand(newRepoAddCmd())
	cmd.AddCommand(newRepoListCmd())
	return cmd
}

func newRepoAddCmd() *cobra.Command {
	var defaultBranch string

	cmd := &cobra.Command{
		Use:   "add <owner/repo>",
		Short: "Register a repository for polling",
		Long:  "Register a repository. Accepts owner/repo, an https URL or an ssh clone address.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := model.NormalizeRepoName(args[0])
			if err != nil {
				return err
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := cmd.Context()
			if existing, err := st.RepoByName(ctx, name); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already registered (%s)\n", existing.Name, existing.ID)
				return nil
			}

			repo := &model.Repo{
				ID:            model.NewID(),
				Name:          name,
				CloneURL:      fmt.Sprintf("https://github.com/%s.git", name),
				DefaultBranch: defaultBranch,
				CreatedAt:     time.Now().UTC(),
			}
			if err := st.SaveRepo(ctx, repo); err != nil {
				return fmt.Errorf("save repo: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", repo.Name, repo.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&defaultBranch, "default-branch", "main", "repository default branch")

	return cmd
}

func newRepoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			repos, err := st.Repos(cmd.Context())
			if err != nil {
				return fmt.Errorf("list repos: %w", err)
			}
			if len(repos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no repositories registered")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "NAME\tID\tBRANCH\tADDED\n")
			for _, r := range repos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.ID, r.DefaultBranch, r.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}
