package main

import (
	"fmt"

	"github.com/alfredjeanlab/tracker/internal/client"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:     "reindex [<issue>...]",
	Short:   "Rebuild search index documents (root only)",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		all, _ := cmd.Flags().GetBool("all")

		set := 0
		for _, b := range []bool{len(args) > 0, project != "", all} {
			if b {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("give issue keys, --project or --all (exactly one)")
		}

		n, err := trackerClient.Reindex(cmd.Context(), &client.ReindexRequest{IssueKeys: args, Project: project, All: all})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d issues indexed\n", n)
		return nil
	},
}

func init() {
	reindexCmd.Flags().String("project", "", "re-index one project by key")
	reindexCmd.Flags().Bool("all", false, "re-index every issue")
}
