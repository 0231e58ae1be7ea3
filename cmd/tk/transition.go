package main

import (
	"io"

	"github.com/spf13/cobra"
)

var transitionsCmd = &cobra.Command{
	Use:     "transitions <issue>",
	Short:   "List the workflow transitions available on an issue",
	GroupID: "workflow",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := trackerClient.ListTransitions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), ts, func(w io.Writer) error { return printValues(w, ts) })
	},
}

var transitionCmd = &cobra.Command{
	Use:     "transition <issue> <transition>",
	Short:   "Apply a workflow transition to one issue",
	GroupID: "workflow",
	Args:    cobra.ExactArgs(2),
	Example: `  tk transition ISSUE-1 confirm
  tk transition ISSUE-1 wontfix -m "accepted risk"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")
		issue, err := trackerClient.DoTransition(cmd.Context(), args[0], args[1], comment)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), issue, func(w io.Writer) error { return printIssue(w, issue) })
	},
}

func init() {
	transitionCmd.Flags().StringP("comment", "m", "", "comment added with the transition")
}
