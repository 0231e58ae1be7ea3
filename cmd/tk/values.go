package main

import (
	"io"

	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/spf13/cobra"
)

func newValuesCmd(use, short string, fetch func(cmd *cobra.Command, req *query.ValuesRequest) ([]string, error)) *cobra.Command {
	var req query.ValuesRequest
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		GroupID: "issues",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := req
			if len(args) == 1 {
				r.Query = args[0]
			}
			values, err := fetch(cmd, &r)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), values, func(w io.Writer) error { return printValues(w, values) })
		},
	}
	cmd.Flags().StringVar(&req.ComponentKey, "project", "", "restrict to a project key")
	cmd.Flags().StringVar(&req.Branch, "branch", "", "branch name (default: main branch)")
	cmd.Flags().IntVar(&req.Size, "ps", 0, "max values returned")
	return cmd
}

var tagsCmd = newValuesCmd("tags [<text>]", "List issue tags, optionally matching text",
	func(cmd *cobra.Command, req *query.ValuesRequest) ([]string, error) {
		return trackerClient.Tags(cmd.Context(), req)
	})

var authorsCmd = newValuesCmd("authors [<text>]", "List scm authors, optionally matching text",
	func(cmd *cobra.Command, req *query.ValuesRequest) ([]string, error) {
		return trackerClient.Authors(cmd.Context(), req)
	})
