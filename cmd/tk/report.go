package main

import (
	"io"

	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/spf13/cobra"
)

var reportReq query.ReportRequest

var securityReportCmd = &cobra.Command{
	Use:     "security-report <owaspTop10|sansTop25> <project>",
	Short:   "Show vulnerability and hotspot counts per security category",
	GroupID: "issues",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := reportReq
		req.Standard, req.ComponentKey = args[0], args[1]
		cats, err := trackerClient.SecurityReport(cmd.Context(), &req)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), cats, func(w io.Writer) error { return printReportTable(w, cats) })
	},
}

func init() {
	securityReportCmd.Flags().StringVar(&reportReq.Branch, "branch", "", "branch name (default: main branch)")
	securityReportCmd.Flags().BoolVar(&reportReq.IncludeCwe, "cwe", false, "break categories down by CWE")
}
