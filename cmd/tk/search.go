package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/alfredjeanlab/tracker/internal/search"
	"github.com/spf13/cobra"
)

var searchReq query.Request

var searchCmd = &cobra.Command{
	Use:     "search",
	Short:   "Search issues",
	GroupID: "issues",
	Args:    cobra.NoArgs,
	Example: `  tk search --projects web --severities BLOCKER,CRITICAL --resolved=false
  tk search --facets severities,types --ps 0
  tk search --created-in-last 2w --sort CREATION_DATE --asc=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := searchReq
		if cmd.Flags().Changed("resolved") {
			v, _ := cmd.Flags().GetBool("resolved")
			req.Resolved = &v
		}
		if cmd.Flags().Changed("assigned") {
			v, _ := cmd.Flags().GetBool("assigned")
			req.Assigned = &v
		}
		if cmd.Flags().Changed("asc") {
			v, _ := cmd.Flags().GetBool("asc")
			req.Asc = &v
		}

		res, err := trackerClient.Search(cmd.Context(), &req)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), res, func(w io.Writer) error { return printSearchTable(w, res) })
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringSliceVar(&searchReq.Issues, "issues", nil, "issue keys")
	f.StringSliceVar(&searchReq.Severities, "severities", nil, "severities (INFO, MINOR, MAJOR, CRITICAL, BLOCKER)")
	f.StringSliceVar(&searchReq.Statuses, "statuses", nil, "statuses")
	f.StringSliceVar(&searchReq.Resolutions, "resolutions", nil, "resolutions")
	f.StringSliceVar(&searchReq.Types, "types", nil, "issue types (CODE_SMELL, BUG, VULNERABILITY, SECURITY_HOTSPOT)")
	f.StringSliceVar(&searchReq.Rules, "rules", nil, "rule keys")
	f.StringSliceVar(&searchReq.Languages, "languages", nil, "languages")
	f.StringSliceVar(&searchReq.Tags, "tags", nil, "tags")
	f.StringSliceVar(&searchReq.Assignees, "assignees", nil, "assignee logins (__me__ for the current user)")
	f.StringSliceVar(&searchReq.Authors, "authors", nil, "scm authors")
	f.StringSliceVar(&searchReq.Directories, "directories", nil, "directory paths")
	f.StringSliceVar(&searchReq.OwaspTop10, "owasp-top10", nil, "OWASP Top 10 categories (a1..a10)")
	f.StringSliceVar(&searchReq.SansTop25, "sans-top25", nil, "SANS Top 25 categories")
	f.StringSliceVar(&searchReq.Cwe, "cwe", nil, "CWE identifiers")
	f.StringSliceVar(&searchReq.ComponentKeys, "projects", nil, "component keys")
	f.StringSliceVar(&searchReq.ComponentUUIDs, "component-uuids", nil, "component uuids")
	f.StringVar(&searchReq.Branch, "branch", "", "branch name (default: main branch)")
	f.Bool("resolved", false, "only resolved (or, with =false, unresolved) issues")
	f.Bool("assigned", false, "only assigned (or, with =false, unassigned) issues")
	f.StringVar(&searchReq.CreatedAfter, "created-after", "", "created on or after this date or datetime")
	f.StringVar(&searchReq.CreatedBefore, "created-before", "", "created before this date or datetime")
	f.StringVar(&searchReq.CreatedAt, "created-at", "", "created at this exact datetime")
	f.StringVar(&searchReq.CreatedInLast, "created-in-last", "", "created in the last period (e.g. 1m2w)")
	f.StringVar(&searchReq.TimeZone, "time-zone", "", "time zone for date facets")
	f.StringVar(&searchReq.Sort, "sort", "", fmt.Sprintf("sort key (%s)", strings.Join(search.SortKeys(), ", ")))
	f.Bool("asc", true, "ascending sort")
	f.StringSliceVar(&searchReq.Facets, "facets", nil, "facets to compute")
	f.StringVar(&searchReq.FacetMode, "facet-mode", "", "facet mode (count or effort)")
	f.IntVar(&searchReq.FacetSize, "facet-size", 0, "max values per facet")
	f.IntVarP(&searchReq.Page, "page", "p", 0, "page number (1-based)")
	f.IntVar(&searchReq.PageSize, "ps", 0, "page size")
}
