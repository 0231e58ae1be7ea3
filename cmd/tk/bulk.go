package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/bulk"
	"github.com/spf13/cobra"
)

// parseAction parses "key" or "key:param=value&param2=value2" into an
// action request.
func parseAction(s string) (bulk.ActionRequest, error) {
	key, rawParams, _ := strings.Cut(s, ":")
	key = strings.TrimSpace(key)
	if key == "" {
		return bulk.ActionRequest{}, fmt.Errorf("invalid action %q: missing key", s)
	}
	req := bulk.ActionRequest{Key: key}
	if rawParams == "" {
		return req, nil
	}
	values, err := url.ParseQuery(rawParams)
	if err != nil {
		return bulk.ActionRequest{}, fmt.Errorf("invalid action %q: %w", s, err)
	}
	req.Params = make(map[string]string, len(values))
	for name, vs := range values {
		req.Params[name] = strings.Join(vs, ",")
	}
	return req, nil
}

var bulkCmd = &cobra.Command{
	Use:     "bulk-change <issue>...",
	Short:   "Apply actions to many issues at once",
	GroupID: "workflow",
	Args:    cobra.MinimumNArgs(1),
	Example: `  tk bulk-change ISSUE-1 ISSUE-2 -a do_transition:transition=confirm -a assign:assignee=alice
  tk bulk-change ISSUE-1 -a "add_tags:tags=security,owasp" -m "triaged" --notify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawActions, _ := cmd.Flags().GetStringArray("action")
		comment, _ := cmd.Flags().GetString("comment")
		notify, _ := cmd.Flags().GetBool("notify")

		q := &bulk.Query{IssueKeys: args, Comment: comment, SendNotifications: notify}
		for _, raw := range rawActions {
			a, err := parseAction(raw)
			if err != nil {
				return err
			}
			q.Actions = append(q.Actions, a)
		}

		res, err := trackerClient.BulkChange(cmd.Context(), q)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), res, func(w io.Writer) error { return printBulkResult(w, res) })
	},
}

func init() {
	bulkCmd.Flags().StringArrayP("action", "a", nil, "action as key[:param=value&...] (repeatable, applied in order)")
	bulkCmd.Flags().StringP("comment", "m", "", "comment added to every changed issue")
	bulkCmd.Flags().Bool("notify", false, "send change notifications")
}
