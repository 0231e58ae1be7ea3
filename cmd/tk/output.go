package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/tracker/internal/bulk"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/alfredjeanlab/tracker/internal/search"
	"github.com/alfredjeanlab/tracker/internal/ui"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be table, json or yaml)", s)
	}
}

// printStructured writes v as indented JSON or as YAML. YAML goes through
// JSON first so both formats share the wire field names.
func printStructured(w io.Writer, format outputFormat, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	if format == formatJSON {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	return enc.Close()
}

// render prints v in the selected format, falling back to table for
// anything that is not json or yaml.
func render(w io.Writer, v any, table func(io.Writer) error) error {
	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	if format == formatTable {
		return table(w)
	}
	return printStructured(w, format, v)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// header writes a tab-separated table header. The header of a colored
// column must be styled too, or tabwriter misaligns it.
func header(tw io.Writer, cols ...string) {
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
}

func printSearchTable(w io.Writer, res *search.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header(tw, "KEY", ui.RenderHeader("SEVERITY"), "TYPE", "STATUS", "RULE", "ASSIGNEE", "FILE")
	for _, d := range res.Issues {
		status := string(d.Status)
		if d.Resolution != "" {
			status += "/" + string(d.Resolution)
		}
		file := d.FilePath
		if file != "" && d.Line != nil {
			file = fmt.Sprintf("%s:%d", file, *d.Line)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Key, ui.RenderSeverity(string(d.Severity)), d.Type, status, d.RuleKey, d.Assignee, truncate(file, 50))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d issues (%d total, page %d)\n", len(res.Issues), res.Total, res.Page)
	if res.EffortTotal != nil {
		fmt.Fprintf(w, "effort: %d min\n", *res.EffortTotal)
	}
	for _, f := range res.Facets {
		fmt.Fprintf(w, "\n%s:\n", f.Property)
		for _, v := range f.Values {
			fmt.Fprintf(w, "  %-24s %d\n", v.Value, v.Count)
		}
	}
	return nil
}

func printValues(w io.Writer, values []string) error {
	for _, v := range values {
		if _, err := fmt.Fprintln(w, v); err != nil {
			return err
		}
	}
	return nil
}

func printReportTable(w io.Writer, cats []query.CategoryStatistics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header(tw, "CATEGORY", "VULNERABILITIES", ui.RenderHeader("RATING"), "OPEN HOTSPOTS", "TO REVIEW", "WON'T FIX")
	var row func(prefix string, c query.CategoryStatistics)
	row = func(prefix string, c query.CategoryStatistics) {
		fmt.Fprintf(tw, "%s%s\t%d\t%s\t%d\t%d\t%d\n",
			prefix, c.Category, c.Vulnerabilities, ui.RenderRating(ratingLetter(c.Rating)),
			c.OpenHotspots, c.ToReviewHotspots, c.WontFixHotspots)
		for _, child := range c.Children {
			row(prefix+"  ", child)
		}
	}
	for _, c := range cats {
		row("", c)
	}
	return tw.Flush()
}

// ratingLetter maps a 1..5 rating to A..E.
func ratingLetter(r int) string {
	if r < 1 || r > 5 {
		return "-"
	}
	return string(rune('A' + r - 1))
}

func printBulkResult(w io.Writer, res *bulk.Result) error {
	fmt.Fprintf(w, "changed:     %d %s\n", len(res.Changed), strings.Join(res.Changed, " "))
	_, err := fmt.Fprintf(w, "not changed: %d %s\n", len(res.NotChanged), strings.Join(res.NotChanged, " "))
	return err
}

func printIssue(w io.Writer, i *model.Issue) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "key:\t%s\n", i.Key)
	fmt.Fprintf(tw, "rule:\t%s\n", i.RuleKey)
	fmt.Fprintf(tw, "severity:\t%s\n", ui.RenderSeverity(string(i.Severity)))
	fmt.Fprintf(tw, "type:\t%s\n", i.Type)
	fmt.Fprintf(tw, "status:\t%s\n", i.Status)
	if i.Resolution != "" {
		fmt.Fprintf(tw, "resolution:\t%s\n", i.Resolution)
	}
	if i.Assignee != "" {
		fmt.Fprintf(tw, "assignee:\t%s\n", i.Assignee)
	}
	if len(i.Tags) > 0 {
		fmt.Fprintf(tw, "tags:\t%s\n", strings.Join(i.Tags, ", "))
	}
	if !i.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "updated:\t%s\n", i.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
