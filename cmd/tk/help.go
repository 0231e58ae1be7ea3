package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/ui"
	"github.com/spf13/cobra"
)

// helpRule styles the matches of one pattern in Cobra's help text.
type helpRule struct {
	re    *regexp.Regexp
	style func(parts []string) string
}

var helpRules = []helpRule{
	// Section headers such as "Issues:" or "Flags:".
	{
		re:    regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`),
		style: func(p []string) string { return ui.RenderAccent(strings.TrimSpace(p[0])) },
	},
	// Command names in the command list.
	{
		re:    regexp.MustCompile(`(?m)^(  )(\S+)(  )`),
		style: func(p []string) string { return p[1] + ui.RenderCommand(p[2]) + p[3] },
	},
	// Flag value types, e.g. "--ps int".
	{
		re:    regexp.MustCompile(`(--?\S+\s+)(string|strings|stringArray|int|duration|bool)\b`),
		style: func(p []string) string { return p[1] + ui.RenderMuted(p[2]) },
	},
	// Defaults, e.g. (default "table").
	{
		re:    regexp.MustCompile(`\(default "[^"]*"\)`),
		style: func(p []string) string { return ui.RenderMuted(p[0]) },
	},
}

// colorizedHelpFunc renders Cobra's usage text with ANSI styles when the
// terminal supports color.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	for _, r := range helpRules {
		s = r.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.style(r.re.FindStringSubmatch(match))
		})
	}
	return s
}
