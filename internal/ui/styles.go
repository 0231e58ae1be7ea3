// Package ui styles tk's terminal output with ANSI 256 colors.
package ui

import "fmt"

type color int

// Table colors are all three-digit codes, so every colored cell of a
// tabwriter column carries the same number of invisible bytes.
const (
	colorAccent color = 74
	colorCmd    color = 250
	colorMuted  color = 245

	colorBlocker  color = 196
	colorCritical color = 203
	colorMajor    color = 214
	colorMinor    color = 179
	colorInfo     color = 110

	colorGood color = 114
)

var enabled bool

// EnableColor turns styling on or off. Output is plain until enabled.
func EnableColor(on bool) {
	enabled = on
}

func paint(c color, s string) string {
	if !enabled {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", c, s)
}

func RenderAccent(s string) string { return paint(colorAccent, s) }

func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand styles a command name in help output.
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderHeader styles a table header cell.
func RenderHeader(s string) string { return paint(colorMuted, s) }

var severityColors = map[string]color{
	"BLOCKER":  colorBlocker,
	"CRITICAL": colorCritical,
	"MAJOR":    colorMajor,
	"MINOR":    colorMinor,
	"INFO":     colorInfo,
}

// RenderSeverity colors an issue severity. Unknown values are muted.
func RenderSeverity(severity string) string {
	c, ok := severityColors[severity]
	if !ok {
		c = colorMuted
	}
	return paint(c, severity)
}

var ratingColors = map[string]color{
	"A": colorGood,
	"B": colorInfo,
	"C": colorMinor,
	"D": colorMajor,
	"E": colorBlocker,
}

// RenderRating colors a security rating letter from A (good) to E.
func RenderRating(letter string) string {
	c, ok := ratingColors[letter]
	if !ok {
		c = colorMuted
	}
	return paint(c, letter)
}
