package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout should be styled. NO_COLOR and
// TERM=dumb disable color, CLICOLOR_FORCE=1 forces it and CLICOLOR=0
// disables it; otherwise color follows whether stdout is a terminal.
func ShouldUseColor() bool {
	return colorWanted(os.Getenv, term.IsTerminal(int(os.Stdout.Fd())))
}

func colorWanted(getenv func(string) string, tty bool) bool {
	if getenv("NO_COLOR") != "" || getenv("TERM") == "dumb" {
		return false
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" {
		return false
	}
	return tty
}
