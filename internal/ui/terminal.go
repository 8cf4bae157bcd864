// Package ui renders pw command output with optional ANSI colors.
package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether pw output on stdout should be colored.
func ShouldUseColor() bool {
	return UseColor(os.Stdout)
}

// UseColor reports whether ANSI colors should be written to f. NO_COLOR
// wins over CLICOLOR_FORCE, which wins over CLICOLOR=0; otherwise color is
// used only on a terminal.
func UseColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}
