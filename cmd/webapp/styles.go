package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorPrimary   = lipgloss.Color("#7C3AED")
	colorMuted     = lipgloss.Color("#6B7280")
	colorSuccess   = lipgloss.Color("#10B981")
	colorError     = lipgloss.Color("#EF4444")
	colorWarning   = lipgloss.Color("#F59E0B")
	colorHighlight = lipgloss.Color("#3B82F6")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	labelStyle   = lipgloss.NewStyle().Foreground(colorMuted).Width(9)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	idStyle      = lipgloss.NewStyle().Foreground(colorHighlight)
)

// field prints an aligned "label value" line
func field(w io.Writer, label, value string) {
	fmt.Fprintln(w, "  "+labelStyle.Render(label)+value)
}
