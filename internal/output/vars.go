package output

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))  // dark green
	summaryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))   // green
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))   // red
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))  // yellow
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))  // blue
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))  // cyan
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250")) // light grey
	errorLogStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // grey
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"pending": "◉",
	"bullet":  "•",
	"hline":   "━",
}

// statusLook is how each display status renders its indicator and message.
// Unknown statuses (active) fall back to an info bullet.
var statusLook = map[string]struct {
	style  lipgloss.Style
	symbol string
}{
	"success":   {successStyle, "pass"},
	"error":     {errorStyle, "fail"},
	"warning":   {warningStyle, "warning"},
	"cancelled": {warningStyle, "warning"},
	"pending":   {pendingStyle, "pending"},
}
