package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tanq16/sdm/internal/utils"
	"golang.org/x/term"
)

// Print helpers write one styled line to stdout, outside the live display.
func PrintSuccess(text string) { fmt.Println(successStyle.Render(text)) }
func PrintError(text string)   { fmt.Println(errorStyle.Render(text)) }
func PrintWarning(text string) { fmt.Println(warningStyle.Render(text)) }
func PrintInfo(text string)    { fmt.Println(infoStyle.Render(text)) }
func PrintDebug(text string)   { fmt.Println(progressStyle.Render(text)) }

// renderProgress draws "•━━━   • 25.0% • 1.00 MB / 4.00 MB • 1.00 MB/s • 3s".
// A total of zero or less renders as an empty bar.
func renderProgress(downloaded, total int64, speed float64, timeLeft time.Duration, width int) string {
	if width <= 0 {
		width = 30
	}
	downloaded = max(0, downloaded)
	percent := 0.0
	if total > 0 {
		percent = float64(min(downloaded, total)) / float64(total)
	}
	filled := min(int(percent*float64(width)), width)
	bullet := StyleSymbols["bullet"]
	bar := bullet + strings.Repeat(StyleSymbols["hline"], filled) + strings.Repeat(" ", width-filled) + bullet
	size := fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(downloaded)), utils.FormatBytes(uint64(max(0, total))))
	return progressStyle.Render(fmt.Sprintf("%s %.1f%% %s %s %s %s %s %s",
		bar, percent*100, bullet, size, bullet, utils.FormatSpeed(speed), bullet, utils.FormatETA(timeLeft)))
}

func statusIndicator(status string) string {
	if look, ok := statusLook[status]; ok {
		return look.style.Render(StyleSymbols[look.symbol])
	}
	return infoStyle.Render(StyleSymbols["bullet"])
}

func styleMessage(status, message string) string {
	if look, ok := statusLook[status]; ok {
		return look.style.Render(message)
	}
	return pendingStyle.Render(message)
}

// terminalSize falls back to 80x24 when stdout is not a terminal.
func terminalSize() (width, height int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 || height <= 0 {
		return 80, 24
	}
	return width, height
}

// wrapText splits text into lines that fit the terminal after indent,
// measuring display width so wide runes in file names don't overflow.
func wrapText(text string, indent int) []string {
	termWidth, _ := terminalSize()
	maxWidth := termWidth - indent - 2
	if maxWidth <= 10 {
		maxWidth = 80
	}
	if lipgloss.Width(text) <= maxWidth {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	currentWidth := 0
	for _, r := range text {
		w := lipgloss.Width(string(r))
		if currentWidth+w > maxWidth {
			lines = append(lines, current.String())
			current.Reset()
			currentWidth = 0
		}
		current.WriteRune(r)
		currentWidth += w
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
