package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// chunkBar draws chunk completion. Chunks that failed and are still
// outstanding follow the completed run as a warning segment.
func chunkBar(done, failing, total, width int) string {
	if width <= 0 {
		width = 30
	}
	done = max(0, min(done, total))
	failing = max(0, min(failing, total-done))
	filled, marked := 0, 0
	if total > 0 {
		filled = done * width / total
		if failing > 0 {
			marked = min(max(1, failing*width/total), width-filled)
		}
	}
	bar := debugStyle.Render(StyleSymbols["bullet"] + strings.Repeat(StyleSymbols["hline"], filled))
	bar += warningStyle.Render(strings.Repeat(StyleSymbols["hline"], marked))
	bar += debugStyle.Render(strings.Repeat(" ", width-filled-marked) + StyleSymbols["bullet"])
	bar += debugStyle.Render(fmt.Sprintf(" %d/%d chunks", done, total))
	if failing > 0 {
		bar += warningStyle.Render(fmt.Sprintf(" %d retrying", failing))
	}
	return bar
}

// terminalSize falls back to 80x24 when w is not a terminal.
func terminalSize(w io.Writer) (int, int) {
	if f, ok := w.(*os.File); ok {
		if width, height, err := term.GetSize(int(f.Fd())); err == nil && width > 0 && height > 0 {
			return width, height
		}
	}
	return 80, 24
}

// wrapLine breaks text on word boundaries so no line exceeds width cells.
func wrapLine(text string, width int) []string {
	if width <= 10 {
		width = 80
	}
	lines := strings.Split(lipgloss.NewStyle().Width(width).Render(text), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return lines
}
