package ui

import (
	"fmt"
	"strings"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// Bar renders done out of total as a fixed width bar with counts
func Bar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = min(done*barWidth/total, barWidth)
	}
	filled = max(filled, 0)
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, done, total)
}

// PrintCoverage prints one coverage line, green when complete
func PrintCoverage(label string, done, total int) {
	line := Bar(done, total)
	if done >= total {
		line = Green(line)
	} else {
		line = Yellow(line)
	}
	write(false, "%-24s %s\n", Cyan(label), line)
}

// PrintTable prints rows of label and value pairs aligned on the label
func PrintTable(title string, rows [][2]string) {
	if title != "" {
		PrintHighlight(title)
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	for _, r := range rows {
		write(false, "  %s  %s\n", Cyan(r[0]+strings.Repeat(" ", width-len(r[0]))), r[1])
	}
}
