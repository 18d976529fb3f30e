package render

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors for score output.
var (
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#d6dae0")
)

// ScoreColor picks the badge color for score.
func ScoreColor(score int) lipgloss.Color {
	switch {
	case score >= 8:
		return Success
	case score >= 6:
		return Info
	case score >= 4:
		return Warning
	case score >= 1:
		return Destructive
	default:
		return Muted
	}
}

// ScoreBadge renders " 8/10 highly qualified " as a colored badge.
func ScoreBadge(score int) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#101F38")).
		Background(ScoreColor(score)).
		Padding(0, 1)
	return style.Render(fmt.Sprintf("%d/10 %s", score, Band(score)))
}

// ErrorLine renders a failure message.
func ErrorLine(msg string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(Destructive).Render("error: " + msg)
}
