// Package render turns a qualification report into markdown, styled terminal
// output, or a .docx document.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"eventqual/internal/qualify"
)

// Markdown renders report as a markdown document.
func Markdown(report qualify.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Qualification: %s\n\n", report.PersonName)

	if report.Failed() {
		fmt.Fprintf(&b, "**Run failed:** %s\n", report.Error)
		return b.String()
	}

	if d := report.EventDetails; d != nil {
		fmt.Fprintf(&b, "## Event\n\n")
		fmt.Fprintf(&b, "- **Name:** %s\n", d.Name)
		fmt.Fprintf(&b, "- **Type:** %s\n", d.Type)
		fmt.Fprintf(&b, "- **Date:** %s\n", d.Date)
		fmt.Fprintf(&b, "- **Location:** %s\n", d.Location)
		fmt.Fprintf(&b, "- **Audience:** %s\n", d.Audience)
		fmt.Fprintf(&b, "- **Format:** %s\n", d.Format)
		if len(d.Requirements) > 0 {
			fmt.Fprintf(&b, "- **Requirements:** %s\n", strings.Join(d.Requirements, "; "))
		}
		if len(d.Topics) > 0 {
			fmt.Fprintf(&b, "- **Topics:** %s\n", strings.Join(d.Topics, ", "))
		}
		if report.EventURL != "" {
			fmt.Fprintf(&b, "- **URL:** %s\n", report.EventURL)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Score: %d/10 (%s)\n\n", report.QualificationScore, Band(report.QualificationScore))
	if report.QualificationReasoning != "" {
		fmt.Fprintf(&b, "%s\n\n", report.QualificationReasoning)
	}

	writeList(&b, "Key qualifications", report.KeyQualifications)
	writeList(&b, "Missing information", report.MissingInformation)

	fmt.Fprintf(&b, "## Sources\n\n")
	fmt.Fprintf(&b, "%d searches with results over %d rounds (gathering %s).\n\n",
		report.SearchesPerformed, report.RoundsAttempted, report.GatheringStatus)
	if len(report.InformationSources) > 0 {
		b.WriteString("| Query | Source | Reused |\n|---|---|---|\n")
		for _, s := range report.InformationSources {
			reused := "no"
			if s.FoundExisting {
				reused = "yes"
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", escapeCell(s.Query), s.Source, reused)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "_Generated %s_\n", report.Timestamp.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Band names the qualification level of score.
func Band(score int) string {
	switch {
	case score >= 10:
		return "exceptionally qualified"
	case score >= 8:
		return "highly qualified"
	case score >= 6:
		return "well qualified"
	case score >= 4:
		return "minimally qualified"
	case score >= 1:
		return "not qualified"
	default:
		return "unscored"
	}
}

// Terminal renders markdown for a terminal at the given wrap width.
func Terminal(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
