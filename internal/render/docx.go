package render

import (
	"fmt"
	"strings"

	"github.com/gingfrederik/docx"

	"eventqual/internal/qualify"
)

const separator = "--------------------------------------------------"

// WriteDocx saves report as a Word document at path.
func WriteDocx(path string, report qualify.Report) error {
	f := docx.NewFile()

	title := f.AddParagraph().AddText("Qualification Report: " + report.PersonName)
	title.Size(20)
	meta := f.AddParagraph().AddText(fmt.Sprintf("Generated %s | Run %s",
		report.Timestamp.Format("2006-01-02 15:04"), report.RunID))
	meta.Size(10)
	meta.Color("808080")
	f.AddParagraph()

	if report.Failed() {
		failed := f.AddParagraph().AddText("Run failed: " + report.Error)
		failed.Color("E53935")
		return save(f, path)
	}

	if d := report.EventDetails; d != nil {
		heading := f.AddParagraph().AddText("Event")
		heading.Size(16)
		f.AddParagraph().AddText(d.Name)
		info := f.AddParagraph().AddText(fmt.Sprintf("%s | %s | %s", d.Type, d.Date, d.Location))
		info.Color("808080")
		if len(d.Requirements) > 0 {
			f.AddParagraph().AddText("Requirements: " + strings.Join(d.Requirements, "; "))
		}
		if report.EventURL != "" {
			url := f.AddParagraph().AddText(report.EventURL)
			url.Size(10)
			url.Color("0000FF")
		}
		f.AddParagraph()
	}

	score := f.AddParagraph().AddText(fmt.Sprintf("Score: %d/10 (%s)", report.QualificationScore, Band(report.QualificationScore)))
	score.Size(16)
	score.Color(scoreHex(report.QualificationScore))
	for _, txt := range strings.Split(report.QualificationReasoning, "\n\n") {
		if txt = strings.TrimSpace(txt); txt != "" {
			f.AddParagraph().AddText(txt)
		}
	}

	docxList(f, "Key qualifications", report.KeyQualifications)
	docxList(f, "Missing information", report.MissingInformation)

	f.AddParagraph().AddText(separator)
	src := f.AddParagraph().AddText(fmt.Sprintf("Sources (%d searches with results, %d rounds, gathering %s)",
		report.SearchesPerformed, report.RoundsAttempted, report.GatheringStatus))
	src.Size(14)
	for _, s := range report.InformationSources {
		line := fmt.Sprintf("%s [%s]", s.Query, s.Source)
		if s.FoundExisting {
			line += " (reused)"
		}
		f.AddParagraph().AddText("- " + line)
	}

	return save(f, path)
}

func docxList(f *docx.File, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	h := f.AddParagraph().AddText(heading)
	h.Size(14)
	for _, item := range items {
		f.AddParagraph().AddText("- " + item)
	}
}

func save(f *docx.File, path string) error {
	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to write docx: %w", err)
	}
	return nil
}

func scoreHex(score int) string {
	switch {
	case score >= 8:
		return "008000"
	case score >= 6:
		return "2196F3"
	case score >= 4:
		return "FFC107"
	default:
		return "E53935"
	}
}
