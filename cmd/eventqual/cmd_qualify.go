package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"eventqual/internal/event"
	"eventqual/internal/qualify"
	"eventqual/internal/render"
	"eventqual/internal/system"
)

var (
	eventFile         string
	eventName         string
	eventType         string
	eventDate         string
	eventLocation     string
	eventAudience     string
	eventFormat       string
	eventDescription  string
	eventRequirements []string
	eventTopics       []string

	outputJSON bool
	docxPath   string
	wrapWidth  int
)

// qualifyCmd qualifies a person for an event described on the command line
var qualifyCmd = &cobra.Command{
	Use:   "qualify <person name>",
	Short: "Qualify a person for an event",
	Long: `Gathers evidence about the person and scores their fit for the event (1-10).

The event comes from --event-file (JSON) and/or the individual --event-* flags;
flags override fields read from the file.

Example:
  eventqual qualify "Ada Lovelace" --event-name "History of Computing Summit" \
    --requirement "Computing pioneer" --requirement "Public speaking"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQualify,
}

// qualifyURLCmd extracts the event from its page first
var qualifyURLCmd = &cobra.Command{
	Use:   "qualify-url <person name> <event url>",
	Short: "Extract an event from its web page, then qualify a person for it",
	Args:  cobra.ExactArgs(2),
	RunE:  runQualifyURL,
}

func init() {
	qualifyCmd.Flags().StringVar(&eventFile, "event-file", "", "JSON file with the event details")
	qualifyCmd.Flags().StringVar(&eventName, "event-name", "", "Event name")
	qualifyCmd.Flags().StringVar(&eventType, "event-type", "", "Event type (conference, workshop, meetup...)")
	qualifyCmd.Flags().StringVar(&eventDate, "event-date", "", "Event date")
	qualifyCmd.Flags().StringVar(&eventLocation, "event-location", "", "Event location")
	qualifyCmd.Flags().StringVar(&eventAudience, "event-audience", "", "Target audience")
	qualifyCmd.Flags().StringVar(&eventFormat, "event-format", "", "Format (talk, panel, workshop...)")
	qualifyCmd.Flags().StringVar(&eventDescription, "event-description", "", "Event description")
	qualifyCmd.Flags().StringArrayVar(&eventRequirements, "requirement", nil, "Requirement (repeatable)")
	qualifyCmd.Flags().StringArrayVar(&eventTopics, "topic", nil, "Topic (repeatable)")

	for _, c := range []*cobra.Command{qualifyCmd, qualifyURLCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Print the report as JSON")
		c.Flags().StringVar(&docxPath, "docx", "", "Also write the report to this .docx file")
		c.Flags().IntVar(&wrapWidth, "width", 100, "Terminal wrap width")
	}
}

func runQualify(cmd *cobra.Command, args []string) error {
	details, err := eventFromFlags()
	if err != nil {
		return err
	}
	return withAgent(cmd, func(ctx context.Context, sys *system.System) qualify.Report {
		return sys.Orchestrator.Qualify(ctx, strings.Join(args, " "), details)
	})
}

func runQualifyURL(cmd *cobra.Command, args []string) error {
	return withAgent(cmd, func(ctx context.Context, sys *system.System) qualify.Report {
		return sys.Orchestrator.QualifyFromURL(ctx, args[0], args[1])
	})
}

func withAgent(cmd *cobra.Command, run func(context.Context, *system.System) qualify.Report) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	sys, err := system.Boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to boot: %w", err)
	}
	defer sys.Close()

	report := run(ctx, sys)
	if err := printReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if docxPath != "" {
		if err := render.WriteDocx(docxPath, report); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", docxPath)
	}
	if report.Failed() {
		return fmt.Errorf("qualification failed")
	}
	return nil
}

// eventFromFlags merges --event-file with the --event-* flags.
func eventFromFlags() (event.Details, error) {
	var d event.Details
	if eventFile != "" {
		data, err := os.ReadFile(eventFile)
		if err != nil {
			return d, fmt.Errorf("failed to read event file: %w", err)
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return d, fmt.Errorf("failed to parse event file: %w", err)
		}
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&d.Name, eventName)
	set(&d.Type, eventType)
	set(&d.Date, eventDate)
	set(&d.Location, eventLocation)
	set(&d.Audience, eventAudience)
	set(&d.Format, eventFormat)
	set(&d.Description, eventDescription)
	if len(eventRequirements) > 0 {
		d.Requirements = eventRequirements
	}
	if len(eventTopics) > 0 {
		d.Topics = eventTopics
	}
	return d, nil
}

func printReport(w io.Writer, report qualify.Report) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if report.Failed() {
		fmt.Fprintln(w, render.ErrorLine(report.Error))
		return nil
	}
	fmt.Fprintln(w, render.ScoreBadge(report.QualificationScore))
	out, err := render.Terminal(render.Markdown(report), wrapWidth)
	if err != nil {
		// plain markdown still reads fine
		out = render.Markdown(report)
	}
	fmt.Fprint(w, out)
	return nil
}
