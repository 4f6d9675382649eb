package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pmtrace/perflog/pkg/analyzer"
)

var columnTitles = []string{"Process", "MsgID", "Time(s)", "Diff(s)", "Extra"}

// TextFormatter formats reports as aligned, human-readable tables.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// Format renders the report as text.
func (f *TextFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	groups := report.Exported(f.opts.logger())

	if f.opts.Quiet {
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%s\t%.3f\n", g.ReprType, g.ReprGroup, Round3(g.Elapsed()))
		}
		return nil
	}

	r := lipgloss.NewRenderer(w)
	label := r.NewStyle().Bold(true)
	title := r.NewStyle().Faint(true)

	if f.opts.Verbose {
		fmt.Fprintln(w, label.Render("Device: "+report.Device.String()))
		fmt.Fprintln(w)
	}

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintln(w, label.Render("Type: "+g.ReprType))
		fmt.Fprintln(w, label.Render("Group: "+g.ReprGroup))
		if f.opts.Verbose && g.Description != "" {
			fmt.Fprintf(w, "Context: %d %s\n", g.ContextID, g.Description)
		}
		fmt.Fprintf(w, "Start time: %4.2f\n", g.ClockBegin())
		fmt.Fprintln(w, title.Render(strings.TrimRight(textRow(columnTitles), " ")))

		for _, row := range memberRows(g) {
			fmt.Fprintln(w, textRow(row))
		}

		fmt.Fprintf(w, "Elapsed time (s) : %2.3f\n\n", g.Elapsed())
	}

	if f.opts.Verbose {
		s := report.Stats
		fmt.Fprintf(w, "Summary: %d groups from %d entries (%d starts, %d without end, %d duplicated starts)\n",
			s.Found, s.Entries, s.Starts, s.NoEnd, s.DuplicateStart)
	}

	return nil
}

func textRow(cols []string) string {
	return fmt.Sprintf("%-30s %-25s %-8s +%-8s %s", cols[0], cols[1], cols[2], cols[3], cols[4])
}

// CSVFormatter formats reports with the text layout but comma-separated
// member rows.
type CSVFormatter struct {
	opts FormatOptions
}

// NewCSVFormatter creates a new csv formatter with the given options.
func NewCSVFormatter(opts FormatOptions) *CSVFormatter {
	return &CSVFormatter{opts: opts}
}

// Name returns the format name.
func (f *CSVFormatter) Name() string {
	return "csv"
}

// Format renders the report as csv blocks, one per group.
func (f *CSVFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	for _, g := range report.Exported(f.opts.logger()) {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(w, "Type: %s\nGroup: %s\nStart time: %4.2f\n", g.ReprType, g.ReprGroup, g.ClockBegin())

		cw := csv.NewWriter(w)
		header := append([]string(nil), columnTitles...)
		header[3] = "+" + header[3]
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, row := range memberRows(g) {
			row[3] = "+" + row[3]
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}

		fmt.Fprintf(w, "Elapsed time (s) : %2.3f\n\n", g.Elapsed())
	}
	return nil
}

// memberRows returns process, msgid, time since the group began, time
// since the previous member and free text for each member.
func memberRows(g *analyzer.EntryGroup) [][]string {
	begin := g.ClockBegin()
	prev := begin

	rows := make([][]string, 0, g.Len())
	for _, e := range g.Entries {
		rows = append(rows, []string{
			e.Proc,
			e.MsgID,
			formatSeconds(e.Clock - begin),
			formatSeconds(e.Clock - prev),
			e.FreeTextSummary(),
		})
		prev = e.Clock
	}
	return rows
}

// formatSeconds prints a duration rounded to milliseconds in its shortest
// form, always with a decimal point: 0.0, 0.5, 1.234.
func formatSeconds(v float64) string {
	s := strconv.FormatFloat(Round3(v), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
