package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pmtrace/perflog/pkg/history"
)

// HistoryOptions holds command-line options for the history command.
type HistoryOptions struct {
	Type    string
	Group   string
	HWName  string
	Limit   int
	Summary bool
	Prune   time.Duration
}

func (o *HistoryOptions) filter() history.Filter {
	return history.Filter{
		Type:   o.Type,
		Group:  o.Group,
		HWName: o.HWName,
		Limit:  o.Limit,
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history <db-file>",
		Short: "Show measurements recorded by analyze --history-db",
		Long: `Show the measurements recorded by 'perflog analyze --history-db', newest
run first, or aggregate them per PerfType and PerfGroup with --summary.

Example:
  perflog history perf.db
  perflog history perf.db --type AppLaunch --hw raspberrypi4
  perflog history perf.db --summary
  perflog history perf.db --prune 720h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runHistory(ctx, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "Only this PerfType")
	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "Only this PerfGroup")
	cmd.Flags().StringVar(&opts.HWName, "hw", "", "Only this hardware name")
	cmd.Flags().IntVar(&opts.Limit, "limit", history.DefaultLimit, "Maximum number of measurements to list")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "Show count, min, avg and max per PerfType and PerfGroup")
	cmd.Flags().DurationVar(&opts.Prune, "prune", 0, "Delete runs older than this before listing (e.g. 720h)")

	return cmd
}

func runHistory(ctx context.Context, path string, opts *HistoryOptions, out io.Writer) error {
	store, err := history.New(path)
	if err != nil {
		return fmt.Errorf("opening history %s: %w", path, err)
	}
	defer store.Close()

	if opts.Prune > 0 {
		n, err := store.Prune(ctx, opts.Prune)
		if err != nil {
			return fmt.Errorf("pruning history: %w", err)
		}
		fmt.Fprintf(out, "Pruned %d run(s) older than %s\n\n", n, opts.Prune)
	}

	header := lipgloss.NewRenderer(out).NewStyle().Bold(true)

	if opts.Summary {
		rows, err := store.Summary(ctx, opts.filter())
		if err != nil {
			return fmt.Errorf("summarizing history: %w", err)
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "No measurements recorded.")
			return nil
		}
		fmt.Fprintln(out, header.Render(fmt.Sprintf("%-20s %-35s %6s %8s %8s %8s", "PerfType", "PerfGroup", "Count", "Min", "Avg", "Max")))
		for _, s := range rows {
			fmt.Fprintf(out, "%-20s %-35s %6d %8.3f %8.3f %8.3f\n", s.Type, s.Group, s.Count, s.Min, s.Avg, s.Max)
		}
		return nil
	}

	rows, err := store.Query(ctx, opts.filter())
	if err != nil {
		return fmt.Errorf("querying history: %w", err)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No measurements recorded.")
		return nil
	}

	fmt.Fprintln(out, header.Render(fmt.Sprintf("%-5s %-20s %-15s %-20s %-35s %10s %8s", "Run", "Analyzed", "HW", "PerfType", "PerfGroup", "Start", "Elapsed")))
	for _, m := range rows {
		fmt.Fprintf(out, "%-5d %-20s %-15s %-20s %-35s %10.2f %8.3f\n",
			m.RunID, m.AnalyzedAt.Local().Format(time.DateTime), m.HWName, m.Type, m.Group, m.ClockBegin, m.Elapsed)
	}
	return nil
}
