package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pmtrace/perflog/pkg/detector"
	"github.com/pmtrace/perflog/pkg/parser"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output      string
	SampleSize  int
	ShowAll     bool
	WriteConfig string
}

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <log-file>...",
		Short: "Detect the log format of saved log files",
		Long: `Sample saved log files and report which log format they use, so you know
whether to pass them to analyze with -p (PmLog) or -j (journal).

Optionally generates a starter viewer config with --write-config, using the
sample line of the best match as the start condition.

Supports:
  - PmLog with monotonic clock (/var/log/messages on webOS)
  - syslog-style PmLog without monotonic clock
  - journalctl -o json records

Example:
  perflog detect /var/log/messages
  perflog detect --sample 500 messages.1.gz journal.json
  perflog detect -w config.json /var/log/messages`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().IntVarP(&opts.SampleSize, "sample", "n", detector.DefaultSampleSize, "Number of lines to sample per file")
	cmd.Flags().BoolVar(&opts.ShowAll, "all", false, "Show all detected formats, not just the best match")
	cmd.Flags().StringVarP(&opts.WriteConfig, "write-config", "w", "", "Write starter config to file (will not overwrite)")

	return cmd
}

type detectedFile struct {
	path   string
	result *detector.DetectionResult
}

func runDetect(cmd *cobra.Command, args []string, opts *DetectOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	d := detector.New(detector.WithSampleSize(opts.SampleSize))

	files := make([]detectedFile, 0, len(args))
	for _, logFile := range args {
		if _, err := os.Stat(logFile); os.IsNotExist(err) {
			return fmt.Errorf("log file not found: %s", logFile)
		}
		result, err := d.DetectFromFile(ctx, logFile)
		if err != nil {
			return fmt.Errorf("detection failed for %s: %w", logFile, err)
		}
		files = append(files, detectedFile{path: logFile, result: result})
	}

	if opts.WriteConfig != "" {
		if err := writeStarterConfig(files[0].result, files[0].path, opts.WriteConfig, out); err != nil {
			return err
		}
	}

	switch opts.Output {
	case "json":
		return outputDetectJSON(files, opts, out)
	case "text", "":
		outputDetectText(files, opts, out)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", opts.Output)
	}
}

// analyzeFlag is the analyze flag that reads files of format f.
func analyzeFlag(f parser.Format) string {
	if f == parser.FormatJournal {
		return "-j"
	}
	return "-p"
}

func outputDetectText(files []detectedFile, opts *DetectOptions, out io.Writer) {
	fmt.Fprintln(out, "=== Log Format Detection ===")

	for _, f := range files {
		result := f.result
		fmt.Fprintln(out)
		fmt.Fprintf(out, "File: %s\n", f.path)
		fmt.Fprintf(out, "Lines sampled: %d\n", result.SampledLines)

		if !result.HasMatch() {
			fmt.Fprintln(out, "No known log format detected.")
			continue
		}

		best := result.BestMatch()
		fmt.Fprintf(out, "Detected Format: %s (%s)\n", best.Format.Name, best.Format.Description)
		fmt.Fprintf(out, "Confidence: %.1f%% (%d/%d lines parsed)\n",
			best.Confidence*100, best.MatchCount, result.SampledLines)
		fmt.Fprintf(out, "Performance lines: %d\n", best.PerfCount)
		fmt.Fprintf(out, "Sample match:\n  %s\n", best.SampleLine)
		fmt.Fprintf(out, "Analyze with: perflog analyze %s %s\n", analyzeFlag(best.Format.Format), f.path)

		if opts.ShowAll && len(result.Matches) > 1 {
			fmt.Fprintln(out, "Alternative formats:")
			for i, m := range result.Matches[1:] {
				fmt.Fprintf(out, "  %d. %s (%.1f%% confidence)\n", i+2, m.Format.Name, m.Confidence*100)
			}
		}
	}
}

// JSONMatch represents a format match in JSON output.
type JSONMatch struct {
	Name       string  `json:"name"`
	Flag       string  `json:"flag"`
	Confidence float64 `json:"confidence"`
	MatchCount int     `json:"match_count"`
	PerfCount  int     `json:"perf_count"`
	SampleLine string  `json:"sample_line"`
}

// JSONOutput represents the JSON output for one file.
type JSONOutput struct {
	File         string      `json:"file"`
	Matches      []JSONMatch `json:"matches"`
	SampledLines int         `json:"sampled_lines"`
	ParsedLines  int         `json:"parsed_lines"`
}

func outputDetectJSON(files []detectedFile, opts *DetectOptions, out io.Writer) error {
	docs := make([]JSONOutput, 0, len(files))
	for _, f := range files {
		doc := JSONOutput{
			File:         f.path,
			SampledLines: f.result.SampledLines,
			ParsedLines:  f.result.ParsedLines,
			Matches:      make([]JSONMatch, 0),
		}

		matches := f.result.Matches
		if !opts.ShowAll && len(matches) > 1 {
			matches = matches[:1]
		}
		for _, m := range matches {
			doc.Matches = append(doc.Matches, JSONMatch{
				Name:       m.Format.Name,
				Flag:       analyzeFlag(m.Format.Format),
				Confidence: m.Confidence,
				MatchCount: m.MatchCount,
				PerfCount:  m.PerfCount,
				SampleLine: m.SampleLine,
			})
		}
		docs = append(docs, doc)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(docs)
}

// writeStarterConfig writes a viewer config with one context whose start
// condition is taken from the sample line of the best match.
func writeStarterConfig(result *detector.DetectionResult, logFile, configPath string, out io.Writer) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s (will not overwrite)", configPath)
	}

	if !result.HasMatch() {
		return fmt.Errorf("cannot generate config: no log format detected")
	}

	best := result.BestMatch()
	sample, _ := best.Format.Parse(best.SampleLine)

	// #nosec G306 - config file doesn't need restrictive permissions
	if err := os.WriteFile(configPath, []byte(generateStarterConfig(logFile, best, sample)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(out, "Wrote starter config to: %s\n\n", configPath)
	return nil
}

type starterCondition struct {
	PerfType  string `json:"PerfType"`
	PerfGroup string `json:"PerfGroup"`
	MsgID     string `json:"msgid"`
}

type starterContext struct {
	Description       string             `json:"description"`
	PerfType          string             `json:"PerfType"`
	PerfGroup         string             `json:"PerfGroup"`
	AllowedResponseMS int                `json:"allowedResponseMS"`
	StartConditions   []starterCondition `json:"startConditions"`
	EndConditions     []starterCondition `json:"endConditions"`
}

// generateStarterConfig creates a viewer config template.
func generateStarterConfig(logFile string, match *detector.FormatMatch, sample *parser.Entry) string {
	absLogFile := logFile
	if abs, err := filepath.Abs(logFile); err == nil {
		absLogFile = abs
	}

	start := starterCondition{PerfType: "*", PerfGroup: "*", MsgID: "START_MSGID"}
	if sample != nil && sample.MsgID != "" {
		start = starterCondition{PerfType: orWildcard(sample.Type), PerfGroup: orWildcard(sample.Group), MsgID: sample.MsgID}
	}

	doc := struct {
		Contexts []starterContext `json:"contexts"`
	}{
		Contexts: []starterContext{{
			Description:       fmt.Sprintf("generated from %s (%s, %.0f%% confidence)", absLogFile, match.Format.Name, match.Confidence*100),
			PerfType:          start.PerfType,
			PerfGroup:         start.PerfGroup,
			AllowedResponseMS: 5000,
			StartConditions:   []starterCondition{start},
			EndConditions:     []starterCondition{{PerfType: start.PerfType, PerfGroup: start.PerfGroup, MsgID: "END_MSGID"}},
		}},
	}

	data, _ := json.MarshalIndent(doc, "", "  ")
	return string(data) + "\n"
}

func orWildcard(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
