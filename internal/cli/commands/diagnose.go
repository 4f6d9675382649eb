package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pmtrace/perflog/pkg/analyzer"
	"github.com/pmtrace/perflog/pkg/config"
	"github.com/pmtrace/perflog/pkg/detector"
	"github.com/pmtrace/perflog/pkg/loader"
	"github.com/pmtrace/perflog/pkg/parser"
	"github.com/pmtrace/perflog/pkg/source"
)

// DiagnoseOptions holds options for the diagnose command
type DiagnoseOptions struct {
	Verbose      bool
	PmlogFiles   []string
	JournalFiles []string
}

// DiagnosticResult represents the result of a single diagnostic check
type DiagnosticResult struct {
	Check    string
	Status   string // "ok", "warning", "error"
	Message  string
	Details  []string
	Suggests []string
}

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand() *cobra.Command {
	opts := &DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose [config-file]",
		Short: "Diagnose common configuration issues",
		Long: `Diagnose common configuration issues.

This command checks your configuration file for common problems:
- Config file syntax and structure
- Log files given with -p/-j: readability and detected format
- How many entries of those files each context's start and end conditions hit
- Webhook configuration (and connectivity with -v)

Example:
  perflog diagnose config.json
  perflog diagnose -p /var/log/messages config.json
  perflog diagnose -v -j journal.json  # verbose output`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runDiagnose(ctx, path, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show detailed diagnostic output")
	cmd.Flags().StringArrayVarP(&opts.PmlogFiles, "pmlog", "p", nil, "PmLog file or glob to test the config against (can be repeated)")
	cmd.Flags().StringArrayVarP(&opts.JournalFiles, "journal", "j", nil, "Saved journal file or glob to test the config against (can be repeated)")

	return cmd
}

func runDiagnose(ctx context.Context, path string, opts *DiagnoseOptions, out io.Writer) error {
	results := []DiagnosticResult{}

	// 1. Check config file existence
	configPath, result := checkConfigExists(path)
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(out, results, opts)
		return nil
	}

	// 2. Parse config file
	cfg, result := checkConfigParseable(ctx, configPath)
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(out, results, opts)
		return nil
	}

	// 3. Check contexts
	results = append(results, checkContexts(cfg)...)

	// 4. Check log files and what the contexts find in them
	logResults, entries := checkLogFiles(ctx, cfg, opts)
	results = append(results, logResults...)
	if entries != nil {
		results = append(results, checkContextHits(cfg, entries)...)
	}

	// 5. Check webhooks configuration
	results = append(results, checkWebhooks(cfg, opts)...)

	printDiagnostics(out, results, opts)
	return nil
}

func checkConfigExists(path string) (string, DiagnosticResult) {
	result := DiagnosticResult{
		Check: "Config File",
	}

	path, err := config.Resolve(path)
	if errors.Is(err, config.ErrNoConfig) {
		result.Status = "error"
		result.Message = errNoConfigHint(err).Error()
		result.Suggests = []string{
			"Pass the config file as an argument or set $" + config.EnvConfigPath,
			"Use 'perflog detect --write-config config.json <log-file>' to generate a starter config",
		}
		return path, result
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		result.Status = "error"
		result.Message = fmt.Sprintf("Config file not found: %s", path)
		result.Suggests = []string{
			"Check the file path is correct",
			"Use 'perflog detect --write-config config.json <log-file>' to generate a starter config",
		}
		return path, result
	}
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot access config file: %v", err)
		result.Suggests = []string{"Check file permissions"}
		return path, result
	}
	if info.IsDir() {
		result.Status = "error"
		result.Message = "Path is a directory, not a file"
		return path, result
	}
	if info.Size() == 0 {
		result.Status = "error"
		result.Message = "Config file is empty"
		return path, result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("Found: %s (%d bytes)", path, info.Size())
	return path, result
}

func checkConfigParseable(ctx context.Context, path string) (*config.ViewerConfig, DiagnosticResult) {
	result := DiagnosticResult{
		Check: "Config Syntax",
	}

	cfg, err := config.Load(ctx, path)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Failed to parse config: %v", err)
		if strings.Contains(err.Error(), "parsing") {
			result.Suggests = []string{
				"Check JSON syntax - trailing commas and unquoted keys are not allowed",
			}
		}
		return nil, result
	}

	result.Status = "ok"
	result.Message = "Config file parsed successfully"
	result.Details = []string{
		fmt.Sprintf("Contexts: %d", len(cfg.Contexts)),
		fmt.Sprintf("Webhooks: %d", len(cfg.Webhooks)),
	}
	return cfg, result
}

// checkContexts flags conditions that match nearly every log line.
func checkContexts(cfg *config.ViewerConfig) []DiagnosticResult {
	results := []DiagnosticResult{}

	for _, c := range cfg.Contexts {
		result := DiagnosticResult{
			Check: fmt.Sprintf("Context %d: %s", c.ID, c.Description),
		}

		var warnings []string
		for i, cond := range c.Starts {
			if catchAll(cond) {
				warnings = append(warnings, fmt.Sprintf("startConditions[%d] matches every entry", i))
			}
		}
		for i, cond := range c.Ends {
			if catchAll(cond) {
				warnings = append(warnings, fmt.Sprintf("endConditions[%d] matches every entry", i))
			}
		}

		if len(warnings) > 0 {
			result.Status = "warning"
			result.Message = fmt.Sprintf("%d warning(s)", len(warnings))
			result.Details = warnings
			result.Suggests = []string{"Set msgid or requiredStrings to narrow the condition"}
		} else {
			result.Status = "ok"
			result.Message = fmt.Sprintf("Budget %s, %d start / %d end condition(s)",
				c.ResponseDuration(), len(c.Starts), len(c.Ends))
		}
		results = append(results, result)
	}

	return results
}

func catchAll(c config.Condition) bool {
	return c.Type == config.Wildcard && c.Group == config.Wildcard &&
		c.MsgID == config.Wildcard && len(c.RequiredStrings) == 0
}

// checkLogFiles checks the given files and loads them. The returned entries
// are nil when no file was given or none could be loaded.
func checkLogFiles(ctx context.Context, cfg *config.ViewerConfig, opts *DiagnoseOptions) ([]DiagnosticResult, parser.EntryList) {
	results := []DiagnosticResult{}

	pmlogs, err := parser.ExpandGlobs(opts.PmlogFiles)
	if err != nil {
		results = append(results, DiagnosticResult{
			Check:   "Log Files",
			Status:  "error",
			Message: fmt.Sprintf("Invalid pmlog pattern: %v", err),
		})
		return results, nil
	}
	journals, err := parser.ExpandGlobs(opts.JournalFiles)
	if err != nil {
		results = append(results, DiagnosticResult{
			Check:   "Log Files",
			Status:  "error",
			Message: fmt.Sprintf("Invalid journal pattern: %v", err),
		})
		return results, nil
	}

	if len(pmlogs) == 0 && len(journals) == 0 {
		if len(opts.PmlogFiles) > 0 || len(opts.JournalFiles) > 0 {
			results = append(results, DiagnosticResult{
				Check:    "Log Files",
				Status:   "error",
				Message:  "Patterns match no files",
				Suggests: []string{"Check if the log files exist at this path"},
			})
			return results, nil
		}
		if opts.Verbose {
			results = append(results, DiagnosticResult{
				Check:   "Log Files",
				Status:  "ok",
				Message: "No log files given (use -p or -j to test the contexts)",
			})
		}
		return results, nil
	}

	d := detector.New(detector.WithSampleSize(20))
	var okPmlogs, okJournals []string
	for _, f := range pmlogs {
		r := checkLogFile(ctx, d, f, parser.FormatPmlog)
		if r.Status != "error" {
			okPmlogs = append(okPmlogs, f)
		}
		results = append(results, r)
	}
	for _, f := range journals {
		r := checkLogFile(ctx, d, f, parser.FormatJournal)
		if r.Status != "error" {
			okJournals = append(okJournals, f)
		}
		results = append(results, r)
	}

	if len(okPmlogs) == 0 && len(okJournals) == 0 {
		results = append(results, DiagnosticResult{
			Check:    "Log Files Summary",
			Status:   "error",
			Message:  "No readable log files found",
			Suggests: []string{"Ensure at least one log file exists and is readable"},
		})
		return results, nil
	}

	local := source.NewLocalCommander()
	ld := loader.New(local, local, cfg)
	var entries parser.EntryList
	pm, err := ld.LoadPmlog(ctx, okPmlogs)
	if err == nil {
		entries = append(entries, pm...)
		var jr parser.EntryList
		jr, err = ld.LoadJournalFiles(ctx, okJournals)
		entries = append(entries, jr...)
	}
	if err != nil {
		results = append(results, DiagnosticResult{
			Check:   "Log Files Summary",
			Status:  "error",
			Message: fmt.Sprintf("Cannot load log files: %v", err),
		})
		return results, nil
	}
	entries.SortByClock()

	summary := DiagnosticResult{
		Check:  "Log Files Summary",
		Status: "ok",
	}
	var lines, parsed, perf, kept int
	for _, st := range ld.Stats() {
		lines += st.Lines
		parsed += st.Parsed
		perf += st.Perf
		kept += st.Kept
		summary.Details = append(summary.Details, fmt.Sprintf("%s: %d lines, %d parsed, %d perf, %d kept",
			st.Source, st.Lines, st.Parsed, st.Perf, st.Kept))
	}
	summary.Message = fmt.Sprintf("%d lines, %d parsed, %d perf, %d kept for correlation", lines, parsed, perf, kept)
	if kept == 0 {
		summary.Status = "warning"
		summary.Suggests = []string{"No entry is a performance line or matches a condition"}
	}
	results = append(results, summary)

	return results, entries
}

func checkLogFile(ctx context.Context, d *detector.Detector, path string, want parser.Format) DiagnosticResult {
	result := DiagnosticResult{
		Check: fmt.Sprintf("Log File: %s", path),
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		result.Status = "error"
		result.Message = "File does not exist"
		return result
	case err != nil:
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot access file: %v", err)
		result.Suggests = []string{"Check file permissions"}
		return result
	case info.IsDir():
		result.Status = "error"
		result.Message = "Path is a directory, not a file"
		result.Suggests = []string{"Use a glob pattern to match files in directory"}
		return result
	case info.Size() == 0:
		result.Status = "warning"
		result.Message = "File is empty (0 bytes)"
		return result
	}

	det, err := d.DetectFromFile(ctx, path)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot read file: %v", err)
		return result
	}

	best := det.BestMatch()
	switch {
	case best == nil:
		result.Status = "warning"
		result.Message = fmt.Sprintf("No known log format in %d sample lines", det.SampledLines)
		result.Suggests = []string{"Use 'perflog detect " + path + "' to inspect the file"}
	case best.Format.Format != want:
		result.Status = "warning"
		result.Message = fmt.Sprintf("Looks like %s, not %s", best.Format.Name, want)
		result.Suggests = []string{fmt.Sprintf("Pass this file with %s", analyzeFlag(best.Format.Format))}
	default:
		result.Status = "ok"
		result.Message = fmt.Sprintf("%s (%.0f%% of sample lines)", best.Format.Name, best.Confidence*100)
		result.Details = []string{"Sample match:", truncate(best.SampleLine, 80)}
	}
	return result
}

// checkContextHits counts start and end matches per context and how many
// windows the correlator finds.
func checkContextHits(cfg *config.ViewerConfig, entries parser.EntryList) []DiagnosticResult {
	results := []DiagnosticResult{}

	found := make(map[int]int)
	for _, g := range analyzer.Analyze(cfg, entries, nil) {
		found[g.ContextID]++
	}

	for i := range cfg.Contexts {
		c := &cfg.Contexts[i]
		starts, ends := 0, 0
		for _, e := range entries {
			if c.HasMatchedStart(e) {
				starts++
			}
			if c.HasMatchedEnd(e) {
				ends++
			}
		}

		result := DiagnosticResult{
			Check: fmt.Sprintf("Context Hits %d: %s", c.ID, c.Description),
			Details: []string{
				fmt.Sprintf("Start matches: %d", starts),
				fmt.Sprintf("End matches: %d", ends),
			},
		}
		switch {
		case starts == 0:
			result.Status = "warning"
			result.Message = "No entry matches a start condition"
			result.Suggests = []string{"Check PerfType, PerfGroup and msgid of the start conditions"}
		case ends == 0:
			result.Status = "warning"
			result.Message = "No entry matches an end condition"
			result.Suggests = []string{"Check PerfType, PerfGroup and msgid of the end conditions"}
		case found[c.ID] == 0:
			result.Status = "warning"
			result.Message = "Starts and ends match but no window completes"
			result.Suggests = []string{
				fmt.Sprintf("The end may come later than allowedResponseMS (%d)", c.ResponseMS),
				"The start condition may repeat before the end",
			}
		default:
			result.Status = "ok"
			result.Message = fmt.Sprintf("%d window(s) found", found[c.ID])
		}
		results = append(results, result)
	}

	return results
}

func printDiagnostics(out io.Writer, results []DiagnosticResult, opts *DiagnoseOptions) {
	fmt.Fprintln(out, "=== perflog Configuration Diagnostics ===")
	fmt.Fprintln(out)

	okCount := 0
	warnCount := 0
	errCount := 0

	for _, r := range results {
		var icon string
		switch r.Status {
		case "ok":
			icon = "PASS"
			okCount++
		case "warning":
			icon = "WARN"
			warnCount++
		case "error":
			icon = "FAIL"
			errCount++
		}

		fmt.Fprintf(out, "[%s] %s\n", icon, r.Check)
		fmt.Fprintf(out, "    %s\n", r.Message)

		if opts.Verbose || r.Status != "ok" {
			for _, d := range r.Details {
				fmt.Fprintf(out, "      - %s\n", d)
			}
		}

		for _, s := range r.Suggests {
			fmt.Fprintf(out, "      Hint: %s\n", s)
		}

		fmt.Fprintln(out)
	}

	// Summary
	fmt.Fprintln(out, "---")
	fmt.Fprintf(out, "Summary: %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

	if errCount > 0 {
		fmt.Fprintln(out, "\nFix the errors above before running analysis.")
	} else if warnCount > 0 {
		fmt.Fprintln(out, "\nConfiguration is usable but has warnings.")
	} else {
		fmt.Fprintln(out, "\nConfiguration looks good!")
	}
}

func checkWebhooks(cfg *config.ViewerConfig, opts *DiagnoseOptions) []DiagnosticResult {
	results := []DiagnosticResult{}

	if len(cfg.Webhooks) == 0 {
		// Webhooks are optional, just note they're not configured
		if opts.Verbose {
			results = append(results, DiagnosticResult{
				Check:   "Webhooks",
				Status:  "ok",
				Message: "No webhooks configured (optional)",
			})
		}
		return results
	}

	for _, wh := range cfg.Webhooks {
		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		result := DiagnosticResult{
			Check:   fmt.Sprintf("Webhook: %s", name),
			Status:  "ok",
			Message: fmt.Sprintf("Trigger: %s", wh.Trigger),
		}
		if wh.Trigger == config.WebhookTriggerNever {
			result.Status = "warning"
			result.Message = "Trigger is never, the webhook is disabled"
		}
		if opts.Verbose {
			result.Details = []string{
				fmt.Sprintf("URL: %s", wh.URL),
				fmt.Sprintf("Timeout: %s", wh.Timeout),
			}
			if wh.Token != "" {
				result.Details = append(result.Details, "Token: configured")
			}
		}
		results = append(results, result)
	}

	// Optionally test webhook connectivity
	if opts.Verbose {
		for _, wh := range cfg.Webhooks {
			name := wh.Name
			if name == "" {
				name = wh.URL
			}

			result := checkWebhookConnectivity(wh)
			result.Check = fmt.Sprintf("Webhook Connectivity: %s", name)
			results = append(results, result)
		}
	}

	return results
}

func checkWebhookConnectivity(wh config.WebhookConfig) DiagnosticResult {
	result := DiagnosticResult{}

	// Just do a HEAD request to check if the endpoint is reachable
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(http.MethodHead, wh.URL, nil)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot create request: %v", err)
		return result
	}

	if wh.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wh.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot connect: %v", err)
		result.Suggests = []string{
			"Check if the webhook URL is correct",
			"Verify network connectivity",
		}
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Status = "ok"
		result.Message = fmt.Sprintf("Reachable (status %d)", resp.StatusCode)
	} else {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Reachable but returned status %d", resp.StatusCode)
		result.Suggests = []string{
			"The endpoint may require POST method (will work during actual webhook send)",
			"Check authentication if using a token",
		}
	}

	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
