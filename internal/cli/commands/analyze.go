package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pmtrace/perflog/pkg/analyzer"
	"github.com/pmtrace/perflog/pkg/config"
	"github.com/pmtrace/perflog/pkg/history"
	"github.com/pmtrace/perflog/pkg/loader"
	"github.com/pmtrace/perflog/pkg/output"
	"github.com/pmtrace/perflog/pkg/parser"
	"github.com/pmtrace/perflog/pkg/platform"
	"github.com/pmtrace/perflog/pkg/source"
	"github.com/pmtrace/perflog/pkg/webhook"
)

// ExitCode is set by commands to indicate the result
var ExitCode = 0

// AnalyzeOptions holds command-line options for the analyze command.
type AnalyzeOptions struct {
	ConfigFile string
	Types      []string
	Groups     []string
	Format     string
	OutputFile string
	Verbose    bool
	Quiet      bool

	// Target device
	Host     string
	Port     int
	User     string
	Password string

	// Explicit inputs
	PmlogFiles   []string
	JournalFiles []string

	HistoryDB string

	// Webhook options
	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string
}

func (o *AnalyzeOptions) sourceOptions() source.Options {
	return source.Options{
		Host:     o.Host,
		Port:     o.Port,
		User:     o.User,
		Password: o.Password,
	}
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Measure start-to-end times from performance logs",
		Long: `Read performance logs from this machine or a target device, group them
into start-to-end windows using the contexts in the viewer configuration, and
print the elapsed time of every window.

Without -p or -j the log source depends on the device: the systemd journal on
sabreauto boards, /var/log/messages* everywhere else.

Exit codes:
  0 - At least one window was found
  1 - No window was found
  2 - Configuration or runtime error`,
		Example: `  perflog analyze
  perflog analyze -p /var/log/messages --format json
  perflog analyze --ip 192.168.0.10 -t AppLaunch -o launch.txt
  perflog analyze -j boot-journal.json --history-db perf.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "Viewer config file (default: $PERFLOG_CONFIG, ./config.json or /etc/pmtrace/perf-log-viewer-conf.json)")
	cmd.Flags().StringArrayVarP(&opts.Types, "type", "t", nil, "Only export this PerfType (can be repeated)")
	cmd.Flags().StringArrayVarP(&opts.Groups, "group", "g", nil, "Only export this PerfGroup (can be repeated)")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "Output format (text|csv|json)")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "", "Write the result to a file instead of stdout")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show device, context descriptions and a summary")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "One line per window")

	cmd.Flags().StringVarP(&opts.Host, "ip", "i", "", "IP address of a target device")
	cmd.Flags().IntVar(&opts.Port, "port", 22, "SSH port of the target device")
	cmd.Flags().StringVar(&opts.User, "user", "root", "SSH user on the target device")
	cmd.Flags().StringVar(&opts.Password, "pw", "", "SSH password on the target device")

	cmd.Flags().StringArrayVarP(&opts.PmlogFiles, "pmlog", "p", nil, "PmLog file or glob (can be repeated)")
	cmd.Flags().StringArrayVarP(&opts.JournalFiles, "journal", "j", nil, "Saved 'journalctl -o json' file or glob (can be repeated)")

	cmd.Flags().StringVar(&opts.HistoryDB, "history-db", "", "Record the measurements in this SQLite database")

	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "Webhook endpoint URL")
	cmd.Flags().StringVar(&opts.WebhookToken, "webhook-token", "", "Bearer token for webhook auth")
	cmd.Flags().StringVar(&opts.WebhookTrigger, "webhook-trigger", "on_found", "When to fire webhook (on_found|always|never)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *AnalyzeOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	switch config.WebhookTrigger(opts.WebhookTrigger) {
	case "", config.WebhookTriggerOnFound, config.WebhookTriggerAlways, config.WebhookTriggerNever:
	default:
		return fmt.Errorf("invalid --webhook-trigger %q (use on_found, always or never)", opts.WebhookTrigger)
	}

	logger, err := NewLogger(LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	formatter, err := output.New(opts.Format, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	configPath, err := config.Resolve(opts.ConfigFile)
	if err != nil {
		return errNoConfigHint(err)
	}
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Debug("Loaded config", zap.String("path", configPath), zap.Int("contexts", len(cfg.Contexts)))

	srcOpts := opts.sourceOptions()
	loadOpts, err := expandInputs(opts, srcOpts.IsRemote())
	if err != nil {
		return err
	}

	commander, err := source.NewCommander(ctx, srcOpts)
	if err != nil {
		return err
	}
	defer commander.Close()

	info, err := targetInfo(ctx, commander, srcOpts.IsRemote(), loadOpts)
	if err != nil {
		return fmt.Errorf("detecting platform: %w", err)
	}
	logger.Info("Running platform", zap.Stringer("device", info))

	ld := loader.New(commander, commander, cfg, loader.WithLogger(logger))
	entries, err := ld.LoadLogs(ctx, info, loadOpts)
	if err != nil {
		return fmt.Errorf("loading logs: %w", err)
	}
	logger.Info("Nr of entries", zap.Int("count", len(entries)))

	result := analyzer.NewAnalyzer(cfg, analyzer.WithLogger(logger)).Analyze(entries)

	report := output.NewReport(info, result, configPath)
	report.Filter = output.Filter{Types: opts.Types, Groups: opts.Groups}
	for _, st := range ld.Stats() {
		report.Metadata.Sources = append(report.Metadata.Sources, st.Source)
	}
	report.Metadata.Duration = time.Since(started)

	if err := writeReport(ctx, formatter, report, opts.OutputFile, cmd.OutOrStdout()); err != nil {
		return err
	}

	if opts.HistoryDB != "" {
		if err := recordHistory(ctx, opts.HistoryDB, report); err != nil {
			return err
		}
	}

	sendWebhooks(ctx, cfg, opts, report, cmd.ErrOrStderr())

	if !report.HasGroups() {
		ExitCode = 1
	}

	return nil
}

// expandInputs resolves -p and -j globs. Paths on a remote device are used
// as given.
func expandInputs(opts *AnalyzeOptions, remote bool) (loader.Options, error) {
	if remote {
		return loader.Options{PmlogFiles: opts.PmlogFiles, JournalFiles: opts.JournalFiles}, nil
	}

	pmlogs, err := parser.ExpandGlobs(opts.PmlogFiles)
	if err != nil {
		return loader.Options{}, fmt.Errorf("expanding pmlog files: %w", err)
	}
	journals, err := parser.ExpandGlobs(opts.JournalFiles)
	if err != nil {
		return loader.Options{}, fmt.Errorf("expanding journal files: %w", err)
	}
	return loader.Options{PmlogFiles: pmlogs, JournalFiles: journals}, nil
}

// targetInfo identifies the device. Saved files analyzed locally are
// attributed to this machine without querying it.
func targetInfo(ctx context.Context, runner source.CommandRunner, remote bool, in loader.Options) (platform.Info, error) {
	if !remote && (len(in.PmlogFiles) > 0 || len(in.JournalFiles) > 0) {
		return platform.Local(), nil
	}
	return platform.Detect(ctx, runner)
}

func writeReport(ctx context.Context, f output.Formatter, report *output.Report, path string, stdout io.Writer) (err error) {
	w := stdout
	if path != "" {
		var file *os.File
		file, err = os.Create(path) // #nosec G304 -- user-provided output path
		if err != nil {
			return fmt.Errorf("cannot open %s: %w", path, err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = file
	}

	if err := f.Format(ctx, report, w); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	return nil
}

func recordHistory(ctx context.Context, path string, report *output.Report) error {
	store, err := history.New(path)
	if err != nil {
		return fmt.Errorf("opening history %s: %w", path, err)
	}
	defer store.Close()

	if _, err := store.Record(ctx, history.RunFromReport(report)); err != nil {
		return fmt.Errorf("recording history: %w", err)
	}
	return nil
}

// sendWebhooks sends the report to all configured webhooks.
// Errors are written to errOut but don't fail the analysis.
func sendWebhooks(ctx context.Context, cfg *config.ViewerConfig, opts *AnalyzeOptions, report *output.Report, errOut io.Writer) {
	webhooks := collectWebhooks(cfg, opts)
	if len(webhooks) == 0 {
		return
	}

	client := webhook.NewClient()
	found := report.HasGroups()

	for _, wh := range webhooks {
		if !shouldFireWebhook(wh.Trigger, found) {
			continue
		}

		resp := client.Send(ctx, report, webhook.SendOptions{
			URL:     wh.URL,
			Token:   wh.Token,
			Timeout: wh.Timeout,
		})

		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		if resp.Success() {
			fmt.Fprintf(errOut, "Webhook %s: sent (%d, %s)\n", name, resp.StatusCode, resp.Duration)
		} else {
			fmt.Fprintf(errOut, "Webhook %s: failed (%v)\n", name, resp.Error)
		}
	}
}

// collectWebhooks merges config file webhooks with CLI webhook.
func collectWebhooks(cfg *config.ViewerConfig, opts *AnalyzeOptions) []config.WebhookConfig {
	webhooks := make([]config.WebhookConfig, 0, len(cfg.Webhooks)+1)
	webhooks = append(webhooks, cfg.Webhooks...)

	if opts.WebhookURL != "" {
		trigger := config.WebhookTrigger(opts.WebhookTrigger)
		if trigger == "" {
			trigger = config.WebhookTriggerOnFound
		}

		webhooks = append(webhooks, config.WebhookConfig{
			Name:    "cli",
			URL:     opts.WebhookURL,
			Token:   opts.WebhookToken,
			Trigger: trigger,
			Timeout: config.DefaultWebhookTimeout,
		})
	}

	return webhooks
}

// shouldFireWebhook determines if a webhook should fire based on trigger and
// whether any window was found.
func shouldFireWebhook(trigger config.WebhookTrigger, found bool) bool {
	switch trigger {
	case config.WebhookTriggerAlways:
		return true
	case config.WebhookTriggerNever:
		return false
	default:
		return found
	}
}

// errNoConfigHint wraps config.ErrNoConfig with the search locations.
func errNoConfigHint(err error) error {
	if errors.Is(err, config.ErrNoConfig) {
		return fmt.Errorf("%w (searched $%s and %v)", err, config.EnvConfigPath, config.DefaultConfigPaths)
	}
	return err
}
