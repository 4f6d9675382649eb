package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmtrace/perflog/pkg/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Long: `Validate a viewer configuration file without reading any log.

Without an argument the file is looked up the same way analyze does:
$PERFLOG_CONFIG, ./config.json, /etc/pmtrace/perf-log-viewer-conf.json.

Checks:
  - JSON (or YAML) syntax
  - Every context has allowedResponseMS and at least one start and end condition
  - Every condition has PerfType, PerfGroup and msgid
  - Webhook URLs and triggers`,
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	configPath, err := config.Resolve(path)
	if err != nil {
		return errNoConfigHint(err)
	}

	fmt.Fprintf(out, "Validating %s...\n", configPath)

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration valid!\n")
	fmt.Fprintf(out, "  Contexts: %d\n", len(cfg.Contexts))
	fmt.Fprintf(out, "  Webhooks: %d\n", len(cfg.Webhooks))

	if len(cfg.Contexts) == 0 {
		fmt.Fprintf(out, "\nWarning: No contexts defined, analyze will never find anything\n")
		return nil
	}

	fmt.Fprintf(out, "\nContexts:\n")
	for _, c := range cfg.Contexts {
		label := c.Description
		if label == "" {
			label = "(no description)"
		}
		fmt.Fprintf(out, "  %d. %s\n", c.ID, label)
		fmt.Fprintf(out, "     budget %s, %d start / %d end condition(s)\n",
			c.ResponseDuration(), len(c.Starts), len(c.Ends))
		if c.ReprType != "" || c.ReprGroup != "" {
			fmt.Fprintf(out, "     reported as %s / %s\n", orMode(c.ReprType), orMode(c.ReprGroup))
		}
	}

	return nil
}

func orMode(s string) string {
	if s == "" {
		return "(most frequent)"
	}
	return s
}
