// Package cli provides the command-line interface for perflog.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pmtrace/perflog/internal/cli/commands"
	"github.com/pmtrace/perflog/internal/cli/plugins"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	rootCmd := NewRootCommand()

	// Check if the first argument might be a plugin command
	if len(os.Args) > 1 {
		potentialCommand := os.Args[1]
		if len(potentialCommand) > 0 && potentialCommand[0] != '-' {
			if !isBuiltinCommand(rootCmd, potentialCommand) {
				if pluginPath, err := plugins.FindPlugin(potentialCommand); err == nil {
					return plugins.Execute(pluginPath, os.Args[2:])
				}
			}
		}
	}

	if err := rootCmd.Execute(); err != nil {
		if len(os.Args) > 1 {
			potentialCommand := os.Args[1]
			if len(potentialCommand) > 0 && potentialCommand[0] != '-' {
				if !isBuiltinCommand(rootCmd, potentialCommand) {
					_, _ = fmt.Fprintln(os.Stderr, plugins.FormatNotFoundError(potentialCommand))
					return 2
				}
			}
		}
		// SilenceErrors keeps cobra from printing this itself
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return commands.ExitCode
}

// isBuiltinCommand checks if a command name is a built-in cobra command.
func isBuiltinCommand(rootCmd *cobra.Command, name string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == name || cmd.HasAlias(name) {
			return true
		}
	}
	return name == "help" || name == "completion"
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "perflog",
		Short: "Measure start-to-end times from webOS performance logs",
		Long: `perflog reads performance logs (PmLog files or the systemd journal) from this
machine or from a target device over SSH, and measures how long performance
events take: from an entry matching a start condition to the last entry
matching an end condition within the allowed response time.

The start and end conditions are defined per context in the viewer
configuration (JSON).

PLUGINS:
  perflog supports plugins for extended functionality. Plugins are standalone
  binaries named perflog-<command> that are automatically discovered and invoked.

  Plugin locations (searched in order):
    1. Same directory as the perflog binary
    2. ~/.perflog/plugins/
    3. Anywhere in PATH

  Known plugins:
    mem-profile      Process memory usage sampling
    acg-migration    ACG security group migration tracking`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&commands.LogLevel, "log-level", commands.LogLevel, "Diagnostic log level on stderr (debug|info|warn|error)")

	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewDetectCommand())
	rootCmd.AddCommand(commands.NewDiagnoseCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
