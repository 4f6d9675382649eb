// Package source provides command execution and log file access on the
// local machine or on a target device over SSH.
package source

import (
	"context"
	"fmt"
)

// CommandRunner executes a command and returns its standard output.
type CommandRunner interface {
	// Run executes argv. With shell set, argv is joined with spaces and run
	// by a shell, so redirections and globs are honoured.
	Run(ctx context.Context, argv []string, shell bool) (string, error)
}

// LineSource reads a log file as lines. Files ending in .gz are
// decompressed transparently.
type LineSource interface {
	ReadLines(ctx context.Context, path string) ([]string, error)
}

// Commander is both a CommandRunner and a LineSource on one host.
type Commander interface {
	CommandRunner
	LineSource

	// Close releases any connection held by the commander.
	Close() error
}

// ExecError reports a failed command.
type ExecError struct {
	// Cmd is the command line that was run.
	Cmd string

	// Host is the remote host, empty for local commands.
	Host string

	// ExitCode is the command exit status, or -1 when the command could not
	// be started or the connection failed.
	ExitCode int

	Err error
}

func (e *ExecError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("command %q on %s failed (exit %d): %v", e.Cmd, e.Host, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("command %q failed (exit %d): %v", e.Cmd, e.ExitCode, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Options selects and configures a Commander.
type Options struct {
	// Host is the target device address. Empty means local.
	Host string
	Port int
	User string

	// Password is optional; without it only "none" auth is attempted.
	Password string
}

// IsRemote reports whether the options describe a remote target.
func (o Options) IsRemote() bool {
	return o.Host != "" && o.Port != 0 && o.User != ""
}

// NewCommander returns a RemoteCommander when opts describe a remote
// target, otherwise a LocalCommander.
func NewCommander(ctx context.Context, opts Options) (Commander, error) {
	if opts.IsRemote() {
		return NewRemoteCommander(ctx, RemoteOptions{
			Host:     opts.Host,
			Port:     opts.Port,
			User:     opts.User,
			Password: opts.Password,
		})
	}
	return NewLocalCommander(), nil
}
