// Package plugins runs companion tools installed as perflog-<command>
// binaries, the way kubectl and git dispatch to their plugins.
package plugins

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Prefix is prepended to a command name to form the plugin binary name.
const Prefix = "perflog-"

// KnownPlugins lists the companion tools of the performance tooling. They get
// a description in the not-found message.
var KnownPlugins = map[string]string{
	"mem-profile":   "Samples process memory usage on a target device and charts it.",
	"acg-migration": "Tracks the migration of services to ACG security groups.",
}

// ErrPluginNotFound is returned when no plugin binary can be located.
var ErrPluginNotFound = errors.New("plugin not found")

// Stdio is where a plugin reads and writes.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// OSStdio returns the process standard streams.
func OSStdio() Stdio {
	return Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// searchDirs returns the directories checked before PATH: the directory of
// the running binary, then ~/.perflog/plugins.
func searchDirs() []string {
	var dirs []string
	if execPath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(execPath))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(homeDir, ".perflog", "plugins"))
	}
	return dirs
}

// FindPlugin returns the path of the perflog-<command> binary, looking in
// the directory of the perflog binary, then ~/.perflog/plugins, then PATH.
func FindPlugin(command string) (string, error) {
	if command == "" || strings.ContainsRune(command, os.PathSeparator) {
		return "", ErrPluginNotFound
	}
	pluginName := Prefix + command

	for _, dir := range searchDirs() {
		candidate := filepath.Join(dir, pluginName)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(pluginName); err == nil {
		return path, nil
	}

	return "", ErrPluginNotFound
}

// Execute runs a plugin with args on the process standard streams and
// returns its exit code.
func Execute(pluginPath string, args []string) int {
	return Run(pluginPath, args, OSStdio())
}

// Run runs a plugin with args on stdio and returns its exit code.
func Run(pluginPath string, args []string, stdio Stdio) int {
	cmd := exec.Command(pluginPath, args...) // #nosec G204 -- plugin path comes from FindPlugin
	cmd.Stdin = stdio.In
	cmd.Stdout = stdio.Out
	cmd.Stderr = stdio.Err

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(stdio.Err, "Error executing plugin: %v\n", err)
		return 1
	}

	return 0
}

// FormatNotFoundError returns the message shown for an unknown command.
func FormatNotFoundError(command string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "unknown command %q for \"perflog\"\n", command)

	if info, ok := KnownPlugins[command]; ok {
		fmt.Fprintf(&sb, "\n%q is available as a plugin.\n", command)
		sb.WriteString(info)
		sb.WriteString("\n\nInstall the plugin binary as one of:\n")
	} else {
		sb.WriteString("\nIf this is a plugin, install the binary as one of:\n")
	}

	fmt.Fprintf(&sb, "  - %s%s in the same directory as perflog\n", Prefix, command)
	fmt.Fprintf(&sb, "  - ~/.perflog/plugins/%s%s\n", Prefix, command)
	fmt.Fprintf(&sb, "  - %s%s anywhere in your PATH\n", Prefix, command)

	sb.WriteString("\nRun 'perflog --help' for usage.")

	return sb.String()
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&0111 != 0
}
