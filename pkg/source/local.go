package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// LocalCommander runs commands and reads files on this machine.
type LocalCommander struct{}

// NewLocalCommander creates a LocalCommander.
func NewLocalCommander() *LocalCommander {
	return &LocalCommander{}
}

// Run executes argv locally.
func (c *LocalCommander) Run(ctx context.Context, argv []string, shell bool) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}

	var cmd *exec.Cmd
	cmdline := strings.Join(argv, " ")
	if shell {
		cmd = exec.CommandContext(ctx, "sh", "-c", cmdline) // #nosec G204 -- commands are built by this tool
	} else {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- commands are built by this tool
	}

	out, err := cmd.Output()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &ExecError{Cmd: cmdline, ExitCode: code, Err: err}
	}

	return string(out), nil
}

// ReadLines reads a local file, decompressing *.gz files.
func (c *LocalCommander) ReadLines(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- user-provided paths are expected
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	lines, err := scanLines(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

// Close is a no-op for local commanders.
func (c *LocalCommander) Close() error {
	return nil
}

// scanLines splits r into lines without a length limit. Trailing "\r\n" or
// "\n" is dropped, and a final line without a newline is kept.
func scanLines(ctx context.Context, r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)

	var lines []string
	for {
		if len(lines)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if line == "" && err != nil {
			return lines, nil
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		lines = append(lines, line)

		if err != nil {
			return lines, nil
		}
	}
}
