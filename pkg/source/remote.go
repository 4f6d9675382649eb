package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultSSHTimeout bounds connecting to a target device.
const DefaultSSHTimeout = 15 * time.Second

// RemoteOptions configures an SSH connection to a target device.
type RemoteOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// RemoteCommander runs commands and reads files on a target over SSH.
type RemoteCommander struct {
	client *ssh.Client
	host   string
}

// NewRemoteCommander connects to the target.
// Without a password the SSH client only attempts "none" authentication,
// which is what development images of target devices accept.
func NewRemoteCommander(ctx context.Context, opts RemoteOptions) (*RemoteCommander, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultSSHTimeout
	}

	var auth []ssh.AuthMethod
	if opts.Password != "" {
		auth = append(auth, ssh.Password(opts.Password))
	}

	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 -- target devices are re-flashed and change keys
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect via ssh, is %s online?: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return &RemoteCommander{
		client: ssh.NewClient(sshConn, chans, reqs),
		host:   opts.Host,
	}, nil
}

// Run executes argv on the target. Remote commands always go through the
// login shell, so shell is ignored.
func (c *RemoteCommander) Run(ctx context.Context, argv []string, _ bool) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}
	cmdline := strings.Join(argv, " ")

	session, err := c.client.NewSession()
	if err != nil {
		return "", &ExecError{Cmd: cmdline, Host: c.host, ExitCode: -1, Err: err}
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdline)
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "", &ExecError{Cmd: cmdline, Host: c.host, ExitCode: -1, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			code := -1
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitStatus()
			}
			return "", &ExecError{Cmd: cmdline, Host: c.host, ExitCode: code, Err: err}
		}
	}

	return stdout.String(), nil
}

// ReadLines reads a file on the target with cat, or zcat for *.gz files.
func (c *RemoteCommander) ReadLines(ctx context.Context, path string) ([]string, error) {
	reader := "cat"
	if strings.HasSuffix(path, ".gz") {
		reader = "zcat"
	}

	out, err := c.Run(ctx, []string{reader, shellQuote(path)}, true)
	if err != nil {
		return nil, fmt.Errorf("reading %s:%s: %w", c.host, path, err)
	}

	return scanLines(ctx, strings.NewReader(out))
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Close closes the SSH connection.
func (c *RemoteCommander) Close() error {
	return c.client.Close()
}
