package source

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCommander_Run(t *testing.T) {
	c := NewLocalCommander()
	ctx := context.Background()

	t.Run("argv", func(t *testing.T) {
		out, err := c.Run(ctx, []string{"echo", "hello", "world"}, false)
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", out)
	})

	t.Run("shell", func(t *testing.T) {
		out, err := c.Run(ctx, []string{"printf", "'a\\nb\\n'", "|", "wc", "-l"}, true)
		require.NoError(t, err)
		assert.Contains(t, out, "2")
	})

	t.Run("non-zero exit", func(t *testing.T) {
		_, err := c.Run(ctx, []string{"exit", "3"}, true)
		require.Error(t, err)

		var execErr *ExecError
		require.True(t, errors.As(err, &execErr))
		assert.Equal(t, 3, execErr.ExitCode)
		assert.Equal(t, "exit 3", execErr.Cmd)
		assert.Empty(t, execErr.Host)
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := c.Run(ctx, []string{"perflog-no-such-binary"}, false)

		var execErr *ExecError
		require.True(t, errors.As(err, &execErr))
		assert.Equal(t, -1, execErr.ExitCode)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := c.Run(ctx, nil, false)
		assert.Error(t, err)
	})
}

func TestLocalCommander_ReadLines(t *testing.T) {
	dir := t.TempDir()
	c := NewLocalCommander()
	ctx := context.Background()

	plain := filepath.Join(dir, "messages")
	require.NoError(t, os.WriteFile(plain, []byte("one\ntwo\n\nthree"), 0o644))

	lines, err := c.ReadLines(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "", "three"}, lines)

	zipped := filepath.Join(dir, "messages.1.gz")
	f, err := os.Create(zipped)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("old one\nold two\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	lines, err = c.ReadLines(ctx, zipped)
	require.NoError(t, err)
	assert.Equal(t, []string{"old one", "old two"}, lines)

	_, err = c.ReadLines(ctx, filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	notGzip := filepath.Join(dir, "bad.gz")
	require.NoError(t, os.WriteFile(notGzip, []byte("plain text"), 0o644))
	_, err = c.ReadLines(ctx, notGzip)
	assert.Error(t, err)
}

func TestScanLines(t *testing.T) {
	long := strings.Repeat("y", 3<<20)

	lines, err := scanLines(context.Background(), strings.NewReader("a\r\n"+long+"\nb"))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "a", lines[0])
	assert.Len(t, lines[1], len(long))
	assert.Equal(t, "b", lines[2])

	lines, err = scanLines(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, lines)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = scanLines(ctx, strings.NewReader("a\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptions_IsRemote(t *testing.T) {
	assert.False(t, Options{}.IsRemote())
	assert.False(t, Options{Host: "10.0.0.2", Port: 22}.IsRemote())
	assert.True(t, Options{Host: "10.0.0.2", Port: 22, User: "root"}.IsRemote())
}

func TestNewCommander_Local(t *testing.T) {
	c, err := NewCommander(context.Background(), Options{})
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.(*LocalCommander)
	assert.True(t, ok)
}

func TestExecError_Message(t *testing.T) {
	err := &ExecError{Cmd: "ls", Host: "tv", ExitCode: 2, Err: errors.New("boom")}
	assert.Equal(t, `command "ls" on tv failed (exit 2): boom`, err.Error())

	err.Host = ""
	assert.Equal(t, `command "ls" failed (exit 2): boom`, err.Error())
}
