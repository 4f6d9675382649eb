package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pmtrace/perflog/pkg/config"
	"github.com/pmtrace/perflog/pkg/parser"
	"github.com/pmtrace/perflog/pkg/platform"
	"github.com/pmtrace/perflog/pkg/source"
)

type fakeDevice struct {
	outputs map[string]string
	files   map[string][]string
	calls   []string
}

func (d *fakeDevice) Run(_ context.Context, argv []string, _ bool) (string, error) {
	cmd := strings.Join(argv, " ")
	d.calls = append(d.calls, cmd)
	out, ok := d.outputs[cmd]
	if !ok {
		return "", &source.ExecError{Cmd: cmd, ExitCode: 127, Err: errors.New("not found")}
	}
	return out, nil
}

func (d *fakeDevice) ReadLines(_ context.Context, path string) ([]string, error) {
	lines, ok := d.files[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return lines, nil
}

const (
	pmlogLaunch = `2018-05-14T02:12:36Z [2.5] user.info sam [] DEFAULT APP_LAUNCH {"PerfType":"AppLaunch","PerfGroup":"browser"} go`
	pmlogReady  = `2018-05-14T02:12:37Z [1.5] user.info sam [] DEFAULT APP_READY {"note":"plain"}`
	pmlogNoise  = `2018-05-14T02:12:38Z [3.0] user.info sam [] DEFAULT CHATTER {"x":1}`
	journalPerf = `{"__MONOTONIC_TIMESTAMP":"4000000","_COMM":"sam","MESSAGE":"{\"msgid\":\"BOOT\",\"PerfType\":\"Boot\",\"PerfGroup\":\"sys\"}"}`
	journalRest = `{"__MONOTONIC_TIMESTAMP":"1000000","_COMM":"sam","MESSAGE":"{\"msgid\":\"APP_READY\"}"}`
)

func readyConfig(t *testing.T) *config.ViewerConfig {
	t.Helper()
	cfg := &config.ViewerConfig{Contexts: []config.Context{{
		ResponseMS: 1000,
		Starts:     []config.Condition{{Type: "AppLaunch", Group: "*", MsgID: "APP_LAUNCH"}},
		Ends:       []config.Condition{{Type: "*", Group: "*", MsgID: "APP_READY"}},
	}}}
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func msgids(entries parser.EntryList) []string {
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.MsgID)
	}
	return ids
}

func TestLoadPmlog(t *testing.T) {
	dev := &fakeDevice{files: map[string][]string{
		"/var/log/messages": {pmlogLaunch, "", "garbage", pmlogReady, pmlogNoise},
	}}
	l := New(dev, dev, readyConfig(t))

	entries, err := l.LoadPmlog(context.Background(), []string{"/var/log/messages"})
	require.NoError(t, err)

	assert.Equal(t, []string{"APP_LAUNCH", "APP_READY"}, msgids(entries))
	require.Len(t, l.Stats(), 1)
	assert.Equal(t, SourceStats{
		Source: "/var/log/messages",
		Format: parser.FormatPmlog,
		Lines:  4,
		Parsed: 3,
		Perf:   1,
		Kept:   2,
	}, l.Stats()[0])
}

func TestLoadPmlog_OversizedLineKeepsNeighbours(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages")
	content := pmlogLaunch + "\n" + strings.Repeat("x", 2<<20) + "\n" + pmlogReady + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	local := source.NewLocalCommander()
	l := New(local, local, readyConfig(t))

	entries, err := l.LoadPmlog(context.Background(), []string{path})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"APP_LAUNCH", "APP_READY"}, msgids(entries))
	require.Len(t, l.Stats(), 1)
	assert.Equal(t, 3, l.Stats()[0].Lines)
}

func TestLoadPmlog_NilConfigKeepsPerfOnly(t *testing.T) {
	dev := &fakeDevice{files: map[string][]string{"m": {pmlogLaunch, pmlogReady}}}

	entries, err := New(dev, dev, nil).LoadPmlog(context.Background(), []string{"m"})
	require.NoError(t, err)
	assert.Equal(t, []string{"APP_LAUNCH"}, msgids(entries))
}

func TestLoadPmlog_ReadFailure(t *testing.T) {
	dev := &fakeDevice{}

	_, err := New(dev, dev, nil).LoadPmlog(context.Background(), []string{"/nope"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadJournal(t *testing.T) {
	dev := &fakeDevice{outputs: map[string]string{
		"journalctl -o json": journalPerf + "\n" + "not json\n" + journalRest + "\n",
	}}

	entries, err := New(dev, dev, readyConfig(t)).LoadJournal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BOOT", "APP_READY"}, msgids(entries))
}

func TestLoadJournal_CommandFailure(t *testing.T) {
	dev := &fakeDevice{}

	_, err := New(dev, dev, nil).LoadJournal(context.Background())
	var execErr *source.ExecError
	assert.ErrorAs(t, err, &execErr)
}

func TestLoadLogs(t *testing.T) {
	ctx := context.Background()

	t.Run("pmlog discovered on device", func(t *testing.T) {
		dev := &fakeDevice{
			outputs: map[string]string{"ls /var/log/messages*": "/var/log/messages\n/var/log/messages.1.gz\n"},
			files: map[string][]string{
				"/var/log/messages":      {pmlogLaunch},
				"/var/log/messages.1.gz": {pmlogReady},
			},
		}

		entries, err := New(dev, dev, readyConfig(t)).LoadLogs(ctx, platform.Info{HWName: "m16"}, Options{})
		require.NoError(t, err)
		// Sorted by clock, not by file.
		assert.Equal(t, []string{"APP_READY", "APP_LAUNCH"}, msgids(entries))
	})

	t.Run("nothing discovered", func(t *testing.T) {
		dev := &fakeDevice{outputs: map[string]string{"ls /var/log/messages*": "\n"}}

		_, err := New(dev, dev, nil).LoadLogs(ctx, platform.Info{}, Options{})
		assert.ErrorIs(t, err, ErrNoLogFiles)
	})

	t.Run("explicit pmlog files", func(t *testing.T) {
		dev := &fakeDevice{files: map[string][]string{"a.log": {pmlogLaunch}}}

		entries, err := New(dev, dev, nil).LoadLogs(ctx, platform.Info{}, Options{PmlogFiles: []string{"a.log"}})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.Empty(t, dev.calls)
	})

	t.Run("journal device", func(t *testing.T) {
		dev := &fakeDevice{outputs: map[string]string{"journalctl -o json": journalPerf + "\n" + journalRest}}

		entries, err := New(dev, dev, readyConfig(t)).LoadLogs(ctx, platform.Info{HWName: "imx6qsabreauto"}, Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"APP_READY", "BOOT"}, msgids(entries))
	})

	t.Run("journal files with pmlog files", func(t *testing.T) {
		dev := &fakeDevice{files: map[string][]string{
			"boot.json": {journalPerf},
			"messages":  {pmlogLaunch},
		}}

		l := New(dev, dev, nil)
		entries, err := l.LoadLogs(ctx, platform.Info{HWName: "m16"}, Options{
			JournalFiles: []string{"boot.json"},
			PmlogFiles:   []string{"messages"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"APP_LAUNCH", "BOOT"}, msgids(entries))
		assert.Len(t, l.Stats(), 2)
		assert.Empty(t, dev.calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		dev := &fakeDevice{files: map[string][]string{"a.log": {pmlogLaunch}}}

		_, err := New(dev, dev, nil).LoadLogs(cctx, platform.Info{}, Options{PmlogFiles: []string{"a.log"}})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoader_LogsDroppedLines(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dev := &fakeDevice{files: map[string][]string{"m": {"garbage", pmlogNoise, pmlogLaunch}}}

	_, err := New(dev, dev, readyConfig(t), WithLogger(zap.New(core))).LoadPmlog(context.Background(), []string{"m"})
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("Cannot parse").Len())
	assert.Equal(t, 1, logs.FilterMessage("Ignore").Len())
	loaded := logs.FilterMessage("Loaded").All()
	require.Len(t, loaded, 1)
	assert.Equal(t, "loader", loaded[0].LoggerName)
	assert.Equal(t, "loader.logentry", logs.FilterMessage("Ignore").All()[0].LoggerName)
}
