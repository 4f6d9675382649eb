package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmtrace/perflog/pkg/analyzer"
	"github.com/pmtrace/perflog/pkg/output"
	"github.com/pmtrace/perflog/pkg/parser"
	"github.com/pmtrace/perflog/pkg/platform"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(at time.Time, build string, launches ...float64) Run {
	run := Run{
		AnalyzedAt: at,
		ConfigFile: "config.json",
		Device:     platform.Info{HWName: "m16", OSName: "webOS TV Reference", BuildInfo: build},
	}
	for i, v := range launches {
		run.Measurements = append(run.Measurements, Measurement{
			Type:       "AppLaunch",
			Group:      "browser",
			ClockBegin: float64(10 * i),
			Elapsed:    v,
		})
	}
	run.Measurements = append(run.Measurements, Measurement{Type: "Boot", Group: "sys", Elapsed: 12.5})
	return run
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/to/history.db")
	assert.Error(t, err)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := New(path)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), sampleRun(time.Now(), "100", 1.5))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRecordAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

	first, err := s.Record(ctx, sampleRun(day, "100", 1.5, 1.7))
	require.NoError(t, err)
	second, err := s.Record(ctx, sampleRun(day.Add(24*time.Hour), "101", 1.2))
	require.NoError(t, err)
	assert.Greater(t, second, first)

	got, err := s.Query(ctx, Filter{Type: "AppLaunch"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest run first, then insertion order within a run.
	assert.Equal(t, second, got[0].RunID)
	assert.Equal(t, "101", got[0].BuildInfo)
	assert.InDelta(t, 1.2, got[0].Elapsed, 1e-9)
	assert.True(t, got[0].AnalyzedAt.Equal(day.Add(24*time.Hour)), "analyzed at %v", got[0].AnalyzedAt)
	assert.Equal(t, first, got[1].RunID)
	assert.InDelta(t, 1.5, got[1].Elapsed, 1e-9)
	assert.InDelta(t, 1.7, got[2].Elapsed, 1e-9)
	assert.InDelta(t, 10.0, got[2].ClockBegin, 1e-9)
	assert.Equal(t, "m16", got[2].HWName)

	got, err = s.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.Query(ctx, Filter{HWName: "other"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, sampleRun(time.Now(), "100", 1.0, 2.0))
	require.NoError(t, err)
	_, err = s.Record(ctx, sampleRun(time.Now(), "101", 3.0))
	require.NoError(t, err)

	sums, err := s.Summary(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, sums, 2)

	assert.Equal(t, Summary{Type: "AppLaunch", Group: "browser", Count: 3, Min: 1.0, Avg: 2.0, Max: 3.0}, sums[0])
	assert.Equal(t, Summary{Type: "Boot", Group: "sys", Count: 2, Min: 12.5, Avg: 12.5, Max: 12.5}, sums[1])

	sums, err = s.Summary(ctx, Filter{Group: "sys"})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "Boot", sums[0].Type)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, sampleRun(time.Now().Add(-72*time.Hour), "99", 2.0))
	require.NoError(t, err)
	_, err = s.Record(ctx, sampleRun(time.Now(), "100", 1.0))
	require.NoError(t, err)

	n, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.Equal(t, "100", m.BuildInfo)
	}
}

func TestRecord_Cancelled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Record(ctx, sampleRun(time.Now(), "100", 1.0))
	assert.Error(t, err)
}

func TestRunFromReport(t *testing.T) {
	at := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	report := &output.Report{
		Device: platform.Info{HWName: "m16"},
		Groups: []*analyzer.EntryGroup{
			{
				ReprType:  "AppLaunch",
				ReprGroup: "browser",
				Entries:   parser.EntryList{{Clock: 4.0}, {Clock: 5.23456}},
			},
			{ReprType: "Boot", ReprGroup: "sys", Entries: parser.EntryList{{Clock: 1}, {Clock: 2}}},
		},
		Filter:   output.Filter{Types: []string{"AppLaunch"}},
		Metadata: output.Metadata{ConfigFile: "c.json", AnalyzedAt: at},
	}

	run := RunFromReport(report)

	assert.Equal(t, "c.json", run.ConfigFile)
	assert.Equal(t, at, run.AnalyzedAt)
	assert.Equal(t, "m16", run.Device.HWName)
	require.Len(t, run.Measurements, 1)
	assert.Equal(t, "AppLaunch", run.Measurements[0].Type)
	assert.InDelta(t, 4.0, run.Measurements[0].ClockBegin, 1e-9)
	assert.InDelta(t, 1.235, run.Measurements[0].Elapsed, 1e-9)
}
