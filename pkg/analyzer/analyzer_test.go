package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pmtrace/perflog/pkg/config"
	"github.com/pmtrace/perflog/pkg/parser"
)

func msgidCondition(msgid string) config.Condition {
	return config.Condition{Type: config.Wildcard, Group: config.Wildcard, MsgID: msgid}
}

func startEndConfig(responseMS int) *config.ViewerConfig {
	cfg := &config.ViewerConfig{Contexts: []config.Context{{
		Description: "start to end",
		ReprType:    "T",
		ReprGroup:   "G",
		ResponseMS:  responseMS,
		Starts:      []config.Condition{msgidCondition("START")},
		Ends:        []config.Condition{msgidCondition("END")},
	}}}
	if err := config.Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func entry(clock float64, msgid string) *parser.Entry {
	return &parser.Entry{Raw: msgid, MsgID: msgid, Clock: clock}
}

func TestAnalyze_StartMidEnd(t *testing.T) {
	entries := parser.EntryList{
		entry(0.0, "START"),
		entry(0.5, "MID"),
		entry(1.5, "END"),
	}

	groups := Analyze(startEndConfig(2000), entries, zap.NewNop())

	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, entries, g.Entries)
	assert.Equal(t, "T", g.ReprType)
	assert.Equal(t, "G", g.ReprGroup)
	assert.Equal(t, 0, g.ContextID)
	assert.Equal(t, "start to end", g.Description)
	assert.InDelta(t, 0.0, g.ClockBegin(), 1e-12)
	assert.InDelta(t, 1.5, g.ClockEnd(), 1e-12)
	assert.InDelta(t, 1.5, g.Elapsed(), 1e-12)
}

func TestAnalyze_SharesEntries(t *testing.T) {
	entries := parser.EntryList{entry(0, "START"), entry(1, "END")}

	groups := Analyze(startEndConfig(2000), entries, nil)

	require.Len(t, groups, 1)
	assert.Same(t, entries[0], groups[0].Entries[0])
	assert.Same(t, entries[1], groups[0].Entries[1])
}

func TestAnalyze_DuplicateStartRejected(t *testing.T) {
	entries := parser.EntryList{
		entry(0.0, "START"),
		entry(0.3, "START"),
		entry(1.0, "END"),
	}

	result := NewAnalyzer(startEndConfig(2000)).Analyze(entries)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Same(t, entries[1], g.Entries[0])
	assert.Same(t, entries[2], g.Entries[1])
	assert.InDelta(t, 0.7, g.Elapsed(), 1e-9)
	assert.Equal(t, 1, result.Stats.DuplicateStart)
	assert.Equal(t, 2, result.Stats.Starts)
}

func TestAnalyze_DeadlineIsExclusive(t *testing.T) {
	t.Run("end exactly at deadline", func(t *testing.T) {
		entries := parser.EntryList{entry(0.0, "START"), entry(1.0, "END")}

		result := NewAnalyzer(startEndConfig(1000)).Analyze(entries)

		assert.Empty(t, result.Groups)
		assert.Equal(t, 1, result.Stats.NoEnd)
	})

	t.Run("end just before deadline", func(t *testing.T) {
		entries := parser.EntryList{entry(0.0, "START"), entry(1.0, "END"), entry(0.999, "END")}

		groups := Analyze(startEndConfig(1000), entries, nil)

		require.Len(t, groups, 1)
		g := groups[0]
		require.Len(t, g.Entries, 2)
		assert.Same(t, entries[2], g.Entries[1])
		assert.InDelta(t, 0.999, g.Elapsed(), 1e-12)
	})
}

func TestAnalyze_NoEnd(t *testing.T) {
	entries := parser.EntryList{
		entry(0.0, "START"),
		entry(0.5, "MID"),
		entry(5.0, "END"),
	}

	result := NewAnalyzer(startEndConfig(2000)).Analyze(entries)

	assert.Empty(t, result.Groups)
	assert.Equal(t, 1, result.Stats.NoEnd)
	assert.Equal(t, 3, result.Stats.Entries)
}

func TestAnalyze_CutsAtLastEndInBudget(t *testing.T) {
	entries := parser.EntryList{
		entry(0.0, "START"),
		entry(0.2, "END"),
		entry(0.4, "MID"),
		entry(0.6, "END"),
		entry(0.8, "MID"),
	}

	groups := Analyze(startEndConfig(1000), entries, nil)

	require.Len(t, groups, 1)
	assert.Equal(t, entries[:4], groups[0].Entries)
}

func TestAnalyze_ResumesAfterWindow(t *testing.T) {
	entries := parser.EntryList{
		entry(0.0, "START"),
		entry(0.5, "END"),
		entry(10.0, "START"),
		entry(10.25, "END"),
	}

	groups := Analyze(startEndConfig(1000), entries, nil)

	require.Len(t, groups, 2)
	assert.InDelta(t, 0.5, groups[0].Elapsed(), 1e-12)
	assert.InDelta(t, 0.25, groups[1].Elapsed(), 1e-12)
	assert.Same(t, entries[2], groups[1].Entries[0])
}

func TestAnalyze_Empty(t *testing.T) {
	result := NewAnalyzer(startEndConfig(1000)).Analyze(nil)
	assert.Empty(t, result.Groups)
	assert.Zero(t, result.Stats.Entries)
}

func TestAnalyze_RequiredStringsOnStart(t *testing.T) {
	cfg := &config.ViewerConfig{Contexts: []config.Context{{
		ResponseMS: 1000,
		Starts: []config.Condition{{
			Type: "*", Group: "*", MsgID: "LAUNCH",
			RequiredStrings: []string{"browser"},
		}},
		Ends: []config.Condition{msgidCondition("DONE")},
	}}}
	require.NoError(t, config.Validate(cfg))

	entries := parser.EntryList{
		{Raw: "LAUNCH home", MsgID: "LAUNCH", Clock: 0},
		{Raw: "LAUNCH browser", MsgID: "LAUNCH", Clock: 0.1},
		{Raw: "DONE", MsgID: "DONE", Clock: 0.5},
	}

	groups := Analyze(cfg, entries, nil)

	require.Len(t, groups, 1)
	assert.Same(t, entries[1], groups[0].Entries[0])
}

func TestAnalyze_MultipleContextsSameStart(t *testing.T) {
	cfg := &config.ViewerConfig{Contexts: []config.Context{
		{
			Description: "short",
			ResponseMS:  1000,
			Starts:      []config.Condition{msgidCondition("SHARED")},
			Ends:        []config.Condition{msgidCondition("A_END")},
		},
		{
			Description: "long",
			ResponseMS:  1000,
			Starts:      []config.Condition{msgidCondition("SHARED")},
			Ends:        []config.Condition{msgidCondition("B_END")},
		},
	}}
	require.NoError(t, config.Validate(cfg))

	entries := parser.EntryList{
		entry(0.0, "SHARED"),
		entry(0.1, "A_END"),
		entry(0.2, "B_END"),
		entry(0.3, "A_END"),
		entry(2.0, "SHARED"),
		entry(2.1, "B_END"),
	}

	groups := Analyze(cfg, entries, nil)

	require.Len(t, groups, 2)
	// "short" moves the cursor to index 3, so "long" only sees the A_END
	// at index 3 and finds no end for the first start.
	assert.Equal(t, "short", groups[0].Description)
	assert.Equal(t, entries[:4], groups[0].Entries)
	assert.Equal(t, "long", groups[1].Description)
	assert.Equal(t, entries[4:], groups[1].Entries)
}

func TestAnalyze_LaterContextWindowsFromCursor(t *testing.T) {
	cfg := &config.ViewerConfig{Contexts: []config.Context{
		{
			Description: "first",
			ResponseMS:  5000,
			Starts:      []config.Condition{msgidCondition("SHARED")},
			Ends:        []config.Condition{msgidCondition("A_END")},
		},
		{
			Description: "second",
			ResponseMS:  5000,
			Starts:      []config.Condition{msgidCondition("SHARED")},
			Ends:        []config.Condition{msgidCondition("B_END")},
		},
	}}
	require.NoError(t, config.Validate(cfg))

	entries := parser.EntryList{
		entry(0.0, "SHARED"),
		entry(0.1, "A_END"),
		entry(0.2, "B_END"),
	}

	result := NewAnalyzer(cfg).Analyze(entries)

	require.Len(t, result.Groups, 2)
	assert.Equal(t, entries[:2], result.Groups[0].Entries)
	assert.Equal(t, "second", result.Groups[1].Description)
	assert.Equal(t, entries[1:], result.Groups[1].Entries)
	assert.Equal(t, 1, result.Stats.Starts)
}

func TestAnalyze_CursorAdvancesAcrossContexts(t *testing.T) {
	cfg := &config.ViewerConfig{Contexts: []config.Context{
		{
			Description: "long",
			ResponseMS:  5000,
			Starts:      []config.Condition{msgidCondition("SHARED")},
			Ends:        []config.Condition{msgidCondition("A_END")},
		},
		{
			Description: "short",
			ResponseMS:  5000,
			Starts:      []config.Condition{msgidCondition("SHARED")},
			Ends:        []config.Condition{msgidCondition("B_END")},
		},
		{
			Description: "inner",
			ResponseMS:  5000,
			Starts:      []config.Condition{msgidCondition("INNER")},
			Ends:        []config.Condition{msgidCondition("INNER_END")},
		},
	}}
	require.NoError(t, config.Validate(cfg))

	entries := parser.EntryList{
		entry(0.0, "SHARED"),
		entry(0.1, "B_END"),
		entry(0.2, "INNER"),
		entry(0.3, "INNER_END"),
		entry(0.4, "A_END"),
	}

	result := NewAnalyzer(cfg).Analyze(entries)

	// "long" spans everything and moves the cursor to the last entry, so
	// "short" finds no end and INNER is never opened.
	require.Len(t, result.Groups, 1)
	assert.Equal(t, "long", result.Groups[0].Description)
	assert.Equal(t, entries, result.Groups[0].Entries)
	assert.Equal(t, 1, result.Stats.Starts)
	assert.Equal(t, 1, result.Stats.NoEnd)
}

func TestAnalyze_RepresentativeFromMembers(t *testing.T) {
	cfg := &config.ViewerConfig{Contexts: []config.Context{{
		ResponseMS: 1000,
		Starts:     []config.Condition{msgidCondition("START")},
		Ends:       []config.Condition{msgidCondition("END")},
	}}}
	require.NoError(t, config.Validate(cfg))

	entries := parser.EntryList{
		{MsgID: "START", Clock: 0},
		{MsgID: "MID", Type: "AppLaunch", Group: "browser", Clock: 0.1},
		{MsgID: "MID", Type: "AppLaunch", Group: "browser", Clock: 0.2},
		{MsgID: "END", Type: "Other", Group: "home", Clock: 0.3},
	}

	groups := Analyze(cfg, entries, nil)

	require.Len(t, groups, 1)
	assert.Equal(t, "AppLaunch", groups[0].ReprType)
	assert.Equal(t, "browser", groups[0].ReprGroup)
}

func TestAnalyze_LogsDiagnostics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	entries := parser.EntryList{
		entry(0.0, "START"),
		entry(0.3, "START"),
		entry(1.0, "END"),
		entry(5.0, "START"),
	}
	Analyze(startEndConfig(2000), entries, zap.New(core))

	assert.Equal(t, 1, logs.FilterMessage("Found").Len())
	assert.Equal(t, 1, logs.FilterMessage("Ignore: duplicated start condition").Len())
	assert.Equal(t, 1, logs.FilterMessage("Ignore: no end condition").Len())
	assert.Equal(t, 3, logs.FilterMessage("Found new start").Len())
	for _, e := range logs.All() {
		assert.Equal(t, "correlator", e.LoggerName)
	}
}
