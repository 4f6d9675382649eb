package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmtrace/perflog/pkg/config"
	"github.com/pmtrace/perflog/pkg/detector"
)

func TestRunDetect_Text(t *testing.T) {
	out, _, err := execute(t, NewDetectCommand(), testPmlog, testJournal)
	require.NoError(t, err)

	assert.Contains(t, out, "File: testdata/messages\n")
	assert.Contains(t, out, "Lines sampled: 5\n")
	assert.Contains(t, out, "Detected Format: pmlog")
	assert.Contains(t, out, "Confidence: 80.0% (4/5 lines parsed)")
	assert.Contains(t, out, "Performance lines: 2\n")
	assert.Contains(t, out, "Analyze with: perflog analyze -p testdata/messages\n")

	assert.Contains(t, out, "File: testdata/journal.json\n")
	assert.Contains(t, out, "Detected Format: journal")
	assert.Contains(t, out, "Analyze with: perflog analyze -j testdata/journal.json\n")
}

func TestRunDetect_NoMatch(t *testing.T) {
	path := writeFile(t, "plain.log", "hello\nworld\n")

	out, _, err := execute(t, NewDetectCommand(), path)
	require.NoError(t, err)
	assert.Contains(t, out, "No known log format detected.")
}

func TestRunDetect_JSON(t *testing.T) {
	out, _, err := execute(t, NewDetectCommand(), "-o", "json", testJournal)
	require.NoError(t, err)

	var docs []JSONOutput
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, testJournal, docs[0].File)
	assert.Equal(t, 2, docs[0].SampledLines)
	require.Len(t, docs[0].Matches, 1)
	assert.Equal(t, "journal", docs[0].Matches[0].Name)
	assert.Equal(t, "-j", docs[0].Matches[0].Flag)
	assert.InDelta(t, 1.0, docs[0].Matches[0].Confidence, 1e-9)
	assert.Equal(t, 1, docs[0].Matches[0].PerfCount)
}

func TestRunDetect_Errors(t *testing.T) {
	_, _, err := execute(t, NewDetectCommand(), "/nonexistent/messages")
	assert.ErrorContains(t, err, "log file not found")

	_, _, err = execute(t, NewDetectCommand(), "-o", "yaml", testPmlog)
	assert.ErrorContains(t, err, `unknown output format "yaml"`)

	_, _, err = execute(t, NewDetectCommand())
	assert.Error(t, err)
}

func TestRunDetect_WriteConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")

	out, _, err := execute(t, NewDetectCommand(), "-w", configPath, testPmlog)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote starter config to: "+configPath)

	cfg, err := config.Load(context.Background(), configPath)
	require.NoError(t, err)
	require.Len(t, cfg.Contexts, 1)
	// The first parsed line of the sample is the noise line.
	assert.Equal(t, "BOOT_NOISE", cfg.Contexts[0].Starts[0].MsgID)
	assert.Equal(t, "END_MSGID", cfg.Contexts[0].Ends[0].MsgID)
	assert.Equal(t, 5000, cfg.Contexts[0].ResponseMS)
}

func TestWriteStarterConfig_NoOverwrite(t *testing.T) {
	configPath := writeFile(t, "existing.json", "{}")
	result := &detector.DetectionResult{Matches: []detector.FormatMatch{{Format: detector.DefaultFormats()[0], Confidence: 1}}}

	err := writeStarterConfig(result, testPmlog, configPath, os.Stdout)
	assert.ErrorContains(t, err, "will not overwrite")

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestWriteStarterConfig_NoMatch(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")

	err := writeStarterConfig(&detector.DetectionResult{}, testPmlog, configPath, os.Stdout)
	assert.ErrorContains(t, err, "no log format detected")
	assert.NoFileExists(t, configPath)
}

func TestGenerateStarterConfig_NoSample(t *testing.T) {
	match := &detector.FormatMatch{Format: detector.DefaultFormats()[2], Confidence: 0.5}

	cfg, err := config.Parse([]byte(generateStarterConfig("journal.json", match, nil)))
	require.NoError(t, err)
	assert.Equal(t, "START_MSGID", cfg.Contexts[0].Starts[0].MsgID)
	assert.Equal(t, config.Wildcard, cfg.Contexts[0].Starts[0].Type)
	assert.Contains(t, cfg.Contexts[0].Description, "(journal, 50% confidence)")
}

func TestDetectOptions_Defaults(t *testing.T) {
	cmd := NewDetectCommand()

	sample, err := cmd.Flags().GetInt("sample")
	require.NoError(t, err)
	assert.Equal(t, detector.DefaultSampleSize, sample)

	output, err := cmd.Flags().GetString("output")
	require.NoError(t, err)
	assert.Equal(t, "text", output)
}
