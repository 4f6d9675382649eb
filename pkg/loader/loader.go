// Package loader reads performance log entries from a device, choosing
// between pmlog files and the systemd journal.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pmtrace/perflog/pkg/config"
	"github.com/pmtrace/perflog/pkg/parser"
	"github.com/pmtrace/perflog/pkg/platform"
	"github.com/pmtrace/perflog/pkg/source"
)

// ErrNoLogFiles is returned when pmlog discovery finds nothing to read.
var ErrNoLogFiles = errors.New("no pmlog files found")

// journalCommand dumps the journal with one JSON record per line.
var journalCommand = []string{"journalctl", "-o", "json"}

// SourceStats counts what happened to the lines of one source.
type SourceStats struct {
	Source string
	Format parser.Format

	// Lines is the number of lines read, Parsed how many decoded, Perf how
	// many carried a PerfType and PerfGroup, Kept how many were returned.
	Lines  int
	Parsed int
	Perf   int
	Kept   int
}

// Options selects explicit inputs for LoadLogs.
type Options struct {
	PmlogFiles   []string
	JournalFiles []string
}

// Loader turns raw log lines into entries worth correlating.
type Loader struct {
	runner source.CommandRunner
	lines  source.LineSource
	cfg    *config.ViewerConfig
	logger *zap.Logger
	stats  []SourceStats
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Loader. Entries are kept when they are perf logs or match
// any condition in cfg; cfg may be nil to keep perf logs only.
func New(runner source.CommandRunner, lines source.LineSource, cfg *config.ViewerConfig, opts ...Option) *Loader {
	l := &Loader{
		runner: runner,
		lines:  lines,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("loader")
	return l
}

// Stats returns per-source counters for everything loaded so far.
func (l *Loader) Stats() []SourceStats {
	return l.stats
}

// LoadPmlog reads and parses pmlog files. A file that cannot be read is an
// error; lines that fail to parse are dropped.
func (l *Loader) LoadPmlog(ctx context.Context, paths []string) (parser.EntryList, error) {
	return l.loadFiles(ctx, parser.FormatPmlog, paths)
}

// LoadJournalFiles parses saved `journalctl -o json` captures.
func (l *Loader) LoadJournalFiles(ctx context.Context, paths []string) (parser.EntryList, error) {
	return l.loadFiles(ctx, parser.FormatJournal, paths)
}

// LoadJournal reads the live journal through the runner.
func (l *Loader) LoadJournal(ctx context.Context) (parser.EntryList, error) {
	out, err := l.runner.Run(ctx, journalCommand, false)
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return l.collect(parser.NewJournalParser(), strings.Join(journalCommand, " "), strings.Split(out, "\n")), nil
}

// LoadLogs loads entries for the device described by info and returns them
// sorted by clock.
//
// Explicit journal files are loaded as given, along with any explicit pmlog
// files. Otherwise devices logging to the journal are read with journalctl,
// and all others from pmlog files, discovered on the device when none are
// given.
func (l *Loader) LoadLogs(ctx context.Context, info platform.Info, opts Options) (parser.EntryList, error) {
	var (
		entries parser.EntryList
		err     error
	)

	switch {
	case len(opts.JournalFiles) > 0:
		entries, err = l.LoadJournalFiles(ctx, opts.JournalFiles)
		if err == nil && len(opts.PmlogFiles) > 0 {
			var more parser.EntryList
			more, err = l.LoadPmlog(ctx, opts.PmlogFiles)
			entries = append(entries, more...)
		}
	case info.UsesJournal():
		l.logger.Debug("Reading journal", zap.String("hw", info.HWName))
		entries, err = l.LoadJournal(ctx)
	default:
		paths := opts.PmlogFiles
		if len(paths) == 0 {
			paths, err = l.discoverPmlog(ctx)
			if err != nil {
				return nil, err
			}
		}
		entries, err = l.LoadPmlog(ctx, paths)
	}
	if err != nil {
		return nil, err
	}

	entries.SortByClock()
	return entries, nil
}

func (l *Loader) discoverPmlog(ctx context.Context) ([]string, error) {
	out, err := l.runner.Run(ctx, []string{"ls", config.DefaultPmlogFile + "*"}, true)
	if err != nil {
		return nil, fmt.Errorf("listing %s*: %w", config.DefaultPmlogFile, err)
	}

	paths := strings.Fields(out)
	if len(paths) == 0 {
		return nil, ErrNoLogFiles
	}
	l.logger.Debug("Discovered pmlog files", zap.Strings("paths", paths))
	return paths, nil
}

func (l *Loader) loadFiles(ctx context.Context, format parser.Format, paths []string) (parser.EntryList, error) {
	p, err := parser.ForFormat(format)
	if err != nil {
		return nil, err
	}

	var entries parser.EntryList
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lines, err := l.lines.ReadLines(ctx, path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, l.collect(p, path, lines)...)
	}
	return entries, nil
}

func (l *Loader) collect(p parser.Parser, src string, lines []string) parser.EntryList {
	logger := l.logger.Named("logentry").With(zap.String("source", src))
	st := SourceStats{Source: src, Format: p.Format()}

	var entries parser.EntryList
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		st.Lines++

		e, err := p.Parse(line)
		if err != nil {
			logger.Debug("Cannot parse", zap.Int("line", i+1), zap.Error(err))
			continue
		}
		st.Parsed++

		perf := e.IsPerfLog()
		if perf {
			st.Perf++
		}
		if !perf && (l.cfg == nil || !l.cfg.IsInConditions(e)) {
			logger.Debug("Ignore", zap.Int("line", i+1), zap.String("msgid", e.MsgID))
			continue
		}

		st.Kept++
		entries = append(entries, e)
	}

	l.stats = append(l.stats, st)
	l.logger.Info("Loaded",
		zap.String("source", src),
		zap.String("format", string(st.Format)),
		zap.Int("lines", st.Lines),
		zap.Int("parsed", st.Parsed),
		zap.Int("kept", st.Kept))

	return entries
}
