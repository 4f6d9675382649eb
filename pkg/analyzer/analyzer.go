package analyzer

import (
	"go.uber.org/zap"

	"github.com/pmtrace/perflog/pkg/config"
	"github.com/pmtrace/perflog/pkg/parser"
)

// Analyzer correlates entries using the contexts of a viewer configuration.
type Analyzer struct {
	cfg    *config.ViewerConfig
	logger *zap.Logger
}

// AnalyzerOption configures analyzer behavior.
type AnalyzerOption func(*Analyzer)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer creates an analyzer for cfg.
func NewAnalyzer(cfg *config.ViewerConfig, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		cfg:    cfg,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("correlator")

	return a
}

// Analyze groups entries into start-to-end windows.
//
// entries must already be sorted by clock. For every entry matching a start
// condition, each matching context gets a window of the entries from the
// cursor on whose clock is before start+allowedResponseMS; the window is cut
// after its last entry matching an end condition. A window without an end,
// or with the start condition matched again after its first entry, yields
// nothing.
//
// Each emitted window advances the cursor by its length minus one, and the
// next matching context builds its window from the advanced cursor.
func (a *Analyzer) Analyze(entries parser.EntryList) *Result {
	result := &Result{
		Stats: Stats{Entries: len(entries)},
	}

	cur := 0
	for cur < len(entries) {
		start := entries[cur]
		ctxs := a.cfg.MatchingStartContexts(start)
		if len(ctxs) == 0 {
			cur++
			continue
		}

		result.Stats.Starts++
		startCond := ctxs[0].MatchedStartCondition(start)
		a.logger.Debug("Found new start",
			zap.Int("index", cur),
			zap.Stringer("cond", startCond))

		for _, ctx := range ctxs {
			window := endWindow(entries[cur:], start, ctx)
			if window == nil {
				result.Stats.NoEnd++
				a.logger.Info("Ignore: no end condition",
					zap.Int("context", ctx.ID),
					zap.Float64("clock", start.Clock))
				continue
			}

			if restarted(window, startCond) {
				result.Stats.DuplicateStart++
				a.logger.Debug("Ignore: duplicated start condition",
					zap.Int("context", ctx.ID),
					zap.Float64("clock", start.Clock))
				continue
			}

			group := &EntryGroup{
				Entries:     window,
				ContextID:   ctx.ID,
				Description: ctx.Description,
			}
			group.SetRepresentType(ctx.ReprType)
			group.SetRepresentGroup(ctx.ReprGroup)

			a.logger.Info("Found",
				zap.Int("nr", group.Len()),
				zap.String("type", group.ReprType),
				zap.String("grp", group.ReprGroup),
				zap.Stringer("cond", startCond))
			result.Groups = append(result.Groups, group)

			cur += len(window) - 1
		}

		cur++
	}

	result.Stats.Found = len(result.Groups)
	return result
}

// Analyze is a convenience wrapper around NewAnalyzer(cfg).Analyze(entries).
func Analyze(cfg *config.ViewerConfig, entries parser.EntryList, logger *zap.Logger) []*EntryGroup {
	return NewAnalyzer(cfg, WithLogger(logger)).Analyze(entries).Groups
}

// endWindow returns the entries of tail that fall within ctx's response
// budget from start, cut after the last one matching an end condition.
// Returns nil when no entry in the budget matches an end condition.
func endWindow(tail parser.EntryList, start *parser.Entry, ctx *config.Context) parser.EntryList {
	deadline := start.Clock + ctx.ResponseWindow()

	window := make(parser.EntryList, 0, len(tail))
	for _, e := range tail {
		if e.Clock < deadline {
			window = append(window, e)
		}
	}

	for i := len(window) - 1; i >= 0; i-- {
		if ctx.HasMatchedEnd(window[i]) {
			return window[:i+1]
		}
	}
	return nil
}

// restarted reports whether cond matches any entry after the first.
func restarted(window parser.EntryList, cond *config.Condition) bool {
	for _, e := range window[1:] {
		if cond.IsMatched(e) {
			return true
		}
	}
	return false
}
