// Package output renders correlated entry groups as text, csv or json.
package output

import (
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/pmtrace/perflog/pkg/analyzer"
	"github.com/pmtrace/perflog/pkg/platform"
)

// Report is everything a formatter needs.
type Report struct {
	// Device is the target the logs came from.
	Device platform.Info

	// Groups are the correlated windows in the order they were opened.
	Groups []*analyzer.EntryGroup

	// Filter restricts which groups are exported.
	Filter Filter

	Stats    analyzer.Stats
	Metadata Metadata
}

// Metadata provides context about the analysis run.
type Metadata struct {
	ConfigFile string
	Sources    []string
	AnalyzedAt time.Time
	Duration   time.Duration
}

// Filter keeps groups whose representative type and group are listed.
// An empty list accepts everything.
type Filter struct {
	Types  []string
	Groups []string
}

// Allows reports whether g passes the filter.
func (f Filter) Allows(g *analyzer.EntryGroup) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, g.ReprType) {
		return false
	}
	if len(f.Groups) > 0 && !slices.Contains(f.Groups, g.ReprGroup) {
		return false
	}
	return true
}

// NewReport creates a Report from an analysis result.
func NewReport(device platform.Info, result *analyzer.Result, configFile string) *Report {
	return &Report{
		Device: device,
		Groups: result.Groups,
		Stats:  result.Stats,
		Metadata: Metadata{
			ConfigFile: configFile,
			AnalyzedAt: time.Now(),
		},
	}
}

// HasGroups reports whether any group survives the export filter.
func (r *Report) HasGroups() bool {
	return len(r.Exported(nil)) > 0
}

// Exported returns the non-empty groups accepted by the filter.
func (r *Report) Exported(logger *zap.Logger) []*analyzer.EntryGroup {
	if logger == nil {
		logger = zap.NewNop()
	}

	var groups []*analyzer.EntryGroup
	for _, g := range r.Groups {
		if g.Len() == 0 {
			logger.Warn("export: no data")
			continue
		}
		if !r.Filter.Allows(g) {
			logger.Info("Filtered out",
				zap.String("type", g.ReprType),
				zap.String("grp", g.ReprGroup),
				zap.Strings("types", r.Filter.Types),
				zap.Strings("groups", r.Filter.Groups))
			continue
		}
		groups = append(groups, g)
	}
	return groups
}

// Measurement is one exported group in machine-readable form.
type Measurement struct {
	Type  string  `json:"PerfType"`
	Group string  `json:"PerfGroup"`
	Value float64 `json:"PerfValue"`
}

// Document is the json export layout.
type Document struct {
	TargetDevice platform.Info `json:"targetDevice"`
	Data         []Measurement `json:"data"`
}

// Document builds the json export of the report.
func (r *Report) Document(logger *zap.Logger) Document {
	doc := Document{
		TargetDevice: r.Device,
		Data:         make([]Measurement, 0, len(r.Groups)),
	}
	for _, g := range r.Exported(logger) {
		doc.Data = append(doc.Data, Measurement{
			Type:  g.ReprType,
			Group: g.ReprGroup,
			Value: Round3(g.Elapsed()),
		})
	}
	return doc
}

// Round3 rounds seconds to milliseconds.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
