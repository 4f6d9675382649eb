// Package detector identifies which log line format a file uses.
package detector

import (
	"context"
	"sort"
	"strings"

	"github.com/pmtrace/perflog/pkg/source"
)

// DefaultSampleSize is the number of lines sampled per file.
const DefaultSampleSize = 100

// DetectionResult holds the result of analyzing a log file.
type DetectionResult struct {
	Matches      []FormatMatch // Formats that matched, sorted by confidence descending
	SampledLines int           // Number of lines sampled
	ParsedLines  int           // Number of lines parsed by the best match
}

// FormatMatch represents a format that matched with its confidence score.
type FormatMatch struct {
	Format     *LineFormat
	Confidence float64 // 0.0 to 1.0 (share of sampled lines parsed)
	MatchCount int     // Number of lines parsed
	PerfCount  int     // Parsed lines carrying PerfType and PerfGroup
	SampleLine string  // First line parsed
}

// Detector samples log files and scores candidate formats.
type Detector struct {
	formats    []*LineFormat
	sampleSize int
	lines      source.LineSource
}

// Option configures the Detector.
type Option func(*Detector)

// WithSampleSize sets the number of lines to sample (default 100).
func WithSampleSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleSize = n
		}
	}
}

// WithLineSource reads files through src instead of the local filesystem.
func WithLineSource(src source.LineSource) Option {
	return func(d *Detector) {
		if src != nil {
			d.lines = src
		}
	}
}

// New creates a new Detector with default formats.
func New(opts ...Option) *Detector {
	d := &Detector{
		formats:    DefaultFormats(),
		sampleSize: DefaultSampleSize,
		lines:      source.NewLocalCommander(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectFromFile samples a log file and returns detected formats.
func (d *Detector) DetectFromFile(ctx context.Context, path string) (*DetectionResult, error) {
	all, err := d.lines.ReadLines(ctx, path)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range all {
		if len(lines) >= d.sampleSize {
			break
		}
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return d.DetectFromLines(lines), nil
}

// DetectFromLines scores every format against lines.
func (d *Detector) DetectFromLines(lines []string) *DetectionResult {
	result := &DetectionResult{}

	counts := make([]FormatMatch, len(d.formats))
	for i, f := range d.formats {
		counts[i].Format = f
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		result.SampledLines++

		for i, f := range d.formats {
			e, ok := f.Parse(line)
			if !ok {
				continue
			}
			if counts[i].MatchCount == 0 {
				counts[i].SampleLine = line
			}
			counts[i].MatchCount++
			if e.IsPerfLog() {
				counts[i].PerfCount++
			}
		}
	}

	if result.SampledLines == 0 {
		return result
	}

	for _, m := range counts {
		if m.MatchCount == 0 {
			continue
		}
		m.Confidence = float64(m.MatchCount) / float64(result.SampledLines)
		result.Matches = append(result.Matches, m)
	}

	// Ties keep DefaultFormats order.
	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Confidence > result.Matches[j].Confidence
	})

	if len(result.Matches) > 0 {
		result.ParsedLines = result.Matches[0].MatchCount
	}

	return result
}

// BestMatch returns the highest confidence match, or nil if none found.
func (r *DetectionResult) BestMatch() *FormatMatch {
	if len(r.Matches) == 0 {
		return nil
	}
	return &r.Matches[0]
}

// HasMatch returns true if at least one format matched.
func (r *DetectionResult) HasMatch() bool {
	return len(r.Matches) > 0
}
