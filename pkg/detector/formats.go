package detector

import "github.com/pmtrace/perflog/pkg/parser"

// LineFormat is a log line layout the detector can recognise.
type LineFormat struct {
	Name        string
	Format      parser.Format // parser to use for files in this layout
	Description string
	Example     string

	parser parser.Parser
	accept func(raw string) bool
}

// Parse decodes raw when it is in this layout.
func (f *LineFormat) Parse(raw string) (*parser.Entry, bool) {
	if f.accept != nil && !f.accept(raw) {
		return nil, false
	}
	e, err := f.parser.Parse(raw)
	if err != nil {
		return nil, false
	}
	return e, true
}

// DefaultFormats returns the built-in line formats, most common first.
func DefaultFormats() []*LineFormat {
	return []*LineFormat{
		{
			Name:        "pmlog",
			Format:      parser.FormatPmlog,
			Description: "PmLog with monotonic clock",
			Example:     `2018-05-14T02:12:36.492135Z [31.418862211] user.info sam [] DEFAULT APP_LAUNCH {"PerfType":"AppLaunch","PerfGroup":"com.webos.app.browser"}`,
			parser:      parser.NewPmlogParser(),
			accept:      func(raw string) bool { return !parser.IsLegacyPmlog(raw) },
		},
		{
			Name:        "pmlog-legacy",
			Format:      parser.FormatPmlog,
			Description: "syslog-style PmLog without monotonic clock",
			Example:     `Jan 12 10:20:30 webos user.info LunaSysMgr: [] [pmlog] LSM APP_LAUNCH {"PerfType":"AppLaunch","PerfGroup":"com.webos.app.home"}`,
			parser:      parser.NewPmlogParser(),
			accept:      parser.IsLegacyPmlog,
		},
		{
			Name:        "journal",
			Format:      parser.FormatJournal,
			Description: "journalctl -o json records",
			Example:     `{"__MONOTONIC_TIMESTAMP":"9314492193","_COMM":"sam","MESSAGE":"{\"msgid\":\"APP_LAUNCH\",\"PerfType\":\"AppLaunch\",\"PerfGroup\":\"browser\"}"}`,
			parser:      parser.NewJournalParser(),
		},
	}
}
