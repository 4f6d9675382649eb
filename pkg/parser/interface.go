package parser

import "errors"

var (
	// ErrWrongFormat is returned when a line does not match the expected layout.
	ErrWrongFormat = errors.New("wrong log format")

	// ErrInvalidContents is returned when a line has the right layout but its
	// payload cannot be decoded.
	ErrInvalidContents = errors.New("invalid log contents")
)

// Parser decodes a single raw line into an Entry.
// Implementations exist per source format; a failed parse is never fatal,
// callers drop the line.
type Parser interface {
	// Parse decodes one line. Returns ErrWrongFormat or ErrInvalidContents
	// (possibly wrapped) when the line cannot be used.
	Parse(raw string) (*Entry, error)

	// Format returns the format this parser understands.
	Format() Format
}

// ForFormat returns the parser for the given format.
func ForFormat(f Format) (Parser, error) {
	switch f {
	case FormatPmlog:
		return NewPmlogParser(), nil
	case FormatJournal:
		return NewJournalParser(), nil
	default:
		return nil, errors.New("unknown log format: " + string(f))
	}
}
