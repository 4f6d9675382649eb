package output

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Formatter renders a report in a specific format.
type Formatter interface {
	// Format renders the report to the given writer.
	Format(ctx context.Context, report *Report, w io.Writer) error

	// Name returns the format name (text, csv, json).
	Name() string
}

// FormatOptions controls formatter behavior.
type FormatOptions struct {
	// Verbose adds context descriptions and a load summary to text output.
	Verbose bool

	// Quiet prints one line per group instead of the member table.
	Quiet bool

	// Logger receives "filtered out" and "no data" notices.
	Logger *zap.Logger
}

func (o FormatOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger.Named("export")
}

// New returns the formatter for name: text, csv or json.
func New(name string, opts FormatOptions) (Formatter, error) {
	switch name {
	case "", "text":
		return NewTextFormatter(opts), nil
	case "csv":
		return NewCSVFormatter(opts), nil
	case "json":
		return NewJSONFormatter(opts), nil
	default:
		return nil, &UnknownFormatError{Name: name}
	}
}

// UnknownFormatError is returned by New for an unsupported format name.
type UnknownFormatError struct {
	Name string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown output format %q (want text, csv or json)", e.Name)
}
