package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// journalRecord is the subset of a `journalctl -o json` record we read.
type journalRecord struct {
	Comm      string `json:"_COMM"`
	Monotonic any    `json:"__MONOTONIC_TIMESTAMP"`
	Message   any    `json:"MESSAGE"`
}

// JournalParser parses journal records whose MESSAGE is a JSON payload
// written by libpmtrace.
type JournalParser struct{}

// NewJournalParser creates a journal parser.
func NewJournalParser() *JournalParser {
	return &JournalParser{}
}

// Format returns FormatJournal.
func (p *JournalParser) Format() Format {
	return FormatJournal
}

// Parse decodes one journal record.
// The clock comes from the payload CLOCK (seconds) when present, otherwise
// from __MONOTONIC_TIMESTAMP (microseconds).
func (p *JournalParser) Parse(raw string) (*Entry, error) {
	var rec journalRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongFormat, err)
	}

	msg, ok := rec.Message.(string)
	if !ok {
		return nil, fmt.Errorf("%w: MESSAGE is not a string", ErrInvalidContents)
	}

	dec := json.NewDecoder(strings.NewReader(msg))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: MESSAGE: %v", ErrInvalidContents, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: MESSAGE is not a JSON object", ErrInvalidContents)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: MESSAGE has data after the JSON object", ErrInvalidContents)
	}

	entry := &Entry{
		Raw:    raw,
		Format: FormatJournal,
		Proc:   rec.Comm,
		Type:   stringValue(payload["PerfType"]),
		Group:  stringValue(payload["PerfGroup"]),
		MsgID:  stringValue(payload["msgid"]),
	}

	switch {
	case payload["CLOCK"] != nil:
		clock, err := floatValue(payload["CLOCK"])
		if err != nil {
			return nil, fmt.Errorf("%w: CLOCK: %v", ErrInvalidContents, err)
		}
		entry.Clock = clock
	case rec.Monotonic != nil:
		usec, err := floatValue(rec.Monotonic)
		if err != nil {
			return nil, fmt.Errorf("%w: __MONOTONIC_TIMESTAMP: %v", ErrInvalidContents, err)
		}
		entry.Clock = usec / 1e6
	}

	return entry, nil
}
