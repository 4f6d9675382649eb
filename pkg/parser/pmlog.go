package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// UTC [MONOTONIC] LEVEL PROCESS [PID] CONTEXT MSGID {...} FREETEXT
	pmlogPattern = regexp.MustCompile(
		`^(?P<utc>.+) \[(?P<mono>[0-9.]+)\] (?P<level>[\w.]+) (?P<proc>.+?) \[(?P<pid>\d*?)\] (?P<ctx>.+?) (?P<msgid>.+?) (?P<rest>.*)$`)

	// Mon DD HH:MM:SS HOST LEVEL PROCESS: [..] [LOGGER] CONTEXT MSGID {...} FREETEXT
	legacyPmlogPattern = regexp.MustCompile(
		`^(?P<utc>[A-Za-z]+ [0-9]+ [0-9]+:[0-9]+:[0-9]+) (?P<host>\w+) (?P<level>[A-Za-z_.]+) (?P<proc>[A-Za-z_]+): \[.*\] \[(?P<logger>.*)\] (?P<ctx>.+?) (?P<msgid>.+?) (?P<rest>.*)$`)
)

// pmlogReservedKeys are payload keys that never show up in Entry.Rest.
var pmlogReservedKeys = map[string]bool{
	"utc":          true,
	"monotonicSec": true,
	"loglevel":     true,
	"proc":         true,
	"pid":          true,
	"ctx":          true,
	"msgid":        true,
	"freeText":     true,
	"PerfType":     true,
	"PerfGroup":    true,
	"CLOCK":        true,
	"app_id":       true,
}

// PmlogParser parses PmLog lines. Both the current layout with a monotonic
// clock and the older syslog-style layout are accepted.
type PmlogParser struct{}

// NewPmlogParser creates a PmLog parser.
func NewPmlogParser() *PmlogParser {
	return &PmlogParser{}
}

// Format returns FormatPmlog.
func (p *PmlogParser) Format() Format {
	return FormatPmlog
}

// Parse decodes one PmLog line.
func (p *PmlogParser) Parse(raw string) (*Entry, error) {
	head, ok := matchPmlogHead(raw)
	if !ok {
		return nil, ErrWrongFormat
	}

	end, err := payloadEnd(head.rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContents, err)
	}

	fields, err := decodeObject(head.rest[:end+1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContents, err)
	}

	entry := &Entry{
		Raw:      raw,
		Format:   FormatPmlog,
		Proc:     head.proc,
		MsgID:    head.msgid,
		Clock:    head.clock,
		FreeText: strings.TrimSpace(head.rest[end+1:]),
	}

	var rest strings.Builder
	for _, f := range fields {
		switch f.key {
		case "PerfType":
			entry.Type = stringValue(f.value)
		case "PerfGroup":
			entry.Group = stringValue(f.value)
		case "proc":
			entry.Proc = stringValue(f.value)
		case "msgid":
			entry.MsgID = stringValue(f.value)
		case "CLOCK":
			clock, err := floatValue(f.value)
			if err != nil {
				return nil, fmt.Errorf("%w: CLOCK: %v", ErrInvalidContents, err)
			}
			entry.Clock = clock
		default:
			if pmlogReservedKeys[f.key] {
				continue
			}
			rest.WriteString(f.key)
			rest.WriteString(":")
			rest.WriteString(stringValue(f.value))
			rest.WriteString(" ")
		}
	}
	entry.Rest = rest.String()

	return entry, nil
}

// IsLegacyPmlog reports whether raw uses the older syslog-style PmLog
// layout without a monotonic clock.
func IsLegacyPmlog(raw string) bool {
	head, ok := matchPmlogHead(raw)
	return ok && head.legacy
}

// pmlogHead holds the fixed fields in front of the JSON payload.
type pmlogHead struct {
	proc   string
	msgid  string
	clock  float64
	rest   string
	legacy bool
}

func matchPmlogHead(raw string) (pmlogHead, bool) {
	if m := pmlogPattern.FindStringSubmatch(raw); m != nil {
		clock, err := strconv.ParseFloat(m[pmlogPattern.SubexpIndex("mono")], 64)
		if err == nil {
			return pmlogHead{
				proc:  m[pmlogPattern.SubexpIndex("proc")],
				msgid: m[pmlogPattern.SubexpIndex("msgid")],
				clock: clock,
				rest:  m[pmlogPattern.SubexpIndex("rest")],
			}, true
		}
	}

	if m := legacyPmlogPattern.FindStringSubmatch(raw); m != nil {
		return pmlogHead{
			proc:   m[legacyPmlogPattern.SubexpIndex("proc")],
			msgid:  m[legacyPmlogPattern.SubexpIndex("msgid")],
			rest:   m[legacyPmlogPattern.SubexpIndex("rest")],
			legacy: true,
		}, true
	}

	return pmlogHead{}, false
}

// payloadEnd returns the index of the brace closing the object that starts
// s. Braces inside string literals are not counted.
func payloadEnd(s string) (int, error) {
	if !strings.HasPrefix(s, "{") {
		return 0, fmt.Errorf("payload does not start with '{'")
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}

	return 0, fmt.Errorf("unbalanced braces in payload")
}

// field is a decoded JSON member, kept in document order.
type field struct {
	key   string
	value any
}

// decodeObject decodes a JSON object keeping member order.
func decodeObject(s string) ([]field, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("payload is not a JSON object")
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", key, err)
		}
		fields = append(fields, field{key: key, value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return fields, nil
}
