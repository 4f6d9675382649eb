// Package parser turns raw performance log lines into structured entries.
package parser

import (
	"fmt"
	"sort"
	"strings"
)

// Format identifies the source format a line was decoded from.
type Format string

const (
	// FormatPmlog is the webOS PmLog text format.
	FormatPmlog Format = "pmlog"

	// FormatJournal is a systemd journal record as emitted by `journalctl -o json`.
	FormatJournal Format = "journal"
)

// Entry represents one decoded log line.
// Entries are immutable after parsing and may be shared by several groups.
type Entry struct {
	// Raw is the original line content.
	Raw string

	// Format is the source format the line was decoded from.
	Format Format

	// Proc is the originating process name.
	Proc string

	// Type is the performance type label (PerfType).
	Type string

	// Group is the performance group label (PerfGroup).
	Group string

	// MsgID is the message identifier.
	MsgID string

	// Clock is the event time in seconds. Zero when the line carries none.
	Clock float64

	// Rest holds leftover JSON fields as "key:value " pairs (pmlog only).
	Rest string

	// FreeText is the text following the JSON payload (pmlog only).
	FreeText string
}

// IsPerfLog reports whether the entry carries both a type and a group label.
func (e *Entry) IsPerfLog() bool {
	return e.Type != "" && e.Group != ""
}

// FreeTextSummary returns the residual fields and free text for display.
func (e *Entry) FreeTextSummary() string {
	return strings.TrimSpace(strings.TrimSpace(e.Rest) + " " + e.FreeText)
}

// ContainsInOrder reports whether every string in subs occurs in the raw
// line and their first occurrences appear in the given order.
// An empty subs always matches.
func (e *Entry) ContainsInOrder(subs []string) bool {
	prev := 0
	for _, s := range subs {
		idx := strings.Index(e.Raw, s)
		if idx < prev {
			return false
		}
		prev = idx
	}
	return true
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s clk(%6.2f) proc(%s) type(%s) grp(%s) msgid(%s): raw(%s)",
		e.Format, e.Clock, e.Proc, e.Type, e.Group, e.MsgID, e.Raw)
}

// EntryList is an ordered sequence of entries.
type EntryList []*Entry

// SortByClock orders the list by clock, keeping load order for equal clocks.
func (l EntryList) SortByClock() {
	sort.SliceStable(l, func(i, j int) bool {
		return l[i].Clock < l[j].Clock
	})
}
