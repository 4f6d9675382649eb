// Package analyzer correlates time-ordered performance log entries into
// start-to-end event groups.
package analyzer

import "github.com/pmtrace/perflog/pkg/parser"

// EntryGroup is one correlated start-to-end window.
// Entries are in time order; the first is the opening entry and the last
// matched an end condition.
type EntryGroup struct {
	// Entries are shared with the input list, not copied.
	Entries parser.EntryList

	// ReprType and ReprGroup label the group.
	ReprType  string
	ReprGroup string

	// ContextID and Description identify the context that produced the group.
	ContextID   int
	Description string
}

// Len returns the number of entries in the group.
func (g *EntryGroup) Len() int {
	return len(g.Entries)
}

// ClockBegin returns the clock of the first entry, or 0 for an empty group.
func (g *EntryGroup) ClockBegin() float64 {
	if len(g.Entries) == 0 {
		return 0
	}
	return g.Entries[0].Clock
}

// ClockEnd returns the clock of the last entry, or 0 for an empty group.
func (g *EntryGroup) ClockEnd() float64 {
	if len(g.Entries) == 0 {
		return 0
	}
	return g.Entries[len(g.Entries)-1].Clock
}

// Elapsed returns ClockEnd - ClockBegin in seconds.
func (g *EntryGroup) Elapsed() float64 {
	return g.ClockEnd() - g.ClockBegin()
}

// SetRepresentType sets ReprType to name, or to the most frequent member
// type when name is empty.
func (g *EntryGroup) SetRepresentType(name string) {
	if name != "" {
		g.ReprType = name
		return
	}
	types := make([]string, len(g.Entries))
	for i, e := range g.Entries {
		types[i] = e.Type
	}
	g.ReprType = mostCommon(types)
}

// SetRepresentGroup sets ReprGroup to name, or to the most frequent member
// group when name is empty.
func (g *EntryGroup) SetRepresentGroup(name string) {
	if name != "" {
		g.ReprGroup = name
		return
	}
	groups := make([]string, len(g.Entries))
	for i, e := range g.Entries {
		groups[i] = e.Group
	}
	g.ReprGroup = mostCommon(groups)
}

// mostCommon returns the most frequent value. On a tie the value seen
// first wins; callers should not depend on that.
func mostCommon(values []string) string {
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// Stats describes one correlation pass.
type Stats struct {
	// Entries is the number of entries examined.
	Entries int

	// Starts is the number of entries that matched at least one start condition.
	Starts int

	// Found is the number of groups emitted.
	Found int

	// NoEnd counts windows dropped because no end condition matched in time.
	NoEnd int

	// DuplicateStart counts windows dropped because the start condition
	// matched again inside the window.
	DuplicateStart int
}

// Result is the outcome of Analyze.
type Result struct {
	// Groups are in the order their windows were opened.
	Groups []*EntryGroup

	Stats Stats
}
