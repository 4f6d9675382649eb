package config

import "github.com/pmtrace/perflog/pkg/parser"

// IsMatched reports whether the entry satisfies the condition.
func (c *Condition) IsMatched(e *parser.Entry) bool {
	if c.Type != Wildcard && c.Type != e.Type {
		return false
	}
	if c.Group != Wildcard && c.Group != e.Group {
		return false
	}
	if c.MsgID != Wildcard && c.MsgID != e.MsgID {
		return false
	}
	return e.ContainsInOrder(c.RequiredStrings)
}

// MatchedStartCondition returns the first start condition matching e, or nil.
func (c *Context) MatchedStartCondition(e *parser.Entry) *Condition {
	return firstMatch(c.Starts, e)
}

// HasMatchedStart reports whether any start condition matches e.
func (c *Context) HasMatchedStart(e *parser.Entry) bool {
	return firstMatch(c.Starts, e) != nil
}

// HasMatchedEnd reports whether any end condition matches e.
func (c *Context) HasMatchedEnd(e *parser.Entry) bool {
	return firstMatch(c.Ends, e) != nil
}

func firstMatch(conds []Condition, e *parser.Entry) *Condition {
	for i := range conds {
		if conds[i].IsMatched(e) {
			return &conds[i]
		}
	}
	return nil
}

// MatchingStartContexts returns, in configuration order, every context with
// a start condition matching e.
func (v *ViewerConfig) MatchingStartContexts(e *parser.Entry) []*Context {
	var ctxs []*Context
	for i := range v.Contexts {
		if v.Contexts[i].HasMatchedStart(e) {
			ctxs = append(ctxs, &v.Contexts[i])
		}
	}
	return ctxs
}

// IsInConditions reports whether any start or end condition of any context
// matches e. Used to keep marker lines that carry no type or group.
func (v *ViewerConfig) IsInConditions(e *parser.Entry) bool {
	for i := range v.Contexts {
		ctx := &v.Contexts[i]
		if ctx.HasMatchedStart(e) || ctx.HasMatchedEnd(e) {
			return true
		}
	}
	return false
}
