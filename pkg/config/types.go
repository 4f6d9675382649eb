// Package config provides loading and validation of the perf log viewer
// configuration: the correlation contexts and optional webhooks.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Wildcard matches any value of a condition field.
const Wildcard = "*"

// ViewerConfig is the root configuration document.
type ViewerConfig struct {
	Contexts []Context       `yaml:"contexts"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// Context is a correlation rule: a performance event starts with one of
// Starts and finishes with one of Ends within ResponseMS milliseconds.
type Context struct {
	// ID is the load-order index, assigned by Load/Validate.
	ID int `yaml:"-"`

	Description string `yaml:"description,omitempty"`

	// ReprType and ReprGroup label the groups found by this context.
	// When empty the most frequent value among group members is used.
	ReprType  string `yaml:"PerfType,omitempty"`
	ReprGroup string `yaml:"PerfGroup,omitempty"`

	// ResponseMS is the allowed time between start and end.
	ResponseMS int `yaml:"allowedResponseMS"`

	Starts []Condition `yaml:"startConditions"`
	Ends   []Condition `yaml:"endConditions"`
}

// ResponseWindow returns the response budget in seconds.
func (c *Context) ResponseWindow() float64 {
	return float64(c.ResponseMS) / 1000
}

// ResponseDuration returns the response budget as a time.Duration.
func (c *Context) ResponseDuration() time.Duration {
	return time.Duration(c.ResponseMS) * time.Millisecond
}

func (c *Context) String() string {
	starts := make([]string, len(c.Starts))
	for i := range c.Starts {
		starts[i] = c.Starts[i].String()
	}
	ends := make([]string, len(c.Ends))
	for i := range c.Ends {
		ends[i] = c.Ends[i].String()
	}
	return fmt.Sprintf("desc(%s) type(%s) group(%s) response_ms(%d) starts[%s] ends[%s]",
		c.Description, c.ReprType, c.ReprGroup, c.ResponseMS,
		strings.Join(starts, "; "), strings.Join(ends, "; "))
}

// Condition matches a log entry by type, group and msgid (each a literal or
// Wildcard) and by substrings that must appear in the raw line in order.
type Condition struct {
	Type            string   `yaml:"PerfType"`
	Group           string   `yaml:"PerfGroup"`
	MsgID           string   `yaml:"msgid"`
	RequiredStrings []string `yaml:"requiredStrings,omitempty"`
}

func (c *Condition) String() string {
	return fmt.Sprintf("type(%s) grp(%s) msgid(%s) required_str(%s)",
		c.Type, c.Group, c.MsgID, strings.Join(c.RequiredStrings, " "))
}

// WebhookTrigger determines when a webhook fires.
type WebhookTrigger string

const (
	// WebhookTriggerOnFound fires only when at least one event was found (default).
	WebhookTriggerOnFound WebhookTrigger = "on_found"
	// WebhookTriggerAlways fires after every analysis.
	WebhookTriggerAlways WebhookTrigger = "always"
	// WebhookTriggerNever disables the webhook.
	WebhookTriggerNever WebhookTrigger = "never"
)

// WebhookConfig defines a webhook endpoint receiving the JSON report.
type WebhookConfig struct {
	// Name is an optional identifier for the webhook.
	Name string `yaml:"name,omitempty"`

	// URL is the webhook endpoint (required).
	URL string `yaml:"url"`

	// Token is an optional bearer token for authentication.
	Token string `yaml:"token,omitempty"`

	// Trigger determines when the webhook fires.
	// Defaults to "on_found" if not specified.
	Trigger WebhookTrigger `yaml:"trigger,omitempty"`

	// Timeout is the HTTP request timeout.
	// Defaults to 10s if not specified.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}
