package config

import (
	"os"
	"time"
)

// Default values for configuration.
const (
	DefaultWebhookTimeout = 10 * time.Second
	DefaultPmlogFile      = "/var/log/messages"
)

// DefaultConfigPaths are searched in order when no config file is given.
var DefaultConfigPaths = []string{
	"./config.json",
	"/etc/pmtrace/perf-log-viewer-conf.json",
}

// Environment variable names.
const (
	EnvConfigPath   = "PERFLOG_CONFIG"
	EnvWebhookToken = "PERFLOG_WEBHOOK_TOKEN"
)

// DefaultConfig returns an empty configuration.
func DefaultConfig() *ViewerConfig {
	return &ViewerConfig{
		Contexts: []Context{},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (v *ViewerConfig) applyEnvironmentOverrides() {
	// Webhooks without their own token use the shared one
	if token := os.Getenv(EnvWebhookToken); token != "" {
		for i := range v.Webhooks {
			if v.Webhooks[i].Token == "" {
				v.Webhooks[i].Token = token
			}
		}
	}
}
