package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned by Resolve when no configuration file can be found.
var ErrNoConfig = errors.New("cannot find a config file")

// Resolve returns the configuration file to use: path when set, then
// $PERFLOG_CONFIG, then the first existing entry of DefaultConfigPaths.
func Resolve(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNoConfig
}

// Load reads and validates a configuration file.
// The document is JSON; YAML with the same keys is accepted too.
func Load(_ context.Context, path string) (*ViewerConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*ViewerConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if _, ok := raw["contexts"]; !ok {
		return nil, errors.New("parsing config file: contexts is required")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks a configuration for errors, fills defaults and assigns
// context ids in load order.
func Validate(cfg *ViewerConfig) error {
	if len(cfg.Contexts) == 0 {
		return errors.New("contexts: at least one context is required")
	}

	for i := range cfg.Contexts {
		cfg.Contexts[i].ID = i
		if err := validateContext(&cfg.Contexts[i]); err != nil {
			return fmt.Errorf("contexts[%d] (%s): %w", i, cfg.Contexts[i].Description, err)
		}
	}

	// Webhooks are optional, but validate if present
	for i := range cfg.Webhooks {
		if err := validateWebhook(&cfg.Webhooks[i]); err != nil {
			name := cfg.Webhooks[i].Name
			if name == "" {
				name = cfg.Webhooks[i].URL
			}
			return fmt.Errorf("webhooks[%d] (%s): %w", i, name, err)
		}
	}

	return nil
}

func validateContext(ctx *Context) error {
	if ctx.ResponseMS <= 0 {
		return errors.New("allowedResponseMS must be > 0")
	}

	if len(ctx.Starts) == 0 {
		return errors.New("startConditions: at least one condition is required")
	}
	for i := range ctx.Starts {
		if err := validateCondition(&ctx.Starts[i]); err != nil {
			return fmt.Errorf("startConditions[%d]: %w", i, err)
		}
	}

	if len(ctx.Ends) == 0 {
		return errors.New("endConditions: at least one condition is required")
	}
	for i := range ctx.Ends {
		if err := validateCondition(&ctx.Ends[i]); err != nil {
			return fmt.Errorf("endConditions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateCondition(cond *Condition) error {
	if cond.Type == "" {
		return fmt.Errorf("PerfType is required (use %q to match any)", Wildcard)
	}
	if cond.Group == "" {
		return fmt.Errorf("PerfGroup is required (use %q to match any)", Wildcard)
	}
	if cond.MsgID == "" {
		return fmt.Errorf("msgid is required (use %q to match any)", Wildcard)
	}
	for i, s := range cond.RequiredStrings {
		if s == "" {
			return fmt.Errorf("requiredStrings[%d] is empty", i)
		}
	}
	return nil
}

func validateWebhook(wh *WebhookConfig) error {
	if wh.URL == "" {
		return errors.New("url is required")
	}

	u, err := url.Parse(wh.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("url must have a host")
	}

	// Expand environment variables in token
	wh.Token = expandEnvVar(wh.Token)

	if wh.Trigger != "" {
		switch wh.Trigger {
		case WebhookTriggerOnFound, WebhookTriggerAlways, WebhookTriggerNever:
		default:
			return fmt.Errorf("invalid trigger %q (must be on_found, always, or never)", wh.Trigger)
		}
	} else {
		wh.Trigger = WebhookTriggerOnFound
	}

	if wh.Timeout <= 0 {
		wh.Timeout = DefaultWebhookTimeout
	}

	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}

	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${") {
		return os.Getenv(s[1:])
	}

	return s
}
