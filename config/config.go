// Package config provides YAML configuration parsing for the paywatch CLI.
//
// This package enables running paywatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	base_url: https://payments.example.com
//	auth_token: ${PAYWATCH_TOKEN}
//	request_timeout: 10s
//	budget: 30m
//	schedule: [1s, 2s, 3s, 5s]
//	headers:
//	  X-Tenant: acme
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minDelay is the minimum allowed schedule delay for production configs.
// This prevents accidental DoS of the payment service with overly
// aggressive polling.
const minDelay = 100 * time.Millisecond

// defaults applied by Parse when the config omits a value
const (
	defaultRequestTimeout = 10 * time.Second
	defaultBudget         = 30 * time.Minute
)

// Config is the root configuration structure for paywatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// BaseURL is the payment service URL. Status requests are issued
	// against {base_url}/status/{id}/.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// AuthToken is a bearer token sent in the Authorization header.
	// Supports environment variable substitution. Optional.
	AuthToken string `yaml:"auth_token"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// RequestTimeout bounds a single status request.
	// Accepts duration strings like "10s", "500ms". Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// Budget is the wall-clock limit per polling session. Defaults to 30m.
	Budget Duration `yaml:"budget"`

	// Schedule lists the delays between poll attempts; attempts past the
	// end of the list reuse the last entry. Defaults to [1s, 2s, 3s, 5s].
	Schedule []Duration `yaml:"schedule"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded after parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in BaseURL, AuthToken, and Header
// values. Defaults are applied for RequestTimeout (10s), Budget (30m),
// and Schedule (1s, 2s, 3s, 5s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if cfg.Budget == 0 {
		cfg.Budget = Duration(defaultBudget)
	}
	if len(cfg.Schedule) == 0 {
		cfg.Schedule = []Duration{
			Duration(time.Second),
			Duration(2 * time.Second),
			Duration(3 * time.Second),
			Duration(5 * time.Second),
		}
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	expanded, err := expandEnvVars(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	c.BaseURL = expanded

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("base_url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	if c.AuthToken != "" {
		expanded, err := expandEnvVars(c.AuthToken)
		if err != nil {
			return fmt.Errorf("auth_token: %w", err)
		}
		c.AuthToken = expanded
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	if c.RequestTimeout.Duration() < 0 {
		return fmt.Errorf("request_timeout cannot be negative, got %s", c.RequestTimeout.Duration())
	}
	if c.RequestTimeout.Duration() < time.Second {
		return fmt.Errorf("request_timeout must be at least 1s, got %s", c.RequestTimeout.Duration())
	}

	if c.Budget.Duration() < time.Second {
		return fmt.Errorf("budget must be at least 1s, got %s", c.Budget.Duration())
	}
	if c.Budget.Duration() > 24*time.Hour {
		return fmt.Errorf("budget must not exceed 24h, got %s", c.Budget.Duration())
	}

	for i, d := range c.Schedule {
		if d.Duration() < minDelay {
			return fmt.Errorf("schedule[%d]: delay must be at least %s, got %s", i, minDelay, d.Duration())
		}
		if d.Duration() > time.Hour {
			return fmt.Errorf("schedule[%d]: delay must not exceed 1h, got %s", i, d.Duration())
		}
	}

	return nil
}
