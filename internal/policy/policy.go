// Package policy decides whether a named tool may run and whether it is
// currently rate-limited. The policy file is loaded once at startup and is
// immutable for the lifetime of the process; changing it requires a restart.
package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Typed policy errors, surfaced to the HTTP layer as 403/429.
var (
	// ErrNotAllowed means the tool is denied (or not on a non-empty allow-list).
	ErrNotAllowed = errors.New("tool not allowed by policy")
	// ErrRateLimited means the tool's hourly invocation budget is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Config is the external policy configuration.
//
// Allow/deny semantics: a denied tool is always rejected, even when it also
// appears on the allow-list. An EMPTY allow-list means allow-all-except-denied;
// a non-empty allow-list restricts to listed tools (minus denies). This
// asymmetry is intentional and relied upon by operators who run with a
// deny-only policy file.
type Config struct {
	AllowedTools []string       `yaml:"allowed_tools"`
	DeniedTools  []string       `yaml:"denied_tools"`
	RateLimits   map[string]int `yaml:"rate_limits"` // tool name -> max invocations per hour
}

// LoadConfig reads the policy file. A missing file yields an empty policy
// (allow everything, no limits), matching a fresh deployment before the
// operator has written one.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	return &cfg, nil
}
