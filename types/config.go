package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// JobConfig holds the settings a job inherits from its parent and that config
// tags override.
type JobConfig struct {
	Skip bool
	Todo bool
	// Timeout overrides the runner default when non-zero.
	Timeout time.Duration
	// Multi is the number of times a test runs.
	Multi int
}

// DefaultJobConfig is the config of a root job.
func DefaultJobConfig() JobConfig {
	return JobConfig{Multi: 1}
}

// Clone returns a copy of the config.
func (c JobConfig) Clone() JobConfig {
	return c
}

type configParser func(value string, entry *ConfigEntry) error

var configParsers = map[string]configParser{
	"timeout": func(value string, entry *ConfigEntry) error {
		d, err := ParseTimeout(value)
		if err != nil {
			return err
		}
		entry.apply = func(c *JobConfig) { c.Timeout = d }
		return nil
	},
	"multi": func(value string, entry *ConfigEntry) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("multi must be an integer: %w", err)
		}
		if n < 1 {
			return fmt.Errorf("multi must be at least 1, got %d", n)
		}
		entry.apply = func(c *JobConfig) { c.Multi = n }
		return nil
	},
}

// ConfigKeys returns the supported config tag keys.
func ConfigKeys() []string {
	keys := make([]string, 0, len(configParsers))
	for k := range configParsers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseConfigTag(key, value string) (*ConfigEntry, error) {
	parser, ok := configParsers[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q (supported: %s)", key, strings.Join(ConfigKeys(), ", "))
	}
	entry := &ConfigEntry{Key: key, Value: value}
	if err := parser(value, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ParseTimeout accepts integer milliseconds or a Go duration string.
func ParseTimeout(value string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("timeout must not be negative, got %d", ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("timeout must be milliseconds or a duration: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative, got %s", d)
	}
	return d, nil
}
