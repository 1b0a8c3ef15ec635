package config

import (
	"fmt"
	"time"
)

// Config represents a loom.yaml configuration file.
// All values are optional and act as defaults for loom run flags.
// CLI flags always override config values.
type Config struct {
	ChatID  string        `yaml:"chat_id"`
	Storage StorageConfig `yaml:"storage"`
	Adapter AdapterConfig `yaml:"adapter"`
	Trace   TraceConfig   `yaml:"trace"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig holds durable store defaults from the config file.
type StorageConfig struct {
	// Path is the sqlite database file. Empty disables persistence;
	// ":memory:" keeps the store process-local.
	Path string `yaml:"path"`
}

// AdapterConfig holds outbound adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // redis or webhook
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// TraceConfig holds traceability sink defaults from the config file.
type TraceConfig struct {
	URL     string   `yaml:"url"` // amqp://...; empty disables tracing
	Queue   string   `yaml:"queue,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// LogConfig holds logging defaults from the config file.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate rejects config combinations the runtime cannot honor.
func (c *Config) Validate() error {
	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		return fmt.Errorf("unknown adapter type %q (want redis or webhook)", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter type %q requires a url", c.Adapter.Type)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
