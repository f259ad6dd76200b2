package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent lokal configuration stored as config.toml
// in the .lokal/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	LLM     LLMConfig     `toml:"llm"`
	Memory  MemoryConfig  `toml:"memory"`
	API     APIConfig     `toml:"api"`
	Events  EventsConfig  `toml:"events"`
}

// StorageConfig selects the fact store backend.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver string `toml:"driver,omitempty"`

	// SQLitePath defaults to facts.db inside the lokal directory.
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// LLMConfig selects the model used for chat and fact extraction.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`

	// Target overrides the provider's base URL.
	Target string `toml:"target,omitempty"`

	// APIKeyEnv names an environment variable to read the API key from
	// instead of the provider's usual one.
	APIKeyEnv string `toml:"api_key_env,omitempty"`

	Timeout string `toml:"timeout,omitempty"`
}

// MemoryConfig tunes the long-term memory pipeline.
type MemoryConfig struct {
	Enabled           bool    `toml:"enabled"`
	QueueSize         uint    `toml:"queue_size,omitempty"`
	ExtractionTimeout string  `toml:"extraction_timeout,omitempty"`
	MatchThreshold    float64 `toml:"match_threshold,omitempty"`
	ContextFacts      uint    `toml:"context_facts,omitempty"`
	PinIdentity       uint    `toml:"pin_identity"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventsConfig selects where memory change events are published.
type EventsConfig struct {
	// Provider is "none" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// BrokerList splits Brokers into its entries.
func (e EventsConfig) BrokerList() []string {
	return SplitList(e.Brokers)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	storageDrivers = []string{"sqlite", "postgres", "memory"}
	llmProviders   = []string{"ollama", "openai", "anthropic"}
	eventProviders = []string{"none", "kafka"}
)

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func choiceKey(name string, choices []string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			v = strings.ToLower(strings.TrimSpace(v))
			if !slices.Contains(choices, v) {
				return fmt.Errorf("invalid value for %s: %q (expected one of %s)", name, v, strings.Join(choices, ", "))
			}
			*field(c) = v
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for %s: must be positive", name)
			}
			*field(c) = v
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatUint(uint64(*field(c)), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       choiceKey("storage.driver", storageDrivers, func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"llm.provider":    choiceKey("llm.provider", llmProviders, func(c *Config) *string { return &c.LLM.Provider }),
	"llm.model":       stringKey(func(c *Config) *string { return &c.LLM.Model }),
	"llm.target":      stringKey(func(c *Config) *string { return &c.LLM.Target }),
	"llm.api_key_env": stringKey(func(c *Config) *string { return &c.LLM.APIKeyEnv }),
	"llm.timeout":     durationKey("llm.timeout", func(c *Config) *string { return &c.LLM.Timeout }),

	"memory.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.enabled: %w", err)
			}
			c.Memory.Enabled = b
			return nil
		},
	},
	"memory.queue_size":         uintKey("memory.queue_size", func(c *Config) *uint { return &c.Memory.QueueSize }),
	"memory.extraction_timeout": durationKey("memory.extraction_timeout", func(c *Config) *string { return &c.Memory.ExtractionTimeout }),
	"memory.match_threshold": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Memory.MatchThreshold, 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for memory.match_threshold: %w", err)
			}
			if f <= 0 || f > 1 {
				return fmt.Errorf("invalid value for memory.match_threshold: %v is outside (0, 1]", f)
			}
			c.Memory.MatchThreshold = f
			return nil
		},
	},
	"memory.context_facts": uintKey("memory.context_facts", func(c *Config) *uint { return &c.Memory.ContextFacts }),
	"memory.pin_identity":  uintKey("memory.pin_identity", func(c *Config) *uint { return &c.Memory.PinIdentity }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"events.provider": choiceKey("events.provider", eventProviders, func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),
}

// orderedKeys matches the TOML section layout.
var orderedKeys = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"llm.provider",
	"llm.model",
	"llm.target",
	"llm.api_key_env",
	"llm.timeout",
	"memory.enabled",
	"memory.queue_size",
	"memory.extraction_timeout",
	"memory.match_threshold",
	"memory.context_facts",
	"memory.pin_identity",
	"api.listen",
	"events.provider",
	"events.brokers",
	"events.topic",
}
