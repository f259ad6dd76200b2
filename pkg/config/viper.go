package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/lokal/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. LOKAL_LLM_PROVIDER.
const EnvPrefix = "LOKAL"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// found via dotdir resolution, and binds environment variables with the
// LOKAL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (LOKAL_LLM_PROVIDER, LOKAL_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.target", d.LLM.Target)
	v.SetDefault("llm.api_key_env", d.LLM.APIKeyEnv)
	v.SetDefault("llm.timeout", d.LLM.Timeout)

	v.SetDefault("memory.enabled", d.Memory.Enabled)
	v.SetDefault("memory.queue_size", d.Memory.QueueSize)
	v.SetDefault("memory.extraction_timeout", d.Memory.ExtractionTimeout)
	v.SetDefault("memory.match_threshold", d.Memory.MatchThreshold)
	v.SetDefault("memory.context_facts", d.Memory.ContextFacts)
	v.SetDefault("memory.pin_identity", d.Memory.PinIdentity)

	v.SetDefault("api.listen", d.API.Listen)

	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}

// FromViper materializes the effective configuration.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Driver:      strings.ToLower(v.GetString("storage.driver")),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		LLM: LLMConfig{
			Provider:  strings.ToLower(v.GetString("llm.provider")),
			Model:     v.GetString("llm.model"),
			Target:    v.GetString("llm.target"),
			APIKeyEnv: v.GetString("llm.api_key_env"),
			Timeout:   v.GetString("llm.timeout"),
		},
		Memory: MemoryConfig{
			Enabled:           v.GetBool("memory.enabled"),
			QueueSize:         v.GetUint("memory.queue_size"),
			ExtractionTimeout: v.GetString("memory.extraction_timeout"),
			MatchThreshold:    v.GetFloat64("memory.match_threshold"),
			ContextFacts:      v.GetUint("memory.context_facts"),
			PinIdentity:       v.GetUint("memory.pin_identity"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Events: EventsConfig{
			Provider: strings.ToLower(v.GetString("events.provider")),
			Brokers:  v.GetString("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
	}
}
