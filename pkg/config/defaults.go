package config

const (
	defaultStorageDriver = "sqlite"

	defaultLLMProvider = "ollama"
	defaultLLMTimeout  = "60s"

	defaultQueueSize         = 64
	defaultExtractionTimeout = "60s"
	defaultMatchThreshold    = 0.6
	defaultContextFacts      = 10
	defaultPinIdentity       = 3

	defaultAPIListen = ":8081"

	defaultEventsProvider = "none"
	defaultEventsTopic    = "lokal.memory"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Timeout:  defaultLLMTimeout,
		},
		Memory: MemoryConfig{
			Enabled:           true,
			QueueSize:         defaultQueueSize,
			ExtractionTimeout: defaultExtractionTimeout,
			MatchThreshold:    defaultMatchThreshold,
			ContextFacts:      defaultContextFacts,
			PinIdentity:       defaultPinIdentity,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
