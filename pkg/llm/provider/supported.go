// Package provider builds an llm.Generator for a configured provider name.
package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/lokal/pkg/credentials"
	"github.com/papercomputeco/lokal/pkg/llm"
	"github.com/papercomputeco/lokal/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/lokal/pkg/llm/provider/ollama"
	"github.com/papercomputeco/lokal/pkg/llm/provider/openai"
	"github.com/papercomputeco/lokal/pkg/logger"
)

// Supported provider type constants
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Ollama    = "ollama"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{Anthropic, OpenAI, Ollama}
}

// Config selects and configures a provider.
type Config struct {
	// Provider is one of SupportedProviders. Empty means Ollama.
	Provider string

	// Model overrides the provider's default model.
	Model string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// APIKey is the explicit key, taking precedence over stored credentials
	// and environment variables.
	APIKey string

	// Credentials is consulted when APIKey is empty.
	Credentials *credentials.Manager

	// Timeout bounds each HTTP call. Zero uses DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// New creates a generator for c. Hosted providers without a resolvable API key
// fall back to the local Ollama server.
//
// Resolution order for API key:
//  1. Explicit APIKey in config
//  2. credentials.Manager (from lokal auth)
//  3. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
func New(c Config) (llm.Generator, error) {
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	name := strings.ToLower(strings.TrimSpace(c.Provider))
	if name == "" {
		name = Ollama
	}

	httpClient := &http.Client{Timeout: c.Timeout}

	if name == Ollama {
		return ollama.New(c.Model, c.BaseURL, httpClient), nil
	}

	if name != OpenAI && name != Anthropic {
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", c.Provider, SupportedProviders())
	}

	apiKey := ResolveAPIKey(name, c.APIKey, c.Credentials)
	if apiKey == "" {
		c.Logger.Warn("no API key found, falling back to ollama", "provider", name)
		return ollama.New("", "", httpClient), nil
	}

	if name == Anthropic {
		return anthropic.New(apiKey, c.Model, c.BaseURL, httpClient), nil
	}
	return openai.New(apiKey, c.Model, c.BaseURL, httpClient), nil
}

// ResolveAPIKey returns the first non-empty key from explicit, the
// credentials store and the provider's environment variable.
func ResolveAPIKey(provider, explicit string, mgr *credentials.Manager) string {
	if explicit != "" {
		return explicit
	}
	if mgr != nil {
		if key, err := mgr.GetKey(provider); err == nil && key != "" {
			return key
		}
	}
	if env := credentials.EnvVarForProvider(provider); env != "" {
		return os.Getenv(env)
	}
	return ""
}
