package credentials

// Credentials is the decoded credentials.toml:
//
//	version = 0
//
//	[providers.openai]
//	api_key = "sk-..."
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential is one provider's entry.
type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}

// Key returns the stored key for provider, or "".
func (c *Credentials) Key(provider string) string {
	return c.Providers[provider].APIKey
}

// set stores key for provider. An empty key removes the entry.
func (c *Credentials) set(provider, key string) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderCredential)
	}
	if key == "" {
		delete(c.Providers, provider)
		return
	}
	c.Providers[provider] = ProviderCredential{APIKey: key}
}
