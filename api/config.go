// Package api provides the HTTP API for inspecting and managing lokal's
// long-term memory.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// PinIdentity is how many identity facts the recall endpoints always
	// include.
	PinIdentity int

	// DisableMCP leaves /mcp without tools.
	DisableMCP bool
}
