// Package ollama implements llm.Generator against a local Ollama server's
// /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/lokal/pkg/llm"
)

const (
	// DefaultBaseURL is where a local Ollama listens.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.2"
)

// Client calls Ollama's chat API.
type Client struct {
	model   string
	baseURL string
	http    *http.Client
}

// New creates an Ollama client. Empty values fall back to the defaults and
// http.DefaultClient.
func New(model, baseURL string, httpClient *http.Client) *Client {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Generate sends req as a single non-streaming chat call.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.model,
		Stream: false,
	}
	if req.JSON {
		reqBody.Format = "json"
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		reqBody.Options = &ollamaOptions{Temperature: req.Temperature}
		if req.MaxTokens > 0 {
			n := req.MaxTokens
			reqBody.Options.NumPredict = &n
		}
	}
	if req.System != "" {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage{Role: llm.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ollamaResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if result.Error != "" {
		return "", errors.New("ollama error: " + result.Error)
	}
	if strings.TrimSpace(result.Message.Content) == "" {
		return "", llm.ErrEmptyResponse
	}

	return result.Message.Content, nil
}
