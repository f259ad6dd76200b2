// Package llm defines the text generation capability used by lokal: a single
// Generate call that turns a prompt (or a short conversation) into text.
// Concrete clients live in the provider subpackages.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Request is one generation call.
type Request struct {
	// System is an optional system prompt.
	System string

	// Messages is the conversation, oldest first. A plain prompt is a single
	// user message.
	Messages []Message

	// JSON asks the provider to constrain output to a JSON object.
	JSON bool

	// Temperature overrides the provider default when set.
	Temperature *float64

	// MaxTokens bounds the response length when positive.
	MaxTokens int
}

// Prompt builds a single-message request.
func Prompt(prompt string) Request {
	return Request{Messages: []Message{UserMessage(prompt)}}
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Text runs a plain prompt through g.
func Text(ctx context.Context, g Generator, prompt string) (string, error) {
	return g.Generate(ctx, Prompt(prompt))
}

// Structured runs a prompt through g asking for JSON output at temperature 0.
func Structured(ctx context.Context, g Generator, prompt string) (string, error) {
	zero := 0.0
	req := Prompt(prompt)
	req.JSON = true
	req.Temperature = &zero
	return g.Generate(ctx, req)
}
