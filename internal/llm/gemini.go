// Package llm wraps the Gemini API for generating intelligence notes about
// detected safety signals. The model is optional; when disabled the pipeline
// falls back to a statistics-only report.
package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// ErrDisabled is returned when the LLM is not configured. Callers treat it as
// a signal to fall back, not as a failure.
var ErrDisabled = errors.New("llm disabled or api key missing")

const defaultModel = "gemini-2.0-flash-lite"

// Client generates text through the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient builds a Gemini-backed client. An empty API key returns
// ErrDisabled so callers can wire a nil client and degrade gracefully.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrDisabled
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// Model returns the configured model name for logging.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Generate sends a single-turn prompt and returns the response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrDisabled
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from %s", c.model)
	}
	return text, nil
}
