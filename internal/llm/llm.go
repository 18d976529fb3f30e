// Package llm provides the text-completion client used for query planning,
// scoring and event extraction.
package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
)

// Client completes a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Client.
type Func func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// Config configures a GenAI client.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// GenAIClient completes prompts with a Gemini model through google.golang.org/genai.
type GenAIClient struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewGenAIClient creates a Gemini client.
func NewGenAIClient(ctx context.Context, cfg Config) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, eqerrors.New(eqerrors.EInvalidInput, "llm.NewGenAIClient", "API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Model returns the model name.
func (c *GenAIClient) Model() string { return c.model }

// Complete sends prompt as a single user turn and returns the response text.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	})
	if err != nil {
		return "", eqerrors.Wrap(eqerrors.EExternalUnavailable, "llm.Complete", err)
	}
	return resp.Text(), nil
}

// Traced wraps a client so every call is logged with its size and duration.
func Traced(next Client, category logging.Category) Client {
	return Func(func(ctx context.Context, prompt string) (string, error) {
		log := logging.Get(category)
		start := time.Now()
		out, err := next.Complete(ctx, prompt)
		elapsed := time.Since(start)
		if err != nil {
			log.Warn("LLM call failed after %v (prompt=%d chars): %v", elapsed, len(prompt), err)
			return "", err
		}
		log.Debug("LLM call completed in %v (prompt=%d chars, response=%d chars)", elapsed, len(prompt), len(out))
		return out, nil
	})
}
