// Package llm produces assistant replies from an OpenAI-compatible chat
// endpoint (Ollama by default).
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/misa/internal/config"
	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/resilience"
)

const serviceName = "llm"

// ErrEmptyResponse is returned when the model produced no usable text
var ErrEmptyResponse = errors.New("empty response from model")

// Generator produces a reply for the user's text under a persona prompt
type Generator interface {
	Generate(ctx context.Context, persona, userText string) (string, error)
}

var (
	thinkBlock     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	stageDirection = regexp.MustCompile(`\*[^*]+\*`)
)

// Sanitize strips reasoning blocks and *stage directions* from raw model output
func Sanitize(raw string) string {
	out := thinkBlock.ReplaceAllString(raw, "")
	out = stageDirection.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// chatCompleter is the part of the OpenAI client we use
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client implements Generator over the chat completions API
type Client struct {
	api            chatCompleter
	model          string
	timeout        time.Duration
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewClient creates a client for cfg.LLMBaseURL
func NewClient(cfg *config.Config) *Client {
	oaCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	oaCfg.BaseURL = cfg.LLMBaseURL
	return newClient(cfg, openai.NewClientWithConfig(oaCfg))
}

func newClient(cfg *config.Config, api chatCompleter) *Client {
	return &Client{
		api:     api,
		model:   cfg.LLMModel,
		timeout: cfg.LLMTimeout,
		circuitBreaker: resilience.NewCircuitBreaker(
			serviceName,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: observability.WithComponent("llm"),
	}
}

// Generate returns the sanitized reply
func (c *Client) Generate(ctx context.Context, persona, userText string) (string, error) {
	// A timeout counts against the breaker, a cancelled caller does not
	caller := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: persona},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
	}

	start := time.Now()
	var raw string
	err := c.circuitBreaker.CallContext(caller, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		raw = resp.Choices[0].Message.Content
		return nil
	})

	observability.ObserveCircuitBreaker(c.circuitBreaker)
	if err != nil {
		if caller.Err() == nil {
			observability.IncrementCircuitBreakerFailures(serviceName)
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	observability.ObserveGeneration(start)

	reply := Sanitize(raw)
	if reply == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("latency", time.Since(start)).
		Int("chars", len(reply)).
		Msg("Reply generated")
	return reply, nil
}
