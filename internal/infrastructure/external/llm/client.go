// Package llm implements the Digest Generator and the Path Generator
// Adapter on top of an OpenAI-compatible chat completions API (Groq by default).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Observer receives the outcome of every completion call.
type Observer interface {
	ObserveAdapter(adapter string, d time.Duration, err error)
}

// ClientConfig contains configuration for the completions client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.groq.com/openai/v1
	BaseURL string

	APIKey string
	Model  string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// Temperature of the sampled completion.
	Temperature float64

	Breaker  *circuitbreaker.CircuitBreaker
	Observer Observer
	Logger   *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       "llama-3.3-70b-versatile",
		Timeout:     60 * time.Second,
		Temperature: 0.2,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// ══════════════════════════════════════════════════════════════════════════════

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// StatusError is returned for a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm api: status %d", e.StatusCode)
}

// Is maps status codes onto the shared error taxonomy.
func (e *StatusError) Is(target error) bool {
	switch target {
	case shared.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case shared.ErrServiceUnavailable:
		return e.StatusCode >= 500
	case shared.ErrExternalService:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client performs chat completions. Each call is a single request guarded by
// the circuit breaker; retries belong to the caller.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a new completions client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Breaker == nil {
		config.Breaker = circuitbreaker.LLMBreaker(nil)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    config.Breaker,
		logger:     config.Logger,
	}
}

// Complete sends messages and returns the content of the first choice.
// jsonMode asks the API for a JSON object response.
func (c *Client) Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	start := time.Now()
	var content string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		content, err = c.doRequest(ctx, messages, jsonMode)
		return err
	})
	if c.config.Observer != nil {
		c.config.Observer.ObserveAdapter("llm", time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return "", shared.WrapError("llm", "Complete", shared.ErrServiceUnavailable, "circuit open", err)
		}
		return "", err
	}
	return content, nil
}

func (c *Client) doRequest(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	body := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
	}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", shared.WrapError("llm", "Complete", shared.ErrTimeout, "request cancelled", err)
		}
		return "", shared.WrapError("llm", "Complete", shared.ErrServiceUnavailable, "http request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode >= 400 {
		se := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil && parsed.Error != nil {
			se.Message = parsed.Error.Message
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				se.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
		c.logger.Warn("llm api error", "status", resp.StatusCode, "message", se.Message)
		return "", se
	}
	if decodeErr != nil {
		return "", fmt.Errorf("unmarshal response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return "", shared.WrapError("llm", "Complete", shared.ErrExternalService, "response has no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
