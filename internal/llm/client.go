// Package llm talks to the DeepSeek chat completion API through its
// OpenAI-compatible endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.deepseek.com/v1"
	DefaultModel   = "deepseek-chat"
)

// MentorPrompt is the system prompt for open-ended learner questions.
const MentorPrompt = "شما یک منتور پایتون با ۲۰ سال تجربه هستید که فقط به زبان پارسی صحبت می‌کنید. " +
	"شما برای بازار کار آلمان طراحی شده‌اید و بسیار سختگیر هستید. " +
	"پاسخ‌های شما باید آموزنده، دقیق و حرفه‌ای باشند. هرگز از زبان انگلیسی استفاده نکنید."

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryWait   time.Duration
	MaxTokens   int
	Temperature float32
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryWait <= 0 {
		c.RetryWait = 2 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	return c
}

// Client sends single-turn chat completions with retries on rate limits and
// transport failures.
type Client struct {
	client *openai.Client
	cfg    Config
}

// NewClient builds a client. A missing API key is not an error here; every
// call then fails with ErrMissingAPIKey so the bot can still run.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL
	return &Client{client: openai.NewClientWithConfig(config), cfg: cfg}
}

func (c *Client) Model() string {
	return c.cfg.Model
}

// Ask sends system and prompt and returns the assistant's reply.
func (c *Client) Ask(ctx context.Context, system, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        0.95,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		attempts++
		answer, err := c.complete(ctx, req)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.cfg.RetryWait):
		}
	}

	var rateLimit *ErrRateLimit
	if errors.As(lastErr, &rateLimit) {
		rateLimit.Attempts = attempts
	}
	return "", lastErr
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return cleanAnswer(resp.Choices[0].Message.Content), nil
}

// cleanAnswer drops an error-like prefix the model sometimes echoes.
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"خطا:", "Error:"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(s, prefix))
		}
	}
	return s
}

func mapError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized:
		return &ErrUnauthorized{Err: err}
	case status == http.StatusTooManyRequests:
		return &ErrRateLimit{Err: err}
	case status >= 500:
		return &ErrProviderUnavailable{Err: err}
	case status != 0:
		return &ErrStatus{StatusCode: status, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &ErrProviderUnavailable{Err: fmt.Errorf("transport: %w", err)}
	}
}

func retryable(err error) bool {
	var rl *ErrRateLimit
	var unavail *ErrProviderUnavailable
	switch {
	case errors.As(err, &rl), errors.As(err, &unavail):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}
