package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
)

// DefaultSystemPrompt frames every completion.
const DefaultSystemPrompt = "You are a clinical decision support assistant. Provide evidence-based medication " +
	"recommendations in the exact format requested. Always recommend consultation with a healthcare provider."

const maxResponseBytes = 1 << 20

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Client implements interfaces.TextGenerationClient over HTTP.
type Client struct {
	baseURL      string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	defaults     interfaces.GenerationOptions
}

var _ interfaces.TextGenerationClient = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) ClientOption {
	return func(c *Client) { c.systemPrompt = p }
}

// WithDefaults sets options used when a call leaves a field zero.
func WithDefaults(opts interfaces.GenerationOptions) ClientOption {
	return func(c *Client) { c.defaults = opts }
}

// NewClient creates a client for baseURL, e.g. "https://api.openai.com/v1".
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		systemPrompt: DefaultSystemPrompt,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		defaults: interfaces.GenerationOptions{
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   1000,
			Timeout:     30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) merge(opts interfaces.GenerationOptions) interfaces.GenerationOptions {
	if opts.Model == "" {
		opts.Model = c.defaults.Model
	}
	if opts.Temperature == 0 {
		opts.Temperature = c.defaults.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = c.defaults.MaxTokens
	}
	if opts.Timeout == 0 {
		opts.Timeout = c.defaults.Timeout
	}
	return opts
}

// Complete sends prompt as the user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, prompt string, opts interfaces.GenerationOptions) (string, error) {
	opts = c.merge(opts)
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model: opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", newError(KindNetwork, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", newError(KindTimeout, 0, err)
		}
		return "", newError(KindOf(err), 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", newError(KindOf(err), resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	logging.Debug("Completion response received",
		"status", resp.StatusCode,
		"model", opts.Model,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", newError(KindQuota, resp.StatusCode, errors.New(upstreamMessage(parsed, raw)))
	case resp.StatusCode >= 400:
		return "", newError(KindUpstream, resp.StatusCode, errors.New(upstreamMessage(parsed, raw)))
	case decodeErr != nil:
		return "", newError(KindUpstream, resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr))
	}

	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", newError(KindEmpty, resp.StatusCode, errors.New("completion has no content"))
	}
	return parsed.Choices[0].Message.Content, nil
}

func upstreamMessage(parsed chatResponse, raw []byte) string {
	if parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty error body"
	}
	return s
}
