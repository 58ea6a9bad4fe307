// Package openai implements the verification and conversation gateways on
// OpenAI Chat Completions.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"knowyourfan-backend/internal/gateway"
	"knowyourfan-backend/internal/shared/telemetry"
)

var apiURL = "https://api.openai.com/v1/chat/completions"

const (
	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 1 << 20
)

type options struct {
	endpoint string
	timeout  time.Duration
	base     http.RoundTripper
	logger   telemetry.Logger
}

type Option func(*options)

// WithEndpoint overrides the Chat Completions URL.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithTimeout bounds every call, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBaseTransport sets the transport beneath the bearer-token layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func WithLogger(l telemetry.Logger) Option {
	return func(o *options) { o.logger = l }
}

// client holds the shared Chat Completions plumbing.
type client struct {
	name       string
	model      string
	endpoint   string
	httpClient *http.Client
	logger     telemetry.Logger
}

func newClient(name, apiKey, model string, opts []Option) (*client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%s: model is required", name)
	}
	o := options{
		endpoint: apiURL,
		timeout:  defaultTimeout,
		base:     otelhttp.NewTransport(http.DefaultTransport),
		logger:   telemetry.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(apiKey), TokenType: "Bearer"}),
		Base:   o.base,
	}
	return &client{
		name:       name,
		model:      strings.TrimSpace(model),
		endpoint:   o.endpoint,
		httpClient: &http.Client{Timeout: o.timeout, Transport: transport},
		logger:     o.logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// newRequest fills in the model and the token/temperature fields the model family accepts.
func (c *client) newRequest(messages []chatMessage, maxTokens int, temperature float64) chatRequest {
	req := chatRequest{Model: c.model, Messages: messages}
	if isGPT5(c.model) {
		req.MaxCompletionTokens = maxTokens
		return req
	}
	req.MaxTokens = maxTokens
	t := temperature
	req.Temperature = &t
	return req
}

// complete sends one Chat Completions request and returns the first choice's content.
func (c *client) complete(ctx context.Context, reqBody chatRequest) (string, string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", gateway.TransportError(c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", gateway.TransportError(c.name, err)
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(body, &parsed)
	if statusErr := gateway.StatusError(c.name, resp.StatusCode); statusErr != nil {
		if decodeErr == nil && parsed.Error != nil {
			return "", "", fmt.Errorf("%w (%s: %s)", statusErr, parsed.Error.Type, parsed.Error.Message)
		}
		return "", "", statusErr
	}
	if decodeErr != nil {
		return "", "", fmt.Errorf("%s: decode: %v: %w", c.name, decodeErr, gateway.ErrMalformed)
	}
	if parsed.Error != nil {
		return "", "", fmt.Errorf("%s: %s (%s): %w", c.name, parsed.Error.Message, parsed.Error.Type, gateway.ErrUpstream)
	}
	if len(parsed.Choices) == 0 {
		return "", "", fmt.Errorf("%s: response missing choices: %w", c.name, gateway.ErrMalformed)
	}

	c.logUsage(parsed)
	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return parsed.Choices[0].Message.Content, model, nil
}

func (c *client) logUsage(resp chatResponse) {
	fields := map[string]any{"gateway": c.name, "model": c.model}
	if resp.Usage != nil {
		fields["prompt_tokens"] = resp.Usage.PromptTokens
		fields["completion_tokens"] = resp.Usage.CompletionTokens
		fields["total_tokens"] = resp.Usage.TotalTokens
	}
	c.logger.Info("llm.response", fields)
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}
