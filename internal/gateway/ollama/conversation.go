// Package ollama implements the conversation gateway on a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"knowyourfan-backend/internal/gateway"
)

const (
	defaultServerURL = "http://localhost:11434"
	defaultTimeout   = 120 * time.Second
)

// Conversation sends one system instruction and one user turn to an Ollama model.
type Conversation struct {
	llm   llms.Model
	model string
}

// New connects to serverURL. Empty values fall back to the local default server.
func New(serverURL, model string) (*Conversation, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	if strings.TrimSpace(serverURL) == "" {
		serverURL = defaultServerURL
	}
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(serverURL),
		ollama.WithHTTPClient(gateway.NewHTTPClient(defaultTimeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama: init: %w", err)
	}
	return &Conversation{llm: llm, model: model}, nil
}

func (c *Conversation) Converse(ctx context.Context, req gateway.ConversationRequest) (reply gateway.Reply, err error) {
	ctx, span := gateway.StartSpan(ctx, "ollama.converse")
	defer func() { gateway.EndSpan(span, err) }()

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.SystemInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, req.UserTurn),
	}
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return gateway.Reply{}, classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return gateway.Reply{}, fmt.Errorf("ollama: empty response: %w", gateway.ErrMalformed)
	}
	return gateway.Reply{Text: resp.Choices[0].Content, Model: c.model}, nil
}

// classify maps langchaingo errors, which carry no status codes, onto the taxonomy.
func classify(err error) error {
	if gateway.IsTimeout(err) {
		return fmt.Errorf("ollama: %w: %v", gateway.ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized") {
		return fmt.Errorf("ollama: %w: %v", gateway.ErrAuth, err)
	}
	return fmt.Errorf("ollama: %w: %v", gateway.ErrUpstream, err)
}

var _ gateway.Conversor = (*Conversation)(nil)
