package openai

import (
	"context"

	"knowyourfan-backend/internal/gateway"
)

// Conversation forwards one system instruction and one user turn.
type Conversation struct {
	c *client
}

func NewConversation(apiKey, model string, opts ...Option) (*Conversation, error) {
	c, err := newClient("openai.chat", apiKey, model, opts)
	if err != nil {
		return nil, err
	}
	return &Conversation{c: c}, nil
}

func (cv *Conversation) Converse(ctx context.Context, req gateway.ConversationRequest) (reply gateway.Reply, err error) {
	ctx, span := gateway.StartSpan(ctx, "openai.converse")
	defer func() { gateway.EndSpan(span, err) }()

	messages := []chatMessage{
		{Role: "system", Content: req.SystemInstruction},
		{Role: "user", Content: req.UserTurn},
	}
	text, model, err := cv.c.complete(ctx, cv.c.newRequest(messages, req.MaxTokens, req.Temperature))
	if err != nil {
		return gateway.Reply{}, err
	}
	return gateway.Reply{Text: text, Model: model}, nil
}

var _ gateway.Conversor = (*Conversation)(nil)
