package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"knowyourfan-backend/internal/gateway"
)

const (
	verifyMaxTokens   = 300
	jsonReplyContract = `Respond only with a JSON object of the form {"isValidId": boolean, "confidence": number from 0 to 100, "reason": string}.`
)

// Verifier asks a vision-capable model to judge a document from its metadata.
type Verifier struct {
	c *client
}

func NewVerifier(apiKey, model string, opts ...Option) (*Verifier, error) {
	c, err := newClient("openai.verify", apiKey, model, opts)
	if err != nil {
		return nil, err
	}
	return &Verifier{c: c}, nil
}

type verdictPayload struct {
	IsValidID  *bool    `json:"isValidId"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Verify makes exactly one call. Unparseable answers are ErrMalformed.
func (v *Verifier) Verify(ctx context.Context, req gateway.VerificationRequest) (verdict gateway.Verdict, err error) {
	ctx, span := gateway.StartSpan(ctx, "openai.verify")
	defer func() { gateway.EndSpan(span, err) }()

	system := strings.TrimSpace(req.Rubric)
	if system == "" {
		system = "You verify identity documents."
	}
	system += "\n\n" + jsonReplyContract

	messages := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf("Document name: %s, Type: %s", req.DocumentName, req.MimeType)},
	}
	body := v.c.newRequest(messages, verifyMaxTokens, 0)
	body.ResponseFormat = &responseFormat{Type: "json_object"}

	content, _, err := v.c.complete(ctx, body)
	if err != nil {
		return gateway.Verdict{}, err
	}
	return parseVerdict(content)
}

func parseVerdict(content string) (gateway.Verdict, error) {
	raw := stripCodeFence(content)
	var p verdictPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return gateway.Verdict{}, fmt.Errorf("openai.verify: decode verdict: %v: %w", err, gateway.ErrMalformed)
	}
	if p.IsValidID == nil || p.Confidence == nil {
		return gateway.Verdict{}, fmt.Errorf("openai.verify: verdict missing fields: %w", gateway.ErrMalformed)
	}
	return gateway.Verdict{
		IsValid:    *p.IsValidID,
		Confidence: gateway.ClampConfidence(*p.Confidence),
		Reason:     strings.TrimSpace(p.Reason),
	}, nil
}

// stripCodeFence removes a ```json fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

var _ gateway.Verifier = (*Verifier)(nil)
