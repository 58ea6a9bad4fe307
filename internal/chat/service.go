// Package chat answers fan questions with a reply grounded in fresh web search results.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"knowyourfan-backend/internal/gateway"
	"knowyourfan-backend/internal/shared/config"
	"knowyourfan-backend/internal/shared/metrics"
	"knowyourfan-backend/internal/shared/telemetry"
)

// MaxMessageRunes bounds a single question.
const MaxMessageRunes = 2000

var (
	ErrInvalidInput       = errors.New("invalid chat message")
	ErrServiceUnavailable = errors.New("chat service unavailable")
)

// Service runs the search, assemble, converse pipeline. It keeps no history.
type Service struct {
	Searcher  gateway.Searcher
	Conversor gateway.Conversor
	Policy    config.Policy
	Logger    telemetry.Logger
}

// Answer returns the model's reply to message verbatim.
func (s *Service) Answer(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > MaxMessageRunes {
		return "", ErrInvalidInput
	}
	if s.Conversor == nil {
		metrics.IncChatUnavailable()
		return "", fmt.Errorf("%w: no conversation gateway", ErrServiceUnavailable)
	}
	start := time.Now()
	defer func() {
		metrics.ObserveChatDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	results := s.search(ctx, message)
	contextBlock := ContextBlock(results)
	if contextBlock == "" {
		metrics.IncChatUngrounded()
	}

	reply, err := s.Conversor.Converse(ctx, gateway.ConversationRequest{
		SystemInstruction: SystemInstruction(s.Policy),
		UserTurn:          UserTurn(contextBlock, message),
		MaxTokens:         s.maxTokens(),
		Temperature:       s.Policy.Temperature,
	})
	if err != nil {
		kind := gateway.Kind(err)
		metrics.IncGatewayError("conversation", kind)
		metrics.IncChatUnavailable()
		s.logger().Error("chat.converse_failed", map[string]any{
			"kind":  kind,
			"error": err.Error(),
		})
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if strings.TrimSpace(reply.Text) == "" {
		metrics.IncChatUnavailable()
		s.logger().Error("chat.empty_reply", map[string]any{"model": reply.Model})
		return "", fmt.Errorf("%w: empty reply", ErrServiceUnavailable)
	}

	metrics.IncChatAnswered()
	s.logger().Info("chat.answered", map[string]any{
		"model":        reply.Model,
		"result_count": len(results),
		"grounded":     contextBlock != "",
	})
	return reply.Text, nil
}

// search never fails the pipeline. Errors are logged and mean no grounding.
func (s *Service) search(ctx context.Context, message string) []gateway.SearchResult {
	if s.Searcher == nil {
		return nil
	}
	query := message
	if filter := SiteFilter(s.Policy.SearchSites); filter != "" {
		query += " " + filter
	}
	results, err := s.Searcher.Search(ctx, gateway.SearchRequest{Query: query, ResultLimit: s.resultLimit()})
	if err != nil {
		kind := gateway.Kind(err)
		metrics.IncGatewayError("search", kind)
		s.logger().Error("chat.search_failed", map[string]any{
			"kind":  kind,
			"error": err.Error(),
		})
		return nil
	}
	if limit := s.resultLimit(); len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (s *Service) resultLimit() int {
	if s.Policy.ResultLimit > 0 {
		return s.Policy.ResultLimit
	}
	return 5
}

func (s *Service) maxTokens() int {
	if s.Policy.MaxTokens > 0 {
		return s.Policy.MaxTokens
	}
	return 250
}

func (s *Service) logger() telemetry.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return telemetry.Default()
}
