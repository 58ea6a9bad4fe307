// Package gateway defines the contracts and error taxonomy shared by the
// outbound search, verification and conversation clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrTimeout  = errors.New("gateway timeout")
	ErrAuth     = errors.New("gateway auth rejected")
	ErrUpstream = errors.New("gateway upstream error")
	// ErrMalformed also matches ErrUpstream.
	ErrMalformed = fmt.Errorf("%w: malformed response", ErrUpstream)
)

type SearchRequest struct {
	Query       string
	ResultLimit int
}

type SearchResult struct {
	Title   string
	Snippet string
}

// Searcher returns web results for a query, ordered by relevance.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
}

// VerificationRequest carries document metadata only; no pixel data.
type VerificationRequest struct {
	DocumentName string
	MimeType     string
	Rubric       string
}

// Verdict is the verifier's judgement. Confidence is 0 to 100.
type Verdict struct {
	IsValid    bool
	Confidence int
	Reason     string
}

type Verifier interface {
	Verify(ctx context.Context, req VerificationRequest) (Verdict, error)
}

type ConversationRequest struct {
	SystemInstruction string
	UserTurn          string
	MaxTokens         int
	Temperature       float64
}

type Reply struct {
	Text  string
	Model string
}

// Conversor produces a single reply for one system instruction and one user turn.
type Conversor interface {
	Converse(ctx context.Context, req ConversationRequest) (Reply, error)
}

// ClampConfidence bounds a raw confidence score to 0..100.
func ClampConfidence(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v + 0.5)
	}
}

// StatusError maps a non-2xx HTTP status onto the taxonomy. 2xx returns nil.
func StatusError(name string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", name, status, ErrAuth)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: status %d: %w", name, status, ErrTimeout)
	default:
		return fmt.Errorf("%s: status %d: %w", name, status, ErrUpstream)
	}
}

// TransportError classifies an error returned by an HTTP round trip.
func TransportError(name string, err error) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return fmt.Errorf("%s: %w: %v", name, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", name, ErrUpstream, err)
}

// IsTimeout reports deadline and network timeouts. Plain cancellation is not a timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Kind names the taxonomy bucket of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "upstream"
	}
}

// NewHTTPClient returns a client whose transport emits OpenTelemetry spans.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// StartSpan opens a span for one gateway call.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("internal/gateway").Start(ctx, name)
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
	}
	span.End()
}
