package gateway

import (
	"context"
	"fmt"
)

// Unconfigured stands in for a gateway whose provider credentials are absent.
// Every call fails with an ErrUpstream-class error so the service still boots.
type Unconfigured struct {
	Name string
}

func (u Unconfigured) err() error {
	return fmt.Errorf("%s not configured: %w", u.Name, ErrUpstream)
}

func (u Unconfigured) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	return nil, u.err()
}

func (u Unconfigured) Verify(ctx context.Context, req VerificationRequest) (Verdict, error) {
	return Verdict{}, u.err()
}

func (u Unconfigured) Converse(ctx context.Context, req ConversationRequest) (Reply, error) {
	return Reply{}, u.err()
}

var (
	_ Searcher  = Unconfigured{}
	_ Verifier  = Unconfigured{}
	_ Conversor = Unconfigured{}
)
