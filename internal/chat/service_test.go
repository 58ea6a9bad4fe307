package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowyourfan-backend/internal/gateway"
	"knowyourfan-backend/internal/shared/config"
	"knowyourfan-backend/internal/shared/telemetry"
)

type fakeSearcher struct {
	results []gateway.SearchResult
	err     error
	got     []gateway.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req gateway.SearchRequest) ([]gateway.SearchResult, error) {
	f.got = append(f.got, req)
	return f.results, f.err
}

type fakeConversor struct {
	reply gateway.Reply
	err   error
	got   []gateway.ConversationRequest
}

func (f *fakeConversor) Converse(_ context.Context, req gateway.ConversationRequest) (gateway.Reply, error) {
	f.got = append(f.got, req)
	return f.reply, f.err
}

func newService(s gateway.Searcher, c gateway.Conversor) *Service {
	return &Service{
		Searcher:  s,
		Conversor: c,
		Policy:    config.DefaultPolicy(),
		Logger:    telemetry.Nop{},
	}
}

func TestAnswerGroundsQuestionInSearchResults(t *testing.T) {
	searcher := &fakeSearcher{results: []gateway.SearchResult{
		{Title: "Event Calendar", Snippet: "Match on 03/15"},
	}}
	conversor := &fakeConversor{reply: gateway.Reply{Text: "The next match is on 03/15.", Model: "test"}}
	svc := newService(searcher, conversor)

	got, err := svc.Answer(context.Background(), "when is the next match")
	require.NoError(t, err)
	assert.Equal(t, "The next match is on 03/15.", got)

	require.Len(t, searcher.got, 1)
	assert.Equal(t, "when is the next match site:furia.gg OR site:twitter.com/furia OR site:instagram.com/furia", searcher.got[0].Query)
	assert.Equal(t, 5, searcher.got[0].ResultLimit)

	require.Len(t, conversor.got, 1)
	turn := conversor.got[0].UserTurn
	line := strings.Index(turn, "1. Event Calendar: Match on 03/15")
	question := strings.Index(turn, "User question: when is the next match")
	require.GreaterOrEqual(t, line, 0)
	require.GreaterOrEqual(t, question, 0)
	assert.Less(t, line, question)
	assert.Equal(t, 250, conversor.got[0].MaxTokens)
	assert.InDelta(t, 0.7, conversor.got[0].Temperature, 1e-9)
	assert.Contains(t, conversor.got[0].SystemInstruction, "FURIA")
}

func TestAnswerWithoutResultsSendsBareQuestion(t *testing.T) {
	conversor := &fakeConversor{reply: gateway.Reply{Text: "I don't have that information."}}
	svc := newService(&fakeSearcher{}, conversor)

	got, err := svc.Answer(context.Background(), "who won yesterday?")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	require.Len(t, conversor.got, 1)
	assert.Equal(t, "User question: who won yesterday?", conversor.got[0].UserTurn)
}

func TestAnswerTreatsSearchFailureAsNoResults(t *testing.T) {
	searcher := &fakeSearcher{err: gateway.ErrTimeout}
	conversor := &fakeConversor{reply: gateway.Reply{Text: "ok"}}
	svc := newService(searcher, conversor)

	got, err := svc.Answer(context.Background(), "roster?")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.NotContains(t, conversor.got[0].UserTurn, "Recent information found:")
}

func TestAnswerWithoutSearcher(t *testing.T) {
	conversor := &fakeConversor{reply: gateway.Reply{Text: "ok"}}
	svc := newService(nil, conversor)

	_, err := svc.Answer(context.Background(), "roster?")
	require.NoError(t, err)
	assert.Equal(t, "User question: roster?", conversor.got[0].UserTurn)
}

func TestAnswerConversationFailureIsUnavailable(t *testing.T) {
	conversor := &fakeConversor{err: gateway.ErrUpstream}
	svc := newService(&fakeSearcher{}, conversor)

	_, err := svc.Answer(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
}

func TestAnswerEmptyReplyIsUnavailable(t *testing.T) {
	conversor := &fakeConversor{reply: gateway.Reply{Text: "  "}}
	svc := newService(&fakeSearcher{}, conversor)

	_, err := svc.Answer(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestAnswerRejectsInvalidMessages(t *testing.T) {
	conversor := &fakeConversor{reply: gateway.Reply{Text: "ok"}}
	svc := newService(&fakeSearcher{}, conversor)

	_, err := svc.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Answer(context.Background(), strings.Repeat("é", MaxMessageRunes+1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Answer(context.Background(), strings.Repeat("é", MaxMessageRunes))
	assert.NoError(t, err)
	assert.Len(t, conversor.got, 1)
}

func TestSiteFilter(t *testing.T) {
	assert.Equal(t, "site:a.com OR site:b.org", SiteFilter([]string{"a.com", " ", "b.org"}))
	assert.Equal(t, "", SiteFilter(nil))
}

func TestSystemInstructionUsesPolicy(t *testing.T) {
	p := config.Policy{Organization: "Acme", Website: "acme.gg", SocialHandle: "@acme"}
	got := SystemInstruction(p)
	assert.Contains(t, got, "Acme")
	assert.Contains(t, got, "acme.gg")
	assert.Contains(t, got, "@acme")
	assert.Contains(t, got, "I don't have that information")
}

func TestAnswerReturnsReplyVerbatim(t *testing.T) {
	conversor := &fakeConversor{reply: gateway.Reply{Text: "\n- Roster: KSCERATO, yuurih\n"}}
	svc := newService(&fakeSearcher{}, conversor)

	got, err := svc.Answer(context.Background(), "who plays?")
	require.NoError(t, err)
	assert.Equal(t, "\n- Roster: KSCERATO, yuurih\n", got)
}

func TestContextBlockKeepsOneResultPerLine(t *testing.T) {
	got := ContextBlock([]gateway.SearchResult{
		{Title: "Event\nCalendar", Snippet: "Match on 03/15\r\n\tvs  NAVI"},
		{Title: "Store", Snippet: "New jersey"},
	})
	assert.Equal(t, "Recent information found:\n1. Event Calendar: Match on 03/15 vs NAVI\n2. Store: New jersey", got)
	assert.Equal(t, "", ContextBlock(nil))
}

func TestOrganizationNameFallsBack(t *testing.T) {
	assert.Equal(t, "FURIA", OrganizationName(config.DefaultPolicy()))
	assert.Equal(t, defaultOrgName, OrganizationName(config.Policy{Organization: "  "}))
}
