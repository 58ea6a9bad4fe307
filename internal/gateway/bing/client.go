// Package bing implements the search gateway on the Bing Web Search v7 API.
package bing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"knowyourfan-backend/internal/gateway"
)

var apiURL = "https://api.bing.microsoft.com/v7.0/search"

const (
	defaultResultLimit = 5
	maxResultLimit     = 50
	defaultTimeout     = 10 * time.Second
	maxBodyBytes       = 2 << 20
)

// Client calls Bing Web Search. Outbound calls share one token bucket.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint points the client at another search URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// New returns a client allowing ratePerSecond calls per second. Zero or less disables throttling.
func New(apiKey string, ratePerSecond float64, opts ...Option) *Client {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		endpoint:   apiURL,
		httpClient: gateway.NewHTTPClient(defaultTimeout),
		limiter:    rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	WebPages *struct {
		Value []struct {
			Name    string `json:"name"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// Search runs one query. A response without a webPages section yields no results.
func (c *Client) Search(ctx context.Context, req gateway.SearchRequest) (results []gateway.SearchResult, err error) {
	ctx, span := gateway.StartSpan(ctx, "bing.search")
	defer func() { gateway.EndSpan(span, err) }()

	if c.apiKey == "" {
		return nil, fmt.Errorf("bing: missing subscription key: %w", gateway.ErrAuth)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, nil
	}
	limit := req.ResultLimit
	if limit <= 0 {
		limit = defaultResultLimit
	}
	if limit > maxResultLimit {
		limit = maxResultLimit
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("bing: throttle wait: %w", gateway.ErrTimeout)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))
	params.Set("responseFilter", "Webpages")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, gateway.TransportError("bing", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, gateway.TransportError("bing", err)
	}
	if err := gateway.StatusError("bing", resp.StatusCode); err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("bing: decode: %v: %w", err, gateway.ErrMalformed)
	}
	if parsed.WebPages == nil {
		return nil, nil
	}

	results = make([]gateway.SearchResult, 0, len(parsed.WebPages.Value))
	for _, v := range parsed.WebPages.Value {
		title := plainText(v.Name)
		snippet := plainText(v.Snippet)
		if title == "" && snippet == "" {
			continue
		}
		results = append(results, gateway.SearchResult{Title: title, Snippet: snippet})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// plainText drops markup and entities from a Bing field and collapses whitespace.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

var _ gateway.Searcher = (*Client)(nil)
