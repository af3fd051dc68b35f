// Package graph implements a minimal Microsoft Graph mail client.
//
// The client speaks OData/JSON directly over HTTP. Calls are wrapped in a
// circuit breaker so sustained Graph outages fail fast instead of piling up
// blocked tool invocations.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/teemow/outlook-mcp/internal/instrumentation"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const defaultTimeout = 30 * time.Second

var (
	// ErrUnauthorized indicates the access token was rejected by Graph.
	// Callers should treat this as a signal to re-resolve the credential.
	ErrUnauthorized = errors.New("graph: access token rejected")

	// ErrUnavailable indicates Graph is unreachable or shedding load,
	// including an open circuit breaker.
	ErrUnavailable = errors.New("graph: service unavailable")
)

// StatusError reports a non-retriable Graph error status. The response body
// is intentionally discarded.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph: unexpected status %d", e.StatusCode)
}

// ListQuery holds the OData query options for message collection requests.
type ListQuery struct {
	Top     int
	OrderBy string
	Select  string
	Search  string
	Filter  string
}

// values renders the query as URL parameters, omitting empty options.
func (q ListQuery) values() url.Values {
	params := url.Values{}
	if q.Top > 0 {
		params.Set("$top", strconv.Itoa(q.Top))
	}
	if q.OrderBy != "" {
		params.Set("$orderby", q.OrderBy)
	}
	if q.Select != "" {
		params.Set("$select", q.Select)
	}
	if q.Search != "" {
		params.Set("$search", q.Search)
	}
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	return params
}

// Client is a Microsoft Graph mail client. Access tokens are supplied per
// call; the client itself holds no credentials.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Graph endpoint, primarily for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder for Graph operations.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// NewClient creates a Graph client with a circuit breaker tuned for an
// interactive sidecar: trip on sustained server-side failures, stay closed
// for client errors.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
		metrics: &instrumentation.Metrics{},
	}

	for _, opt := range opts {
		opt(c)
	}

	settings := gobreaker.Settings{
		Name:        "microsoft-graph",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			// Client-side rejections must not open the circuit.
			return err == nil || !isCircuitError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(settings)

	return c
}

// isCircuitError reports whether an error counts against the circuit
// breaker. Only transport failures and server-side statuses do.
func isCircuitError(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

// Get performs an authenticated GET against the Graph API and decodes the
// JSON response into out. The endpoint may be a path relative to the base
// URL or an absolute URL (pagination nextLink); absolute URLs already carry
// their query parameters, so params is ignored for them.
func (c *Client) Get(ctx context.Context, token, endpoint string, params url.Values, out any) error {
	requestURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		requestURL = c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
		if len(params) > 0 {
			requestURL += "?" + params.Encode()
		}
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.doGet(ctx, token, requestURL, out)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	return err
}

func (c *Client) doGet(ctx context.Context, token, requestURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("graph: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &StatusError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("graph: decode response: %w", err)
	}
	return nil
}

// ListMessages fetches messages from a folder endpoint, following
// @odata.nextLink until count messages are collected or the collection is
// exhausted.
func (c *Client) ListMessages(ctx context.Context, token, endpoint string, query ListQuery, count int) ([]Message, error) {
	operation := instrumentation.OperationList
	if query.Search != "" || query.Filter != "" {
		operation = instrumentation.OperationSearch
	}

	ctx, span := instrumentation.StartGraphSpan(ctx, operation)
	defer span.End()

	start := time.Now()
	messages, err := c.listMessages(ctx, token, endpoint, query, count)
	c.recordOperation(ctx, operation, start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	return messages, err
}

func (c *Client) listMessages(ctx context.Context, token, endpoint string, query ListQuery, count int) ([]Message, error) {
	if count <= 0 {
		return nil, nil
	}

	var collected []Message
	current := endpoint
	params := query.values()

	for len(collected) < count {
		var page messageList
		if err := c.Get(ctx, token, current, params, &page); err != nil {
			return nil, err
		}
		collected = append(collected, page.Value...)

		if page.NextLink == "" || len(page.Value) == 0 {
			break
		}
		// nextLink carries all query parameters
		current = page.NextLink
		params = nil
	}

	if len(collected) > count {
		collected = collected[:count]
	}
	return collected, nil
}

// GetMessage fetches a single message by id, restricted to selectFields.
func (c *Client) GetMessage(ctx context.Context, token, messageID, selectFields string) (*Message, error) {
	params := url.Values{}
	if selectFields != "" {
		params.Set("$select", selectFields)
	}

	ctx, span := instrumentation.StartGraphSpan(ctx, instrumentation.OperationGet)
	defer span.End()

	start := time.Now()
	var msg Message
	err := c.Get(ctx, token, "me/messages/"+url.PathEscape(messageID), params, &msg)
	c.recordOperation(ctx, instrumentation.OperationGet, start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return &msg, nil
}

func (c *Client) recordOperation(ctx context.Context, operation string, start time.Time, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGraphOperation(ctx, operation, status, time.Since(start))
}
