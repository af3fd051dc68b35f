package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/teemow/outlook-mcp/internal/graph"
	"github.com/teemow/outlook-mcp/internal/instrumentation"
)

// TokenResolver resolves an upstream user identity to a live access token.
type TokenResolver interface {
	GetValidToken(ctx context.Context, userID string) (string, error)
}

// Pinger checks connectivity of a backing dependency for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// contextKey is the private type for request-scoped identity values.
type contextKey int

const (
	userIDKey contextKey = iota
	accessTokenKey
)

// WithIdentity returns a context carrying the resolved caller identity and
// its plaintext access token. The token lives only for the duration of the
// request.
func WithIdentity(ctx context.Context, userID, accessToken string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, accessTokenKey, accessToken)
}

// UserIDFromContext returns the caller identity injected by the identity
// middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// AccessTokenFromContext returns the plaintext access token injected by the
// identity middleware.
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey).(string)
	return token, ok && token != ""
}

// ServerContext holds the shared dependencies for the MCP server.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	tokens      TokenResolver
	graphClient *graph.Client
	store       Pinger

	// defaultUserID substitutes for the X-User-ID header on transports
	// without HTTP headers (stdio in development).
	defaultUserID string

	// mailListFields and mailDetailFields override the OData $select lists
	// used by the mail tools. Empty means the tools' built-in defaults.
	mailListFields   string
	mailDetailFields string

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context.
func NewServerContext(ctx context.Context, tokens TokenResolver, graphClient *graph.Client, store Pinger) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		tokens:      tokens,
		graphClient: graphClient,
		store:       store,
		metrics:     &instrumentation.Metrics{},
	}
}

// Context returns the server lifetime context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Tokens returns the token resolver.
func (sc *ServerContext) Tokens() TokenResolver {
	return sc.tokens
}

// Graph returns the Microsoft Graph client.
func (sc *ServerContext) Graph() *graph.Client {
	return sc.graphClient
}

// Store returns the credential store dependency used for readiness checks.
// May be nil when the server runs without a database (tests).
func (sc *ServerContext) Store() Pinger {
	return sc.store
}

// SetDefaultUserID sets the static identity used when a request carries no
// X-User-ID header (stdio transport).
func (sc *ServerContext) SetDefaultUserID(userID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.defaultUserID = userID
}

// DefaultUserID returns the configured static identity, if any.
func (sc *ServerContext) DefaultUserID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.defaultUserID
}

// SetMailFields overrides the OData $select field lists used for message
// list and detail fetches.
func (sc *ServerContext) SetMailFields(listFields, detailFields string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.mailListFields = listFields
	sc.mailDetailFields = detailFields
}

// MailListFields returns the configured $select list for message listings,
// or "" when unset.
func (sc *ServerContext) MailListFields() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.mailListFields
}

// MailDetailFields returns the configured $select list for message detail
// fetches, or "" when unset.
func (sc *ServerContext) MailDetailFields() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.mailDetailFields
}

// SetMetrics sets the metrics recorder used by tool instrumentation.
func (sc *ServerContext) SetMetrics(metrics *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if metrics != nil {
		sc.metrics = metrics
	}
}

// Metrics returns the metrics recorder. Never nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger used by tool instrumentation.
func (sc *ServerContext) SetAuditLogger(logger *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = logger
}

// AuditLogger returns the audit logger. May be nil when audit logging is
// disabled.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// Identity resolves the caller identity and access token for a tool call.
// HTTP requests carry both in the request context already; on stdio the
// configured default identity is resolved on demand so each call gets a
// token that satisfies the refresh-skew guarantee.
func (sc *ServerContext) Identity(ctx context.Context) (userID, accessToken string, err error) {
	if userID, ok := UserIDFromContext(ctx); ok {
		if token, ok := AccessTokenFromContext(ctx); ok {
			return userID, token, nil
		}
	}

	userID = sc.DefaultUserID()
	if userID == "" || sc.tokens == nil {
		return "", "", fmt.Errorf("no caller identity available")
	}

	token, err := sc.tokens.GetValidToken(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return userID, token, nil
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
