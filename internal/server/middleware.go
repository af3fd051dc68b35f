package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/outlook-mcp/internal/auth"
	"github.com/teemow/outlook-mcp/internal/instrumentation"
	"github.com/teemow/outlook-mcp/internal/logging"
)

// UserIDHeader carries the caller identity, set by the trusted upstream
// gateway. The sidecar never authenticates end users itself.
const UserIDHeader = "X-User-ID"

// IdentityMiddleware resolves the caller identity from the request and
// attaches a live access token to the request context. Requests without a
// resolvable credential never reach the MCP handler.
type IdentityMiddleware struct {
	tokens        TokenResolver
	defaultUserID string
	trustHeader   bool
	metrics       *instrumentation.Metrics
	logger        *slog.Logger
}

// IdentityOption configures the identity middleware.
type IdentityOption func(*IdentityMiddleware)

// WithDefaultUserID sets a fallback identity used when the header is absent.
// Intended for single-user development deployments only.
func WithDefaultUserID(userID string) IdentityOption {
	return func(m *IdentityMiddleware) {
		m.defaultUserID = userID
	}
}

// WithHeaderTrust controls whether the X-User-ID header is honored. With
// trust disabled only the configured default identity resolves, so a
// deployment without a trusted upstream gateway rejects all tool traffic.
func WithHeaderTrust(trust bool) IdentityOption {
	return func(m *IdentityMiddleware) {
		m.trustHeader = trust
	}
}

// WithIdentityMetrics sets the metrics recorder for lookup outcomes.
func WithIdentityMetrics(metrics *instrumentation.Metrics) IdentityOption {
	return func(m *IdentityMiddleware) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithIdentityLogger sets the middleware logger.
func WithIdentityLogger(logger *slog.Logger) IdentityOption {
	return func(m *IdentityMiddleware) {
		m.logger = logger
	}
}

// NewIdentityMiddleware creates the identity middleware.
func NewIdentityMiddleware(tokens TokenResolver, opts ...IdentityOption) *IdentityMiddleware {
	m := &IdentityMiddleware{
		tokens:      tokens,
		trustHeader: true,
		metrics:     &instrumentation.Metrics{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap returns a handler that enforces credential resolution before next.
func (m *IdentityMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID string
		if m.trustHeader {
			userID = r.Header.Get(UserIDHeader)
		}
		if userID == "" {
			userID = m.defaultUserID
		}
		if userID == "" {
			writeJSONError(w, http.StatusUnauthorized, "authentication_required",
				"request is missing the "+UserIDHeader+" header")
			return
		}

		token, err := m.tokens.GetValidToken(r.Context(), userID)
		m.metrics.RecordTokenLookup(r.Context(), lookupResult(err))
		if err != nil {
			m.rejectRequest(w, r, userID, err)
			return
		}

		ctx := WithIdentity(r.Context(), userID, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rejectRequest maps a credential error onto the HTTP surface. Reconnect
// conditions are terminal for the stored grant and get a 401 so the client
// prompts the user; anything else is treated as transient.
func (m *IdentityMiddleware) rejectRequest(w http.ResponseWriter, r *http.Request, userID string, err error) {
	if auth.NeedsReconnect(err) {
		m.logger.Info("rejecting request, reconnect required",
			logging.UserHash(userID),
			logging.Err(err),
		)
		writeJSONError(w, http.StatusUnauthorized, "reconnect_required",
			"the Outlook connection is no longer valid, please reconnect the account")
		return
	}

	m.logger.Warn("credential resolution failed",
		logging.UserHash(userID),
		logging.Err(err),
	)
	writeJSONError(w, http.StatusServiceUnavailable, "temporarily_unavailable",
		"credential service is temporarily unavailable, retry shortly")
}

// lookupResult maps a credential error to its metric label.
func lookupResult(err error) string {
	switch {
	case err == nil:
		return instrumentation.LookupResultSuccess
	case errors.Is(err, auth.ErrNotFound):
		return instrumentation.LookupResultNotFound
	case errors.Is(err, auth.ErrRevoked):
		return instrumentation.LookupResultRevoked
	case errors.Is(err, auth.ErrDecryptionFailure):
		return instrumentation.LookupResultUndecryptable
	default:
		return instrumentation.LookupResultFailure
	}
}

// errorResponse is the JSON body for rejected requests.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, Message: message})
}

// MetricsMiddleware records request counts, latencies and the active session
// gauge for every HTTP request.
func MetricsMiddleware(metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.IncrementActiveSessions(r.Context())
		defer metrics.DecrementActiveSessions(context.WithoutCancel(r.Context()))

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the underlying writer so streaming responses keep
// working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
