package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/outlook-mcp/internal/logging"
)

// defaultTokenLifetime is assumed when the token endpoint omits expires_in.
// Microsoft access tokens last one hour.
const defaultTokenLifetime = time.Hour

// Scopes requested on every refresh grant. offline_access keeps the refresh
// token renewable.
var refreshScopes = []string{"offline_access", "User.Read", "Mail.Read"}

// RefreshResult carries the outcome of a successful refresh-token grant.
// RefreshToken is empty when the provider did not rotate it.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresher exchanges refresh tokens for new access tokens at the Microsoft
// identity platform. It holds no credential state; every call is a pure
// function of its inputs plus network state.
type Refresher struct {
	clientID      string
	clientSecret  string
	defaultTenant string
	tokenURL      func(tenant string) string
	httpClient    *http.Client
	timeout       time.Duration
	logger        *slog.Logger
}

// RefresherOption customizes a Refresher.
type RefresherOption func(*Refresher)

// WithHTTPClient sets the HTTP client used for token endpoint calls.
func WithHTTPClient(client *http.Client) RefresherOption {
	return func(r *Refresher) {
		r.httpClient = client
	}
}

// WithTokenURL overrides the token endpoint resolution. Used by tests to
// point refreshes at a local server.
func WithTokenURL(resolve func(tenant string) string) RefresherOption {
	return func(r *Refresher) {
		r.tokenURL = resolve
	}
}

// WithRefresherLogger sets the logger for refresh outcome logging.
func WithRefresherLogger(logger *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// NewRefresher creates a refresher for the given client registration.
// timeout bounds each grant round trip so a hung endpoint cannot hold the
// per-user refresh slot indefinitely.
func NewRefresher(clientID, clientSecret, defaultTenant string, timeout time.Duration, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		clientID:      clientID,
		clientSecret:  clientSecret,
		defaultTenant: defaultTenant,
		timeout:       timeout,
		httpClient:    http.DefaultClient,
		logger:        slog.Default(),
		tokenURL: func(tenant string) string {
			return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenant)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// providerMetadata is the interpreted slice of the opaque per-credential
// metadata blob. Unknown keys pass through untouched.
type providerMetadata struct {
	TenantID string `json:"tenant_id"`
}

// Refresh exchanges refreshToken for a new access token. Failures are
// classified conservatively: only an explicit invalid_grant or
// unauthorized_client response maps to ErrRevoked; timeouts, 5xx responses
// and malformed bodies all map to ErrRefreshFailed so a recoverable user is
// never locked out by a flaky endpoint.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string, metadata json.RawMessage) (*RefreshResult, error) {
	tenant := r.defaultTenant
	if len(metadata) > 0 {
		var meta providerMetadata
		if err := json.Unmarshal(metadata, &meta); err == nil && meta.TenantID != "" {
			tenant = meta.TenantID
		}
	}

	conf := &oauth2.Config{
		ClientID:     r.clientID,
		ClientSecret: r.clientSecret,
		Scopes:       refreshScopes,
		Endpoint: oauth2.Endpoint{
			TokenURL: r.tokenURL(tenant),
			// Microsoft expects client credentials in the form body.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		classified := r.classify(err)
		r.logger.Warn("token refresh failed",
			logging.Operation("refresher.refresh"),
			slog.Bool("revoked", errors.Is(classified, ErrRevoked)),
		)
		return nil, classified
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(defaultTokenLifetime)
	}

	result := &RefreshResult{
		AccessToken: token.AccessToken,
		ExpiresAt:   expiresAt,
	}
	// oauth2 carries the original refresh token forward when the provider
	// does not rotate; only a changed value counts as a rotation.
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		result.RefreshToken = token.RefreshToken
	}
	return result, nil
}

// classify maps a token endpoint failure onto the error taxonomy. The
// returned error never embeds the endpoint response body, which is under
// the remote side's control.
func (r *Refresher) classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "unauthorized_client":
			return fmt.Errorf("%w: %s", ErrRevoked, retrieveErr.ErrorCode)
		}
		return fmt.Errorf("%w: token endpoint returned %d", ErrRefreshFailed, statusCode(retrieveErr))
	}
	return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
}

func statusCode(err *oauth2.RetrieveError) int {
	if err.Response != nil {
		return err.Response.StatusCode
	}
	return 0
}
