package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/outlook-mcp/internal/instrumentation"
	"github.com/teemow/outlook-mcp/internal/logging"
)

// CredentialStore is the persistence surface the token service depends on.
// *Store satisfies it; tests substitute in-memory doubles.
type CredentialStore interface {
	Load(ctx context.Context, userID, provider string) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	TouchLastUsed(ctx context.Context, id string) error
}

// GrantRefresher exchanges a refresh token for fresh token material.
type GrantRefresher interface {
	Refresh(ctx context.Context, refreshToken string, metadata json.RawMessage) (*RefreshResult, error)
}

// TokenService resolves an opaque user identity to a live plaintext access
// token: load, decrypt, expiry check, single-flight refresh, re-encrypt,
// persist. It is the only component allowed to mutate credential rows.
type TokenService struct {
	store     CredentialStore
	codec     *Codec
	refresher GrantRefresher
	provider  string

	// skew is subtracted from the stored expiry so a token is never handed
	// out if it could expire mid-flight of the caller's next remote call.
	skew time.Duration

	// group deduplicates concurrent refreshes per user id. Entries are
	// removed on completion, so the map stays bounded and never holds
	// plaintext beyond the lifetime of one refresh.
	group singleflight.Group

	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// TokenServiceOption customizes a TokenService.
type TokenServiceOption func(*TokenService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) TokenServiceOption {
	return func(s *TokenService) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) TokenServiceOption {
	return func(s *TokenService) {
		s.metrics = metrics
	}
}

// WithClock overrides the time source. Tests use this to pin expiry
// decisions.
func WithClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a token service for a single provider.
func NewTokenService(store CredentialStore, codec *Codec, refresher GrantRefresher, provider string, skew time.Duration, opts ...TokenServiceOption) *TokenService {
	s := &TokenService{
		store:     store,
		codec:     codec,
		refresher: refresher,
		provider:  provider,
		skew:      skew,
		logger:    slog.Default(),
		metrics:   &instrumentation.Metrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetValidToken returns a plaintext access token for userID, guaranteed
// unexpired at hand-off time modulo the configured skew margin. Failures
// use the package error taxonomy; no returned error carries token or key
// material.
func (s *TokenService) GetValidToken(ctx context.Context, userID string) (string, error) {
	cred, err := s.store.Load(ctx, userID, s.provider)
	if err != nil {
		return "", err
	}

	accessToken, err := s.codec.Decrypt(cred.AccessTokenCipher)
	if err != nil {
		// Unusable regardless of expiry; the refresh token is protected by
		// the same key and would fail identically.
		s.logger.Error("stored access token undecryptable",
			logging.Operation("token.get"),
			logging.UserHash(userID),
		)
		return "", err
	}

	if s.tokenUsable(cred.ExpiresAt) {
		s.touch(ctx, cred.ID, userID)
		return accessToken, nil
	}

	return s.refreshShared(ctx, userID)
}

// tokenUsable reports whether a token expiring at expiresAt can still cover
// the caller's subsequent remote call.
func (s *TokenService) tokenUsable(expiresAt time.Time) bool {
	return s.now().Before(expiresAt.Add(-s.skew))
}

// refreshShared funnels concurrent refreshes for one user through a single
// in-flight call. A caller whose context ends while waiting detaches; the
// refresh itself continues on a detached context because its result is
// shared infrastructure, not owned by any one waiter.
func (s *TokenService) refreshShared(ctx context.Context, userID string) (string, error) {
	ch := s.group.DoChan(userID, func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx), userID)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh performs one refresh-and-persist cycle. It re-reads the record
// first: a concurrent process may have refreshed already, in which case the
// stored token is returned without a remote call.
func (s *TokenService) refresh(ctx context.Context, userID string) (string, error) {
	cred, err := s.store.Load(ctx, userID, s.provider)
	if err != nil {
		return "", err
	}

	if s.tokenUsable(cred.ExpiresAt) {
		accessToken, err := s.codec.Decrypt(cred.AccessTokenCipher)
		if err != nil {
			return "", err
		}
		s.touch(ctx, cred.ID, userID)
		return accessToken, nil
	}

	refreshToken, err := s.codec.Decrypt(cred.RefreshTokenCipher)
	if err != nil {
		return "", err
	}

	logger := logging.WithOperation(s.logger, "token.refresh")
	logger.Info("refreshing expired token", logging.UserHash(userID))

	result, err := s.refresher.Refresh(ctx, refreshToken, cred.ProviderMetadata)
	if err != nil {
		// Rejected or transient either way, the stored record stays
		// untouched; a revoked grant is only recoverable by the user
		// reconnecting out-of-band.
		s.metrics.RecordTokenRefresh(ctx, refreshResultLabel(err))
		logger.Warn("token refresh failed",
			logging.UserHash(userID),
			logging.Err(err),
		)
		return "", err
	}

	accessCipher, err := s.codec.Encrypt(result.AccessToken)
	if err != nil {
		return "", fmt.Errorf("%w: re-encrypt: %v", ErrPersistenceError, err)
	}
	cred.AccessTokenCipher = accessCipher

	// Rotation is optional per response; only a rotated token rewrites the
	// stored refresh cipher.
	if result.RefreshToken != "" {
		refreshCipher, err := s.codec.Encrypt(result.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("%w: re-encrypt: %v", ErrPersistenceError, err)
		}
		cred.RefreshTokenCipher = refreshCipher
	}

	// Expiry never regresses across refreshes for the same record.
	if result.ExpiresAt.After(cred.ExpiresAt) {
		cred.ExpiresAt = result.ExpiresAt
	}

	if err := s.store.Save(ctx, cred); err != nil {
		s.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshResultFailure)
		return "", err
	}

	s.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshResultSuccess)
	logger.Info("token refreshed",
		logging.UserHash(userID),
		logging.Status(logging.StatusSuccess),
		slog.Time("expires_at", cred.ExpiresAt),
	)

	s.touch(ctx, cred.ID, userID)
	return result.AccessToken, nil
}

// touch records credential use. Best effort; a failed touch never blocks a
// token hand-off.
func (s *TokenService) touch(ctx context.Context, credentialID, userID string) {
	if err := s.store.TouchLastUsed(ctx, credentialID); err != nil {
		s.logger.Debug("last_used_at update failed",
			logging.Operation("token.touch"),
			logging.UserHash(userID),
			logging.Err(err),
		)
	}
}

func refreshResultLabel(err error) string {
	if errors.Is(err, ErrRevoked) {
		return instrumentation.RefreshResultRevoked
	}
	return instrumentation.RefreshResultFailure
}
