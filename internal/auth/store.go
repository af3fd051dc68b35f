package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Credential is one row of the oauth_connections table. Token fields hold
// ciphertext; plaintext exists only inside a decrypt-use-discard cycle in
// the token service.
type Credential struct {
	ID                 string          `db:"id"`
	UserID             string          `db:"user_id"`
	Provider           string          `db:"provider"`
	AccessTokenCipher  string          `db:"access_token"`
	RefreshTokenCipher string          `db:"refresh_token"`
	ExpiresAt          time.Time       `db:"expires_at"`
	ProviderMetadata   json.RawMessage `db:"provider_metadata"`
	IsActive           bool            `db:"is_active"`
	LastUsedAt         sql.NullTime    `db:"last_used_at"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// Store reads and writes credential rows in Postgres. It owns persistence
// exclusively; the token service is the only mutating caller.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a store backed by the given database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const credentialColumns = `id, user_id, provider, access_token, refresh_token,
	       expires_at, provider_metadata, is_active, last_used_at, created_at, updated_at`

// Load returns the active credential for (userID, provider).
// Inactive rows are invisible; their absence reports ErrNotFound.
func (s *Store) Load(ctx context.Context, userID, provider string) (*Credential, error) {
	var cred Credential
	query := `
		SELECT ` + credentialColumns + `
		FROM oauth_connections
		WHERE user_id = $1 AND provider = $2 AND is_active = true
		ORDER BY updated_at DESC
		LIMIT 1`

	if err := s.db.GetContext(ctx, &cred, query, userID, provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: load: %v", ErrPersistenceError, err)
	}
	return &cred, nil
}

// Save rewrites the mutable fields of an existing row, keyed by id. The
// single UPDATE keeps the write atomic from a concurrent reader's
// perspective; no reader observes a partially updated row.
func (s *Store) Save(ctx context.Context, cred *Credential) error {
	query := `
		UPDATE oauth_connections
		SET access_token = $1, refresh_token = $2, expires_at = $3, updated_at = $4
		WHERE id = $5`

	result, err := s.db.ExecContext(ctx, query,
		cred.AccessTokenCipher,
		cred.RefreshTokenCipher,
		cred.ExpiresAt,
		time.Now().UTC(),
		cred.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: save: %v", ErrPersistenceError, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: save: %v", ErrPersistenceError, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: save: credential %s no longer exists", ErrPersistenceError, cred.ID)
	}
	return nil
}

// TouchLastUsed records that a credential was handed out. Failures are
// reported but callers treat them as advisory; a missed touch never blocks
// a token lookup.
func (s *Store) TouchLastUsed(ctx context.Context, id string) error {
	query := `UPDATE oauth_connections SET last_used_at = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("%w: touch: %v", ErrPersistenceError, err)
	}
	return nil
}

// Insert creates a new credential row. Used by the development seeding
// command; the production grant-issuance flow lives outside this service.
// The partial unique index on (user_id, provider) WHERE is_active rejects a
// second active row for the same pair.
func (s *Store) Insert(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO oauth_connections (id, user_id, provider, access_token, refresh_token,
		                               expires_at, provider_metadata, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.UserID,
		cred.Provider,
		cred.AccessTokenCipher,
		cred.RefreshTokenCipher,
		cred.ExpiresAt,
		cred.ProviderMetadata,
		cred.IsActive,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", ErrPersistenceError, err)
	}
	return nil
}

// Deactivate soft-revokes a credential. Deactivated rows stop resolving via
// Load; nothing in this service deletes rows.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE oauth_connections SET is_active = false, updated_at = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("%w: deactivate: %v", ErrPersistenceError, err)
	}
	return nil
}

// Ping verifies store connectivity for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrPersistenceError, err)
	}
	return nil
}
