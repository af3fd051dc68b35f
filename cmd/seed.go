package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/outlook-mcp/internal/auth"
	"github.com/teemow/outlook-mcp/internal/config"
	"github.com/teemow/outlook-mcp/internal/database"
)

func newSeedCmd() *cobra.Command {
	var (
		userID       string
		accessToken  string
		refreshToken string
		tenant       string
		expiresIn    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert an encrypted credential row for development",
		Long: `Seed encrypts the given Microsoft tokens with the configured key and
inserts an active credential row for the user.

Intended for local development and testing. In production, credential rows
are written by the connection service that runs the interactive OAuth flow.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), userID, accessToken, refreshToken, tenant, expiresIn)
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "User identifier (default: a generated UUID)")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "Microsoft access token (required)")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Microsoft refresh token (required)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant recorded in the provider metadata")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", time.Hour, "Access token lifetime from now")
	_ = cmd.MarkFlagRequired("access-token")
	_ = cmd.MarkFlagRequired("refresh-token")

	return cmd
}

func runSeed(ctx context.Context, userID, accessToken, refreshToken, tenant string, expiresIn time.Duration) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EncryptionKey == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}

	codec, err := auth.NewCodecFromBase64(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid encryption key: %w", err)
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	accessCipher, err := codec.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshCipher, err := codec.Encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	if userID == "" {
		userID = uuid.NewString()
	}

	metadata, err := seedMetadata(tenant)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	cred := &auth.Credential{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Provider:           config.Provider,
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		ExpiresAt:          time.Now().UTC().Add(expiresIn),
		ProviderMetadata:   metadata,
		IsActive:           true,
	}

	store := auth.NewStore(db)
	if err := store.Insert(ctx, cred); err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	fmt.Printf("Seeded credential %s for user %s (expires %s)\n",
		cred.ID, userID, cred.ExpiresAt.Format(time.RFC3339))
	return nil
}

// seedMetadata builds the provider metadata blob for a seeded credential.
// The tenant lives under the tenant_id key, which is what the refresher
// reads when resolving the token endpoint.
func seedMetadata(tenant string) (json.RawMessage, error) {
	if tenant == "" {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(map[string]string{"tenant_id": tenant})
}
