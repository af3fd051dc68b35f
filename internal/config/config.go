// Package config loads service configuration from the environment.
//
// A .env file is honored when present so local development does not need
// exported variables. All settings are read once at process start; the
// resulting Config is treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Provider identifies the single credential provider this service manages.
const Provider = "microsoft"

// Config holds all runtime settings for the service.
type Config struct {
	// ServerHost and ServerPort define the streamable HTTP listen address.
	ServerHost string
	ServerPort int

	// DatabaseURL is the Postgres connection string for the credential store.
	DatabaseURL string

	// EncryptionKey is the base64-encoded 32-byte AES key protecting stored
	// tokens. Never logged.
	EncryptionKey string

	// Microsoft OAuth client registration used for refresh-token grants.
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenantID     string

	// TrustUserIDHeader enables identity extraction from the X-User-ID
	// header. When disabled only DefaultUserID resolves, so without one the
	// HTTP transport rejects all tool traffic.
	TrustUserIDHeader bool

	// DefaultUserID is the static identity used by the stdio transport,
	// where no upstream header exists.
	DefaultUserID string

	// RefreshSkew is subtracted from the stored expiry when deciding whether
	// an access token is still usable.
	RefreshSkew time.Duration

	// RefreshTimeout bounds a single refresh-token grant round trip.
	RefreshTimeout time.Duration

	// GraphTimeout bounds a single Microsoft Graph request.
	GraphTimeout time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// OData $select field lists for message list vs detail fetches.
	EmailListFields   string
	EmailDetailFields string
}

// TokenURL returns the tenant-scoped Microsoft token endpoint.
func (c *Config) TokenURL() string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.MicrosoftTenantID)
}

// ListenAddr returns the host:port pair for the streamable HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// Load reads configuration from the environment, honoring a local .env file
// when present. It does not validate credential settings; call Validate
// before serving.
func Load() *Config {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	return &Config{
		ServerHost:            getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:            getEnvInt("SERVER_PORT", 8002),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		EncryptionKey:         getEnv("TOKEN_ENCRYPTION_KEY", ""),
		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftTenantID:     getEnv("MICROSOFT_TENANT_ID", "common"),
		TrustUserIDHeader:     getEnvBool("TRUST_X_USER_ID", true),
		DefaultUserID:         getEnv("OUTLOOK_USER_ID", ""),
		RefreshSkew:           getEnvDuration("TOKEN_REFRESH_SKEW", 5*time.Minute),
		RefreshTimeout:        getEnvDuration("TOKEN_REFRESH_TIMEOUT", 30*time.Second),
		GraphTimeout:          getEnvDuration("GRAPH_TIMEOUT", 30*time.Second),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		EmailListFields:       getEnv("EMAIL_LIST_FIELDS", "id,subject,from,toRecipients,ccRecipients,receivedDateTime,bodyPreview,hasAttachments,importance,isRead"),
		EmailDetailFields:     getEnv("EMAIL_DETAIL_FIELDS", "id,subject,from,toRecipients,ccRecipients,bccRecipients,receivedDateTime,bodyPreview,body,hasAttachments,importance,isRead"),
	}
}

// Validate checks that every setting required for serving is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}
	if c.MicrosoftClientID == "" {
		return fmt.Errorf("MICROSOFT_CLIENT_ID is required")
	}
	if c.MicrosoftClientSecret == "" {
		return fmt.Errorf("MICROSOFT_CLIENT_SECRET is required")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerPort)
	}
	if c.RefreshSkew < 0 {
		return fmt.Errorf("token refresh skew must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
