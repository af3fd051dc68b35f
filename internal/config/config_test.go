package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServerHost:            "127.0.0.1",
		ServerPort:            8002,
		DatabaseURL:           "postgres://localhost:5432/outlook?sslmode=disable",
		EncryptionKey:         "c2VjcmV0LWtleS1mb3ItdGVzdGluZy0zMi1ieXRlcyE=",
		MicrosoftClientID:     "client-id",
		MicrosoftClientSecret: "client-secret",
		MicrosoftTenantID:     "common",
		RefreshSkew:           5 * time.Minute,
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_HOST", "SERVER_PORT", "MICROSOFT_TENANT_ID",
		"TRUST_X_USER_ID", "TOKEN_REFRESH_SKEW", "TOKEN_REFRESH_TIMEOUT",
		"EMAIL_LIST_FIELDS", "EMAIL_DETAIL_FIELDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "0.0.0.0", cfg.ServerHost)
	assert.Equal(t, 8002, cfg.ServerPort)
	assert.Equal(t, "common", cfg.MicrosoftTenantID)
	assert.True(t, cfg.TrustUserIDHeader)
	assert.Equal(t, 5*time.Minute, cfg.RefreshSkew)
	assert.Equal(t, 30*time.Second, cfg.RefreshTimeout)
	assert.Contains(t, cfg.EmailListFields, "bodyPreview")
	assert.Contains(t, cfg.EmailDetailFields, "body")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("MICROSOFT_TENANT_ID", "contoso")
	t.Setenv("TOKEN_REFRESH_SKEW", "2m")
	t.Setenv("TRUST_X_USER_ID", "false")

	cfg := Load()

	assert.Equal(t, 9100, cfg.ServerPort)
	assert.Equal(t, "contoso", cfg.MicrosoftTenantID)
	assert.Equal(t, 2*time.Minute, cfg.RefreshSkew)
	assert.False(t, cfg.TrustUserIDHeader)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("TOKEN_REFRESH_SKEW", "soon")

	cfg := Load()

	assert.Equal(t, 8002, cfg.ServerPort)
	assert.Equal(t, 5*time.Minute, cfg.RefreshSkew)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database URL",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "DATABASE_URL",
		},
		{
			name:    "missing encryption key",
			mutate:  func(c *Config) { c.EncryptionKey = "" },
			wantErr: "TOKEN_ENCRYPTION_KEY",
		},
		{
			name:    "missing client id",
			mutate:  func(c *Config) { c.MicrosoftClientID = "" },
			wantErr: "MICROSOFT_CLIENT_ID",
		},
		{
			name:    "missing client secret",
			mutate:  func(c *Config) { c.MicrosoftClientSecret = "" },
			wantErr: "MICROSOFT_CLIENT_SECRET",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.ServerPort = 70000 },
			wantErr: "server port",
		},
		{
			name:    "negative skew",
			mutate:  func(c *Config) { c.RefreshSkew = -time.Minute },
			wantErr: "refresh skew",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTokenURL(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "https://login.microsoftonline.com/common/oauth2/v2.0/token", cfg.TokenURL())

	cfg.MicrosoftTenantID = "contoso"
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", cfg.TokenURL())
}

func TestListenAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "127.0.0.1:8002", cfg.ListenAddr())
}
