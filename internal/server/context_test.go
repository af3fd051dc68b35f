package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/outlook-mcp/internal/instrumentation"
)

// fakeTokenResolver returns canned tokens or errors per user.
type fakeTokenResolver struct {
	tokens map[string]string
	err    error
	calls  int
}

func (f *fakeTokenResolver) GetValidToken(_ context.Context, userID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	token, ok := f.tokens[userID]
	if !ok {
		return "", errors.New("unexpected user")
	}
	return token, nil
}

func TestIdentityContext_RoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "tok-1")

	userID, ok := UserIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)

	token, ok := AccessTokenFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
}

func TestIdentityContext_AbsentValues(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = AccessTokenFromContext(context.Background())
	assert.False(t, ok)
}

func TestServerContext_Identity_FromRequestContext(t *testing.T) {
	resolver := &fakeTokenResolver{tokens: map[string]string{}}
	sc := NewServerContext(context.Background(), resolver, nil, nil)

	ctx := WithIdentity(context.Background(), "user-1", "tok-1")
	userID, token, err := sc.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "tok-1", token)
	assert.Zero(t, resolver.calls, "identity in context must not trigger a lookup")
}

func TestServerContext_Identity_DefaultUser(t *testing.T) {
	resolver := &fakeTokenResolver{tokens: map[string]string{"dev-user": "dev-token"}}
	sc := NewServerContext(context.Background(), resolver, nil, nil)
	sc.SetDefaultUserID("dev-user")

	userID, token, err := sc.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-user", userID)
	assert.Equal(t, "dev-token", token)
	assert.Equal(t, 1, resolver.calls)
}

func TestServerContext_Identity_NoIdentity(t *testing.T) {
	sc := NewServerContext(context.Background(), &fakeTokenResolver{}, nil, nil)

	_, _, err := sc.Identity(context.Background())
	require.Error(t, err)
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, nil, nil)
	require.False(t, sc.IsShutdown())

	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())

	select {
	case <-sc.Context().Done():
	default:
		t.Error("server context should be canceled after shutdown")
	}

	// Shutdown is idempotent.
	require.NoError(t, sc.Shutdown())
}

func TestServerContext_MetricsNeverNil(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, nil, nil)
	require.NotNil(t, sc.Metrics())

	sc.SetMetrics(nil)
	assert.NotNil(t, sc.Metrics())

	custom := &instrumentation.Metrics{}
	sc.SetMetrics(custom)
	assert.Same(t, custom, sc.Metrics())
}
