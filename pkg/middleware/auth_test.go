package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc := NewJWTService([]byte("test-secret"), "intuneget")

	token, expiresAt, err := svc.GenerateJWT("user-1", "tenant-1", RolePipeline, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	user, err := svc.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, &AuthenticatedUser{UserID: "user-1", TenantID: "tenant-1", Role: RolePipeline}, user)
}

func TestJWTServiceRejectsBadTokens(t *testing.T) {
	svc := NewJWTService([]byte("test-secret"), "intuneget")

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService([]byte("other-secret"), "intuneget")
		token, _, err := other.GenerateJWT("user-1", "tenant-1", RoleUser, time.Hour)
		require.NoError(t, err)
		_, err = svc.ValidateJWT(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService([]byte("test-secret"), "someone-else")
		token, _, err := other.GenerateJWT("user-1", "tenant-1", RoleUser, time.Hour)
		require.NoError(t, err)
		_, err = svc.ValidateJWT(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, _, err := svc.GenerateJWT("user-1", "tenant-1", RoleUser, -time.Minute)
		require.NoError(t, err)
		_, err = svc.ValidateJWT(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateJWT("not-a-jwt")
		assert.Error(t, err)
	})
}

func TestJWTServiceDefaultsRole(t *testing.T) {
	svc := NewJWTService([]byte("test-secret"), "intuneget")
	token, _, err := svc.GenerateJWT("user-1", "tenant-1", "", time.Hour)
	require.NoError(t, err)

	user, err := svc.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, user.Role)
}

func TestValidateAuthFromHeaders(t *testing.T) {
	svc := NewJWTService([]byte("test-secret"), "intuneget")
	token, _, err := svc.GenerateJWT("user-1", "tenant-1", RoleUser, time.Hour)
	require.NoError(t, err)

	auth := NewAuthMiddleware(svc)

	tests := []struct {
		name    string
		header  string
		cookie  string
		wantErr bool
	}{
		{name: "bearer header", header: "Bearer " + token},
		{name: "session cookie", cookie: "theme=dark; " + AuthCookieName + "=" + token},
		{name: "missing", wantErr: true},
		{name: "wrong scheme", header: "Basic " + token, wantErr: true},
		{name: "invalid token", header: "Bearer nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := auth.ValidateAuthFromHeaders(tt.header, tt.cookie)
			if tt.wantErr {
				require.Error(t, err)
				var se huma.StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, 401, se.GetStatus())
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", user.UserID)
		})
	}
}

func TestAuthenticatedUserContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetAuthenticatedUser(ctx))

	user := &AuthenticatedUser{UserID: "u", Role: RoleAdmin}
	ctx = WithAuthenticatedUser(ctx, user)
	assert.Same(t, user, GetAuthenticatedUser(ctx))
	assert.True(t, GetAuthenticatedUser(ctx).IsAdmin())
}
