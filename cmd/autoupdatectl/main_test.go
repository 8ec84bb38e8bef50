package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"intuneget/internal/autoupdate/services"
	pkgMiddleware "intuneget/pkg/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefusedErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("command failed: %w", &refusedError{fmt.Errorf("sweep not started: %w", services.ErrSweepInProgress)})

	var refused *refusedError
	require.True(t, errors.As(err, &refused))
	assert.ErrorIs(t, err, services.ErrSweepInProgress)
}

func TestIssuedTokenValidates(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	t.Setenv("JWT_ISSUER", "intuneget-test")

	token, expiresAt, err := newJWTService().GenerateJWT("user-1", "tenant-1", pkgMiddleware.RolePipeline, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	user, err := newJWTService().ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.UserID)
	assert.Equal(t, "tenant-1", user.TenantID)
	assert.Equal(t, pkgMiddleware.RolePipeline, user.Role)
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"eligible", "sweep", "complete", "fail", "enable", "token", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
