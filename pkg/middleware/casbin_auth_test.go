package middleware

import (
	"context"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededAuthorizer(t *testing.T) *CasbinAuthorizer {
	t.Helper()
	authz, err := NewMemoryCasbinAuthorizer()
	require.NoError(t, err)
	require.NoError(t, authz.SeedDefaultPolicies())
	return authz
}

func TestDefaultPolicies(t *testing.T) {
	authz := newSeededAuthorizer(t)

	tests := []struct {
		role, resource, action string
		want                   bool
	}{
		{RoleUser, "policies", "read", true},
		{RoleUser, "policies", "trigger", true},
		{RoleUser, "history", "read", true},
		{RoleUser, "history", "write", false},
		{RoleUser, "policies", "eligible", false},
		{RoleUser, "sweep", "run", false},
		{RolePipeline, "history", "write", true},
		{RolePipeline, "policies", "eligible", true},
		{RolePipeline, "policies", "write", false},
		{RoleAdmin, "sweep", "run", true},
		{RoleAdmin, "history", "write", true},
		{"stranger", "policies", "read", false},
	}

	for _, tt := range tests {
		allowed, err := authz.Enforce(tt.role, tt.resource, tt.action)
		require.NoError(t, err)
		assert.Equal(t, tt.want, allowed, "%s %s:%s", tt.role, tt.resource, tt.action)
	}
}

func TestSeedDefaultPoliciesIsIdempotent(t *testing.T) {
	authz := newSeededAuthorizer(t)
	require.NoError(t, authz.SeedDefaultPolicies())

	policies, err := authz.enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, len(DefaultPolicies))
}

func TestGrantRole(t *testing.T) {
	authz := newSeededAuthorizer(t)
	require.NoError(t, authz.GrantRole("operator", RoleAdmin))

	allowed, err := authz.Enforce("operator", "sweep", "run")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAuthorize(t *testing.T) {
	authz := newSeededAuthorizer(t)
	ctx := context.Background()

	assert.NoError(t, authz.Authorize(ctx, &AuthenticatedUser{UserID: "u", Role: RoleUser}, "policies", "read"))

	err := authz.Authorize(ctx, &AuthenticatedUser{UserID: "u", Role: RoleUser}, "sweep", "run")
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 403, se.GetStatus())
}
