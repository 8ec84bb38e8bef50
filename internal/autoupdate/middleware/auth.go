package middleware

import (
	"context"

	"intuneget/internal/autoupdate/models"
	pkgMiddleware "intuneget/pkg/middleware"

	"github.com/danielgtaylor/huma/v2"
)

// Resources and actions checked by the auto-update routes
const (
	ResourcePolicies = "policies"
	ResourceHistory  = "history"
	ResourceSweep    = "sweep"

	ActionRead     = "read"
	ActionWrite    = "write"
	ActionTrigger  = "trigger"
	ActionEligible = "eligible"
	ActionRun      = "run"
)

// AuthMiddleware provides authentication and authorization for the auto-update routes
type AuthMiddleware struct {
	permissions *pkgMiddleware.PermissionMiddleware
}

func NewAuthMiddleware(permissions *pkgMiddleware.PermissionMiddleware) *AuthMiddleware {
	return &AuthMiddleware{permissions: permissions}
}

// RequirePermission authenticates the caller and checks resource:action
func (m *AuthMiddleware) RequirePermission(ctx context.Context, authHeader, cookieHeader, resource, action string) (*pkgMiddleware.AuthenticatedUser, error) {
	return m.permissions.RequirePermission(ctx, authHeader, cookieHeader, resource, action)
}

// RequirePolicyAccess allows admins and the policy owner
func RequirePolicyAccess(user *pkgMiddleware.AuthenticatedUser, policy *models.AppUpdatePolicy) error {
	if user.IsAdmin() || user.UserID == policy.UserID {
		return nil
	}
	return huma.Error403Forbidden("Access to this policy is not allowed")
}
