package middleware

import "context"

// PermissionMiddleware combines token validation and RBAC checks for huma handlers
type PermissionMiddleware struct {
	auth       *AuthMiddleware
	authorizer *CasbinAuthorizer
}

func NewPermissionMiddleware(auth *AuthMiddleware, authorizer *CasbinAuthorizer) *PermissionMiddleware {
	return &PermissionMiddleware{auth: auth, authorizer: authorizer}
}

// RequirePermission authenticates the caller and checks resource:action for their role
func (p *PermissionMiddleware) RequirePermission(ctx context.Context, authHeader, cookieHeader, resource, action string) (*AuthenticatedUser, error) {
	user, err := p.auth.ValidateAuthFromHeaders(authHeader, cookieHeader)
	if err != nil {
		return nil, err
	}
	if err := p.authorizer.Authorize(ctx, user, resource, action); err != nil {
		return nil, err
	}
	return user, nil
}
