package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthCookieName is the cookie the web frontend stores the session token in
const AuthCookieName = "intuneget_auth_token"

// AuthContextKey key for storing user info in context
type AuthContextKey string

const (
	AuthContextKeyUser = AuthContextKey("authenticated_user")
)

// Roles known to the default authorization policy
const (
	RoleUser     = "user"
	RolePipeline = "pipeline"
	RoleAdmin    = "admin"
)

// AuthenticatedUser is the identity carried by a validated token
type AuthenticatedUser struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the user may act on other users' resources
func (u *AuthenticatedUser) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// AuthError is returned for missing or malformed credentials
type AuthError struct {
	message string
}

func (e *AuthError) Error() string {
	return e.message
}

// JWTValidator interface for JWT validation
type JWTValidator interface {
	ValidateJWT(token string) (*AuthenticatedUser, error)
}

// JWTService signs and validates HS256 session tokens
type JWTService struct {
	secret []byte
	issuer string
}

func NewJWTService(secret []byte, issuer string) *JWTService {
	return &JWTService{secret: secret, issuer: issuer}
}

// GenerateJWT creates a token for the given identity valid for ttl
func (s *JWTService) GenerateJWT(userID, tenantID, role string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := jwt.MapClaims{
		"user_id":   userID,
		"tenant_id": tenantID,
		"role":      role,
		"exp":       expiresAt.Unix(),
		"iat":       now.Unix(),
		"iss":       s.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateJWT validates a token and returns the identity it carries
func (s *JWTService) ValidateJWT(tokenString string) (*AuthenticatedUser, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid JWT token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid JWT claims")
	}

	userID, _ := claims["user_id"].(string)
	tenantID, _ := claims["tenant_id"].(string)
	role, _ := claims["role"].(string)
	if userID == "" {
		return nil, errors.New("JWT is missing user_id claim")
	}
	if role == "" {
		role = RoleUser
	}

	return &AuthenticatedUser{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
	}, nil
}

// AuthMiddleware provides authentication utilities for API operations
type AuthMiddleware struct {
	jwtValidator JWTValidator
}

func NewAuthMiddleware(validator JWTValidator) *AuthMiddleware {
	return &AuthMiddleware{
		jwtValidator: validator,
	}
}

// ValidateAuthFromHeaders validates the bearer token, falling back to the session cookie
func (m *AuthMiddleware) ValidateAuthFromHeaders(authHeader, cookieHeader string) (*AuthenticatedUser, error) {
	token := ExtractTokenFromHeaders(authHeader)
	if token == "" && cookieHeader != "" {
		token = ExtractTokenFromCookie(cookieHeader)
	}

	if token == "" {
		return nil, huma.Error401Unauthorized("Authentication required")
	}

	user, err := m.jwtValidator.ValidateJWT(token)
	if err != nil {
		return nil, huma.Error401Unauthorized("Invalid authentication token", err)
	}

	return user, nil
}

// ExtractTokenFromHeaders extracts JWT token from Authorization header string
func ExtractTokenFromHeaders(authHeader string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// ExtractTokenFromCookie extracts JWT token from cookie header string
func ExtractTokenFromCookie(cookieHeader string) string {
	for _, cookie := range strings.Split(cookieHeader, ";") {
		cookie = strings.TrimSpace(cookie)
		if strings.HasPrefix(cookie, AuthCookieName+"=") {
			return strings.TrimPrefix(cookie, AuthCookieName+"=")
		}
	}
	return ""
}

// WithAuthenticatedUser stores the user in the context
func WithAuthenticatedUser(ctx context.Context, user *AuthenticatedUser) context.Context {
	return context.WithValue(ctx, AuthContextKeyUser, user)
}

// GetAuthenticatedUser retrieves authenticated user from standard context
func GetAuthenticatedUser(ctx context.Context) *AuthenticatedUser {
	if user, ok := ctx.Value(AuthContextKeyUser).(*AuthenticatedUser); ok {
		return user
	}
	return nil
}
