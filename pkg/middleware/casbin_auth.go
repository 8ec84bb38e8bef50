package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	mongodbadapter "github.com/casbin/mongodb-adapter/v3"
	"github.com/danielgtaylor/huma/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

// PolicyCollection stores casbin rules
const PolicyCollection = "casbin_policies"

// rbacModel grants (role, resource, action); "*" matches any resource or action.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// DefaultPolicies are seeded at startup when missing
var DefaultPolicies = [][]string{
	{RoleUser, "policies", "read"},
	{RoleUser, "policies", "write"},
	{RoleUser, "policies", "trigger"},
	{RoleUser, "history", "read"},
	{RolePipeline, "history", "write"},
	{RolePipeline, "policies", "eligible"},
	{RoleAdmin, "*", "*"},
}

// CasbinAuthorizer answers role/resource/action questions
type CasbinAuthorizer struct {
	enforcer *casbin.Enforcer
}

// NewCasbinAuthorizer creates an enforcer whose rules persist in MongoDB
func NewCasbinAuthorizer(mongoClient *mongo.Client, dbName string) (*CasbinAuthorizer, error) {
	adapter, err := mongodbadapter.NewAdapterByDB(mongoClient, &mongodbadapter.AdapterConfig{
		DatabaseName:   dbName,
		CollectionName: PolicyCollection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Casbin MongoDB adapter: %w", err)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Casbin model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create Casbin enforcer: %w", err)
	}
	enforcer.EnableAutoSave(true)

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load Casbin policies: %w", err)
	}

	slog.Info("Casbin authorization initialized",
		slog.String("adapter", "mongodb"),
		slog.String("collection", PolicyCollection),
	)

	return &CasbinAuthorizer{enforcer: enforcer}, nil
}

// NewMemoryCasbinAuthorizer creates an enforcer without persistence
func NewMemoryCasbinAuthorizer() (*CasbinAuthorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create Casbin enforcer: %w", err)
	}
	return &CasbinAuthorizer{enforcer: enforcer}, nil
}

// SeedDefaultPolicies adds every default rule that is not already present
func (c *CasbinAuthorizer) SeedDefaultPolicies() error {
	added := 0
	for _, rule := range DefaultPolicies {
		ok, err := c.enforcer.AddPolicy(rule[0], rule[1], rule[2])
		if err != nil {
			return fmt.Errorf("failed to add policy %v: %w", rule, err)
		}
		if ok {
			added++
		}
	}
	if added > 0 {
		slog.Info("Seeded default authorization policies", slog.Int("added", added))
	}
	return nil
}

// GrantRole makes subject inherit every rule of role
func (c *CasbinAuthorizer) GrantRole(subject, role string) error {
	if _, err := c.enforcer.AddGroupingPolicy(subject, role); err != nil {
		return fmt.Errorf("failed to grant role %s to %s: %w", role, subject, err)
	}
	return nil
}

func (c *CasbinAuthorizer) Enforce(role, resource, action string) (bool, error) {
	return c.enforcer.Enforce(role, resource, action)
}

// Authorize returns a huma 403 when the user's role lacks resource:action
func (c *CasbinAuthorizer) Authorize(ctx context.Context, user *AuthenticatedUser, resource, action string) error {
	allowed, err := c.Enforce(user.Role, resource, action)
	if err != nil {
		slog.ErrorContext(ctx, "Permission check failed",
			slog.String("user_id", user.UserID),
			slog.String("error", err.Error()),
		)
		return huma.Error500InternalServerError("Permission check failed")
	}
	if !allowed {
		return huma.Error403Forbidden(fmt.Sprintf("Permission denied: %s:%s", resource, action))
	}
	return nil
}
