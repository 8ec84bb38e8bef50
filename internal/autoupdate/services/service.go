package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"intuneget/internal/autoupdate/models"
	"intuneget/pkg/config"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// AutoUpdateService owns the safety gate, the update trigger and policy management
type AutoUpdateService struct {
	store  Store
	safety config.SafetyConfig
	now    func() time.Time
	newID  func() string
	tracer trace.Tracer
}

// Option customizes an AutoUpdateService
type Option func(*AutoUpdateService)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *AutoUpdateService) { s.now = now }
}

// WithIDGenerator replaces the UUID generator
func WithIDGenerator(newID func() string) Option {
	return func(s *AutoUpdateService) { s.newID = newID }
}

func NewAutoUpdateService(store Store, safety config.SafetyConfig, opts ...Option) *AutoUpdateService {
	s := &AutoUpdateService{
		store:  store,
		safety: safety,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		tracer: otel.Tracer("intuneget/autoupdate"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SafetyConfig returns the active safety configuration
func (s *AutoUpdateService) SafetyConfig() config.SafetyConfig {
	return s.safety
}

// CreatePolicy opts an app into the service. Type defaults to auto_update.
func (s *AutoUpdateService) CreatePolicy(ctx context.Context, policy *models.AppUpdatePolicy) (*models.AppUpdatePolicy, error) {
	now := s.now()
	policy.ID = s.newID()
	if policy.PolicyType == "" {
		policy.PolicyType = models.PolicyTypeAutoUpdate
	}
	policy.ConsecutiveFailures = 0
	policy.LastAutoUpdateAt = nil
	policy.LastAutoUpdateVersion = ""
	policy.InFlightUntil = nil
	policy.CreatedAt = now
	policy.UpdatedAt = now

	if err := s.store.CreatePolicy(ctx, policy); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Auto-update policy created",
		slog.String("policy_id", policy.ID),
		slog.String("user_id", policy.UserID),
		slog.String("winget_id", policy.WingetID),
	)
	return policy, nil
}

func (s *AutoUpdateService) GetPolicy(ctx context.Context, id string) (*models.AppUpdatePolicy, error) {
	return s.store.GetPolicy(ctx, id)
}

func (s *AutoUpdateService) ListPolicies(ctx context.Context, filter models.PolicyFilter) ([]models.AppUpdatePolicy, error) {
	return s.store.ListPolicies(ctx, filter)
}

// UpdatePolicy applies an operator edit. Re-enabling a policy resets its failure counter.
func (s *AutoUpdateService) UpdatePolicy(ctx context.Context, id string, patch models.PolicyPatch) (*models.AppUpdatePolicy, error) {
	current, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.IsEnabled != nil && *patch.IsEnabled && (!current.IsEnabled || current.ConsecutiveFailures > 0) {
		patch.ResetFailures = true
	}

	updated, err := s.store.UpdatePolicy(ctx, id, patch, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to update policy %s: %w", id, err)
	}

	if patch.ResetFailures {
		slog.InfoContext(ctx, "Auto-update policy re-enabled",
			slog.String("policy_id", id),
			slog.Int("previous_failures", current.ConsecutiveFailures),
		)
	}
	return updated, nil
}

// HealthCheck pings the store when it supports it
func (s *AutoUpdateService) HealthCheck(ctx context.Context) error {
	if hc, ok := s.store.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// GetHistory returns one history record
func (s *AutoUpdateService) GetHistory(ctx context.Context, id string) (*models.AutoUpdateHistory, error) {
	return s.store.GetHistory(ctx, id)
}

// ListHistory returns the newest history records of a policy
func (s *AutoUpdateService) ListHistory(ctx context.Context, policyID string, limit int) ([]models.AutoUpdateHistory, error) {
	return s.store.ListHistory(ctx, policyID, limit)
}

// GetEligiblePolicies returns enabled auto_update policies below the failure limit,
// optionally restricted to one user and/or tenant
func (s *AutoUpdateService) GetEligiblePolicies(ctx context.Context, userID, tenantID string) ([]models.AppUpdatePolicy, error) {
	policies, err := s.store.FindEligiblePolicies(ctx, userID, tenantID, s.safety.MaxConsecutiveFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible policies: %w", err)
	}
	return policies, nil
}
