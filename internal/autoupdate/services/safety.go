package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"intuneget/internal/autoupdate/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Names of the gate checks, in evaluation order
const (
	CheckEligibility      = "eligibility"
	CheckDeploymentConfig = "deployment_config"
	CheckPriorDeployment  = "prior_deployment"
	CheckTenantRateLimit  = "tenant_rate_limit"
	CheckUserRateLimit    = "user_rate_limit"
	CheckCooldown         = "cooldown"
	CheckTenantConsent    = "tenant_consent"
)

const rateLimitWindow = time.Hour

// SafetyCheckResult is the gate decision. Skipped results are transient and safe to
// retry later; refusals with Skipped=false are configuration problems.
type SafetyCheckResult struct {
	Allowed           bool   `json:"allowed"`
	Skipped           bool   `json:"skipped"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterMinutes int    `json:"retry_after_minutes,omitempty"`
	Check             string `json:"check,omitempty"`
}

func allow() SafetyCheckResult {
	return SafetyCheckResult{Allowed: true}
}

func skip(check, reason string, retryAfterMinutes int) SafetyCheckResult {
	return SafetyCheckResult{Skipped: true, Reason: reason, RetryAfterMinutes: retryAfterMinutes, Check: check}
}

func refuse(check, reason string) SafetyCheckResult {
	return SafetyCheckResult{Reason: reason, Check: check}
}

// CheckSafety evaluates the five preconditions in order and stops at the first
// failure. It only reads; the returned error is reserved for store failures.
func (s *AutoUpdateService) CheckSafety(ctx context.Context, policy *models.AppUpdatePolicy) (SafetyCheckResult, error) {
	ctx, span := s.tracer.Start(ctx, "autoupdate.safety_gate", trace.WithAttributes(
		attribute.String("policy.id", policy.ID),
	))
	defer span.End()

	result, err := s.evaluate(ctx, policy)
	if err != nil {
		span.RecordError(err)
		return SafetyCheckResult{}, err
	}

	span.SetAttributes(attribute.Bool("gate.allowed", result.Allowed))
	if !result.Allowed {
		span.SetAttributes(attribute.String("gate.check", result.Check))
		gateBlockedTotal.WithLabelValues(result.Check).Inc()
	}
	return result, nil
}

func (s *AutoUpdateService) evaluate(ctx context.Context, policy *models.AppUpdatePolicy) (SafetyCheckResult, error) {
	if policy.PolicyType != models.PolicyTypeAutoUpdate ||
		!policy.IsEnabled ||
		policy.ConsecutiveFailures >= s.safety.MaxConsecutiveFailures {
		return skip(CheckEligibility, "policy disabled or ineligible", 0), nil
	}

	if policy.DeploymentConfig == nil {
		return refuse(CheckDeploymentConfig, "policy has no stored deployment configuration"), nil
	}

	if s.safety.RequirePriorDeployment && policy.OriginalUploadHistoryID == "" {
		return refuse(CheckPriorDeployment, "policy has no prior successful manual deployment"), nil
	}

	if result, err := s.checkRateLimits(ctx, policy); err != nil || !result.Allowed {
		return result, err
	}

	if s.safety.VerifyConsentBeforeDeployment {
		consent, err := s.store.GetTenantConsent(ctx, policy.TenantID)
		switch {
		case errors.Is(err, ErrConsentNotFound):
			return refuse(CheckTenantConsent, fmt.Sprintf("no admin consent record for tenant %s", policy.TenantID)), nil
		case err != nil:
			return SafetyCheckResult{}, fmt.Errorf("failed to read tenant consent: %w", err)
		case !consent.IsActive:
			return refuse(CheckTenantConsent, fmt.Sprintf("admin consent for tenant %s is not active", policy.TenantID)), nil
		}
	}

	return allow(), nil
}

func (s *AutoUpdateService) checkRateLimits(ctx context.Context, policy *models.AppUpdatePolicy) (SafetyCheckResult, error) {
	limits := s.safety.RateLimits
	now := s.now()
	since := now.Add(-rateLimitWindow)
	retryAfter := int(rateLimitWindow / time.Minute)

	tenantCount, err := s.store.CountCompletedForTenantSince(ctx, policy.TenantID, since)
	if err != nil {
		return SafetyCheckResult{}, fmt.Errorf("failed to count tenant updates: %w", err)
	}
	if tenantCount >= int64(limits.MaxUpdatesPerTenant) {
		return skip(CheckTenantRateLimit,
			fmt.Sprintf("tenant update limit reached: %d completed updates in the last hour (max %d)", tenantCount, limits.MaxUpdatesPerTenant),
			retryAfter), nil
	}

	userCount, err := s.store.CountForUserSince(ctx, policy.UserID, since)
	if err != nil {
		return SafetyCheckResult{}, fmt.Errorf("failed to count user updates: %w", err)
	}
	if userCount >= int64(limits.MaxUpdatesPerHour) {
		return skip(CheckUserRateLimit,
			fmt.Sprintf("user hourly update limit reached: %d updates in the last hour (max %d)", userCount, limits.MaxUpdatesPerHour),
			retryAfter), nil
	}

	// system-wide debounce across every policy, user and tenant
	if cooldown := s.safety.CooldownWindow(); cooldown > 0 {
		latest, err := s.store.LatestTriggeredAt(ctx)
		if err != nil {
			return SafetyCheckResult{}, fmt.Errorf("failed to read latest trigger time: %w", err)
		}
		if latest != nil {
			if elapsed := now.Sub(*latest); elapsed < cooldown {
				remaining := int(math.Ceil((cooldown - elapsed).Minutes()))
				if remaining < 1 {
					remaining = 1
				}
				return skip(CheckCooldown,
					fmt.Sprintf("cooldown active: an update was triggered %s ago (cooldown %d minutes)", elapsed.Truncate(time.Second), limits.CooldownMinutes),
					remaining), nil
			}
		}
	}

	return allow(), nil
}
