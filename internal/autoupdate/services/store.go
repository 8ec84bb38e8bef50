package services

import (
	"context"
	"time"

	"intuneget/internal/autoupdate/models"
)

// Store is the persistence contract of the auto-update module. Every method is a
// single-document operation; callers get no multi-statement atomicity.
type Store interface {
	CreatePolicy(ctx context.Context, policy *models.AppUpdatePolicy) error
	GetPolicy(ctx context.Context, id string) (*models.AppUpdatePolicy, error)
	ListPolicies(ctx context.Context, filter models.PolicyFilter) ([]models.AppUpdatePolicy, error)
	UpdatePolicy(ctx context.Context, id string, patch models.PolicyPatch, now time.Time) (*models.AppUpdatePolicy, error)
	FindEligiblePolicies(ctx context.Context, userID, tenantID string, maxFailures int) ([]models.AppUpdatePolicy, error)

	// ClaimPolicy sets in_flight_until when the failure counter still equals
	// expectedFailures and no unexpired claim exists. It reports whether it won.
	ClaimPolicy(ctx context.Context, id string, expectedFailures int, now, until time.Time) (bool, error)
	// RecordPolicySuccess stores the deployed version, resets the failure counter and releases the claim
	RecordPolicySuccess(ctx context.Context, id, version string, at time.Time) error
	// IncrementPolicyFailures adds one to the failure counter, releases the claim and returns the new count
	IncrementPolicyFailures(ctx context.Context, id string, now time.Time) (int, error)
	DisablePolicy(ctx context.Context, id string, now time.Time) error

	InsertHistory(ctx context.Context, history *models.AutoUpdateHistory) error
	GetHistory(ctx context.Context, id string) (*models.AutoUpdateHistory, error)
	ListHistory(ctx context.Context, policyID string, limit int) ([]models.AutoUpdateHistory, error)
	// AttachPackagingJob moves a pending row to packaging
	AttachPackagingJob(ctx context.Context, historyID, jobID string) error
	// TransitionHistory finishes a pending or packaging row
	TransitionHistory(ctx context.Context, id string, transition models.HistoryTransition) error

	CountCompletedForTenantSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
	CountForUserSince(ctx context.Context, userID string, since time.Time) (int64, error)
	// LatestTriggeredAt returns the newest triggered_at across all history, nil when empty
	LatestTriggeredAt(ctx context.Context) (*time.Time, error)

	InsertPackagingJob(ctx context.Context, job *models.PackagingJob) error

	GetTenantConsent(ctx context.Context, tenantID string) (*models.TenantConsent, error)
}
