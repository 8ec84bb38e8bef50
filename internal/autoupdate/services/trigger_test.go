package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"intuneget/internal/autoupdate/memstore"
	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"
	"intuneget/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noCooldown(c *config.SafetyConfig) { c.RateLimits.CooldownMinutes = 0 }

func TestTriggerAutoUpdateEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPolicy("p1", "u1", "t1")

	result := f.svc.TriggerAutoUpdate(ctx, f.policy(t, "p1"), updateTo("1.1.0"))
	require.True(t, result.Success, "error: %s", result.Error)
	assert.False(t, result.Skipped)
	assert.Empty(t, result.Error)

	history := f.store.History()
	require.Len(t, history, 1)
	h := history[0]
	assert.Equal(t, result.HistoryID, h.ID)
	assert.Equal(t, "p1", h.PolicyID)
	assert.Equal(t, "1.0.0", h.FromVersion)
	assert.Equal(t, "1.1.0", h.ToVersion)
	assert.Equal(t, models.UpdateTypeMinor, h.UpdateType)
	assert.Equal(t, models.HistoryStatusPackaging, h.Status)
	assert.Equal(t, result.PackagingJobID, h.PackagingJobID)
	assert.Equal(t, baseTime, h.TriggeredAt)

	jobs := f.store.Jobs()
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, result.PackagingJobID, job.ID)
	assert.True(t, job.IsAutoUpdate)
	assert.Equal(t, models.PackagingJobStatusQueued, job.Status)
	assert.Equal(t, "1.1.0", job.Version)
	assert.Equal(t, "p1", job.AutoUpdatePolicyID)
	assert.Equal(t, h.ID, job.PackageConfig.AutoUpdateHistoryID)

	policy := f.policy(t, "p1")
	assert.Equal(t, "1.1.0", policy.LastAutoUpdateVersion)
	require.NotNil(t, policy.LastAutoUpdateAt)
	assert.Equal(t, baseTime, *policy.LastAutoUpdateAt)
	assert.Equal(t, 0, policy.ConsecutiveFailures)
	assert.Nil(t, policy.InFlightUntil)

	// the pipeline reports success later
	f.advance(20 * time.Minute)
	require.NoError(t, f.svc.MarkUpdateCompleted(ctx, h.ID, job.ID))

	done, err := f.svc.GetHistory(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HistoryStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, baseTime.Add(20*time.Minute), *done.CompletedAt)
	assert.Equal(t, policy, f.policy(t, "p1"))
}

func TestTriggerDisabledPolicyWritesNothing(t *testing.T) {
	f := newFixture(t)
	policy := f.addPolicy("p1", "u1", "t1")
	policy.IsEnabled = false
	f.store.PutPolicy(policy)

	result := f.svc.TriggerAutoUpdate(context.Background(), &policy, updateTo("1.1.0"))
	assert.False(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Equal(t, "policy disabled or ineligible", result.SkipReason)
	assert.Empty(t, f.store.History())
	assert.Empty(t, f.store.Jobs())
	assert.Equal(t, policy, *f.policy(t, "p1"))
}

func TestTriggerConfigurationErrorsAreNotSkipsAndNotCounted(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, p *models.AppUpdatePolicy)
	}{
		{"missing deployment config", func(_ *fixture, p *models.AppUpdatePolicy) { p.DeploymentConfig = nil }},
		{"missing prior deployment", func(_ *fixture, p *models.AppUpdatePolicy) { p.OriginalUploadHistoryID = "" }},
		{"inactive consent", func(f *fixture, p *models.AppUpdatePolicy) {
			f.store.PutConsent(models.TenantConsent{TenantID: p.TenantID, IsActive: false})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			policy := f.addPolicy("p1", "u1", "t1")
			tt.mutate(f, &policy)
			f.store.PutPolicy(policy)

			result := f.svc.TriggerAutoUpdate(context.Background(), &policy, updateTo("1.1.0"))
			assert.False(t, result.Success)
			assert.False(t, result.Skipped)
			assert.NotEmpty(t, result.Error)
			assert.False(t, result.BreakerCounted)
			assert.Empty(t, f.store.History())
			assert.Empty(t, f.store.Jobs())
			assert.Equal(t, 0, f.policy(t, "p1").ConsecutiveFailures)
		})
	}
}

func TestTriggerCooldownAfterSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPolicy("p1", "u1", "t1")
	f.addPolicy("p2", "u2", "t2")

	first := f.svc.TriggerAutoUpdate(ctx, f.policy(t, "p1"), updateTo("1.1.0"))
	require.True(t, first.Success)

	f.advance(time.Minute)
	second := f.svc.TriggerAutoUpdate(ctx, f.policy(t, "p2"), updateTo("1.1.0"))
	assert.False(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Contains(t, second.SkipReason, "cooldown")
	assert.Equal(t, 4, second.RetryAfterMinutes)
	assert.Len(t, f.store.History(), 1)

	f.advance(4 * time.Minute)
	third := f.svc.TriggerAutoUpdate(ctx, f.policy(t, "p2"), updateTo("1.1.0"))
	assert.True(t, third.Success)
}

func TestTriggerTenantLimitSkips(t *testing.T) {
	f := newFixture(t, noCooldown, func(c *config.SafetyConfig) { c.RateLimits.MaxUpdatesPerTenant = 3 })
	f.addPolicy("p1", "u1", "t1")
	for i, id := range []string{"h1", "h2", "h3"} {
		f.addHistory(id, "other-user", "t1", models.HistoryStatusCompleted, time.Duration(10*(i+1))*time.Minute)
	}

	result := f.svc.TriggerAutoUpdate(context.Background(), f.policy(t, "p1"), updateTo("1.1.0"))
	assert.True(t, result.Skipped)
	assert.Contains(t, result.SkipReason, "tenant")
	assert.Len(t, f.store.History(), 3)
	assert.Empty(t, f.store.Jobs())
}

func TestTriggerCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, noCooldown)
	f.addPolicy("p1", "u1", "t1")
	f.store.FailOn(memstore.OpInsertPackagingJob, errors.New("queue unavailable"))

	for attempt := 1; attempt <= 3; attempt++ {
		result := f.svc.TriggerAutoUpdate(ctx, f.policy(t, "p1"), updateTo("1.1.0"))
		assert.False(t, result.Success)
		assert.False(t, result.Skipped)
		assert.Contains(t, result.Error, "queue unavailable")
		assert.True(t, result.BreakerCounted)

		policy := f.policy(t, "p1")
		assert.Equal(t, attempt, policy.ConsecutiveFailures)
		assert.Equal(t, attempt < 3, policy.IsEnabled, "attempt %d", attempt)
		assert.Nil(t, policy.InFlightUntil)
		f.advance(time.Minute)
	}

	// pending rows stay behind as the audit trail
	history := f.store.History()
	require.Len(t, history, 3)
	for _, h := range history {
		assert.Equal(t, models.HistoryStatusPending, h.Status)
	}

	f.store.FailOn(memstore.OpInsertPackagingJob, nil)
	result := f.svc.TriggerAutoUpdate(ctx, f.policy(t, "p1"), updateTo("1.1.0"))
	assert.True(t, result.Skipped)
	assert.Equal(t, "policy disabled or ineligible", result.SkipReason)

	eligible, err := f.svc.GetEligiblePolicies(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestTriggerSuccessResetsFailureCount(t *testing.T) {
	f := newFixture(t)
	policy := f.addPolicy("p1", "u1", "t1")
	policy.ConsecutiveFailures = 2
	f.store.PutPolicy(policy)

	result := f.svc.TriggerAutoUpdate(context.Background(), &policy, updateTo("2.0.0"))
	require.True(t, result.Success)
	assert.Equal(t, 0, f.policy(t, "p1").ConsecutiveFailures)
	assert.Equal(t, models.UpdateTypeMajor, f.store.History()[0].UpdateType)
}

func TestTriggerGateStoreErrorIsCounted(t *testing.T) {
	f := newFixture(t)
	f.addPolicy("p1", "u1", "t1")
	f.store.FailOn(memstore.OpCountUser, errors.New("timeout"))

	result := f.svc.TriggerAutoUpdate(context.Background(), f.policy(t, "p1"), updateTo("1.1.0"))
	assert.False(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Contains(t, result.Error, "timeout")
	assert.Empty(t, f.store.History())
	assert.Equal(t, 1, f.policy(t, "p1").ConsecutiveFailures)
}

func TestTriggerLosesClaim(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, stored, passed *models.AppUpdatePolicy)
	}{
		{"another trigger holds the lease", func(f *fixture, stored, _ *models.AppUpdatePolicy) {
			until := f.now.Add(5 * time.Minute)
			stored.InFlightUntil = &until
		}},
		{"failure counter moved since the policy was read", func(_ *fixture, stored, _ *models.AppUpdatePolicy) {
			stored.ConsecutiveFailures = 1
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			stored := f.addPolicy("p1", "u1", "t1")
			passed := stored
			tt.mutate(f, &stored, &passed)
			f.store.PutPolicy(stored)

			result := f.svc.TriggerAutoUpdate(context.Background(), &passed, updateTo("1.1.0"))
			assert.False(t, result.Success)
			assert.True(t, result.Skipped)
			assert.Contains(t, result.SkipReason, "in flight")
			assert.Empty(t, f.store.History())
			assert.Empty(t, f.store.Jobs())
			assert.Equal(t, stored, *f.policy(t, "p1"))
		})
	}
}

func TestTriggerTakesOverExpiredClaim(t *testing.T) {
	f := newFixture(t)
	policy := f.addPolicy("p1", "u1", "t1")
	expired := f.now.Add(-time.Minute)
	policy.InFlightUntil = &expired
	f.store.PutPolicy(policy)

	result := f.svc.TriggerAutoUpdate(context.Background(), &policy, updateTo("1.0.1"))
	assert.True(t, result.Success)
	assert.Nil(t, f.policy(t, "p1").InFlightUntil)
}

func TestMarkUpdateFailedLeavesPolicyUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPolicy("p1", "u1", "t1")

	result := f.svc.TriggerAutoUpdate(ctx, f.policy(t, "p1"), updateTo("1.1.0"))
	require.True(t, result.Success)
	before := f.policy(t, "p1")

	f.advance(time.Minute)
	require.NoError(t, f.svc.MarkUpdateFailed(ctx, result.HistoryID, "signing failed"))

	h, err := f.svc.GetHistory(ctx, result.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, models.HistoryStatusFailed, h.Status)
	assert.Equal(t, "signing failed", h.ErrorMessage)
	assert.Equal(t, result.PackagingJobID, h.PackagingJobID)
	assert.Equal(t, before, f.policy(t, "p1"))
}

func TestMarkCallbacksRejectFinishedRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPolicy("p1", "u1", "t1")

	result := f.svc.TriggerAutoUpdate(ctx, f.policy(t, "p1"), updateTo("1.1.0"))
	require.True(t, result.Success)
	require.NoError(t, f.svc.MarkUpdateCompleted(ctx, result.HistoryID, result.PackagingJobID))

	err := f.svc.MarkUpdateFailed(ctx, result.HistoryID, "late failure")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	err = f.svc.MarkUpdateCompleted(ctx, result.HistoryID, result.PackagingJobID)
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	h, err := f.svc.GetHistory(ctx, result.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, models.HistoryStatusCompleted, h.Status)
	assert.Empty(t, h.ErrorMessage)

	assert.ErrorIs(t, f.svc.MarkUpdateCompleted(ctx, "missing", ""), services.ErrHistoryNotFound)
	assert.ErrorIs(t, f.svc.MarkUpdateFailed(ctx, "missing", "x"), services.ErrHistoryNotFound)
}

func TestIncrementFailureCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *config.SafetyConfig) { c.MaxConsecutiveFailures = 2 })
	f.addPolicy("p1", "u1", "t1")

	require.NoError(t, f.svc.IncrementFailureCount(ctx, "p1"))
	assert.True(t, f.policy(t, "p1").IsEnabled)

	require.NoError(t, f.svc.IncrementFailureCount(ctx, "p1"))
	policy := f.policy(t, "p1")
	assert.False(t, policy.IsEnabled)
	assert.Equal(t, 2, policy.ConsecutiveFailures)

	err := f.svc.IncrementFailureCount(ctx, "missing")
	assert.ErrorIs(t, err, services.ErrPolicyNotFound)
}

func TestGetEligiblePolicies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPolicy("p1", "u1", "t1")
	f.addPolicy("p2", "u2", "t1")
	f.addPolicy("p3", "u1", "t2")

	manual := f.addPolicy("p4", "u1", "t1")
	manual.PolicyType = models.PolicyTypeManual
	f.store.PutPolicy(manual)

	broken := f.addPolicy("p5", "u1", "t1")
	broken.ConsecutiveFailures = 3
	f.store.PutPolicy(broken)

	ids := func(policies []models.AppUpdatePolicy) []string {
		out := []string{}
		for _, p := range policies {
			out = append(out, p.ID)
		}
		return out
	}

	all, err := f.svc.GetEligiblePolicies(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(all))

	byUser, err := f.svc.GetEligiblePolicies(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, ids(byUser))

	byBoth, err := f.svc.GetEligiblePolicies(ctx, "u1", "t2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, ids(byBoth))

	f.store.FailOn(memstore.OpFindEligible, errors.New("down"))
	_, err = f.svc.GetEligiblePolicies(ctx, "", "")
	assert.Error(t, err)
}
