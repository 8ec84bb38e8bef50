package services_test

import (
	"context"
	"testing"
	"time"

	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.CreatePolicy(ctx, &models.AppUpdatePolicy{
		UserID:                  "u1",
		TenantID:                "t1",
		WingetID:                "Contoso.App",
		IsEnabled:               true,
		ConsecutiveFailures:     5,
		DeploymentConfig:        &models.DeploymentConfig{Version: "1.0.0"},
		OriginalUploadHistoryID: "upload-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-001", created.ID)
	assert.Equal(t, models.PolicyTypeAutoUpdate, created.PolicyType)
	assert.Equal(t, 0, created.ConsecutiveFailures)
	assert.Equal(t, baseTime, created.CreatedAt)

	_, err = f.svc.CreatePolicy(ctx, &models.AppUpdatePolicy{UserID: "u1", TenantID: "t1", WingetID: "Contoso.App"})
	assert.ErrorIs(t, err, services.ErrPolicyExists)

	other, err := f.svc.CreatePolicy(ctx, &models.AppUpdatePolicy{
		UserID:     "u1",
		TenantID:   "t1",
		WingetID:   "Fabrikam.Tool",
		PolicyType: models.PolicyTypeManual,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PolicyTypeManual, other.PolicyType)

	listed, err := f.svc.ListPolicies(ctx, models.PolicyFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestUpdatePolicyReEnableResetsFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	policy := f.addPolicy("p1", "u1", "t1")
	policy.IsEnabled = false
	policy.ConsecutiveFailures = 3
	f.store.PutPolicy(policy)

	enabled := true
	updated, err := f.svc.UpdatePolicy(ctx, "p1", models.PolicyPatch{IsEnabled: &enabled})
	require.NoError(t, err)
	assert.True(t, updated.IsEnabled)
	assert.Equal(t, 0, updated.ConsecutiveFailures)
	assert.Equal(t, baseTime, updated.UpdatedAt)

	eligible, err := f.svc.GetEligiblePolicies(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, eligible, 1)
}

func TestUpdatePolicyDisableKeepsFailures(t *testing.T) {
	f := newFixture(t)
	policy := f.addPolicy("p1", "u1", "t1")
	policy.ConsecutiveFailures = 1
	f.store.PutPolicy(policy)

	disabled := false
	manual := models.PolicyTypeManual
	updated, err := f.svc.UpdatePolicy(context.Background(), "p1", models.PolicyPatch{IsEnabled: &disabled, PolicyType: &manual})
	require.NoError(t, err)
	assert.False(t, updated.IsEnabled)
	assert.Equal(t, models.PolicyTypeManual, updated.PolicyType)
	assert.Equal(t, 1, updated.ConsecutiveFailures)
}

func TestUpdatePolicyNotFound(t *testing.T) {
	f := newFixture(t)
	enabled := true
	_, err := f.svc.UpdatePolicy(context.Background(), "missing", models.PolicyPatch{IsEnabled: &enabled})
	assert.ErrorIs(t, err, services.ErrPolicyNotFound)
}

func TestListHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.addPolicy("p1", "u1", "t1")
	for _, h := range []models.AutoUpdateHistory{
		{ID: "h1", PolicyID: "p1", TriggeredAt: baseTime.Add(-3 * time.Hour)},
		{ID: "h2", PolicyID: "p1", TriggeredAt: baseTime.Add(-2 * time.Hour)},
		{ID: "h3", PolicyID: "p2", TriggeredAt: baseTime.Add(-1 * time.Hour)},
	} {
		f.store.PutHistory(h)
	}

	records, err := f.svc.ListHistory(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "h2", records[0].ID)
	assert.Equal(t, "h1", records[1].ID)

	limited, err := f.svc.ListHistory(context.Background(), "p1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
