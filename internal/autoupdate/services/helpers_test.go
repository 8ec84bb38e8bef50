package services_test

import (
	"fmt"
	"testing"
	"time"

	"intuneget/internal/autoupdate/memstore"
	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"
	"intuneget/pkg/config"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *memstore.MemStore
	svc   *services.AutoUpdateService
	now   time.Time
	seq   int
}

func newFixture(t *testing.T, tweak ...func(*config.SafetyConfig)) *fixture {
	t.Helper()

	safety := config.DefaultSafetyConfig()
	for _, fn := range tweak {
		fn(&safety)
	}

	f := &fixture{store: memstore.New(), now: baseTime}
	f.svc = services.NewAutoUpdateService(f.store, safety,
		services.WithClock(func() time.Time { return f.now }),
		services.WithIDGenerator(func() string {
			f.seq++
			return fmt.Sprintf("id-%03d", f.seq)
		}),
	)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// addPolicy stores a policy that passes every gate check, with active consent for its tenant
func (f *fixture) addPolicy(id, userID, tenantID string) models.AppUpdatePolicy {
	policy := models.AppUpdatePolicy{
		ID:         id,
		UserID:     userID,
		TenantID:   tenantID,
		WingetID:   "Contoso.App",
		PolicyType: models.PolicyTypeAutoUpdate,
		IsEnabled:  true,
		DeploymentConfig: &models.DeploymentConfig{
			DisplayName:      "Contoso App",
			Publisher:        "Contoso",
			Version:          "1.0.0",
			Architecture:     "x64",
			InstallerType:    "msi",
			InstallCommand:   "msiexec /i app.msi /qn",
			UninstallCommand: "msiexec /x app.msi /qn",
			AssignedGroups: []models.AssignedGroup{
				{GroupID: "g-1", GroupName: "Pilot", AssignmentType: models.IntentAvailable},
			},
			IntuneAppID: "intune-app-1",
		},
		OriginalUploadHistoryID: "upload-" + id,
		CreatedAt:               baseTime.Add(-24 * time.Hour),
		UpdatedAt:               baseTime.Add(-24 * time.Hour),
	}
	f.store.PutPolicy(policy)
	f.store.PutConsent(models.TenantConsent{TenantID: tenantID, IsActive: true})
	return policy
}

func (f *fixture) policy(t *testing.T, id string) *models.AppUpdatePolicy {
	t.Helper()
	p, ok := f.store.Policy(id)
	if !ok {
		t.Fatalf("policy %s not found", id)
	}
	return &p
}

// addHistory stores a finished history row triggered ago before now
func (f *fixture) addHistory(id, userID, tenantID string, status models.HistoryStatus, ago time.Duration) {
	f.store.PutHistory(models.AutoUpdateHistory{
		ID:          id,
		PolicyID:    "other-policy",
		UserID:      userID,
		TenantID:    tenantID,
		FromVersion: "1.0.0",
		ToVersion:   "1.0.1",
		UpdateType:  models.UpdateTypePatch,
		Status:      status,
		TriggeredAt: f.now.Add(-ago),
	})
}

func updateTo(version string) models.UpdateInfo {
	return models.UpdateInfo{
		WingetID:        "Contoso.App",
		CurrentVersion:  "1.0.0",
		LatestVersion:   version,
		InstallerURL:    "https://example.com/app-" + version + ".msi",
		InstallerSHA256: "abc123",
		InstallerType:   "msi",
	}
}
