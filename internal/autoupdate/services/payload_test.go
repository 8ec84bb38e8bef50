package services_test

import (
	"testing"

	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAssignments(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DeploymentConfig
		want []models.Assignment
	}{
		{
			name: "explicit list wins over legacy groups",
			cfg: models.DeploymentConfig{
				Assignments: []models.Assignment{
					{Type: models.AssignmentTypeAllDevices, Intent: models.IntentRequired},
				},
				AssignedGroups: []models.AssignedGroup{{GroupID: "g-1", AssignmentType: models.IntentAvailable}},
			},
			want: []models.Assignment{
				{Type: models.AssignmentTypeAllDevices, Intent: models.IntentRequired},
			},
		},
		{
			name: "legacy groups become group assignments",
			cfg: models.DeploymentConfig{
				AssignedGroups: []models.AssignedGroup{
					{GroupID: "g-1", GroupName: "Pilot", AssignmentType: models.IntentAvailable},
					{GroupID: "g-2", GroupName: "Everyone"},
				},
			},
			want: []models.Assignment{
				{Type: models.AssignmentTypeGroup, GroupID: "g-1", GroupName: "Pilot", Intent: models.IntentAvailable},
				{Type: models.AssignmentTypeGroup, GroupID: "g-2", GroupName: "Everyone", Intent: models.IntentRequired},
			},
		},
		{
			name: "no targets",
			cfg:  models.DeploymentConfig{},
			want: []models.Assignment{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, services.NormalizeAssignments(&tt.cfg))
		})
	}
}

func TestBuildPackagingJob(t *testing.T) {
	policy := &models.AppUpdatePolicy{
		ID:       "p1",
		UserID:   "u1",
		TenantID: "t1",
		WingetID: "Contoso.App",
		DeploymentConfig: &models.DeploymentConfig{
			DisplayName:      "Contoso App",
			Publisher:        "Contoso",
			Version:          "1.0.0",
			Architecture:     "x64",
			InstallerType:    "exe",
			InstallCommand:   "setup.exe /S",
			UninstallCommand: "uninstall.exe /S",
			InstallScope:     "machine",
			DetectionRules:   []models.DetectionRule{{Type: "file", Path: "C:\\Program Files\\Contoso"}},
			AssignedGroups:   []models.AssignedGroup{{GroupID: "g-1", AssignmentType: models.IntentRequired}},
			IntuneAppID:      "intune-old",
		},
	}

	t.Run("overlays update info", func(t *testing.T) {
		info := models.UpdateInfo{
			LatestVersion:      "1.2.0",
			InstallerURL:       "https://example.com/setup.msi",
			InstallerSHA256:    "deadbeef",
			InstallerType:      "msi",
			CurrentIntuneAppID: "intune-current",
		}
		job := services.BuildPackagingJob(policy, info, "job-1", "hist-1", baseTime)

		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, "Contoso.App", job.WingetID)
		assert.Equal(t, "1.2.0", job.Version)
		assert.Equal(t, "msi", job.InstallerType)
		assert.Equal(t, "x64", job.Architecture)
		assert.Equal(t, "Contoso App", job.DisplayName)
		assert.Equal(t, "setup.exe /S", job.InstallCommand)
		assert.Equal(t, "deadbeef", job.InstallerSHA256)
		assert.Equal(t, models.PackagingJobStatusQueued, job.Status)
		assert.True(t, job.IsAutoUpdate)
		assert.Equal(t, baseTime, job.CreatedAt)
		require.Len(t, job.DetectionRules, 1)

		pc := job.PackageConfig
		assert.Equal(t, "p1", pc.AutoUpdatePolicyID)
		assert.Equal(t, "hist-1", pc.AutoUpdateHistoryID)
		assert.Equal(t, "intune-current", pc.ReplacesIntuneAppID)
		assert.Equal(t, models.AssignmentMigration{}, pc.AssignmentMigration)
		require.Len(t, pc.Assignments, 1)
		assert.Equal(t, models.AssignmentTypeGroup, pc.Assignments[0].Type)
	})

	t.Run("falls back to stored config", func(t *testing.T) {
		job := services.BuildPackagingJob(policy, models.UpdateInfo{LatestVersion: "1.2.0"}, "job-2", "hist-2", baseTime)
		assert.Equal(t, "exe", job.InstallerType)
		assert.Equal(t, "intune-old", job.PackageConfig.ReplacesIntuneAppID)
	})

	t.Run("keeps assignment migration flags", func(t *testing.T) {
		withMigration := *policy
		cfg := *policy.DeploymentConfig
		cfg.AssignmentMigration = &models.AssignmentMigration{CopyFromPrevious: true, RemoveFromPrevious: true}
		withMigration.DeploymentConfig = &cfg

		job := services.BuildPackagingJob(&withMigration, models.UpdateInfo{LatestVersion: "1.2.0"}, "job-3", "hist-3", baseTime)
		assert.True(t, job.PackageConfig.AssignmentMigration.CopyFromPrevious)
		assert.True(t, job.PackageConfig.AssignmentMigration.RemoveFromPrevious)
	})
}
