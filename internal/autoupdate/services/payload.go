package services

import (
	"time"

	"intuneget/internal/autoupdate/models"
)

// NormalizeAssignments returns the canonical assignment list of a deployment config.
// An explicit assignments list wins; otherwise legacy group tuples are converted,
// with their assignment type as the intent.
func NormalizeAssignments(cfg *models.DeploymentConfig) []models.Assignment {
	if len(cfg.Assignments) > 0 {
		out := make([]models.Assignment, len(cfg.Assignments))
		copy(out, cfg.Assignments)
		return out
	}

	out := make([]models.Assignment, 0, len(cfg.AssignedGroups))
	for _, g := range cfg.AssignedGroups {
		intent := g.AssignmentType
		if intent == "" {
			intent = models.IntentRequired
		}
		out = append(out, models.Assignment{
			Type:      models.AssignmentTypeGroup,
			GroupID:   g.GroupID,
			GroupName: g.GroupName,
			Intent:    intent,
		})
	}
	return out
}

// BuildPackagingJob replays a policy's deployment config with the new version and
// installer metadata overlaid
func BuildPackagingJob(policy *models.AppUpdatePolicy, info models.UpdateInfo, jobID, historyID string, now time.Time) *models.PackagingJob {
	cfg := policy.DeploymentConfig

	migration := models.AssignmentMigration{}
	if cfg.AssignmentMigration != nil {
		migration = *cfg.AssignmentMigration
	}

	rules := make([]models.DetectionRule, len(cfg.DetectionRules))
	copy(rules, cfg.DetectionRules)

	return &models.PackagingJob{
		ID:               jobID,
		UserID:           policy.UserID,
		TenantID:         policy.TenantID,
		WingetID:         firstNonEmpty(info.WingetID, policy.WingetID),
		Version:          info.LatestVersion,
		DisplayName:      firstNonEmpty(info.DisplayName, cfg.DisplayName),
		Publisher:        cfg.Publisher,
		Architecture:     firstNonEmpty(info.Architecture, cfg.Architecture),
		InstallerType:    firstNonEmpty(info.InstallerType, cfg.InstallerType),
		InstallerURL:     info.InstallerURL,
		InstallerSHA256:  info.InstallerSHA256,
		InstallCommand:   cfg.InstallCommand,
		UninstallCommand: cfg.UninstallCommand,
		InstallScope:     cfg.InstallScope,
		DetectionRules:   rules,
		PackageConfig: models.PackageConfig{
			Assignments:         NormalizeAssignments(cfg),
			AssignmentMigration: migration,
			AutoUpdatePolicyID:  policy.ID,
			AutoUpdateHistoryID: historyID,
			ReplacesIntuneAppID: firstNonEmpty(info.CurrentIntuneAppID, cfg.IntuneAppID),
		},
		Status:             models.PackagingJobStatusQueued,
		IsAutoUpdate:       true,
		AutoUpdatePolicyID: policy.ID,
		CreatedAt:          now,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
