package services

import (
	"intuneget/internal/autoupdate/models"
	"intuneget/pkg/winget"
)

// ClassifyUpdateType compares major then minor components; everything else,
// including equal versions, is a patch.
func ClassifyUpdateType(currentVersion, latestVersion string) models.UpdateType {
	current := winget.ParseVersion(currentVersion)
	latest := winget.ParseVersion(latestVersion)

	switch {
	case current[0] != latest[0]:
		return models.UpdateTypeMajor
	case current[1] != latest[1]:
		return models.UpdateTypeMinor
	default:
		return models.UpdateTypePatch
	}
}
