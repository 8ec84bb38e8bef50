package services_test

import (
	"testing"

	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"

	"github.com/stretchr/testify/assert"
)

func TestClassifyUpdateType(t *testing.T) {
	tests := []struct {
		current string
		latest  string
		want    models.UpdateType
	}{
		{"1.0.0", "2.0.0", models.UpdateTypeMajor},
		{"1.0.0", "1.1.0", models.UpdateTypeMinor},
		{"1.0.0", "1.0.1", models.UpdateTypePatch},
		{"1.0.0", "1.0.0", models.UpdateTypePatch},
		{"1.2", "1.2.5", models.UpdateTypePatch},
		{"v1.9.3", "v1.10.0", models.UpdateTypeMinor},
		{"2024.1", "2025.1", models.UpdateTypeMajor},
		{"1.0.0-beta", "1.0.0", models.UpdateTypePatch},
		{"", "3.1.0", models.UpdateTypeMajor},
	}

	for _, tt := range tests {
		t.Run(tt.current+"->"+tt.latest, func(t *testing.T) {
			assert.Equal(t, tt.want, services.ClassifyUpdateType(tt.current, tt.latest))
		})
	}
}
