package migrations

import (
	"fmt"
	"slices"
	"strings"

	"intuneget/pkg/migrations"
)

// Migration is one schema change of the auto-update collections
type Migration struct {
	Version     string
	Description string
	Up          migrations.MigrationFunc
	Down        migrations.MigrationFunc
}

var registry = map[string]Migration{}

// Register is called from init of each NNN_*.go file. Versions must be unique.
func Register(migration Migration) {
	if _, exists := registry[migration.Version]; exists {
		panic(fmt.Sprintf("migration %s registered twice", migration.Version))
	}
	registry[migration.Version] = migration
}

// Versions returns the registered versions in apply order
func Versions() []string {
	versions := make([]string, 0, len(registry))
	for version := range registry {
		versions = append(versions, version)
	}
	slices.SortFunc(versions, strings.Compare)
	return versions
}

// RegisterAll hands every migration to the runner in apply order
func RegisterAll(runner *migrations.Runner) {
	for _, version := range Versions() {
		m := registry[version]
		runner.Register(migrations.RegisteredMigration{
			Version:     m.Version,
			Description: m.Description,
			Up:          m.Up,
			Down:        m.Down,
		})
	}
}
