package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"intuneget/pkg/app"
	pkgMigrations "intuneget/pkg/migrations"

	localMigrations "intuneget/migrations"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, create")
		steps   = flag.Int("steps", 1, "Number of migrations to roll back (down)")
		name    = flag.String("name", "", "Migration name in snake_case (create)")
		dir     = flag.String("dir", "migrations", "Migrations source directory (create)")
	)
	flag.Parse()

	if *command == "create" {
		if *name == "" {
			log.Fatal("❌ -name is required for create")
		}
		path, err := createMigration(*dir, *name)
		if err != nil {
			log.Fatalf("❌ Failed to create migration: %v", err)
		}
		fmt.Printf("✅ Created %s\n", path)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	appCtx, err := app.InitializeApp("intuneget-migrate")
	if err != nil {
		log.Fatalf("❌ Failed to initialize application: %v", err)
	}
	defer appCtx.Shutdown(ctx)

	runner := pkgMigrations.NewRunner(appCtx.MongoDB.Database)
	localMigrations.RegisterAll(runner)

	switch *command {
	case "up":
		applied, err := runner.Run(ctx)
		if err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		if len(applied) == 0 {
			fmt.Println("✅ Database is up to date")
			return
		}
		for _, v := range applied {
			fmt.Printf("  ↑ %s\n", v)
		}
		fmt.Printf("✅ Applied %d migration(s)\n", len(applied))

	case "down":
		rolledBack, err := runner.Rollback(ctx, *steps)
		if err != nil {
			log.Fatalf("❌ Rollback failed: %v", err)
		}
		for _, v := range rolledBack {
			fmt.Printf("  ↓ %s\n", v)
		}
		fmt.Printf("✅ Rolled back %d migration(s)\n", len(rolledBack))

	case "status":
		entries, err := runner.Status(ctx)
		if err != nil {
			log.Fatalf("❌ Failed to get migration status: %v", err)
		}
		for _, e := range entries {
			state := "pending"
			if e.Applied {
				state = "applied " + e.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("  %-45s %s\n", e.Version, state)
		}

	default:
		log.Fatalf("❌ Unknown command: %s", *command)
	}
}

const migrationTemplate = `package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

func init() {
	Register(Migration{
		Version:     "%[1]s",
		Description: "%[2]s",
		Up:          up%[3]s,
		Down:        down%[3]s,
	})
}

func up%[3]s(ctx context.Context, db *mongo.Database) error {
	return nil
}

func down%[3]s(ctx context.Context, db *mongo.Database) error {
	return nil
}
`

// createMigration writes an empty migration with the next free version number
func createMigration(dir, name string) (string, error) {
	number := nextVersionNumber(dir)
	version := fmt.Sprintf("%03d_%s", number, name)
	path := filepath.Join(dir, version+".go")

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration file %s already exists", path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	content := fmt.Sprintf(migrationTemplate, version, name, fmt.Sprintf("%03d", number))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func nextVersionNumber(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 1
	}

	highest := 0
	for _, entry := range entries {
		var n int
		if _, err := fmt.Sscanf(entry.Name(), "%03d_", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}
