package migrations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Migration is the record stored in the _migrations collection once a migration ran
type Migration struct {
	Version     string    `bson:"version"`
	Description string    `bson:"description"`
	AppliedAt   time.Time `bson:"applied_at"`
}

// MigrationFunc defines a migration function signature
type MigrationFunc func(ctx context.Context, db *mongo.Database) error

// RegisteredMigration holds migration metadata and functions
type RegisteredMigration struct {
	Version     string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc // optional
}

// StatusEntry describes one registered migration and whether it was applied
type StatusEntry struct {
	Version     string
	Description string
	Applied     bool
	AppliedAt   time.Time
}

// Runner applies registered migrations in version order
type Runner struct {
	db         *mongo.Database
	collection *mongo.Collection
	migrations []RegisteredMigration
}

func NewRunner(db *mongo.Database) *Runner {
	return &Runner{
		db:         db,
		collection: db.Collection("_migrations"),
	}
}

func (r *Runner) Register(migration RegisteredMigration) {
	r.migrations = append(r.migrations, migration)
	sort.SliceStable(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})
}

// Run executes all pending migrations and returns the versions it applied
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	if err := r.ensureMigrationsIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations index: %w", err)
	}

	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, migration := range r.migrations {
		if _, ok := applied[migration.Version]; ok {
			continue
		}

		slog.Info("Running migration",
			slog.String("version", migration.Version),
			slog.String("description", migration.Description),
		)

		if err := migration.Up(ctx, r.db); err != nil {
			return ran, fmt.Errorf("migration %s failed: %w", migration.Version, err)
		}

		record := Migration{
			Version:     migration.Version,
			Description: migration.Description,
			AppliedAt:   time.Now().UTC(),
		}
		if _, err := r.collection.InsertOne(ctx, record); err != nil {
			return ran, fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
		ran = append(ran, migration.Version)
	}

	return ran, nil
}

// Rollback rolls back the last n applied migrations
func (r *Runner) Rollback(ctx context.Context, steps int) ([]string, error) {
	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	if steps > len(applied) {
		steps = len(applied)
	}

	registered := make(map[string]RegisteredMigration, len(r.migrations))
	for _, m := range r.migrations {
		registered[m.Version] = m
	}

	var rolledBack []string
	for i := len(applied) - 1; i >= len(applied)-steps; i-- {
		version := applied[i].Version
		migration, ok := registered[version]
		if !ok {
			return rolledBack, fmt.Errorf("migration %s not found in registered migrations", version)
		}
		if migration.Down == nil {
			slog.Warn("Migration has no rollback function, skipping", slog.String("version", version))
			continue
		}

		if err := migration.Down(ctx, r.db); err != nil {
			return rolledBack, fmt.Errorf("rollback %s failed: %w", version, err)
		}
		if _, err := r.collection.DeleteOne(ctx, bson.M{"version": version}); err != nil {
			return rolledBack, fmt.Errorf("failed to remove migration record %s: %w", version, err)
		}
		rolledBack = append(rolledBack, version)
	}

	return rolledBack, nil
}

// Status lists every registered migration with its applied state
func (r *Runner) Status(ctx context.Context) ([]StatusEntry, error) {
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]StatusEntry, 0, len(r.migrations))
	for _, migration := range r.migrations {
		entry := StatusEntry{Version: migration.Version, Description: migration.Description}
		if rec, ok := applied[migration.Version]; ok {
			entry.Applied = true
			entry.AppliedAt = rec.AppliedAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *Runner) appliedSet(ctx context.Context) (map[string]Migration, error) {
	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	set := make(map[string]Migration, len(applied))
	for _, m := range applied {
		set[m.Version] = m
	}
	return set, nil
}

func (r *Runner) ensureMigrationsIndex(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "version", Value: 1}},
		Options: options.Index().SetUnique(true),
	}

	_, err := r.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

func (r *Runner) getAppliedMigrations(ctx context.Context) ([]Migration, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "version", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var migrations []Migration
	if err := cursor.All(ctx, &migrations); err != nil {
		return nil, err
	}
	return migrations, nil
}
