package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	Register(Migration{
		Version:     "002_create_packaging_and_consent_indexes",
		Description: "Create indexes for packaging_jobs and tenant_consent collections",
		Up:          up002,
		Down:        down002,
	})
}

func up002(ctx context.Context, db *mongo.Database) error {
	jobIndexes := []mongo.IndexModel{
		// pipeline polls queued jobs oldest first
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: 1},
			},
		},
		{Keys: bson.D{{Key: "auto_update_policy_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}
	if err := createIndexes(ctx, db.Collection("packaging_jobs"), jobIndexes); err != nil {
		return err
	}

	consentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	return createIndexes(ctx, db.Collection("tenant_consent"), consentIndexes)
}

func down002(ctx context.Context, db *mongo.Database) error {
	return dropIndexes(ctx, db, "packaging_jobs", "tenant_consent")
}
