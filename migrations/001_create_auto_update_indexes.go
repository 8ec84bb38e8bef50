package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	Register(Migration{
		Version:     "001_create_auto_update_indexes",
		Description: "Create indexes for app_update_policies and auto_update_history collections",
		Up:          up001,
		Down:        down001,
	})
}

func up001(ctx context.Context, db *mongo.Database) error {
	policyIndexes := []mongo.IndexModel{
		// one policy per user and package
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "winget_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "policy_type", Value: 1},
				{Key: "is_enabled", Value: 1},
			},
		},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
	}
	if err := createIndexes(ctx, db.Collection("app_update_policies"), policyIndexes); err != nil {
		return err
	}

	historyIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "policy_id", Value: 1},
				{Key: "triggered_at", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "triggered_at", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "triggered_at", Value: -1},
			},
		},
		{Keys: bson.D{{Key: "triggered_at", Value: -1}}},
	}
	return createIndexes(ctx, db.Collection("auto_update_history"), historyIndexes)
}

func down001(ctx context.Context, db *mongo.Database) error {
	return dropIndexes(ctx, db, "app_update_policies", "auto_update_history")
}
