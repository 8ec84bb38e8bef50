package migrations

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// isIndexExistsError checks if error is due to index already existing
func isIndexExistsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return mongo.IsDuplicateKeyError(err) ||
		strings.Contains(errStr, "already exists") ||
		strings.Contains(errStr, "IndexKeySpecsConflict") ||
		strings.Contains(errStr, "IndexOptionsConflict")
}

func createIndexes(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil && !isIndexExistsError(err) {
		return err
	}
	return nil
}

func dropIndexes(ctx context.Context, db *mongo.Database, collections ...string) error {
	for _, name := range collections {
		if _, err := db.Collection(name).Indexes().DropAll(ctx); err != nil {
			return err
		}
	}
	return nil
}
