package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"intuneget/pkg/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

// MongoDB holds the client and the database named by MONGODB_URI
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongoDB connects and pings the primary. The database name comes from the URI
// path and falls back to the service name.
func NewMongoDB(ctx context.Context, serviceName string) (*MongoDB, error) {
	uri := config.GetEnv("MONGODB_URI", "mongodb://localhost:27017/"+serviceName)

	opts := options.Client().
		ApplyURI(uri).
		SetAppName(serviceName).
		SetMaxPoolSize(uint64(config.GetIntEnv("MONGODB_MAX_POOL_SIZE", 50))).
		SetServerSelectionTimeout(config.GetDurationEnv("MONGODB_SERVER_SELECTION_TIMEOUT", 5*time.Second))

	if config.GetBoolEnv("ENABLE_TELEMETRY", false) {
		opts.SetMonitor(otelmongo.NewMonitor())
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := databaseName(uri, serviceName)
	slog.Debug("MongoDB client ready", slog.String("database", dbName))

	return &MongoDB{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.Database.Collection(name)
}

// HealthCheck pings the primary; writes go there, so a secondary answering is not enough
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return m.Client.Ping(ctx, readpref.Primary())
}

func databaseName(uri, fallback string) string {
	cs, err := connstring.Parse(uri)
	if err != nil || cs.Database == "" {
		return fallback
	}
	return cs.Database
}
