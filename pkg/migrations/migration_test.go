package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestRegisterKeepsVersionOrder(t *testing.T) {
	r := &Runner{}
	noop := func(context.Context, *mongo.Database) error { return nil }

	r.Register(RegisteredMigration{Version: "003_c", Up: noop})
	r.Register(RegisteredMigration{Version: "001_a", Up: noop})
	r.Register(RegisteredMigration{Version: "002_b", Up: noop})

	var versions []string
	for _, m := range r.migrations {
		versions = append(versions, m.Version)
	}
	assert.Equal(t, []string{"001_a", "002_b", "003_c"}, versions)
}
