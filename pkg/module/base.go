package module

import (
	"context"
	"log/slog"
	"sync"

	"intuneget/pkg/database"

	"github.com/danielgtaylor/huma/v2"
)

// Module defines the interface that all application modules must implement
type Module interface {
	// RegisterUnifiedRoutes mounts the module's operations on the shared API
	RegisterUnifiedRoutes(api huma.API, basePath string)

	// StartBackgroundTasks starts any background processing for this module
	StartBackgroundTasks(ctx context.Context)

	// Stop gracefully stops the module and its background tasks
	Stop()

	Name() string
}

// BaseModule provides common functionality for all modules
type BaseModule struct {
	name     string
	mongodb  *database.MongoDB
	redis    *database.Redis
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewBaseModule(name string, mongodb *database.MongoDB, redis *database.Redis) *BaseModule {
	return &BaseModule{
		name:    name,
		mongodb: mongodb,
		redis:   redis,
		stopCh:  make(chan struct{}),
	}
}

func (b *BaseModule) Name() string {
	return b.name
}

func (b *BaseModule) MongoDB() *database.MongoDB {
	return b.mongodb
}

func (b *BaseModule) Redis() *database.Redis {
	return b.redis
}

// StopChannel is closed when the module stops
func (b *BaseModule) StopChannel() <-chan struct{} {
	return b.stopCh
}

// Stop closes the stop channel; later calls are no-ops
func (b *BaseModule) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		slog.Info("Module stopped", "module", b.name)
	})
}
