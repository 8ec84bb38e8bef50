package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"intuneget/internal/autoupdate/middleware"
	"intuneget/internal/autoupdate/routes"
	"intuneget/internal/autoupdate/services"
	"intuneget/pkg/config"
	"intuneget/pkg/database"
	pkgMiddleware "intuneget/pkg/middleware"
	"intuneget/pkg/module"
	"intuneget/pkg/winget"

	"github.com/danielgtaylor/huma/v2"
	"github.com/robfig/cron/v3"
)

// sweepLockTTL bounds how long a crashed instance can block sweeps elsewhere
const sweepLockTTL = 30 * time.Minute

// Module is the auto-update module: policies, safety gate, trigger and sweeps
type Module struct {
	*module.BaseModule
	cfg     config.AutoUpdateConfig
	service *services.AutoUpdateService
	checker *services.UpdateChecker
	routes  *routes.Routes

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New creates the module. Redis is optional; without it sweeps run unlocked and
// catalog lookups are not cached.
func New(mongodb *database.MongoDB, redis *database.Redis, cfg config.AutoUpdateConfig, permissions *pkgMiddleware.PermissionMiddleware) (*Module, error) {
	if mongodb == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	service := services.NewAutoUpdateService(services.NewRepository(mongodb.Database), cfg.Safety)

	var (
		catalogOpts []winget.Option
		locker      services.Locker
	)
	if redis != nil {
		catalogOpts = append(catalogOpts, winget.WithCache(redis))
		locker = services.NewRedisLocker(redis, sweepLockTTL)
	} else {
		slog.Warn("Redis unavailable: auto-update sweeps run without a distributed lock")
	}

	checker := services.NewUpdateChecker(service, winget.NewClient(cfg.Catalog, catalogOpts...), locker)

	return &Module{
		BaseModule: module.NewBaseModule("auto-update", mongodb, redis),
		cfg:        cfg,
		service:    service,
		checker:    checker,
		routes:     routes.NewRoutes(service, checker, middleware.NewAuthMiddleware(permissions), cfg.Sweep),
	}, nil
}

// RegisterUnifiedRoutes registers routes on the shared Huma API
func (m *Module) RegisterUnifiedRoutes(api huma.API, basePath string) {
	slog.Info("Registering auto-update routes", slog.String("base_path", basePath))
	m.routes.RegisterUnifiedRoutes(api, basePath)
}

// StartBackgroundTasks schedules the update sweep
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	if !m.cfg.Sweep.Enabled {
		slog.Info("Auto-update sweeps disabled")
		return
	}

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(m.cfg.Sweep.Schedule, func() { m.runScheduledSweep(ctx) }); err != nil {
		slog.Error("Invalid auto-update schedule",
			slog.String("schedule", m.cfg.Sweep.Schedule),
			slog.String("error", err.Error()),
		)
		return
	}

	m.cronMu.Lock()
	m.cron = c
	m.cronMu.Unlock()

	c.Start()
	slog.Info("Auto-update sweep scheduled", slog.String("schedule", m.cfg.Sweep.Schedule))

	go func() {
		select {
		case <-ctx.Done():
		case <-m.StopChannel():
		}
		m.stopCron()
	}()
}

func (m *Module) runScheduledSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := m.checker.RunSweep(ctx)
	switch {
	case errors.Is(err, services.ErrSweepInProgress):
		slog.Info("Auto-update sweep skipped: running on another instance")
	case err != nil:
		slog.Error("Auto-update sweep failed", slog.String("error", err.Error()))
	}
}

func (m *Module) stopCron() {
	m.cronMu.Lock()
	c := m.cron
	m.cron = nil
	m.cronMu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	slog.Info("Auto-update sweep scheduler stopped")
}

// Stop stops the sweep scheduler and waits for a running sweep to finish
func (m *Module) Stop() {
	m.stopCron()
	m.BaseModule.Stop()
}

// Service returns the auto-update service for use by other components
func (m *Module) Service() *services.AutoUpdateService {
	return m.service
}

// Checker returns the update checker
func (m *Module) Checker() *services.UpdateChecker {
	return m.checker
}

var _ module.Module = (*Module)(nil)
