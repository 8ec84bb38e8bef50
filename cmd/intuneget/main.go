package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"intuneget/internal/autoupdate"
	"intuneget/pkg/app"
	"intuneget/pkg/config"
	"intuneget/pkg/handlers"
	pkgMiddleware "intuneget/pkg/middleware"
	"intuneget/pkg/module"
	"intuneget/pkg/version"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"
)

const serviceName = "intuneget"

// customLoggerMiddleware logs requests but excludes health and metrics scrapes
func customLoggerMiddleware(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

// corsMiddleware allows credentialed requests from the configured web origins
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && slices.Contains(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func main() {
	displayBanner()

	versionInfo := version.Get()
	log.Printf("🏷️  Version: %s | Build: %s", version.String(), versionInfo.BuildDate)
	log.Printf("🖥️  CPUs: %d | GOMAXPROCS: %d", runtime.NumCPU(), runtime.GOMAXPROCS(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appCtx, err := app.InitializeApp(serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Printf("💾 Memory: %s heap | %s total", formatBytes(m.HeapAlloc), formatBytes(m.Sys))
	printMemoryLimits()

	r := chi.NewRouter()

	r.Use(customLoggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware(config.GetAllowedOrigins()))
	r.Use(pkgMiddleware.TracingMiddleware)

	checkers := map[string]handlers.Checker{
		"mongodb": appCtx.MongoDB.HealthCheck,
	}
	if appCtx.Redis != nil {
		checkers["redis"] = appCtx.Redis.HealthCheck
	}
	r.Get("/health", handlers.HealthHandler(serviceName, checkers))
	r.Handle("/metrics", promhttp.Handler())

	jwtSecret := config.GetJWTSecret()
	if app.IsProduction() {
		// no built-in fallback secret in production
		jwtSecret = []byte(config.MustGetEnv("JWT_SECRET"))
	}
	jwtService := pkgMiddleware.NewJWTService(jwtSecret, config.GetEnv("JWT_ISSUER", serviceName))

	authorizer, err := pkgMiddleware.NewCasbinAuthorizer(appCtx.MongoDB.Client, appCtx.MongoDB.Database.Name())
	if err != nil {
		log.Fatalf("Failed to initialize authorization: %v", err)
	}
	if err := authorizer.SeedDefaultPolicies(); err != nil {
		log.Fatalf("Failed to seed authorization policies: %v", err)
	}
	log.Printf("🔒 Casbin authorization enabled")

	permissions := pkgMiddleware.NewPermissionMiddleware(pkgMiddleware.NewAuthMiddleware(jwtService), authorizer)

	autoUpdateModule, err := autoupdate.New(appCtx.MongoDB, appCtx.Redis, appCtx.AutoUpdate, permissions)
	if err != nil {
		log.Fatalf("Failed to initialize auto-update module: %v", err)
	}
	modules := []module.Module{autoUpdateModule}

	apiPrefix := config.GetAPIPrefix()

	humaConfig := app.NewHumaConfig(apiPrefix)

	var api huma.API
	if apiPrefix == "" {
		api = humachi.New(r, humaConfig)
	} else {
		r.Route(apiPrefix, func(prefixRouter chi.Router) {
			api = humachi.New(prefixRouter, humaConfig)
		})
	}

	autoUpdateModule.RegisterUnifiedRoutes(api, "/auto-update")

	for _, mod := range modules {
		go mod.StartBackgroundTasks(ctx)
	}

	port := app.GetPort("8080")
	host := config.GetHost()

	srv := &http.Server{
		Addr:         host + ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if host == "0.0.0.0" {
		log.Printf("🚀 Server: http://localhost:%s%s | OpenAPI: %s/openapi.json", port, apiPrefix, apiPrefix)
	} else {
		log.Printf("🚀 Server: http://%s%s | OpenAPI: %s/openapi.json", srv.Addr, apiPrefix, apiPrefix)
	}

	go func() {
		slog.Info("Starting API server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Received shutdown signal, initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server forced to shutdown", "error", err)
	}

	for _, mod := range modules {
		mod.Stop()
	}

	appCtx.Shutdown(shutdownCtx)

	slog.Info("IntuneGet shutdown completed successfully")
}

func displayBanner() {
	fmt.Print("\033[38;5;33m")
	fmt.Println("IntuneGet auto-update service")
	fmt.Print("\033[0m\n")
}

// formatBytes converts bytes to human readable format
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// printMemoryLimits logs the container memory limit when one is set
func printMemoryLimits() {
	if limit := readCgroupMemoryLimit("/sys/fs/cgroup/memory.max"); limit > 0 {
		log.Printf("📦 Container limit: %s", formatBytes(uint64(limit)))
		return
	}
	if limit := readCgroupMemoryLimit("/sys/fs/cgroup/memory/memory.limit_in_bytes"); limit > 0 {
		log.Printf("📦 Container limit: %s", formatBytes(uint64(limit)))
	}
}

// readCgroupMemoryLimit returns 0 when the file is missing or reports no limit
func readCgroupMemoryLimit(path string) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	limitStr := strings.TrimSpace(string(data))
	if limitStr == "max" {
		return 0
	}

	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		return 0
	}

	// cgroups v1 reports a huge value when unlimited
	if limit > 1024*1024*1024*1024 {
		return 0
	}
	return limit
}
