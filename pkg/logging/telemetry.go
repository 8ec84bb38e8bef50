package logging

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"intuneget/pkg/config"
	"intuneget/pkg/version"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

type TelemetryConfig struct {
	EnableTelemetry  bool
	ServiceName      string
	OTLPEndpoint     string
	LogLevel         string
	EnablePrettyLogs bool
	Environment      string
	// TraceSampleRatio is the fraction of root traces kept; child spans follow their parent
	TraceSampleRatio float64
}

type TelemetryManager struct {
	config        TelemetryConfig
	shutdownFuncs []func(context.Context) error
	logger        *slog.Logger
}

func NewTelemetryManager(serviceName string) *TelemetryManager {
	return &TelemetryManager{
		config: TelemetryConfig{
			EnableTelemetry:  config.GetBoolEnv("ENABLE_TELEMETRY", false),
			ServiceName:      config.GetEnv("SERVICE_NAME", serviceName),
			OTLPEndpoint:     config.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
			LogLevel:         config.GetEnv("LOG_LEVEL", "info"),
			EnablePrettyLogs: config.GetBoolEnv("ENABLE_PRETTY_LOGS", false),
			Environment:      config.GetEnv("APP_ENV", "development"),
			TraceSampleRatio: sampleRatio(config.GetEnv("OTEL_TRACES_SAMPLE_RATIO", "1")),
		},
	}
}

func (tm *TelemetryManager) Initialize(ctx context.Context) error {
	// Structured logging is always configured, exporters only with telemetry enabled
	tm.setupLogger()

	if !tm.config.EnableTelemetry {
		slog.Info("Telemetry disabled", slog.String("service", tm.config.ServiceName))
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(tm.config.ServiceName),
			semconv.ServiceVersionKey.String(version.Version),
			semconv.DeploymentEnvironmentKey.String(tm.config.Environment),
		),
	)
	if err != nil {
		return err
	}

	if err := tm.initTracing(ctx, res); err != nil {
		slog.Warn("Failed to initialize tracing", "error", err)
	}

	if err := tm.initLogging(ctx, res); err != nil {
		slog.Warn("Failed to initialize OpenTelemetry logging", "error", err)
	}

	slog.Info("Telemetry initialized",
		slog.String("service", tm.config.ServiceName),
		slog.String("endpoint", tm.config.OTLPEndpoint),
		slog.String("log_level", tm.config.LogLevel),
		slog.Float64("trace_sample_ratio", tm.config.TraceSampleRatio),
	)

	return nil
}

func (tm *TelemetryManager) initTracing(ctx context.Context, res *resource.Resource) error {
	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(tm.config.OTLPEndpoint+"/v1/traces"),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tm.config.TraceSampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tm.shutdownFuncs = append(tm.shutdownFuncs, tp.Shutdown)
	return nil
}

func (tm *TelemetryManager) initLogging(ctx context.Context, res *resource.Resource) error {
	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(tm.config.OTLPEndpoint+"/v1/logs"),
		otlploghttp.WithInsecure(),
	)
	if err != nil {
		return err
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	global.SetLoggerProvider(lp)
	tm.shutdownFuncs = append(tm.shutdownFuncs, lp.Shutdown)
	return nil
}

func (tm *TelemetryManager) setupLogger() {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(tm.config.LogLevel)}

	var handler slog.Handler
	if tm.config.EnablePrettyLogs {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if tm.config.EnableTelemetry {
		handler = NewOTelHandler(handler, tm.config.ServiceName)
	}

	tm.logger = slog.New(handler)
	slog.SetDefault(tm.logger)
}

func (tm *TelemetryManager) Shutdown(ctx context.Context) error {
	for _, shutdown := range tm.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			slog.Error("Error shutting down telemetry component", "error", err)
		}
	}
	return nil
}

func (tm *TelemetryManager) Logger() *slog.Logger {
	return tm.logger
}

// ParseLogLevel maps LOG_LEVEL values to slog levels, defaulting to info
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// sampleRatio parses OTEL_TRACES_SAMPLE_RATIO, clamping to [0, 1]. Unparseable values keep everything.
func sampleRatio(value string) float64 {
	ratio, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 1
	}
	return min(max(ratio, 0), 1)
}
