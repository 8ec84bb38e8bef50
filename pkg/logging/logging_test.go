package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), "level %q", in)
	}
}

func TestSeverityMapping(t *testing.T) {
	assert.Equal(t, log.SeverityDebug, severity(slog.LevelDebug))
	assert.Equal(t, log.SeverityInfo, severity(slog.LevelInfo))
	assert.Equal(t, log.SeverityWarn, severity(slog.LevelWarn))
	assert.Equal(t, log.SeverityError, severity(slog.LevelError+4))
}

func TestOTelHandlerForwardsToWrappedHandler(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(NewOTelHandler(base, "test")).With("module", "auto-update")

	logger.InfoContext(context.Background(), "policy disabled", "policy_id", "p-1")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `"msg":"policy disabled"`)
	assert.Contains(t, out, `"module":"auto-update"`)
	assert.Contains(t, out, `"policy_id":"p-1"`)
	assert.NotContains(t, out, "hidden")
}

func TestSampleRatio(t *testing.T) {
	tests := map[string]float64{
		"1":    1,
		"0.25": 0.25,
		" 0 ":  0,
		"-3":   0,
		"7":    1,
		"half": 1,
	}
	for in, want := range tests {
		assert.Equal(t, want, sampleRatio(in), "ratio %q", in)
	}
}
