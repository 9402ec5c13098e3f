package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestNewJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "info", Format: "json", Output: &buf, ServiceName: "legisync-test"})

	log.WithFields(Fields{FieldFamily: "deputados", FieldCount: 3}).Info("loaded")

	line := lastLine(t, &buf)
	assert.Equal(t, "loaded", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "legisync-test", line["service"])
	assert.Equal(t, "deputados", line[FieldFamily])
	assert.EqualValues(t, 3, line[FieldCount])
	assert.Contains(t, line["file"], "logger_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "warn", Output: &buf})

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Verbose().Debug("kept")
	assert.Equal(t, "kept", lastLine(t, &buf)["message"])

	buf.Reset()
	log.Debug("still dropped")
	assert.Zero(t, buf.Len(), "Verbose must not change the original level")
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Output: &buf})

	ctx := base.WithContext(context.Background())
	ctx = SetJobID(ctx, "run-1")
	ctx = SetFamily(ctx, "partidos")
	ctx = SetPhase(ctx, "extract")

	ctx = SetComponent(ctx, "store")

	With(Fields{FieldDurationMs: int64(12)}).WithCount(7).Info(ctx, "phase %s done", "extract")
	line := lastLine(t, &buf)
	assert.Equal(t, "phase extract done", line["message"])
	assert.Equal(t, "run-1", line[FieldJobID])
	assert.Equal(t, "extract", line[FieldPhase])
	assert.Equal(t, "partidos", line[FieldFamily])
	assert.Equal(t, "store", line[FieldComponent])
	assert.EqualValues(t, 12, line[FieldDurationMs])
	assert.EqualValues(t, 7, line[FieldCount])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
}

func TestNewFromEnvWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legisync.log")
	log := NewFromEnv(&EnvConfig{
		Level:       "info",
		Format:      "text",
		ServiceName: "legisync",
		Environment: "prod",
		LogFile:     path,
		LogFileOnly: true,
		MaxSize:     1,
	})
	log.Info("to file")
	require.NoError(t, Sync())
	assert.FileExists(t, path)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_MAX_SIZE", "not-a-number")
	t.Setenv("LOG_COMPRESS", "false")

	cfg := LoadFromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.False(t, cfg.Compress)
}
