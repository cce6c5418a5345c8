package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesJSONToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	logger, closer, err := InitLogger(dir, true)
	require.NoError(t, err)

	logger.Debug("retrying request", "attempt", 1)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "healthassist.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"retrying request"`)
	assert.Contains(t, string(data), `"attempt":1`)
}

func TestInitTelemetry(t *testing.T) {
	dir := t.TempDir()
	tracer, meter, cleanup, err := InitTelemetry(context.Background(), dir)
	require.NoError(t, err)
	defer cleanup()

	_, span := tracer.Start(context.Background(), "test_span")
	span.End()

	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}
