package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestSlogThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	logger.Info("Order placed", "order_id", 42, "total", "20.00", "err", errors.New("boom"))
	line := decodeLine(t, &buf)

	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "Order placed", line["message"])
	assert.Equal(t, float64(42), line["order_id"])
	assert.Equal(t, "20.00", line["total"])
	assert.Equal(t, "boom", line["err"])
	assert.Contains(t, line, "time")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("ignored")
	assert.Zero(t, buf.Len())
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	logger.Error("kept")
	assert.Equal(t, "error", decodeLine(t, &buf)["level"])
}

func TestGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "json").With("service", "bookstore").WithGroup("http")

	logger.Debug("request", "status", 201, slog.Group("route", "method", "POST"))
	line := decodeLine(t, &buf)

	assert.Equal(t, "bookstore", line["service"])
	assert.Equal(t, float64(201), line["http.status"])
	assert.Equal(t, "POST", line["http.route.method"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}
