package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("boom") }

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		out = append(out, entry)
	}
	return out
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestLogErrorAttachesError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, FormatJSON, slog.LevelDebug)

	LogError(logger, "feed fetch failed", errors.New("timeout"), slog.String("url", "http://feed"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, "timeout", lines[0]["error"])
	assert.Equal(t, "http://feed", lines[0]["url"])
}

func TestLogHTTPRequestLevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, FormatJSON, slog.LevelDebug)

	LogHTTPRequest(logger, "GET", "/api/stops", 200, 1.5)
	LogHTTPRequest(logger, "GET", "/api/schedule/x", 404, 0.3)
	LogHTTPRequest(logger, "GET", "/api/live-positions", 500, 2)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.EqualValues(t, 404, lines[1]["status"])
}

func TestSafeCloseWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, FormatJSON, slog.LevelDebug)

	SafeCloseWithLogging(failingCloser{}, logger, "http_response_body")
	SafeCloseWithLogging(nil, logger, "nothing")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http_response_body", lines[0]["resource"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
