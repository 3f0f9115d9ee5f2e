package app

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))

	log.Info("http.request",
		"method", "GET",
		"path", "/tasks",
		"status", 200,
		"duration_ms", int64(12),
		"note", "two words",
		"err", errors.New("boom"),
	)

	line := buf.String()
	require.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "INFO  http.request")
	assert.Contains(t, line, " method=GET")
	assert.Contains(t, line, " path=/tasks")
	assert.Contains(t, line, " status=200")
	assert.Contains(t, line, " duration_ms=12ms")
	assert.Contains(t, line, ` note="two words"`)
	assert.Contains(t, line, " err=boom")
	assert.NotContains(t, line, "\x1b[")
}

func TestPrettyHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).
		With("component", "tasks").
		WithGroup("req")

	log.Info("tasks.create", "id", "01J", slog.Group("owner", "name", "johndoe"))

	line := buf.String()
	assert.Contains(t, line, " component=tasks")
	assert.Contains(t, line, " req.id=01J")
	assert.Contains(t, line, " req.owner.name=johndoe")
}

func TestPrettyHandler_LevelFilterAndColour(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))

	log.Info("dropped")
	assert.Empty(t, buf.String())

	log.Error("server.fail", "status", 503)
	line := buf.String()
	assert.Contains(t, line, ansiRed+"ERROR"+ansiReset)
	assert.Contains(t, line, "status="+ansiRed+"503"+ansiReset)
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `""`, quoteIfNeeded(""))
	assert.Equal(t, "plain", quoteIfNeeded("plain"))
	assert.Equal(t, `"a=b"`, quoteIfNeeded("a=b"))
}
