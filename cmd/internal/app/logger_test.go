package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLogLevel(tc.in), "parseLogLevel(%q)", tc.in)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	t.Parallel()

	t.Run("json is the default", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		newLogger(&buf, "info", "").Info("server.start", "addr", ":8080")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "server.start", rec["msg"])
		assert.Equal(t, ":8080", rec["addr"])
		assert.Contains(t, rec, "source")
	})

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		newLogger(&buf, "info", "TEXT").Info("server.start", "addr", ":8080")
		assert.Contains(t, buf.String(), "msg=server.start")
		assert.Contains(t, buf.String(), "addr=:8080")
	})

	t.Run("pretty", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		newLogger(&buf, "info", "pretty").Info("server.start", "addr", ":8080")
		line := buf.String()
		assert.True(t, strings.HasPrefix(line[strings.Index(line, " ")+1:], "INFO  server.start"), line)
		assert.Contains(t, line, " src=logger_test.go:")
		assert.Contains(t, line, " addr=:8080")
	})

	t.Run("level filter", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := newLogger(&buf, "error", "json")
		log.Warn("quiet")
		assert.Empty(t, buf.String())
	})
}
