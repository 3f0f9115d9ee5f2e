package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig holds the connection policy. Zero values take defaults.
type GatewayConfig struct {
	OriginRequired bool
	AllowedOrigins []string
	DevInsecure    bool

	WriteTimeout     time.Duration
	ReadIdleTimeout  time.Duration
	SendQueueSize    int
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// LoadGatewayConfigFromEnv reads TASKMAN_WS_* with secure defaults.
func LoadGatewayConfigFromEnv() GatewayConfig {
	return GatewayConfig{
		DevInsecure:      envOr("TASKMAN_WS_DEV_INSECURE", false, strconv.ParseBool),
		OriginRequired:   envOr("TASKMAN_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired, strconv.ParseBool),
		AllowedOrigins:   splitCSV(envOr("TASKMAN_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins, asString)),
		WriteTimeout:     envOr("TASKMAN_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout, time.ParseDuration),
		ReadIdleTimeout:  envOr("TASKMAN_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle, time.ParseDuration),
		SendQueueSize:    envOr("TASKMAN_WS_SEND_QUEUE", wsDefaultSendQueueSize, strconv.Atoi),
		HeartbeatEvery:   envOr("TASKMAN_WS_HEARTBEAT_INTERVAL", heartbeatInterval, time.ParseDuration),
		HeartbeatTimeout: envOr("TASKMAN_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout, time.ParseDuration),
		RateEvents:       envOr("TASKMAN_WS_RATE_EVENTS", rateLimitEvents, strconv.Atoi),
		RateWindow:       envOr("TASKMAN_WS_RATE_WINDOW", rateLimitWindow, time.ParseDuration),
	}
}

// normalized replaces non-positive values with defaults.
func (c GatewayConfig) normalized() GatewayConfig {
	c.WriteTimeout = positiveOr(c.WriteTimeout, wsDefaultWriteTimeout)
	c.ReadIdleTimeout = positiveOr(c.ReadIdleTimeout, wsDefaultReadIdle)
	c.SendQueueSize = max(positiveOr(c.SendQueueSize, wsDefaultSendQueueSize), wsMinSendQueueSize)
	c.HeartbeatEvery = positiveOr(c.HeartbeatEvery, heartbeatInterval)
	c.HeartbeatTimeout = positiveOr(c.HeartbeatTimeout, heartbeatTimeout)
	c.RateEvents = positiveOr(c.RateEvents, rateLimitEvents)
	c.RateWindow = positiveOr(c.RateWindow, rateLimitWindow)
	return c
}

func positiveOr[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// envOr parses key with parse, keeping def when the variable is blank or malformed.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func asString(s string) (string, error) { return s, nil }

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
