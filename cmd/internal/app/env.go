package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv returns the trimmed value of key, and false when it is unset or blank.
func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// envParsed reads key through parse. Blank, unparsable or rejected values fall back to def.
func envParsed[T any](key string, def T, parse func(string) (T, error), accept func(T) bool) T {
	raw, ok := lookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	if accept != nil && !accept(v) {
		return def
	}
	return v
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return def
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
	return envParsed(key, def, strconv.ParseBool, nil)
}

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
	return envParsed(key, def, strconv.Atoi, func(n int) bool { return n > 0 })
}

// EnvInt64 reads a positive int64 env var with a default.
func EnvInt64(key string, def int64) int64 {
	parse := func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
	return envParsed(key, def, parse, func(n int64) bool { return n > 0 })
}

// EnvInt32 reads a non-negative int32 env var with a default.
func EnvInt32(key string, def int32) int32 {
	parse := func(s string) (int32, error) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	}
	return envParsed(key, def, parse, func(n int32) bool { return n >= 0 })
}

// EnvDuration reads a positive duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	return envParsed(key, def, time.ParseDuration, func(d time.Duration) bool { return d > 0 })
}

// EnvNonNegativeDuration is EnvDuration that also accepts zero.
func EnvNonNegativeDuration(key string, def time.Duration) time.Duration {
	return envParsed(key, def, time.ParseDuration, func(d time.Duration) bool { return d >= 0 })
}
