package app

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	authapi "taskman/cmd/internal/auth/api"
	"taskman/cmd/internal/auth/gate"
	"taskman/cmd/security/token"

	"github.com/joho/godotenv"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// MaxBodyBytes caps JSON request bodies on the auth and task routes.
	MaxBodyBytes   int64
	UsernameMinLen int
	UsernameMaxLen int

	// DatabaseURL selects Postgres. When empty the embedded SQLite database
	// at SQLitePath is used instead.
	DatabaseURL string
	SQLitePath  string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless Postgres is configured and reachable.
	ReadinessRequireDB bool

	JWTSecret    string
	JWTIssuer    string
	JWTTTL       time.Duration
	JWTClockSkew time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	return Config{
		HTTPAddr:  EnvString("TASKMAN_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("TASKMAN_LOG_LEVEL", "info"),
		LogFormat: EnvString("TASKMAN_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("TASKMAN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TASKMAN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TASKMAN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TASKMAN_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("TASKMAN_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    EnvInt("TASKMAN_HTTP_MAX_HEADER_BYTES", 1<<20),

		MaxBodyBytes:   EnvInt64("TASKMAN_MAX_BODY_BYTES", authapi.DefaultMaxBodyBytes),
		UsernameMinLen: EnvInt("TASKMAN_USERNAME_MIN_LEN", authapi.DefaultUsernameMin),
		UsernameMaxLen: EnvInt("TASKMAN_USERNAME_MAX_LEN", authapi.DefaultUsernameMax),

		DatabaseURL: EnvString("TASKMAN_DATABASE_URL", ""),
		SQLitePath:  EnvString("TASKMAN_SQLITE_PATH", "taskman.db"),
		DBMaxConns:  EnvInt32("TASKMAN_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TASKMAN_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("TASKMAN_READINESS_REQUIRE_DB", false),

		JWTSecret:    EnvString(token.EnvKey, ""),
		JWTIssuer:    EnvString("TASKMAN_JWT_ISSUER", gate.DefaultIssuer),
		JWTTTL:       EnvDuration("TASKMAN_JWT_TTL", gate.DefaultTTL),
		JWTClockSkew: EnvNonNegativeDuration("TASKMAN_JWT_CLOCK_SKEW", 30*time.Second),
	}, nil
}

// postgresEnabled reports whether the Postgres backend is selected.
func (c Config) postgresEnabled() bool { return c.DatabaseURL != "" }
