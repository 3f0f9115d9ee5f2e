// Package app wires the taskman server runtime: config, logging, storage,
// HTTP routes and the realtime task event gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskman/cmd/identity"
	authapi "taskman/cmd/internal/auth/api"
	"taskman/cmd/internal/auth/gate"
	"taskman/cmd/internal/realtime"
	"taskman/cmd/internal/tasks"
	"taskman/cmd/security/password"
	"taskman/cmd/security/token"
)

// App is the taskman server runtime. It owns the database handles, the
// realtime hub and the HTTP server.
type App struct {
	cfg Config
	log Logger

	db      *backend
	metrics *Metrics
	hub     *realtime.Hub
	ws      *realtime.WSGateway
	auth    *authapi.Handler
	tasks   *tasks.Handler

	handler http.Handler
}

// New constructs a fully wired App. On error every resource opened so far is released.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	secret, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	db, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, db: db, metrics: metrics}
	if err := a.wire(secret, pwCfg); err != nil {
		db.close()
		return nil, err
	}
	a.handler = a.routes()

	log.Info("app.ready",
		"backend", db.name,
		"jwt_issuer", cfg.JWTIssuer,
		"jwt_ttl", cfg.JWTTTL.String(),
		"jwt_key_fingerprint", token.Fingerprint(secret),
	)
	return a, nil
}

func (a *App) wire(secret []byte, pwCfg password.Config) error {
	creds, err := identity.NewCredentials(a.db.identities, password.NewHasher(pwCfg))
	if err != nil {
		return err
	}

	g, err := gate.New(gate.Config{
		Secret: secret,
		Issuer: a.cfg.JWTIssuer,
		TTL:    a.cfg.JWTTTL,
		Leeway: a.cfg.JWTClockSkew,
	}, creds)
	if err != nil {
		return fmt.Errorf("token gate: %w", err)
	}

	authCfg := authapi.Config{
		MaxBodyBytes: a.cfg.MaxBodyBytes,
		UsernameMin:  a.cfg.UsernameMinLen,
		UsernameMax:  a.cfg.UsernameMaxLen,
	}
	a.auth, err = authapi.NewHandler(a.log, authCfg, creds, g,
		authapi.WithPasswordPolicy(pwCfg),
		authapi.WithRegisterer(a.metrics.Registerer()),
	)
	if err != nil {
		return err
	}

	a.hub, err = realtime.NewHub(a.log, realtime.WithHubRegisterer(a.metrics.Registerer()))
	if err != nil {
		return err
	}
	a.ws, err = realtime.NewWSGateway(a.log, a.hub, g, realtime.LoadGatewayConfigFromEnv())
	if err != nil {
		return err
	}

	svc, err := tasks.NewService(a.db.tasks, tasks.WithNotifier(a.hub), tasks.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.tasks, err = tasks.NewHandler(a.log, svc, authCfg.MaxBodyBytes)
	return err
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Close releases the realtime sessions and database handles.
func (a *App) Close() {
	a.hub.CloseAll("server shutdown")
	a.db.close()
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
	// Hijacked WebSocket connections are not tracked by Shutdown.
	srv.RegisterOnShutdown(func() { a.hub.CloseAll("server shutdown") })

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "backend", a.db.name)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
