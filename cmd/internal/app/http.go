package app

import (
	"net/http"

	"taskman/cmd/internal/httpjson"
)

// routes builds the full HTTP surface: operations endpoints, auth, tasks and
// the task event stream. Middleware order (outermost first): recovery,
// request id, logging, security headers, metrics, mux.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", a.handleReady)
	mux.Handle("GET /metrics", a.metrics.Handler())

	a.auth.Register(mux)
	a.tasks.Register(mux, a.auth.RequireIdentity)
	mux.Handle("GET /tasks/events", a.ws)

	var h http.Handler = mux
	h = a.metrics.Middleware(h)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, a.log)
	h = WithRequestID(h)
	h = WithRecovery(h, a.log)
	return h
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireDB && !a.cfg.postgresEnabled() {
		httpjson.Error(w, http.StatusServiceUnavailable, "not_ready", "database not configured")
		return
	}
	if err := a.db.ping(r.Context()); err != nil {
		a.log.Info("readyz.db.not_ready", "backend", a.db.name, "err", err)
		httpjson.Error(w, http.StatusServiceUnavailable, "not_ready", "database not ready")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ready", "backend": a.db.name})
}
