package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskman/cmd/identity"
	"taskman/cmd/internal/auth/gate"
	"taskman/cmd/internal/httpjson"
	"taskman/cmd/security/password"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/prometheus/client_golang/prometheus"
)

// CredentialService is the part of identity.Credentials the handlers use.
type CredentialService interface {
	Enroll(ctx context.Context, username, plaintext string) (identity.Identity, error)
	Verify(ctx context.Context, username, plaintext string) (string, bool, error)
}

// Handler wires HTTP auth endpoints to the credential store and token gate.
type Handler struct {
	log *slog.Logger
	cfg Config

	creds  CredentialService
	gate   *gate.Gate
	policy password.Config

	now      func() time.Time
	outcomes *outcomeCounter
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithPasswordPolicy sets the policy applied to signup requests
// (default password.DefaultConfig()).
func WithPasswordPolicy(cfg password.Config) HandlerOption {
	return func(h *Handler) {
		h.policy = cfg
	}
}

// WithClock overrides the clock used for token issuance and validation.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithRegisterer registers the auth outcome counter on reg.
func WithRegisterer(reg prometheus.Registerer) HandlerOption {
	return func(h *Handler) {
		if reg == nil {
			return
		}
		c, err := newOutcomeCounter(reg)
		if err != nil {
			h.log.Warn("auth.metrics.register.fail", "err", err)
			return
		}
		h.outcomes = c
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, creds CredentialService, g *gate.Gate, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if creds == nil {
		return nil, errors.New("auth: nil credential service")
	}
	if g == nil {
		return nil, errors.New("auth: nil gate")
	}

	h := &Handler{
		log:    log,
		cfg:    cfg.normalized(),
		creds:  creds,
		gate:   g,
		policy: password.DefaultConfig(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /signup", h.handleSignup)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.Handle("GET /me", h.RequireIdentity(http.HandlerFunc(h.handleMe)))
}

// ---- handlers ----

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	const op = "signup"

	var req credentialsRequest
	if err := httpjson.Decode(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.outcomes.inc(op, "bad_request")
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validateSignup(req, h.cfg, h.policy); err != nil {
		h.outcomes.inc(op, "bad_request")
		writeValidationError(w, err)
		return
	}

	ctx := r.Context()
	rec, err := h.creds.Enroll(ctx, req.Username, req.Password)
	if err != nil {
		switch {
		case identity.IsInvalidInput(err):
			h.outcomes.inc(op, "bad_request")
			httpjson.Error(w, http.StatusBadRequest, "invalid_request", "invalid username or password")
		case identity.IsConflict(err):
			h.outcomes.inc(op, "conflict")
			httpjson.Error(w, http.StatusConflict, "conflict", "username already exists")
		default:
			h.outcomes.inc(op, "error")
			h.log.Error("auth.signup.fail", "err", err)
			httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.outcomes.inc(op, "created")
	h.log.Info("auth.signup.ok", "identity_id", rec.ID)
	httpjson.Write(w, http.StatusCreated, toIdentityResponse(rec))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "login"

	var req credentialsRequest
	if err := httpjson.Decode(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.outcomes.inc(op, "bad_request")
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validateLogin(req); err != nil {
		h.outcomes.inc(op, "bad_request")
		writeValidationError(w, err)
		return
	}

	ctx := r.Context()
	username, ok, err := h.creds.Verify(ctx, req.Username, req.Password)
	if err != nil {
		h.outcomes.inc(op, "error")
		h.log.Error("auth.login.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if !ok {
		h.outcomes.inc(op, "rejected")
		httpjson.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	tok, err := h.gate.Issue(username, h.now())
	if err != nil {
		h.outcomes.inc(op, "error")
		h.log.Error("auth.login.issue.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.outcomes.inc(op, "ok")
	httpjson.Write(w, http.StatusOK, loginResponse{
		Token:     tok.Value,
		TokenType: "Bearer",
		ExpiresAt: tok.ExpiresAt,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}
	httpjson.Write(w, http.StatusOK, toIdentityResponse(id))
}

// RequireIdentity authenticates the bearer token and attaches the resolved
// identity to the request context. Requests without a valid token get 401.
func (h *Handler) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			h.outcomes.inc("authenticate", "missing")
			httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		id, err := h.gate.Authenticate(r.Context(), raw, h.now())
		if err != nil {
			if identity.IsStorage(err) {
				h.outcomes.inc("authenticate", "error")
				h.log.Error("auth.authenticate.fail", "err", err)
				httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
				return
			}
			h.outcomes.inc("authenticate", "rejected")
			httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(gate.WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		httpjson.FieldErrors(w, http.StatusBadRequest, "invalid_request", "validation failed", verrs)
		return
	}
	httpjson.Error(w, http.StatusBadRequest, "invalid_request", "validation failed")
}

func toIdentityResponse(id identity.Identity) identityResponse {
	return identityResponse{
		ID:        id.ID,
		Username:  id.Username,
		CreatedAt: id.CreatedAt.UTC(),
	}
}
