package tasks

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"taskman/cmd/internal/auth/gate"
	"taskman/cmd/internal/httpjson"

	validation "github.com/go-ozzo/ozzo-validation"
)

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (r createRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.By(maxRunes(MaxTitleChars))),
		validation.Field(&r.Description, validation.By(maxRunes(MaxDescriptionChars))),
	)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (r statusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required, validation.By(knownStatus)),
	)
}

type taskResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toTaskResponse(t Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		UserID:      t.UserID,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

// Handler exposes the task service over HTTP.
type Handler struct {
	log          *slog.Logger
	svc          *Service
	maxBodyBytes int64
}

// NewHandler constructs a task Handler.
func NewHandler(log *slog.Logger, svc *Service, maxBodyBytes int64) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if svc == nil {
		return nil, errors.New("tasks: nil service")
	}
	return &Handler{log: log, svc: svc, maxBodyBytes: maxBodyBytes}, nil
}

// Register wires task routes onto mux behind the auth middleware.
func (h *Handler) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	if h == nil || mux == nil {
		return
	}
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("GET /tasks", auth(http.HandlerFunc(h.handleList)))
	mux.Handle("POST /tasks", auth(http.HandlerFunc(h.handleCreate)))
	mux.Handle("GET /tasks/{id}", auth(http.HandlerFunc(h.handleGet)))
	mux.Handle("DELETE /tasks/{id}", auth(http.HandlerFunc(h.handleDelete)))
	mux.Handle("PATCH /tasks/{id}/status", auth(http.HandlerFunc(h.handleUpdateStatus)))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	f := Filter{Search: q.Get("search")}
	if raw := q.Get("status"); raw != "" {
		st, ok := ParseStatus(raw)
		if !ok {
			httpjson.Error(w, http.StatusBadRequest, "invalid_request", "unknown status")
			return
		}
		f.Status = st
	}

	list, err := h.svc.List(r.Context(), owner, f)
	if err != nil {
		h.writeServiceError(w, "tasks.list.fail", err)
		return
	}

	out := make([]taskResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTaskResponse(t))
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "tasks.get.fail", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toTaskResponse(t))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := httpjson.Decode(w, r, h.maxBodyBytes, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	t, err := h.svc.Create(r.Context(), owner, CreateInput{Title: req.Title, Description: req.Description})
	if err != nil {
		h.writeServiceError(w, "tasks.create.fail", err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toTaskResponse(t))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		h.writeServiceError(w, "tasks.delete.fail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := httpjson.Decode(w, r, h.maxBodyBytes, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	t, err := h.svc.UpdateStatus(r.Context(), owner, r.PathValue("id"), Status(req.Status))
	if err != nil {
		h.writeServiceError(w, "tasks.update_status.fail", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toTaskResponse(t))
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok || id.ID == "" {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return "", false
	}
	return id.ID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, event string, err error) {
	switch {
	case IsNotFound(err):
		httpjson.Error(w, http.StatusNotFound, "not_found", "task not found")
	case IsInvalidInput(err):
		msg := "invalid request"
		var oe OpError
		if errors.As(err, &oe) && oe.Msg != "" {
			msg = oe.Msg
		}
		httpjson.Error(w, http.StatusBadRequest, "invalid_request", msg)
	default:
		h.log.Error(event, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		httpjson.FieldErrors(w, http.StatusBadRequest, "invalid_request", "validation failed", verrs)
		return
	}
	httpjson.Error(w, http.StatusBadRequest, "invalid_request", "validation failed")
}

func maxRunes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if utf8.RuneCountInString(s) > n {
			return errors.New("is too long")
		}
		return nil
	}
}

// knownStatus applies the same case-insensitive rule as the list filter.
func knownStatus(value interface{}) error {
	s, _ := value.(string)
	if _, ok := ParseStatus(s); !ok {
		return errors.New("must be one of OPEN, IN_PROGRESS, DONE")
	}
	return nil
}
