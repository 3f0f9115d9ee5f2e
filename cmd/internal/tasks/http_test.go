package tasks

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskman/cmd/identity"
	"taskman/cmd/internal/auth/gate"
	"taskman/cmd/internal/httpjson"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAuth resolves the X-Test-Owner header to an identity, standing in for
// the bearer-token middleware.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-Test-Owner")
		if owner == "" {
			httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(gate.WithIdentity(r.Context(), identity.Identity{ID: owner})))
	})
}

func newTestServer(t *testing.T) (*httptest.Server, *fixture) {
	t.Helper()

	f := newFixture(t)
	h, err := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, 0)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux, testAuth)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, f
}

func do(t *testing.T, method, url, owner, body string) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set("X-Test-Owner", owner)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHTTP_TaskLifecycle(t *testing.T) {
	srv, f := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/tasks", f.alice, `{"title":"Title","description":"Description"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created taskResponse
	decodeInto(t, resp, &created)
	assert.Equal(t, StatusOpen, created.Status)
	assert.Equal(t, f.alice, created.UserID)

	resp = do(t, http.MethodGet, srv.URL+"/tasks/"+created.ID, f.alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got taskResponse
	decodeInto(t, resp, &got)
	assert.Equal(t, created.ID, got.ID)

	resp = do(t, http.MethodPatch, srv.URL+"/tasks/"+created.ID+"/status", f.alice, `{"status":"IN_PROGRESS"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated taskResponse
	decodeInto(t, resp, &updated)
	assert.Equal(t, StatusInProgress, updated.Status)

	resp = do(t, http.MethodGet, srv.URL+"/tasks?status=IN_PROGRESS&search=titl", f.alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []taskResponse
	decodeInto(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	resp = do(t, http.MethodDelete, srv.URL+"/tasks/"+created.ID, f.alice, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/tasks/"+created.ID, f.alice, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/tasks/"+created.ID, f.alice, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_StatusIsCaseInsensitiveInBodyAndFilter(t *testing.T) {
	srv, f := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/tasks", f.alice, `{"title":"mixed case"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created taskResponse
	decodeInto(t, resp, &created)

	resp = do(t, http.MethodPatch, srv.URL+"/tasks/"+created.ID+"/status", f.alice, `{"status":"done"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated taskResponse
	decodeInto(t, resp, &updated)
	assert.Equal(t, StatusDone, updated.Status)

	resp = do(t, http.MethodGet, srv.URL+"/tasks?status=done", f.alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []taskResponse
	decodeInto(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, StatusDone, list[0].Status)
}

func TestHTTP_EmptyListIsArray(t *testing.T) {
	srv, f := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/tasks", f.alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(body))
}

func TestHTTP_OtherOwnersTasksAreNotFound(t *testing.T) {
	srv, f := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/tasks", f.alice, `{"title":"secret"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created taskResponse
	decodeInto(t, resp, &created)

	resp = do(t, http.MethodGet, srv.URL+"/tasks/"+created.ID, f.bob, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPatch, srv.URL+"/tasks/"+created.ID+"/status", f.bob, `{"status":"DONE"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/tasks/"+created.ID, f.bob, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_BadRequests(t *testing.T) {
	srv, f := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/tasks", f.alice, `{"title":"t"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created taskResponse
	decodeInto(t, resp, &created)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "missing title", method: http.MethodPost, path: "/tasks", body: `{"description":"d"}`},
		{name: "blank title", method: http.MethodPost, path: "/tasks", body: `{"title":"   "}`},
		{name: "long title", method: http.MethodPost, path: "/tasks", body: `{"title":"` + strings.Repeat("x", MaxTitleChars+1) + `"}`},
		{name: "unknown field", method: http.MethodPost, path: "/tasks", body: `{"title":"t","status":"DONE"}`},
		{name: "unknown status", method: http.MethodPatch, path: "/tasks/" + created.ID + "/status", body: `{"status":"ARCHIVED"}`},
		{name: "empty status", method: http.MethodPatch, path: "/tasks/" + created.ID + "/status", body: `{}`},
		{name: "bad status filter", method: http.MethodGet, path: "/tasks?status=ARCHIVED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, f.alice, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHTTP_RequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/tasks"},
		{http.MethodPost, "/tasks"},
		{http.MethodGet, "/tasks/01J00000000000000000000000"},
		{http.MethodDelete, "/tasks/01J00000000000000000000000"},
		{http.MethodPatch, "/tasks/01J00000000000000000000000/status"},
	} {
		resp := do(t, tc.method, srv.URL+tc.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}
