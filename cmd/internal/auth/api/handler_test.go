package authapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskman/cmd/identity"
	"taskman/cmd/internal/auth/gate"
	"taskman/cmd/internal/storage"
	"taskman/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	creds *identity.Credentials
	gate  *gate.Gate
	reg   *prometheus.Registry
}

func testPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	cfg.MaxConcurrent = 4
	return cfg
}

func testSecret(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 32)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.OpenSQLiteMemory(context.Background(), strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := identity.NewSQLiteStore(db.Writer, db.Reader)
	require.NoError(t, err)

	pwCfg := testPasswordConfig()
	creds, err := identity.NewCredentials(st, password.NewHasher(pwCfg))
	require.NoError(t, err)

	g, err := gate.New(gate.Config{Secret: testSecret(t)}, creds)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	h, err := NewHandler(discardLogger(), Config{}, creds, g,
		WithPasswordPolicy(pwCfg),
		WithRegisterer(reg),
	)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, creds: creds, gate: g, reg: reg}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getWithToken(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func TestSignupLoginMe(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.srv.URL+"/signup", `{"username":"johndoe","password":"JohnDoe12345+"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created identityResponse
	decodeBody(t, resp, &created)
	assert.Equal(t, "johndoe", created.Username)
	assert.Len(t, created.ID, 26)

	resp = postJSON(t, env.srv.URL+"/login", `{"username":"johndoe","password":"JohnDoe12345+"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login loginResponse
	decodeBody(t, resp, &login)
	assert.Equal(t, "Bearer", login.TokenType)
	assert.NotEmpty(t, login.Token)
	assert.WithinDuration(t, time.Now().Add(gate.DefaultTTL), login.ExpiresAt, 5*time.Second)

	resp = getWithToken(t, env.srv.URL+"/me", login.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me identityResponse
	decodeBody(t, resp, &me)
	assert.Equal(t, created.ID, me.ID)
	assert.Equal(t, "johndoe", me.Username)
}

func TestSignup_DuplicateIsConflict(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.srv.URL+"/signup", `{"username":"johndoe","password":"JohnDoe12345+"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, env.srv.URL+"/signup", `{"username":"johndoe","password":"Another12345+"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, "conflict", body.Error.Code)
}

func TestSignup_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "short username", body: `{"username":"abc","password":"JohnDoe12345+"}`, field: "username"},
		{name: "long username", body: `{"username":"` + strings.Repeat("a", 21) + `","password":"JohnDoe12345+"}`, field: "username"},
		{name: "padded username", body: `{"username":" johndoe ","password":"JohnDoe12345+"}`, field: "username"},
		{name: "missing password", body: `{"username":"johndoe"}`, field: "password"},
		{name: "short password", body: `{"username":"johndoe","password":"Ab1+"}`, field: "password"},
		{name: "long password", body: `{"username":"johndoe","password":"` + strings.Repeat("Ab1+", 6) + `"}`, field: "password"},
		{name: "weak password", body: `{"username":"johndoe","password":"alllowercase"}`, field: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, env.srv.URL+"/signup", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body errorBody
			decodeBody(t, resp, &body)
			assert.Equal(t, "invalid_request", body.Error.Code)
			assert.Contains(t, body.Error.Fields, tt.field)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		resp := postJSON(t, env.srv.URL+"/signup", `{"username":`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown field", func(t *testing.T) {
		resp := postJSON(t, env.srv.URL+"/signup", `{"username":"johndoe","password":"JohnDoe12345+","admin":true}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin_RejectionsAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.creds.Enroll(context.Background(), "johndoe", "JohnDoe12345+")
	require.NoError(t, err)

	wrong := postJSON(t, env.srv.URL+"/login", `{"username":"johndoe","password":"Wrong12345+"}`)
	unknown := postJSON(t, env.srv.URL+"/login", `{"username":"janedoe","password":"JohnDoe12345+"}`)

	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)

	a, err := io.ReadAll(wrong.Body)
	require.NoError(t, err)
	b, err := io.ReadAll(unknown.Body)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Contains(t, string(a), "invalid_credentials")
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.srv.URL+"/login", `{"username":"johndoe"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMe_RequiresValidToken(t *testing.T) {
	env := newTestEnv(t)

	resp := getWithToken(t, env.srv.URL+"/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = getWithToken(t, env.srv.URL+"/me", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Well-formed token for an identity that does not exist.
	tok, err := env.gate.Issue("ghost", time.Now())
	require.NoError(t, err)
	resp = getWithToken(t, env.srv.URL+"/me", tok.Value)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/signup")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type failingCredentials struct{}

func (failingCredentials) Enroll(context.Context, string, string) (identity.Identity, error) {
	return identity.Identity{}, identity.StorageError{Op: "test.Enroll", Err: errors.New("disk on fire")}
}

func (failingCredentials) Verify(context.Context, string, string) (string, bool, error) {
	return "", false, identity.StorageError{Op: "test.Verify", Err: errors.New("disk on fire")}
}

func (failingCredentials) Lookup(context.Context, string) (identity.Identity, error) {
	return identity.Identity{}, identity.StorageError{Op: "test.Lookup", Err: errors.New("disk on fire")}
}

func TestStorageFailuresAreGeneric(t *testing.T) {
	g, err := gate.New(gate.Config{Secret: testSecret(t)}, failingCredentials{})
	require.NoError(t, err)

	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, nil))
	h, err := NewHandler(log, Config{}, failingCredentials{}, g, WithPasswordPolicy(testPasswordConfig()))
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/signup", "/login"} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"username":"johndoe","password":"JohnDoe12345+"}`))
		mux.ServeHTTP(w, r)

		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
		assert.NotContains(t, w.Body.String(), "disk on fire", path)
	}

	tok, err := g.Issue("johndoe", time.Now())
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+tok.Value)
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	assert.Contains(t, logs.String(), "disk on fire")
}

func TestOutcomeMetrics(t *testing.T) {
	env := newTestEnv(t)

	postJSON(t, env.srv.URL+"/signup", `{"username":"johndoe","password":"JohnDoe12345+"}`)
	postJSON(t, env.srv.URL+"/signup", `{"username":"johndoe","password":"JohnDoe12345+"}`)
	postJSON(t, env.srv.URL+"/login", `{"username":"johndoe","password":"nope"}`)

	families, err := env.reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "taskman_auth_outcomes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var op, outcome string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "op":
					op = lp.GetValue()
				case "outcome":
					outcome = lp.GetValue()
				}
			}
			got[op+"/"+outcome] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, float64(1), got["signup/created"])
	assert.Equal(t, float64(1), got["signup/conflict"])
	assert.Equal(t, float64(1), got["login/rejected"])
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "Bearer", want: ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(r), "header=%q", tt.header)
	}
}
