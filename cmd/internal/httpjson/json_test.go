package httpjson

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
	}{
		{name: "ok", body: `{"name":"a"}`},
		{name: "unknown field", body: `{"name":"a","x":1}`, wantErr: true},
		{name: "trailing data", body: `{"name":"a"}{}`, wantErr: true},
		{name: "not json", body: `name=a`, wantErr: true},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", 64) + `"}`, max: 16, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var dst payload
			err := Decode(w, r, tt.max, &dst)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", dst.Name)
		})
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusConflict, "conflict", "username already exists")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body["error"]["code"])
	assert.Equal(t, "username already exists", body["error"]["message"])
	_, hasFields := body["error"]["fields"]
	assert.False(t, hasFields)
}
