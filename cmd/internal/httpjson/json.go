// Package httpjson holds the JSON request/response helpers shared by the HTTP handlers.
package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes caps request bodies when the caller passes a non-positive limit.
const DefaultMaxBodyBytes int64 = 1 << 20

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fields  any    `json:"fields,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// Write encodes v as the response body with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes {"error":{"code","message"}}.
func Error(w http.ResponseWriter, status int, code, msg string) {
	Write(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// FieldErrors is Error with per-field validation details attached.
func FieldErrors(w http.ResponseWriter, status int, code, msg string, fields any) {
	Write(w, status, errorResponse{Error: apiError{Code: code, Message: msg, Fields: fields}})
}

// Decode reads exactly one JSON object from the body into dst.
// Unknown fields and trailing data are rejected.
func Decode(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
