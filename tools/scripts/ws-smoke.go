// Package main provides a CI-friendly end-to-end smoke test for the taskman
// task event stream.
//
// It validates:
//   - signup (409 tolerated on reruns) and login over HTTP
//   - handshake with bearer token and subprotocol selection
//   - session.ready as the first frame
//   - ping -> pong
//   - task.created / task.status_updated / task.deleted for HTTP mutations
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	subprotocol  = "taskman.v1"
	maxReadBytes = 1 << 16
)

type frame struct {
	V    int       `json:"v"`
	Type string    `json:"type"`
	ID   string    `json:"id,omitempty"`
	At   time.Time `json:"at"`
	Task *struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Status string `json:"status"`
	} `json:"task,omitempty"`
	Session *struct {
		SessionID string `json:"session_id"`
		Username  string `json:"username"`
	} `json:"session,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "HTTP base URL of the server")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		username = flag.String("user", "smokeuser", "Username to sign up / log in with")
		password = flag.String("password", "SmokeTest12345+", "Password to sign up / log in with")
		title    = flag.String("title", "smoke task", "Title of the task to create")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -base: %q", *baseURL)
	}

	client := &http.Client{Timeout: *timeout}
	creds := map[string]string{"username": *username, "password": *password}

	status, _ := mustDo(client, http.MethodPost, base.String()+"/signup", "", creds)
	if status != http.StatusCreated && status != http.StatusConflict {
		fatalf("signup: unexpected status %d", status)
	}

	status, body := mustDo(client, http.MethodPost, base.String()+"/login", "", creds)
	if status != http.StatusOK {
		fatalf("login: unexpected status %d: %s", status, body)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &login); err != nil || login.Token == "" {
		fatalf("login: missing token: %s", body)
	}

	root := context.Background()
	conn := mustConnect(root, wsURL(base), *origin, login.Token, *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ready := mustRead(root, conn, *timeout)
	if ready.Type != "session.ready" || ready.Session == nil || ready.Session.SessionID == "" {
		fatalf("first frame: want session.ready, got %q", ready.Type)
	}
	if ready.Session.Username != *username {
		fatalf("session.ready username mismatch: got=%q want=%q", ready.Session.Username, *username)
	}
	if *verbose {
		fmt.Printf("connected: session=%s\n", ready.Session.SessionID)
	}

	mustWrite(root, conn, map[string]string{"type": "ping", "id": "smoke-ping"}, *timeout)
	if pong := mustRead(root, conn, *timeout); pong.Type != "pong" || pong.ID != "smoke-ping" {
		fatalf("ping: want pong/smoke-ping, got %q/%q", pong.Type, pong.ID)
	}

	status, body = mustDo(client, http.MethodPost, base.String()+"/tasks", login.Token, map[string]string{"title": *title})
	if status != http.StatusCreated {
		fatalf("create task: unexpected status %d: %s", status, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		fatalf("create task: missing id: %s", body)
	}

	ev := mustReadEvent(root, conn, "task.created", created.ID, *timeout)
	if ev.Task.Title != *title || ev.Task.Status != "OPEN" {
		fatalf("task.created payload mismatch: title=%q status=%q", ev.Task.Title, ev.Task.Status)
	}

	status, body = mustDo(client, http.MethodPatch, base.String()+"/tasks/"+created.ID+"/status", login.Token, map[string]string{"status": "IN_PROGRESS"})
	if status != http.StatusOK {
		fatalf("update status: unexpected status %d: %s", status, body)
	}
	if ev := mustReadEvent(root, conn, "task.status_updated", created.ID, *timeout); ev.Task.Status != "IN_PROGRESS" {
		fatalf("task.status_updated status mismatch: %q", ev.Task.Status)
	}

	status, body = mustDo(client, http.MethodDelete, base.String()+"/tasks/"+created.ID, login.Token, nil)
	if status != http.StatusNoContent {
		fatalf("delete task: unexpected status %d: %s", status, body)
	}
	mustReadEvent(root, conn, "task.deleted", created.ID, *timeout)

	fmt.Printf("OK: session=%s task=%s\n", ready.Session.SessionID, created.ID)
}

func wsURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/tasks/events"
	return u.String()
}

func mustDo(client *http.Client, method, target, bearer string, payload any) (int, []byte) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			fatalf("marshal request: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, target, body)
	if err != nil {
		fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxReadBytes))
	if err != nil {
		fatalf("%s %s: read body: %v", method, target, err)
	}
	return res.StatusCode, raw
}

func mustConnect(parent context.Context, target, origin, bearer string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+bearer)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			fatalf("connect: %v (status %d)", err, resp.StatusCode)
		}
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustRead(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) frame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fatalf("timeout waiting for frame")
		}
		fatalf("read: %v", err)
	}
	if f.Type == "error" && f.Error != nil {
		fatalf("server error: code=%q msg=%q", f.Error.Code, f.Error.Message)
	}
	return f
}

func mustReadEvent(parent context.Context, conn *websocket.Conn, wantType, taskID string, stepTimeout time.Duration) frame {
	f := mustRead(parent, conn, stepTimeout)
	if f.Type != wantType {
		fatalf("unexpected frame: got=%q want=%q", f.Type, wantType)
	}
	if f.Task == nil || f.Task.ID != taskID {
		fatalf("%s: task id mismatch", wantType)
	}
	return f
}

func mustWrite(parent context.Context, conn *websocket.Conn, v any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, v); err != nil {
		fatalf("write failed: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
