package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"taskman/cmd/identity"
	"taskman/cmd/identity/ids"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Origin is required by default and only localhost is allowed.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"

	// accessTokenParam carries the bearer token for browser clients that
	// cannot set headers on the handshake.
	accessTokenParam = "access_token"
)

// Authenticator resolves a raw bearer token to a live identity.
// *gate.Gate satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string, now time.Time) (identity.Identity, error)
}

// WSGateway is the WebSocket entrypoint for task events.
//
// It enforces origin policy, authenticates the handshake, negotiates the
// subprotocol, and then streams the owner's task events from the Hub while
// answering pings and rate limiting inbound frames.
type WSGateway struct {
	log  *slog.Logger
	hub  *Hub
	auth Authenticator
	cfg  GatewayConfig

	origins originPolicy

	now func() time.Time
}

// NewWSGateway constructs a gateway.
func NewWSGateway(log *slog.Logger, hub *Hub, auth Authenticator, cfg GatewayConfig) (*WSGateway, error) {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		return nil, errors.New("realtime: nil hub")
	}
	if auth == nil {
		return nil, errors.New("realtime: nil authenticator")
	}
	cfg = cfg.normalized()

	return &WSGateway{
		log:     log,
		hub:     hub,
		auth:    auth,
		cfg:     cfg,
		origins: newOriginPolicy(cfg.OriginRequired, cfg.AllowedOrigins),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// ServeHTTP upgrades an authenticated request and runs the session until
// either side closes it.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.origins.check(r.Header.Get("Origin")); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	raw := handshakeToken(r)
	if raw == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := g.auth.Authenticate(r.Context(), raw, g.now())
	if err != nil {
		if identity.IsStorage(err) {
			g.log.Error("ws.auth.fail", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		g.log.Info("ws.reject.auth", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !slices.Contains(websocketProtocols(r), Subprotocol) {
		g.log.Info("ws.reject.subprotocol", "want", Subprotocol)
		http.Error(w, "subprotocol "+Subprotocol+" required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.origins.acceptPatterns(),
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := ids.New(g.now())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	g.serve(r.Context(), conn, NewClient(id.ID, sessionID, g.cfg.SendQueueSize), id)
}

func (g *WSGateway) serve(parent context.Context, conn *websocket.Conn, client *Client, id identity.Identity) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := g.log.With("session_id", client.SessionID, "user_id", client.UserID)

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unregister(client, reason)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	// The ready frame is queued before registration so it is always first.
	client.Send <- Message{
		V:    ProtocolVersion,
		Type: TypeReady,
		ID:   client.SessionID,
		At:   g.now(),
		Session: &SessionPayload{
			SessionID: client.SessionID,
			UserID:    id.ID,
			Username:  id.Username,
		},
	}
	g.hub.Register(client)
	log.Info("ws.session.start")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				if client.Reason() == reasonSlowConsumer {
					shutdown(websocket.StatusPolicyViolation, reasonSlowConsumer)
				} else {
					shutdown(websocket.StatusGoingAway, client.Reason())
				}
				return
			case msg := <-client.Send:
				if err := g.write(ctx, conn, msg); err != nil {
					log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					log.Info("ws.ping.fail", "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Every(g.cfg.RateWindow/time.Duration(g.cfg.RateEvents)), g.cfg.RateEvents)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		in, err := readInbound(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			case readErrBadJSON:
				if !limiter.Allow() {
					shutdown(websocket.StatusPolicyViolation, "rate limited")
					break readLoop
				}
				g.trySend(client, errorMessage("bad_json", "invalid JSON", g.now()))
				continue readLoop
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !limiter.Allow() {
			g.trySend(client, errorMessage("rate_limited", "too many messages", g.now()))
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		switch in.Type {
		case TypePing:
			g.trySend(client, Message{V: ProtocolVersion, Type: TypePong, ID: in.ID, At: g.now()})
		default:
			g.trySend(client, errorMessage("unsupported", fmt.Sprintf("unsupported type: %q", in.Type), g.now()))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	log.Info("ws.session.end")
}

func (g *WSGateway) write(parent context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(parent, g.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// trySend queues a reply without blocking; a full queue drops the reply.
func (g *WSGateway) trySend(client *Client, msg Message) bool {
	select {
	case <-client.Done():
		return false
	case client.Send <- msg:
		return true
	default:
		return false
	}
}

func handshakeToken(r *http.Request) string {
	if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
		scheme, tok, ok := strings.Cut(raw, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(tok)
	}
	return strings.TrimSpace(r.URL.Query().Get(accessTokenParam))
}

func websocketProtocols(r *http.Request) []string {
	var out []string
	for _, h := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(h, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// errBadJSON marks a frame that arrived intact but did not decode.
var errBadJSON = errors.New("bad json")

// readInbound reads one frame and decodes it. wsjson.Read is not used here
// because it closes the connection on a decode failure.
func readInbound(ctx context.Context, conn *websocket.Conn) (inbound, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return inbound{}, err
	}
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return inbound{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return in, nil
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	if errors.Is(err, errBadJSON) {
		return readErrBadJSON
	}
	return readErrUnknown
}
