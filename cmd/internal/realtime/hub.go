package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"taskman/cmd/internal/tasks"

	"github.com/prometheus/client_golang/prometheus"
)

const reasonSlowConsumer = "slow consumer"

// Hub tracks connected clients per identity and fans messages out to them.
//
// Publish never blocks: a client whose queue is full is removed and closed.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[string]*Client // user id -> session id -> client

	connected prometheus.Gauge
	delivered *prometheus.CounterVec
}

// HubOption configures a Hub.
type HubOption func(*Hub) error

// WithHubRegisterer registers the hub's connection gauge and delivery counter.
func WithHubRegisterer(reg prometheus.Registerer) HubOption {
	return func(h *Hub) error {
		if reg == nil {
			return nil
		}
		for _, c := range []prometheus.Collector{h.connected, h.delivered} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					return err
				}
			}
		}
		return nil
	}
}

// NewHub constructs a Hub.
func NewHub(log *slog.Logger, opts ...HubOption) (*Hub, error) {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:     log,
		clients: make(map[string]map[string]*Client),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskman",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open task event websocket connections.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskman",
			Subsystem: "realtime",
			Name:      "messages_total",
			Help:      "Task event messages by delivery result.",
		}, []string{"result"}),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Register adds c to its owner's set.
func (h *Hub) Register(c *Client) {
	if h == nil || c == nil || c.UserID == "" || c.SessionID == "" {
		return
	}

	h.mu.Lock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[string]*Client)
		h.clients[c.UserID] = set
	}
	set[c.SessionID] = c
	h.mu.Unlock()

	h.connected.Inc()
	h.log.Debug("realtime.client.register", "user_id", c.UserID, "session_id", c.SessionID)
}

// Unregister removes c and closes it. Safe to call more than once.
func (h *Hub) Unregister(c *Client, reason string) {
	if h == nil || c == nil {
		return
	}
	if h.remove(c) {
		h.connected.Dec()
		h.log.Debug("realtime.client.unregister", "user_id", c.UserID, "session_id", c.SessionID, "reason", reason)
	}
	c.Close(reason)
}

func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		return false
	}
	if set[c.SessionID] != c {
		return false
	}
	delete(set, c.SessionID)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	return true
}

// Publish delivers msg to every client of userID and returns how many
// accepted it. Clients whose queue is full are disconnected.
func (h *Hub) Publish(userID string, msg Message) int {
	if h == nil || userID == "" {
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for _, c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- msg:
			n++
			h.delivered.WithLabelValues("queued").Inc()
		default:
			h.delivered.WithLabelValues("dropped").Inc()
			h.log.Info("realtime.client.slow", "user_id", c.UserID, "session_id", c.SessionID)
			h.Unregister(c, reasonSlowConsumer)
		}
	}
	return n
}

// Notify implements tasks.Notifier.
func (h *Hub) Notify(_ context.Context, e tasks.Event) {
	h.Publish(e.Task.UserID, eventMessage(e))
}

// Count returns the number of connected clients for userID, or all clients when userID is empty.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if userID != "" {
		return len(h.clients[userID])
	}
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// CloseAll disconnects every client, used on server shutdown.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	all := make([]*Client, 0)
	for _, set := range h.clients {
		for _, c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Unregister(c, reason)
	}
}
