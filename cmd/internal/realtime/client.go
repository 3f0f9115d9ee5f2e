package realtime

import "sync"

// Client is one connected websocket session.
//
// Send is never closed by the server so concurrent publishers cannot panic;
// done signals the connection goroutines to stop. Close is idempotent.
type Client struct {
	SessionID string
	UserID    string
	Send      chan Message

	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(userID, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = wsDefaultSendQueueSize
	}
	return &Client{
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan Message, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals shutdown. The first reason wins.
func (c *Client) Close(reason string) {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// Reason returns the reason passed to the first Close. Only meaningful after Done.
func (c *Client) Reason() string {
	<-c.Done()
	return c.reason
}
