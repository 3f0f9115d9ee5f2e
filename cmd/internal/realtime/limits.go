package realtime

import "time"

const (
	// Max bytes per inbound websocket frame.
	maxFrameBytes = 4 << 10 // 4 KiB

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound frames allowed per window, per connection.
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
