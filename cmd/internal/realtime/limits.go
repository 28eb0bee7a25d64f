package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket message read (hard limit). A 1280x720 JPEG
	// frame as a base64 data URL fits comfortably.
	maxFrameBytes = 2 << 20 // 2 MiB

	// Events waiting for the session worker before a new frame is dropped.
	frameQueueSize = 2

	// Queue capacity per connection. Start/stop block the read loop only when
	// this is full, which frames alone never cause.
	eventQueueSize = 8
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window). Sized for ~15 fps plus control events.
	rateLimitEvents = 200
	rateLimitWindow = 10 * time.Second

	// verify_start/verify_stop budget inside the overall one. A start touches
	// storage, so it gets a much smaller allowance than frames.
	controlRateEvents = 10
	controlRateWindow = 10 * time.Second
)
