// Package server provides the control HTTP and WebSocket surface
package server

import "time"

// Server configuration constants
const (
	// Per-connection sliding-window rate limit for inbound messages.
	// Transcript snapshots arrive on every recognition update, so the
	// ceiling is generous.
	RateLimitMessages = 60
	RateLimitWindow   = time.Second

	// How often connected clients receive a state snapshot if anything
	// changed.
	BroadcastInterval = 250 * time.Millisecond
)
