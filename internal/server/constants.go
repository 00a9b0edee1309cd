// Package server exposes assessment sessions over REST and WebSocket.
package server

import "time"

// Server configuration constants
const (
	// Per-connection WebSocket message limit (sliding window)
	RateLimitMessages = 30
	RateLimitWindow   = time.Second

	// Deadline for writing one WebSocket frame
	WriteTimeout = 5 * time.Second

	// Bound on REST handlers; actions return once accepted, not when
	// collaborator calls finish
	HandlerTimeout = 30 * time.Second

	// Collaborator ping budget for /healthz
	HealthCheckTimeout = 2 * time.Second

	// Multipart overhead allowed on top of the resume size limit
	MultipartOverhead = 1 << 20

	// Form field carrying the resume
	ResumeField = "file"
)

// WebSocket message types
const (
	MsgSnapshot    = "snapshot"
	MsgError       = "error"
	MsgTranscript  = "transcript"
	MsgAction      = "action"
	MsgRateLimited = "rate_limited"
)
