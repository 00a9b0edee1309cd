package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// inbound is a client message. Transcript messages carry Text; action
// messages carry the same fields as the REST bodies.
type inbound struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
	actionRequest
}

type SnapshotMessage struct {
	Type     string                `json:"type"`
	Snapshot orchestrator.Snapshot `json:"snapshot"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	limit      int
	window     time.Duration
	mu         sync.Mutex
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{limit: RateLimitMessages, window: RateLimitWindow}
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= r.limit {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// handleWebSocket streams a session's snapshots and accepts transcripts and
// actions for it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	o, err := s.opts.Manager.Get(id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(trace.WithSession(r.Context(), id))
	defer cancel()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	snaps, unsubscribe := o.Subscribe()
	defer unsubscribe()
	go func() {
		defer cancel()
		for snap := range snaps {
			if err := write(ctx, conn, SnapshotMessage{Type: MsgSnapshot, Snapshot: snap}); err != nil {
				log.Debug("websocket write error", "error", err)
				return
			}
		}
		// The stream also ends when this handler unsubscribes on disconnect.
		if o.Closed() {
			_ = conn.Close(websocket.StatusGoingAway, "session closed")
		}
	}()

	rl := newRateLimiter()
	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow(time.Now()) {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = write(ctx, conn, ErrorMessage{Type: MsgRateLimited, Code: "RATE_LIMITED", Message: "rate limit exceeded"})
			continue
		}

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			_ = write(ctx, conn, ErrorMessage{Type: MsgError, Code: string(apperrors.InvalidArgument), Message: "malformed message"})
			continue
		}
		s.handleInbound(ctx, conn, o, in)
	}
}

func (s *Server) handleInbound(ctx context.Context, conn *websocket.Conn, o *orchestrator.Orchestrator, in inbound) {
	if in.TraceID != "" {
		tc := trace.NewChild(trace.Context{TraceID: in.TraceID, SessionID: o.ID()})
		ctx = trace.WithContext(ctx, tc)
	}

	req := in.actionRequest
	switch in.Type {
	case MsgTranscript:
		req.Action = ActionTranscript
	case MsgAction:
	default:
		_ = write(ctx, conn, ErrorMessage{Type: MsgError, Code: string(apperrors.InvalidArgument), Message: "unknown message type " + in.Type})
		return
	}

	if err := apply(ctx, o, req); err != nil {
		_, body := toErrorResponse(err)
		_ = write(ctx, conn, ErrorMessage{Type: MsgError, Action: req.Action, Code: body.Code, Message: body.Message})
	}
}

func write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
