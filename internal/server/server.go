package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// Pinger checks that the scoring collaborator is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes circuit breaker states by operation.
type BreakerReporter interface {
	States() map[string]string
}

type Options struct {
	Manager        *orchestrator.Manager
	Pinger         Pinger          // optional
	Breakers       BreakerReporter // optional
	MaxResumeBytes int64
	AllowedOrigins []string
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	opts   Options
	router chi.Router
}

// New creates a new server.
func New(opts Options) *Server {
	if opts.MaxResumeBytes <= 0 {
		opts.MaxResumeBytes = orchestrator.DefaultMaxResumeBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{opts: opts}
	s.setupRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(trace.Middleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", trace.TraceIDKey, trace.SessionIDKey},
		ExposedHeaders: []string{trace.TraceIDKey},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Use(middleware.Timeout(HandlerTimeout))
		r.Post("/", s.handleCreateSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)

			r.Post("/start", s.handleAction(orchestrator.ActionStart))
			r.Put("/profile", s.handleAction(orchestrator.ActionSetProfile))
			r.Post("/resume", s.handleUploadResume)
			r.Post("/begin", s.handleAction(orchestrator.ActionBegin))
			r.Post("/questions/retry", s.handleAction(orchestrator.ActionRetryQuestions))
			r.Put("/answers", s.handleAction(orchestrator.ActionAnswer))
			r.Put("/short-answer", s.handleAction(orchestrator.ActionShortAnswer))
			r.Post("/next", s.handleAction(orchestrator.ActionNext))
			r.Post("/recording/start", s.handleAction(orchestrator.ActionStartRecording))
			r.Post("/recording/stop", s.handleAction(orchestrator.ActionStopRecording))
			r.Post("/transcript", s.handleAction(ActionTranscript))
			r.Post("/submit", s.handleAction(orchestrator.ActionSubmit))
			r.Post("/reset", s.handleAction(orchestrator.ActionReset))
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests with their trace context.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			trace.Logger(r.Context()).Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

type healthResponse struct {
	Status   string            `json:"status"`
	Scorer   string            `json:"scorer,omitempty"`
	Breakers map[string]string `json:"breakers,omitempty"`
	Sessions int               `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.Manager != nil {
		resp.Sessions = s.opts.Manager.Len()
	}
	if s.opts.Breakers != nil {
		resp.Breakers = s.opts.Breakers.States()
	}

	status := http.StatusOK
	if s.opts.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
		defer cancel()
		if err := s.opts.Pinger.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Scorer = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Scorer = "ok"
		}
	}
	respondJSON(w, status, resp)
}

type errorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func toErrorResponse(err error) (int, errorResponse) {
	appErr, ok := apperrors.As(err)
	if !ok {
		code := apperrors.CodeOf(err)
		appErr = apperrors.Wrap(err, code, err.Error())
	}
	return appErr.HTTPStatus(), errorResponse{
		Code:     string(appErr.Code),
		Message:  appErr.Message,
		Metadata: appErr.Metadata,
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := toErrorResponse(err)
	if status >= http.StatusInternalServerError {
		trace.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, body)
}
