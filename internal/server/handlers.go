package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// ActionTranscript relays a client-side transcript into the open recording.
const ActionTranscript = "transcript"

type createSessionRequest struct {
	// ClientSpeech declares that the client runs its own speech recognition
	// and will push transcripts.
	ClientSpeech bool `json:"client_speech"`
}

// actionRequest is the body of every stage action, over REST and WebSocket.
type actionRequest struct {
	Action     string `json:"action,omitempty"`
	Role       string `json:"role,omitempty"`
	Experience string `json:"experience,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
	Option     *int   `json:"option,omitempty"`
	Text       string `json:"text,omitempty"`
}

// apply runs one action against a session.
func apply(ctx context.Context, o *orchestrator.Orchestrator, req actionRequest) error {
	switch req.Action {
	case orchestrator.ActionStart:
		return o.Start(ctx)
	case orchestrator.ActionSetProfile:
		role, err := assessment.ParseRole(req.Role)
		if err != nil {
			return err
		}
		exp, err := assessment.ParseExperience(req.Experience)
		if err != nil {
			return err
		}
		return o.SetProfile(ctx, role, exp)
	case orchestrator.ActionBegin:
		return o.BeginAssessment(ctx)
	case orchestrator.ActionRetryQuestions:
		return o.RetryQuestions(ctx)
	case orchestrator.ActionAnswer:
		if req.QuestionID == "" || req.Option == nil {
			return apperrors.New(apperrors.InvalidArgument, "question_id and option are required")
		}
		return o.AnswerMCQ(ctx, req.QuestionID, *req.Option)
	case orchestrator.ActionShortAnswer:
		return o.SetShortAnswer(ctx, req.Text)
	case orchestrator.ActionNext:
		return o.Next(ctx)
	case orchestrator.ActionStartRecording:
		return o.StartRecording(ctx)
	case orchestrator.ActionStopRecording:
		return o.StopRecording(ctx)
	case ActionTranscript:
		return o.PushTranscript(ctx, req.Text)
	case orchestrator.ActionSubmit:
		return o.Submit(ctx)
	case orchestrator.ActionReset:
		return o.Reset(ctx)
	case orchestrator.ActionUploadResume:
		return apperrors.New(apperrors.InvalidArgument, "resumes are uploaded as multipart form data")
	}
	return apperrors.Newf(apperrors.InvalidArgument, "unknown action %q", req.Action)
}

// session resolves the {id} path parameter and tags the request context.
func (s *Server) session(r *http.Request) (*orchestrator.Orchestrator, context.Context, error) {
	id := chi.URLParam(r, "id")
	o, err := s.opts.Manager.Get(id)
	if err != nil {
		return nil, r.Context(), err
	}
	return o, trace.WithSession(r.Context(), id), nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, apperrors.Wrap(err, apperrors.InvalidArgument, "invalid JSON body"))
		return
	}

	o := s.opts.Manager.Create(r.Context(), req.ClientSpeech)
	respondJSON(w, http.StatusCreated, o.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	o, _, err := s.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Manager.Delete(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAction serves a stage action and replies with the resulting snapshot.
func (s *Server) handleAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, ctx, err := s.session(r)
		if err != nil {
			respondError(w, r, err)
			return
		}

		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, r, apperrors.Wrap(err, apperrors.InvalidArgument, "invalid JSON body"))
			return
		}
		req.Action = action

		if err := apply(ctx, o, req); err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, o.Snapshot())
	}
}

func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	o, ctx, err := s.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit := s.opts.MaxResumeBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+MultipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		respondError(w, r, uploadError(err, limit))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(ResumeField)
	if err != nil {
		respondError(w, r, apperrors.Wrapf(err, apperrors.InvalidArgument, "missing %q file field", ResumeField))
		return
	}
	defer file.Close()

	if header.Size > limit {
		respondError(w, r, apperrors.Newf(apperrors.InvalidArgument, "resume exceeds %d bytes", limit))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respondError(w, r, uploadError(err, limit))
		return
	}

	if err := o.UploadResume(ctx, header.Filename, data); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, o.Snapshot())
}

func uploadError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.Newf(apperrors.InvalidArgument, "resume exceeds %d bytes", limit)
	}
	return apperrors.Wrap(err, apperrors.InvalidArgument, "invalid multipart upload")
}
