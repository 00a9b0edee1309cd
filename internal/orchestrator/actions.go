package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator/voice"
	"github.com/GriffinCanCode/prep-pulse/internal/resilience"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

func (o *Orchestrator) requireStage(want assessment.Stage, action string) error {
	if o.session.Stage != want {
		return apperrors.Newf(apperrors.InvalidTransition, "%s not allowed in %s", action, o.session.Stage).
			WithMetadata("stage", o.session.Stage.String())
	}
	return nil
}

// Start leaves the welcome screen.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.do(ctx, ActionStart, func(context.Context) error {
		if err := o.requireStage(assessment.StageWelcome, ActionStart); err != nil {
			return err
		}
		o.enter(assessment.StageProfile)
		o.publish()
		return nil
	})
}

// SetProfile updates role and experience. The profile is frozen once the
// assessment begins.
func (o *Orchestrator) SetProfile(ctx context.Context, role assessment.Role, exp assessment.ExperienceLevel) error {
	return o.do(ctx, ActionSetProfile, func(context.Context) error {
		if err := o.requireStage(assessment.StageProfile, ActionSetProfile); err != nil {
			return err
		}
		o.session.Profile.Role = role
		o.session.Profile.Experience = exp
		o.publish()
		return nil
	})
}

// UploadResume hands the file to the collaborator for parsing. It returns once
// the parse is underway; a newer upload supersedes one still being parsed.
func (o *Orchestrator) UploadResume(ctx context.Context, filename string, data []byte) error {
	return o.do(ctx, ActionUploadResume, func(ctx context.Context) error {
		if err := o.requireStage(assessment.StageProfile, ActionUploadResume); err != nil {
			return err
		}
		if len(data) == 0 {
			return apperrors.New(apperrors.InvalidArgument, "resume is empty")
		}
		if int64(len(data)) > o.opts.MaxResumeBytes {
			return apperrors.Newf(apperrors.InvalidArgument, "resume exceeds %d bytes", o.opts.MaxResumeBytes)
		}

		if o.resumeReq != nil {
			o.resumeReq.cancel()
		}
		req := o.newRequest(kindResume, o.opts.RequestTimeout)
		o.resumeReq = req
		o.resume = ResumeStatus{Parsing: true}
		ref := assessment.ResumeFile{ID: uuid.NewString(), Name: filename, Size: int64(len(data))}
		o.publish()

		trace.Logger(ctx).Info("parsing resume", "file", filename, "bytes", len(data))
		go func(rctx context.Context) {
			text, err := o.opts.Collaborator.ParseResume(rctx, filename, data)
			o.post(func() { o.onResumeParsed(req, ref, text, err) })
		}(req.ctx)
		return nil
	})
}

func (o *Orchestrator) onResumeParsed(req *inflight, ref assessment.ResumeFile, text string, err error) {
	req.cancel()
	if o.resumeReq != req {
		trace.Logger(o.ctx).Debug("discarding stale resume parse", "request", req.id, "kind", req.kind)
		return
	}
	o.resumeReq = nil

	// A failed parse still counts as uploaded; scoring proceeds without text.
	o.session.Profile.Resume = &ref
	o.session.Profile.ResumeText = ""
	o.resume = ResumeStatus{}
	if err != nil {
		o.resume.Error = err.Error()
		trace.Logger(o.ctx).Warn("resume parse failed", "file", ref.Name, "error", err)
	} else {
		o.session.Profile.ResumeText = text
	}
	o.publish()
}

// BeginAssessment freezes the profile and starts question generation.
func (o *Orchestrator) BeginAssessment(ctx context.Context) error {
	return o.do(ctx, ActionBegin, func(context.Context) error {
		if err := o.requireStage(assessment.StageProfile, ActionBegin); err != nil {
			return err
		}
		if o.resumeReq != nil {
			return apperrors.New(apperrors.RequestInFlight, "resume is still being parsed")
		}
		if !o.session.Profile.HasResume() {
			return apperrors.New(apperrors.InvalidTransition, "upload a resume first")
		}
		o.enter(assessment.StageGeneratingQuestions)
		o.generateQuestions()
		o.publish()
		return nil
	})
}

// RetryQuestions re-runs question generation after it failed.
func (o *Orchestrator) RetryQuestions(ctx context.Context) error {
	return o.do(ctx, ActionRetryQuestions, func(context.Context) error {
		if err := o.requireStage(assessment.StageGeneratingQuestions, ActionRetryQuestions); err != nil {
			return err
		}
		if o.mainReq != nil {
			return apperrors.New(apperrors.RequestInFlight, "questions are being generated")
		}
		if !o.generation.Failed {
			return apperrors.New(apperrors.InvalidTransition, "question generation has not failed")
		}
		o.generateQuestions()
		o.publish()
		return nil
	})
}

// generateQuestions launches one generation run with bounded retries. Loop only.
func (o *Orchestrator) generateQuestions() {
	req := o.newRequest(kindQuestions, 0)
	o.mainReq = req
	o.generation = GenerationStatus{InFlight: true, Attempts: 1}

	role, exp := o.session.Profile.Role, o.session.Profile.Experience
	cfg := o.opts.Retry
	cfg.OnRetry = func(attempt int, err error) {
		o.post(func() {
			if o.mainReq != req {
				return
			}
			o.generation.Attempts = attempt + 1
			o.generation.Error = err.Error()
			o.publish()
		})
	}

	go func(rctx context.Context) {
		qs, err := resilience.RetryWithResult(rctx, cfg, func() (assessment.QuestionSet, error) {
			actx, cancel := context.WithTimeout(rctx, o.opts.RequestTimeout)
			defer cancel()
			return o.opts.Collaborator.GenerateQuestions(actx, role, exp)
		})
		o.post(func() { o.onQuestions(req, qs, err) })
	}(req.ctx)
}

func (o *Orchestrator) onQuestions(req *inflight, qs assessment.QuestionSet, err error) {
	req.cancel()
	if o.mainReq != req {
		trace.Logger(o.ctx).Debug("discarding stale question set", "request", req.id, "kind", req.kind)
		return
	}
	o.mainReq = nil
	o.generation.InFlight = false

	if err != nil {
		o.generation.Failed = true
		o.generation.Code = string(apperrors.CodeOf(err))
		o.generation.Error = err.Error()
		trace.Logger(o.ctx).Warn("question generation failed", "attempts", o.generation.Attempts, "error", err)
		o.publish()
		return
	}

	if qs.ShortPrompt == "" {
		qs.ShortPrompt = o.opts.Content.ShortAnswerPrompt
	}
	o.session.Questions = qs
	o.generation = GenerationStatus{Attempts: o.generation.Attempts}
	o.enter(assessment.StageMCQ)
	o.publish()
}

// AnswerMCQ records the selected option; answering again overwrites.
func (o *Orchestrator) AnswerMCQ(ctx context.Context, questionID string, option int) error {
	return o.do(ctx, ActionAnswer, func(context.Context) error {
		if err := o.requireStage(assessment.StageMCQ, ActionAnswer); err != nil {
			return err
		}
		q, ok := o.session.Questions.Find(questionID)
		if !ok {
			return apperrors.Newf(apperrors.NotFound, "question %q not found", questionID)
		}
		if option < 0 || option >= len(q.Options) {
			return apperrors.Newf(apperrors.InvalidArgument, "option %d out of range for question %q", option, questionID)
		}
		o.session.Technical.MCQAnswers[questionID] = option
		o.publish()
		return nil
	})
}

func (o *Orchestrator) SetShortAnswer(ctx context.Context, text string) error {
	return o.do(ctx, ActionShortAnswer, func(context.Context) error {
		if err := o.requireStage(assessment.StageShortAnswer, ActionShortAnswer); err != nil {
			return err
		}
		o.session.Technical.ShortAnswerText = text
		o.publish()
		return nil
	})
}

// Next advances from MCQ or SHORT_ANSWER. Partial answers are allowed.
func (o *Orchestrator) Next(ctx context.Context) error {
	return o.do(ctx, ActionNext, func(context.Context) error {
		switch o.session.Stage {
		case assessment.StageMCQ, assessment.StageShortAnswer:
			o.enter(o.session.Stage.Next())
			o.publish()
			return nil
		}
		return apperrors.Newf(apperrors.InvalidTransition, "next not allowed in %s", o.session.Stage)
	})
}

// StartRecording opens a recording window, discarding any earlier transcript.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	return o.do(ctx, ActionStartRecording, func(context.Context) error {
		if err := o.requireStage(assessment.StageCommunication, ActionStartRecording); err != nil {
			return err
		}
		// The subscription outlives this request.
		return o.voice.Start(o.ctx)
	})
}

func (o *Orchestrator) StopRecording(ctx context.Context) error {
	return o.do(ctx, ActionStopRecording, func(context.Context) error {
		if err := o.requireStage(assessment.StageCommunication, ActionStopRecording); err != nil {
			return err
		}
		if o.voice.Status().State != voice.Recording {
			return apperrors.New(apperrors.InvalidTransition, "not recording")
		}
		o.voice.Stop()
		return nil
	})
}

// PushTranscript feeds a client-side transcript into the open window. Only
// sessions created with client speech accept it.
func (o *Orchestrator) PushTranscript(ctx context.Context, text string) error {
	pusher, ok := o.provider.(voice.Pusher)
	if !ok {
		return apperrors.New(apperrors.CapabilityUnavailable, "session does not accept client transcripts")
	}
	return o.do(ctx, "transcript", func(context.Context) error {
		if o.session.Stage != assessment.StageCommunication || o.voice.Status().State != voice.Recording {
			return apperrors.New(apperrors.InvalidTransition, "not recording")
		}
		if !pusher.Push(text) {
			return apperrors.New(apperrors.InvalidTransition, "no open recording window")
		}
		return nil
	})
}

// Submit sends everything to the scorer exactly once. The session moves to
// RESULTS whatever the outcome.
func (o *Orchestrator) Submit(ctx context.Context) error {
	return o.do(ctx, ActionSubmit, func(ctx context.Context) error {
		if err := o.requireStage(assessment.StageCommunication, ActionSubmit); err != nil {
			return err
		}
		if o.mainReq != nil {
			return apperrors.New(apperrors.RequestInFlight, "a request is already outstanding")
		}
		if !o.voice.Status().CanSubmit {
			return apperrors.New(apperrors.InvalidTransition, "record an answer before submitting")
		}

		o.session.Communication.TranscriptText = o.voice.Status().Transcript
		score := o.session.ScoreRequest()
		o.enter(assessment.StageSubmitting)
		req := o.newRequest(kindScore, o.opts.RequestTimeout)
		o.mainReq = req
		o.scoreErr = ""
		o.publish()

		trace.Logger(ctx).Info("submitting assessment",
			"role", score.Role, "experience", score.Experience, "answered", len(score.Technical.MCQAnswers))
		go func(rctx context.Context) {
			res, err := o.opts.Collaborator.CalculateScore(rctx, score)
			o.post(func() { o.onScore(req, res, err) })
		}(req.ctx)
		return nil
	})
}

func (o *Orchestrator) onScore(req *inflight, res assessment.Result, err error) {
	req.cancel()
	if o.mainReq != req {
		trace.Logger(o.ctx).Debug("discarding stale score", "request", req.id, "kind", req.kind)
		return
	}
	o.mainReq = nil

	if err != nil {
		o.scoreErr = err.Error()
		trace.Logger(o.ctx).Warn("scoring failed", "code", apperrors.CodeOf(err), "error", err)
	} else {
		r := res.Clone()
		o.session.Result = &r
	}
	o.enter(assessment.StageResults)
	o.publish()
}

// Reset returns the session to its initial state from any stage. In-flight
// requests are cancelled and their completions ignored.
func (o *Orchestrator) Reset(ctx context.Context) error {
	return o.do(ctx, ActionReset, func(ctx context.Context) error {
		o.cancelRequests()
		if o.voice != nil {
			o.voice.Close()
			o.voice = nil
		}
		o.session = o.initial.Clone()
		o.resume = ResumeStatus{}
		o.generation = GenerationStatus{}
		o.scoreErr = ""
		o.publish()
		trace.Logger(ctx).Info("session reset")
		return nil
	})
}

// newRequest registers an outstanding collaborator call. A zero timeout
// leaves the deadline to the caller.
func (o *Orchestrator) newRequest(kind requestKind, timeout time.Duration) *inflight {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(o.ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(o.ctx)
	}
	return &inflight{id: o.nextID(), kind: kind, ctx: ctx, cancel: cancel}
}
