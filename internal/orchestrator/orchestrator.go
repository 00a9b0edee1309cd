package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
	"github.com/GriffinCanCode/prep-pulse/internal/config"
	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator/voice"
	"github.com/GriffinCanCode/prep-pulse/internal/resilience"
	"github.com/GriffinCanCode/prep-pulse/internal/scoring"
	"github.com/GriffinCanCode/prep-pulse/internal/syncx"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// Options configure every session a Manager creates.
type Options struct {
	Collaborator   scoring.Collaborator
	Content        config.Content
	Recording      config.RecordingConfig
	Retry          resilience.RetryConfig
	RequestTimeout time.Duration
	MaxResumeBytes int64
	Clock          voice.Clock // nil means wall clock
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.MaxResumeBytes <= 0 {
		o.MaxResumeBytes = DefaultMaxResumeBytes
	}
	if o.Content == (config.Content{}) {
		o.Content = config.DefaultContent()
	}
	if o.Retry.IsRetryable == nil {
		o.Retry.IsRetryable = resilience.IsRetryable
	}
	return o
}

type requestKind string

const (
	kindResume    requestKind = scoring.OpParseResume
	kindQuestions requestKind = scoring.OpGenerateQuestions
	kindScore     requestKind = scoring.OpCalculateScore
)

// inflight is an outstanding collaborator call. Its completion is applied only
// if the session still points at the same id.
type inflight struct {
	id     uint64
	kind   requestKind
	ctx    context.Context
	cancel context.CancelFunc
}

// Orchestrator owns one assessment session.
//
// Every mutation runs on the session's loop, in the order actions and
// completions arrive. Collaborator calls run on their own goroutines and post
// their outcome back; readers get published snapshots and never touch the
// live session.
type Orchestrator struct {
	id       string
	opts     Options
	provider voice.Provider
	loop     *syncx.Loop
	ctx      context.Context
	cancel   context.CancelFunc

	// loop-owned
	initial    assessment.Session
	session    assessment.Session
	voice      *voice.Controller
	seq        uint64
	resumeReq  *inflight
	mainReq    *inflight // question generation XOR scoring
	resume     ResumeStatus
	generation GenerationStatus
	scoreErr   string
	version    uint64

	snap       *syncx.RWGuard[Snapshot]
	subsMu     sync.Mutex
	subs       map[int]chan Snapshot
	nextSub    int
	closed     atomic.Bool
	lastActive atomic.Int64
}

// New creates a session in WELCOME. provider is the transcription capability
// for its communication stage; nil means none.
func New(id string, opts Options, provider voice.Provider) *Orchestrator {
	opts = opts.withDefaults()
	if provider == nil {
		provider = voice.Unavailable()
	}

	ctx, cancel := context.WithCancel(trace.WithSession(context.Background(), id))
	initial := assessment.NewSession(defaultProfile(opts.Content))

	o := &Orchestrator{
		id:       id,
		opts:     opts,
		provider: provider,
		loop:     syncx.NewLoop(),
		ctx:      ctx,
		cancel:   cancel,
		initial:  initial,
		session:  initial.Clone(),
		snap:     syncx.NewGuard(Snapshot{}),
		subs:     make(map[int]chan Snapshot),
	}
	o.touch()
	o.snap.Set(o.buildSnapshot())
	return o
}

func defaultProfile(c config.Content) (assessment.Role, assessment.ExperienceLevel) {
	role, err := assessment.ParseRole(c.DefaultRole)
	if err != nil {
		role = assessment.RoleSDE
	}
	exp, err := assessment.ParseExperience(c.DefaultExperience)
	if err != nil {
		exp = assessment.ExperienceStudent
	}
	return role, exp
}

// ID returns the session id.
func (o *Orchestrator) ID() string { return o.id }

// Snapshot returns the latest published view.
func (o *Orchestrator) Snapshot() Snapshot { return o.snap.Get() }

// Closed reports whether Close was called.
func (o *Orchestrator) Closed() bool { return o.closed.Load() }

// LastActive is when a client last acted on the session.
func (o *Orchestrator) LastActive() time.Time {
	return time.Unix(0, o.lastActive.Load())
}

// Subscribe streams snapshots, starting with the current one. Slow readers
// only ever see the newest snapshot. The channel closes when the session
// closes or cancel is called.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	o.subsMu.Lock()
	if o.closed.Load() {
		o.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.snap.Get()
	o.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subsMu.Lock()
			defer o.subsMu.Unlock()
			if _, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(ch)
			}
		})
	}
}

// Close tears the session down: in-flight calls are cancelled, the recording
// window is released and subscribers are disconnected.
func (o *Orchestrator) Close() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	o.cancel()
	o.loop.Post(func() {
		o.cancelRequests()
		if o.voice != nil {
			o.voice.Close()
		}
	})
	o.loop.Close()

	o.subsMu.Lock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
	o.subsMu.Unlock()
	trace.Logger(o.ctx).Info("session closed")
}

func (o *Orchestrator) touch() {
	o.lastActive.Store(time.Now().UnixNano())
}

// do runs an action on the loop.
func (o *Orchestrator) do(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	o.touch()
	ctx, span := trace.StartSpan(trace.WithSession(ctx, o.id), "action."+action)
	defer span.End()

	err := o.loop.Do(ctx, func() error { return fn(ctx) })
	if errors.Is(err, syncx.ErrLoopClosed) {
		err = apperrors.Newf(apperrors.NotFound, "session %s is closed", o.id)
	}
	if err != nil {
		span.RecordError(err)
		trace.Logger(ctx).Debug("action rejected", "action", action, "error", err)
	}
	return err
}

// post schedules a completion on the loop; false once the session is closed.
func (o *Orchestrator) post(fn func()) bool {
	return o.loop.Post(fn)
}

func (o *Orchestrator) nextID() uint64 {
	o.seq++
	return o.seq
}

// enter moves to the next stage. Stages only move forward; Reset is the one
// way back and does not go through here.
func (o *Orchestrator) enter(to assessment.Stage) {
	from := o.session.Stage
	if to != from.Next() {
		trace.Logger(o.ctx).Error("refusing non-sequential stage change", "from", from, "to", to)
		return
	}

	if from == assessment.StageCommunication && o.voice != nil {
		o.voice.Close()
	}
	o.session.Stage = to
	if to == assessment.StageCommunication {
		o.voice = o.newVoice()
	}
	trace.Logger(o.ctx).Info("stage changed", "from", from, "to", to)
}

func (o *Orchestrator) newVoice() *voice.Controller {
	return voice.NewController(o.provider, o.post, voice.Options{
		Window: o.opts.Recording.Window,
		Tick:   o.opts.Recording.Tick,
		Clock:  o.opts.Clock,
		Hooks: voice.Hooks{
			OnChange: func(st voice.Status) {
				o.session.Communication.TranscriptText = st.Transcript
				o.publish()
			},
			OnDeadline: func() {
				trace.Logger(o.ctx).Info("recording deadline reached")
			},
		},
	})
}

func (o *Orchestrator) cancelRequests() {
	for _, req := range []*inflight{o.resumeReq, o.mainReq} {
		if req != nil {
			req.cancel()
		}
	}
	o.resumeReq = nil
	o.mainReq = nil
}

// publish stores a fresh snapshot and fans it out. Loop only.
func (o *Orchestrator) publish() {
	o.version++
	s := o.buildSnapshot()
	o.snap.Set(s)

	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (o *Orchestrator) buildSnapshot() Snapshot {
	s := Snapshot{
		SessionID:           o.id,
		Version:             o.version,
		Session:             o.session.Clone(),
		CommunicationPrompt: o.opts.Content.CommunicationPrompt,
		Resume:              o.resume,
		Generation:          o.generation,
		ScoreError:          o.scoreErr,
	}
	if o.voice != nil {
		s.Voice = o.voice.Status()
		s.Recordings = o.voice.Attempts()
	} else {
		s.Voice = voice.Status{Available: o.provider.Available()}
	}
	s.Actions = o.actions()
	return s
}

// actions lists what the current state accepts.
func (o *Orchestrator) actions() []string {
	acts := []string{ActionReset}
	switch o.session.Stage {
	case assessment.StageWelcome:
		acts = append(acts, ActionStart)
	case assessment.StageProfile:
		acts = append(acts, ActionSetProfile, ActionUploadResume)
		if o.session.Profile.HasResume() && o.resumeReq == nil {
			acts = append(acts, ActionBegin)
		}
	case assessment.StageGeneratingQuestions:
		if o.generation.Failed && o.mainReq == nil {
			acts = append(acts, ActionRetryQuestions)
		}
	case assessment.StageMCQ:
		acts = append(acts, ActionAnswer, ActionNext)
	case assessment.StageShortAnswer:
		acts = append(acts, ActionShortAnswer, ActionNext)
	case assessment.StageCommunication:
		if o.voice != nil {
			st := o.voice.Status()
			switch {
			case st.State == voice.Recording:
				acts = append(acts, ActionStopRecording)
			case st.Available:
				acts = append(acts, ActionStartRecording)
			}
			if st.CanSubmit {
				acts = append(acts, ActionSubmit)
			}
		}
	}
	return acts
}
