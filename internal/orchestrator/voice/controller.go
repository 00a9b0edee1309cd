package voice

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// State of the recording window.
type State int

const (
	Idle State = iota
	Recording
	StoppedByUser
	StoppedByDeadline
)

var stateNames = [...]string{"IDLE", "RECORDING", "STOPPED_BY_USER", "STOPPED_BY_DEADLINE"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown recording state %q", b)
}

// Status is a point-in-time view of the controller.
type Status struct {
	State       State  `json:"state"`
	Available   bool   `json:"available"`
	Remaining   int    `json:"remaining"` // whole seconds, rounded up
	Transcript  string `json:"transcript"`
	Starts      int    `json:"starts"`
	DeadlineHit bool   `json:"deadline_hit"`
	CanSubmit   bool   `json:"can_submit"`
}

// Hooks report upward. They run on the owner's event loop.
type Hooks struct {
	OnChange   func(Status)
	OnDeadline func()
}

type Options struct {
	Window  time.Duration
	Tick    time.Duration
	History int
	Clock   Clock
	Hooks   Hooks
}

// Controller manages one recording window at a time.
//
// Start, Stop, Close and Status must be called from the owner's event loop;
// the controller itself only reaches that loop through post, which is how
// ticks and transcripts arrive. Every window gets a fresh epoch, and events
// tagged with an older epoch are dropped, so a tick or fragment that was
// already queued when the window ended cannot touch the next one.
type Controller struct {
	provider  Provider
	available bool
	post      func(func()) bool
	clock     Clock
	tick      time.Duration
	ticks     int
	hooks     Hooks
	log       *transcript.Log

	state       State
	window      uint64
	remaining   int
	starts      int
	deadlineHit bool // this window
	expired     bool // any window
	closed      bool

	sub    Subscription
	ticker Ticker
	halt   chan struct{}
}

// NewController builds a controller around p; a nil p counts as Unavailable.
// post must enqueue fn on the owner's loop and report false once the loop is gone.
func NewController(p Provider, post func(func()) bool, opts Options) *Controller {
	if p == nil {
		p = Unavailable()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	ticks := int(opts.Window / opts.Tick)
	if ticks < 1 {
		ticks = 1
	}
	return &Controller{
		provider:  p,
		available: p.Available(),
		post:      post,
		clock:     opts.Clock,
		tick:      opts.Tick,
		ticks:     ticks,
		hooks:     opts.Hooks,
		log:       transcript.NewLog(opts.History),
		remaining: ticks,
	}
}

// Start opens a new recording window: transcript cleared, countdown full.
func (c *Controller) Start(ctx context.Context) error {
	switch {
	case c.closed:
		return apperrors.New(apperrors.InvalidTransition, "recording controller is closed")
	case !c.available:
		return ErrCapabilityUnavailable
	case c.state == Recording:
		return apperrors.New(apperrors.InvalidTransition, "already recording")
	}

	sub, err := c.provider.Subscribe(ctx)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.Wrap(err, apperrors.NetworkFailure, "open transcription stream")
	}

	c.window++
	w := c.window
	c.log.Begin(w, c.clock.Now())
	c.sub = sub
	c.remaining = c.ticks
	c.deadlineHit = false
	c.starts++
	c.state = Recording
	c.ticker = c.clock.NewTicker(c.tick)
	c.halt = make(chan struct{})

	go c.forwardTicks(w, c.ticker, c.halt)
	go c.forwardTranscripts(w, sub)

	trace.Logger(ctx).Debug("recording started", "window", w, "ticks", c.ticks)
	c.changed()
	return nil
}

// Stop ends the open window, keeping its transcript. Stopping an idle or
// already stopped window is a no-op.
func (c *Controller) Stop() {
	if c.closed || c.state != Recording {
		return
	}
	c.finish(StoppedByUser, OutcomeUser)
	c.changed()
}

// Close releases the stream and the ticker. Events still in flight are
// discarded and hooks are not called again.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	if c.state == Recording {
		c.finish(StoppedByUser, OutcomeClosed)
	}
	c.closed = true
	c.window++
}

// Status returns the current view.
func (c *Controller) Status() Status {
	text := c.log.Text()
	return Status{
		State:       c.state,
		Available:   c.available,
		Remaining:   c.remainingSeconds(),
		Transcript:  text,
		Starts:      c.starts,
		DeadlineHit: c.deadlineHit,
		CanSubmit:   c.canSubmit(text),
	}
}

// Attempts returns the windows closed so far.
func (c *Controller) Attempts() []transcript.Attempt { return c.log.Attempts() }

// canSubmit: started at least once, not recording, and either some text or a
// deadline that expired at least once.
func (c *Controller) canSubmit(text string) bool {
	if !c.available || c.starts == 0 || c.state == Recording {
		return false
	}
	return text != "" || c.expired
}

func (c *Controller) remainingSeconds() int {
	d := time.Duration(c.remaining) * c.tick
	return int((d + time.Second - 1) / time.Second)
}

func (c *Controller) onTick(w uint64) {
	if c.closed || w != c.window || c.state != Recording {
		return
	}
	c.remaining--
	if c.remaining > 0 {
		c.changed()
		return
	}

	c.remaining = 0
	c.deadlineHit = true
	c.expired = true
	c.finish(StoppedByDeadline, OutcomeDeadline)
	if c.hooks.OnDeadline != nil {
		c.hooks.OnDeadline()
	}
	c.changed()
}

func (c *Controller) onTranscript(w uint64, text string) {
	if c.closed || w != c.window || c.state != Recording {
		return
	}
	if c.log.Replace(w, text) {
		c.changed()
	}
}

func (c *Controller) finish(next State, outcome string) {
	c.state = next
	close(c.halt)
	c.ticker.Stop()
	if err := c.sub.Close(); err != nil {
		trace.Logger(context.Background()).Debug("closing transcription stream", "window", c.window, "error", err)
	}
	c.sub = nil
	c.log.End(c.clock.Now(), outcome)
}

func (c *Controller) changed() {
	if c.hooks.OnChange != nil {
		c.hooks.OnChange(c.Status())
	}
}

func (c *Controller) forwardTicks(w uint64, tk Ticker, halt <-chan struct{}) {
	for {
		select {
		case <-halt:
			return
		case <-tk.C():
			if !c.post(func() { c.onTick(w) }) {
				return
			}
		}
	}
}

func (c *Controller) forwardTranscripts(w uint64, sub Subscription) {
	for text := range sub.Transcripts() {
		if !c.post(func() { c.onTranscript(w, text) }) {
			return
		}
	}
}
