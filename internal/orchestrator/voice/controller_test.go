package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
)

// fakeTicker is driven by the test.
type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) Now() time.Time { return time.Unix(1700000000, 0) }

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) last() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[len(c.tickers)-1]
}

// harness runs every posted event on the test goroutine, one at a time.
type harness struct {
	t        *testing.T
	queue    chan func()
	clock    *fakeClock
	ctrl     *Controller
	changes  []Status
	deadline int
}

func newHarness(t *testing.T, p Provider) *harness {
	return newTimedHarness(t, p, 20*time.Second, time.Second)
}

func newTimedHarness(t *testing.T, p Provider, window, tick time.Duration) *harness {
	h := &harness{t: t, queue: make(chan func(), 64), clock: &fakeClock{}}
	post := func(fn func()) bool {
		h.queue <- fn
		return true
	}
	h.ctrl = NewController(p, post, Options{
		Window: window,
		Tick:   tick,
		Clock:  h.clock,
		Hooks: Hooks{
			OnChange:   func(s Status) { h.changes = append(h.changes, s) },
			OnDeadline: func() { h.deadline++ },
		},
	})
	return h
}

// tick fires the current ticker and runs the event it produces.
func (h *harness) tick() {
	h.t.Helper()
	h.clock.last().ch <- time.Now()
	h.run()
}

// run executes the next posted event.
func (h *harness) run() {
	h.t.Helper()
	select {
	case fn := <-h.queue:
		fn()
	case <-time.After(time.Second):
		h.t.Fatal("no event was posted")
	}
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.ctrl.Start(context.Background()); err != nil {
		h.t.Fatalf("Start() error: %v", err)
	}
}

func TestStartBeginsCountdown(t *testing.T) {
	h := newHarness(t, NewPushProvider())
	h.start()

	st := h.ctrl.Status()
	if st.State != Recording || st.Remaining != 20 || st.Starts != 1 {
		t.Errorf("Status() = %+v", st)
	}
	if st.CanSubmit {
		t.Error("submit must be disabled while recording")
	}

	h.tick()
	h.tick()
	if got := h.ctrl.Status().Remaining; got != 18 {
		t.Errorf("Remaining = %d, want 18", got)
	}
}

func TestTranscriptReplacesNotAppends(t *testing.T) {
	p := NewPushProvider()
	h := newHarness(t, p)
	h.start()

	p.Push("I built")
	h.run()
	p.Push("I built a caching layer")
	h.run()

	if got := h.ctrl.Status().Transcript; got != "I built a caching layer" {
		t.Errorf("Transcript = %q", got)
	}
}

func TestRestartResetsCountdownAndTranscript(t *testing.T) {
	p := NewPushProvider()
	h := newHarness(t, p)

	h.start()
	for i := 0; i < 5; i++ {
		h.tick()
	}
	p.Push("first attempt")
	h.run()
	h.ctrl.Stop()

	st := h.ctrl.Status()
	if st.State != StoppedByUser || st.Transcript != "first attempt" {
		t.Fatalf("after Stop: %+v", st)
	}
	if !st.CanSubmit {
		t.Error("a stopped window with text should allow submit")
	}
	if !h.clock.last().isStopped() {
		t.Error("Stop should stop the ticker")
	}

	h.start()
	st = h.ctrl.Status()
	if st.Remaining != 20 {
		t.Errorf("Remaining after restart = %d, want 20", st.Remaining)
	}
	if st.Transcript != "" {
		t.Errorf("Transcript after restart = %q, want empty", st.Transcript)
	}
	if st.Starts != 2 {
		t.Errorf("Starts = %d, want 2", st.Starts)
	}

	attempts := h.ctrl.Attempts()
	if len(attempts) != 1 || attempts[0].Text != "first attempt" || attempts[0].Outcome != OutcomeUser {
		t.Errorf("Attempts() = %+v", attempts)
	}
}

func TestDeadlineStopsExactlyOnce(t *testing.T) {
	h := newHarness(t, NewPushProvider())
	h.start()

	for i := 0; i < 19; i++ {
		h.tick()
	}
	if st := h.ctrl.Status(); st.Remaining != 1 || st.State != Recording {
		t.Fatalf("before last tick: %+v", st)
	}

	h.tick()
	st := h.ctrl.Status()
	if st.Remaining != 0 || st.State != StoppedByDeadline || !st.DeadlineHit {
		t.Errorf("after last tick: %+v", st)
	}
	if h.deadline != 1 {
		t.Errorf("deadline fired %d times, want 1", h.deadline)
	}

	// A tick that was already queued when the window ended must be ignored.
	h.ctrl.onTick(h.ctrl.window)
	h.ctrl.onTick(h.ctrl.window)
	if h.deadline != 1 {
		t.Errorf("deadline fired %d times after extra ticks, want 1", h.deadline)
	}
	if got := h.ctrl.Status().Remaining; got != 0 {
		t.Errorf("Remaining went to %d", got)
	}

	if !h.ctrl.Status().CanSubmit {
		t.Error("an expired window should allow submit even with no speech")
	}
}

func TestStaleWindowEventsDiscarded(t *testing.T) {
	h := newHarness(t, NewPushProvider())

	h.start()
	old := h.ctrl.window
	h.ctrl.Stop()
	h.start()

	h.ctrl.onTranscript(old, "from the old window")
	h.ctrl.onTick(old)

	st := h.ctrl.Status()
	if st.Transcript != "" || st.Remaining != 20 {
		t.Errorf("stale events leaked: %+v", st)
	}
}

func TestFragmentsAfterStopIgnored(t *testing.T) {
	h := newHarness(t, NewPushProvider())
	h.start()
	h.ctrl.onTranscript(h.ctrl.window, "kept")
	h.ctrl.Stop()
	h.ctrl.onTranscript(h.ctrl.window, "late")

	if got := h.ctrl.Status().Transcript; got != "kept" {
		t.Errorf("Transcript = %q, want kept", got)
	}
}

func TestCapabilityUnavailable(t *testing.T) {
	h := newHarness(t, Unavailable())

	err := h.ctrl.Start(context.Background())
	if !errors.Is(err, ErrCapabilityUnavailable) || !apperrors.IsCode(err, apperrors.CapabilityUnavailable) {
		t.Fatalf("Start() = %v, want CapabilityUnavailable", err)
	}

	st := h.ctrl.Status()
	if st.State != Idle || st.Remaining != 20 || st.Available {
		t.Errorf("Status() = %+v", st)
	}
	if st.CanSubmit {
		t.Error("submit must stay disabled without the capability")
	}
	if len(h.clock.tickers) != 0 {
		t.Error("countdown must never start")
	}
}

func TestNilProviderIsUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.Start(context.Background()); !apperrors.IsCode(err, apperrors.CapabilityUnavailable) {
		t.Errorf("Start() = %v", err)
	}
}

func TestDeadlineFlagIsPerWindow(t *testing.T) {
	h := newHarness(t, NewPushProvider())
	h.start()
	for i := 0; i < 20; i++ {
		h.tick()
	}
	if st := h.ctrl.Status(); !st.DeadlineHit || st.State != StoppedByDeadline {
		t.Fatalf("after deadline: %+v", st)
	}

	h.start()
	if h.ctrl.Status().DeadlineHit {
		t.Error("a new window should clear the deadline flag")
	}
	h.ctrl.Stop()

	st := h.ctrl.Status()
	if st.State != StoppedByUser || st.DeadlineHit {
		t.Errorf("after user stop: %+v", st)
	}
	if !st.CanSubmit {
		t.Error("an earlier expired window should keep submit enabled")
	}
}

func TestRemainingIsSeconds(t *testing.T) {
	h := newTimedHarness(t, NewPushProvider(), 2*time.Second, 500*time.Millisecond)
	h.start()

	tests := []int{2, 2, 1, 1}
	for i, want := range tests {
		if got := h.ctrl.Status().Remaining; got != want {
			t.Errorf("after %d ticks: Remaining = %d, want %d", i, got, want)
		}
		h.tick()
	}
	st := h.ctrl.Status()
	if st.Remaining != 0 || st.State != StoppedByDeadline {
		t.Errorf("after 4 ticks: %+v", st)
	}
}

func TestSubmitGate(t *testing.T) {
	h := newHarness(t, NewPushProvider())
	if h.ctrl.Status().CanSubmit {
		t.Error("untouched controller must not allow submit")
	}

	h.start()
	h.ctrl.Stop()
	if h.ctrl.Status().CanSubmit {
		t.Error("an empty window stopped early should not allow submit")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	h := newHarness(t, NewPushProvider())
	h.start()

	if err := h.ctrl.Start(context.Background()); !apperrors.IsCode(err, apperrors.InvalidTransition) {
		t.Errorf("second Start() = %v, want INVALID_TRANSITION", err)
	}
	if h.ctrl.Status().Starts != 1 {
		t.Error("rejected start should not count")
	}
}

type failingProvider struct{}

func (failingProvider) Available() bool { return true }
func (failingProvider) Subscribe(context.Context) (Subscription, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestSubscribeFailure(t *testing.T) {
	h := newHarness(t, failingProvider{})

	err := h.ctrl.Start(context.Background())
	if !apperrors.IsCode(err, apperrors.NetworkFailure) {
		t.Errorf("Start() = %v, want NETWORK_FAILURE", err)
	}
	if h.ctrl.Status().State != Idle {
		t.Error("failed start should leave the controller idle")
	}
}

func TestCloseTearsDown(t *testing.T) {
	p := NewPushProvider()
	h := newHarness(t, p)
	h.start()
	w := h.ctrl.window
	changes := len(h.changes)

	h.ctrl.Close()
	if !h.clock.last().isStopped() {
		t.Error("Close should stop the ticker")
	}
	if p.Push("after close") {
		t.Error("subscription should be closed")
	}

	h.ctrl.onTick(w)
	h.ctrl.onTranscript(w, "late")
	if len(h.changes) != changes {
		t.Error("no hooks should run after Close")
	}
	if err := h.ctrl.Start(context.Background()); !apperrors.IsCode(err, apperrors.InvalidTransition) {
		t.Errorf("Start() after Close = %v", err)
	}
	h.ctrl.Close()
}

func TestHooksReportChanges(t *testing.T) {
	p := NewPushProvider()
	h := newHarness(t, p)
	h.start()
	p.Push("hello")
	h.run()
	h.tick()
	h.ctrl.Stop()

	if len(h.changes) != 4 {
		t.Fatalf("got %d changes, want 4", len(h.changes))
	}
	last := h.changes[len(h.changes)-1]
	if last.State != StoppedByUser || last.Transcript != "hello" || last.Remaining != 19 {
		t.Errorf("last change = %+v", last)
	}
}

func TestStateString(t *testing.T) {
	if StoppedByDeadline.String() != "STOPPED_BY_DEADLINE" || State(9).String() != "State(9)" {
		t.Error("unexpected state names")
	}

	var st State
	if err := st.UnmarshalText([]byte("RECORDING")); err != nil || st != Recording {
		t.Errorf("UnmarshalText(RECORDING) = %v, %v", st, err)
	}
	if err := st.UnmarshalText([]byte("PAUSED")); err == nil {
		t.Error("unknown state should not parse")
	}
}
