package transcript

import (
	"testing"
	"time"
)

func TestReplaceOverwrites(t *testing.T) {
	l := NewLog(5)
	l.Begin(1, time.Now())

	l.Replace(1, "I built")
	l.Replace(1, "I built a caching layer")

	if got := l.Text(); got != "I built a caching layer" {
		t.Errorf("Text() = %q, fragments should replace, not append", got)
	}
}

func TestBeginDiscardsPreviousWindow(t *testing.T) {
	l := NewLog(5)
	l.Begin(1, time.Now())
	l.Replace(1, "first try")
	l.End(time.Now(), "user")

	l.Begin(2, time.Now())
	if got := l.Text(); got != "" {
		t.Errorf("Text() after Begin = %q, want empty", got)
	}
	if l.Replace(1, "late fragment") {
		t.Error("fragment from an earlier window should be rejected")
	}
	if got := l.Text(); got != "" {
		t.Errorf("stale fragment leaked into the new window: %q", got)
	}
}

func TestEndKeepsTextAndRejectsUpdates(t *testing.T) {
	l := NewLog(5)
	l.Begin(3, time.Now())
	l.Replace(3, "hello")
	l.End(time.Now(), "deadline")
	l.End(time.Now(), "user")

	if l.Replace(3, "after stop") {
		t.Error("updates after End should be rejected")
	}
	if got := l.Text(); got != "hello" {
		t.Errorf("Text() = %q, want hello", got)
	}

	attempts := l.Attempts()
	if len(attempts) != 1 || attempts[0].Outcome != "deadline" || attempts[0].Text != "hello" {
		t.Errorf("Attempts() = %+v", attempts)
	}
}

func TestHistoryBounded(t *testing.T) {
	l := NewLog(2)
	for w := uint64(1); w <= 4; w++ {
		l.Begin(w, time.Now())
		l.End(time.Now(), "user")
	}

	attempts := l.Attempts()
	if len(attempts) != 2 || attempts[0].Window != 3 || attempts[1].Window != 4 {
		t.Errorf("Attempts() = %+v, want windows 3 and 4", attempts)
	}
}
