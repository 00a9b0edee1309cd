// Package transcript keeps the cumulative transcript of recording windows.
package transcript

import (
	"sync"
	"time"
)

// Attempt is one recording window and the transcript it ended with.
type Attempt struct {
	Window  uint64    `json:"window"`
	Started time.Time `json:"started"`
	Ended   time.Time `json:"ended,omitempty"`
	Text    string    `json:"text"`
	Outcome string    `json:"outcome,omitempty"`
}

// Log holds the transcript of the open window plus a short history of earlier
// windows. Each window starts empty; every update replaces its text wholesale.
type Log struct {
	mu      sync.RWMutex
	current Attempt
	open    bool
	history []Attempt
	maxSize int
}

// NewLog creates a log keeping at most maxAttempts closed windows.
func NewLog(maxAttempts int) *Log {
	return &Log{maxSize: maxAttempts}
}

// Begin opens window, discarding whatever text the previous one held.
func (l *Log) Begin(window uint64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = Attempt{Window: window, Started: now}
	l.open = true
}

// Replace sets the transcript of window. Updates for any other window, or
// after the window ended, are rejected.
func (l *Log) Replace(window uint64, text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open || l.current.Window != window {
		return false
	}
	l.current.Text = text
	return true
}

// End closes the open window and archives it. The text stays readable.
func (l *Log) End(now time.Time, outcome string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return
	}
	l.open = false
	l.current.Ended = now
	l.current.Outcome = outcome

	l.history = append(l.history, l.current)
	if len(l.history) > l.maxSize {
		l.history = l.history[len(l.history)-l.maxSize:]
	}
}

// Text returns the transcript of the latest window.
func (l *Log) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.Text
}

// Attempts returns a copy of the closed windows, oldest first.
func (l *Log) Attempts() []Attempt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]Attempt, len(l.history))
	copy(result, l.history)
	return result
}
