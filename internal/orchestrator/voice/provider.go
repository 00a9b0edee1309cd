// Package voice runs timed recording windows on top of a live transcription
// capability.
package voice

import (
	"context"
	"sync"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
)

// ErrCapabilityUnavailable is returned by Start when the host has no live transcription.
var ErrCapabilityUnavailable = apperrors.New(apperrors.CapabilityUnavailable, "live transcription is not available")

// Provider is the live transcription capability.
type Provider interface {
	// Available reports whether Subscribe can succeed at all.
	Available() bool
	// Subscribe opens a transcription stream for one recording window.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription yields cumulative transcripts (each one supersedes the last)
// until it is closed. Transcripts is closed after Close or when the stream
// ends; producers must never block on it forever.
type Subscription interface {
	Transcripts() <-chan string
	Close() error
}

// Pusher is implemented by providers fed from outside, such as browser speech
// recognition relayed over a WebSocket.
type Pusher interface {
	Push(text string) bool
}

type unavailable struct{}

// Unavailable is the provider for hosts without live transcription.
func Unavailable() Provider { return unavailable{} }

func (unavailable) Available() bool { return false }

func (unavailable) Subscribe(context.Context) (Subscription, error) {
	return nil, ErrCapabilityUnavailable
}

// PushProvider turns externally pushed transcripts into subscriptions. At most
// one subscription is open; opening another closes the previous one.
type PushProvider struct {
	mu     sync.Mutex
	active *pushSub
}

func NewPushProvider() *PushProvider { return &PushProvider{} }

func (p *PushProvider) Available() bool { return true }

func (p *PushProvider) Subscribe(context.Context) (Subscription, error) {
	sub := &pushSub{owner: p, ch: make(chan string, PushBuffer)}

	p.mu.Lock()
	prev := p.active
	p.active = sub
	if prev != nil {
		prev.closeLocked()
	}
	p.mu.Unlock()
	return sub, nil
}

// Push hands a cumulative transcript to the open subscription. It reports
// false when nothing is listening. A full buffer drops its oldest entry.
func (p *PushProvider) Push(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := p.active
	if sub == nil || sub.closed {
		return false
	}
	for {
		select {
		case sub.ch <- text:
			return true
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

type pushSub struct {
	owner  *PushProvider
	ch     chan string
	closed bool
}

func (s *pushSub) Transcripts() <-chan string { return s.ch }

func (s *pushSub) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.closeLocked()
	return nil
}

// closeLocked requires owner.mu.
func (s *pushSub) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	if s.owner.active == s {
		s.owner.active = nil
	}
}
