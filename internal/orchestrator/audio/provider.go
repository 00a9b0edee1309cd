package audio

import (
	"context"
	"errors"
	"io"
	"sync"

	audiocap "github.com/GriffinCanCode/prep-pulse/internal/audio"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator/voice"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// Source produces captured audio. *audiocap.Capturer implements it.
type Source interface {
	Start(ctx context.Context) error
	Output() <-chan audiocap.Chunk
	Stop()
}

// Stream is an open transcription session on the inference service.
type Stream interface {
	Send(pcm []byte) error
	Recv() (string, error)
	CloseSend() error
}

// Transcriber opens transcription streams.
type Transcriber interface {
	Transcribe(ctx context.Context, sampleRate int) (Stream, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, sampleRate int) (Stream, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, sampleRate int) (Stream, error) {
	return f(ctx, sampleRate)
}

// Config for the microphone provider.
type Config struct {
	SampleRate int
	SilenceRMS float64
	// Available is the result of probing the host for an input device.
	Available bool
}

// StreamProvider is a voice.Provider backed by a local microphone and a
// streaming transcription service. Every subscription opens its own capture
// and stream.
type StreamProvider struct {
	cfg       Config
	newSource func() Source
	tr        Transcriber
}

var _ voice.Provider = (*StreamProvider)(nil)

func NewStreamProvider(cfg Config, newSource func() Source, tr Transcriber) *StreamProvider {
	return &StreamProvider{cfg: cfg, newSource: newSource, tr: tr}
}

func (p *StreamProvider) Available() bool {
	return p.cfg.Available && p.newSource != nil && p.tr != nil
}

// Subscribe opens the transcription stream first and then the microphone, so
// no audio is captured without somewhere to send it.
func (p *StreamProvider) Subscribe(ctx context.Context) (voice.Subscription, error) {
	if !p.Available() {
		return nil, voice.ErrCapabilityUnavailable
	}

	ctx, span := trace.StartSpan(ctx, "transcription.subscribe")
	defer span.End()
	span.SetAttr("sample_rate", p.cfg.SampleRate)

	sctx, cancel := context.WithCancel(ctx)
	stream, err := p.tr.Transcribe(sctx, p.cfg.SampleRate)
	if err != nil {
		cancel()
		span.RecordError(err)
		return nil, err
	}

	src := p.newSource()
	if err := src.Start(sctx); err != nil {
		cancel()
		_ = stream.CloseSend()
		span.RecordError(err)
		return nil, err
	}

	s := &streamSub{
		cancel: cancel,
		src:    src,
		out:    make(chan string, TranscriptBuffer),
		done:   make(chan struct{}),
	}
	go s.pump(sctx, stream, NewGate(p.cfg.SilenceRMS))
	go s.receive(sctx, stream)
	return s, nil
}

type streamSub struct {
	cancel context.CancelFunc
	src    Source
	out    chan string
	done   chan struct{}
	once   sync.Once
}

func (s *streamSub) Transcripts() <-chan string { return s.out }

// Close stops capture and the stream, then waits for the transcript channel
// to close.
func (s *streamSub) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.src.Stop()
		<-s.done
	})
	return nil
}

func (s *streamSub) pump(ctx context.Context, stream Stream, gate *Gate) {
	defer func() { _ = stream.CloseSend() }()
	log := trace.Logger(ctx)
	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("audio pump stopped", "chunks", sent)
			return
		case chunk, ok := <-s.src.Output():
			if !ok {
				return
			}
			pcm, speak := gate.Process(chunk.Data)
			if !speak {
				continue
			}
			if err := stream.Send(pcm); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					log.Warn("sending audio failed", "error", err)
				}
				return
			}
			sent++
		}
	}
}

// receive forwards transcripts, keeping only the newest when the reader lags.
// Each transcript is cumulative, so dropping older ones loses nothing.
func (s *streamSub) receive(ctx context.Context, stream Stream) {
	defer close(s.done)
	defer close(s.out)
	for {
		text, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				trace.Logger(ctx).Warn("transcription stream failed", "error", err)
			}
			return
		}
		select {
		case s.out <- text:
			continue
		default:
		}
		select {
		case <-s.out:
		default:
		}
		select {
		case s.out <- text:
		default:
		}
	}
}
