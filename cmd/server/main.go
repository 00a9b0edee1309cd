// PrepPulse server - runs assessment sessions behind a REST and WebSocket API
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	audiocap "github.com/GriffinCanCode/prep-pulse/internal/audio"
	"github.com/GriffinCanCode/prep-pulse/internal/config"
	"github.com/GriffinCanCode/prep-pulse/internal/grpcclient"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator"
	micaudio "github.com/GriffinCanCode/prep-pulse/internal/orchestrator/audio"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator/voice"
	"github.com/GriffinCanCode/prep-pulse/internal/resilience"
	"github.com/GriffinCanCode/prep-pulse/internal/scoring"
	"github.com/GriffinCanCode/prep-pulse/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	var closers []func() error
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()

	// Scoring collaborator
	collab, closeCollab, err := newCollaborator(cfg)
	if err != nil {
		slog.Error("failed to set up scorer", "transport", cfg.Scorer.Transport, "error", err)
		os.Exit(1)
	}
	closers = append(closers, closeCollab)

	breaker := resilience.DefaultConfig()
	breaker.Threshold = cfg.Breaker.Threshold
	breaker.ResetTimeout = cfg.Breaker.ResetTimeout
	guarded := scoring.NewGuarded(collab, breaker, resilience.ScoringConfig())

	// Speech capability
	providers, closeSpeech, err := newSpeech(cfg)
	if err != nil {
		slog.Error("failed to set up speech", "source", cfg.Speech.Source, "error", err)
		os.Exit(1)
	}
	closers = append(closers, closeSpeech)

	manager := orchestrator.NewManager(orchestrator.Options{
		Collaborator: guarded,
		Content:      cfg.Content,
		Recording:    cfg.Recording,
		Retry: resilience.RetryConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			BaseDelay:    cfg.Retry.BaseDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			JitterFactor: resilience.DefaultJitterFactor,
		},
		RequestTimeout: cfg.Scorer.RequestTimeout,
		MaxResumeBytes: cfg.Scorer.MaxResumeBytes,
	}, providers, orchestrator.WithEviction(cfg.Sessions.IdleTTL, cfg.Sessions.CleanupInterval))

	srv := server.New(server.Options{
		Manager:        manager,
		Pinger:         guarded,
		Breakers:       guarded,
		MaxResumeBytes: cfg.Scorer.MaxResumeBytes,
		AllowedOrigins: cfg.CORSOrigins,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("prep-pulse server starting",
			"http", cfg.HTTPAddr,
			"scorer", cfg.Scorer.Transport,
			"speech", cfg.Speech.Source,
			"recording_window", cfg.Recording.Window)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	manager.Close()
	slog.Info("shutdown complete")
}

// newCollaborator connects the configured scorer transport.
func newCollaborator(cfg *config.Config) (scoring.Collaborator, func() error, error) {
	switch cfg.Scorer.Transport {
	case config.TransportGRPC:
		client, err := grpcclient.New(cfg.Scorer.GRPCAddr, cfg.Scorer.RequestTimeout)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		return scoring.NewHTTPClient(cfg.Scorer.URL, cfg.Scorer.RequestTimeout), func() error { return nil }, nil
	}
}

// newSpeech picks the transcription capability each new session gets.
func newSpeech(cfg *config.Config) (orchestrator.ProviderFunc, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Speech.Source {
	case config.SpeechNone:
		return func(bool) voice.Provider { return voice.Unavailable() }, noop, nil

	case config.SpeechLocal:
		available := true
		if err := audiocap.Probe(cfg.Speech.InputDevice); err != nil {
			slog.Warn("no usable microphone, recording disabled", "error", err)
			available = false
		}

		inference, err := grpcclient.New(cfg.Speech.InferenceAddr, 0)
		if err != nil {
			return nil, nil, err
		}
		mic := micaudio.NewStreamProvider(micaudio.Config{
			SampleRate: cfg.Speech.SampleRate,
			Available:  available,
		}, func() micaudio.Source {
			return audiocap.NewCapturer(cfg.Speech.SampleRate, cfg.Speech.FramesPerBuf, cfg.Speech.InputDevice)
		}, micaudio.TranscriberFunc(func(ctx context.Context, sampleRate int) (micaudio.Stream, error) {
			stream, err := inference.Transcribe(ctx, sampleRate)
			if err != nil {
				return nil, err
			}
			return stream, nil
		}))
		return func(bool) voice.Provider { return mic }, inference.Close, nil

	default:
		// Browser speech recognition; only clients that declare it get a channel.
		return func(client bool) voice.Provider {
			if client {
				return voice.NewPushProvider()
			}
			return voice.Unavailable()
		}, noop, nil
	}
}
