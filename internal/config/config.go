// Package config handles platform configuration
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Speech sources.
const (
	SpeechClient = "client" // browser speech recognition pushed over the WebSocket
	SpeechLocal  = "local"  // local microphone streamed to the transcription service
	SpeechNone   = "none"
)

// Scorer transports.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

type Config struct {
	HTTPAddr    string
	CORSOrigins []string
	LogLevel    slog.Level

	Scorer    ScorerConfig
	Speech    SpeechConfig
	Recording RecordingConfig
	Sessions  SessionConfig
	Retry     RetryConfig
	Breaker   BreakerConfig
	Content   Content

	ContentFile string
}

type ScorerConfig struct {
	Transport      string
	URL            string // HTTP base URL of the scoring backend
	GRPCAddr       string
	RequestTimeout time.Duration
	MaxResumeBytes int64
}

type SpeechConfig struct {
	Source        string
	InferenceAddr string
	SampleRate    int
	FramesPerBuf  int
	InputDevice   string // substring of the microphone name; empty means the default input
}

type RecordingConfig struct {
	Window time.Duration
	Tick   time.Duration
}

type SessionConfig struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type BreakerConfig struct {
	Threshold    int
	ResetTimeout time.Duration
}

// Load reads the environment and, when CONTENT_FILE is set, overlays the YAML content file.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		LogLevel:    getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Scorer: ScorerConfig{
			Transport:      strings.ToLower(getEnv("SCORER_TRANSPORT", TransportHTTP)),
			URL:            strings.TrimRight(getEnv("SCORER_URL", "http://localhost:8000"), "/"),
			GRPCAddr:       getEnv("SCORER_GRPC_ADDR", "localhost:50052"),
			RequestTimeout: getEnvDuration("SCORER_TIMEOUT", 60*time.Second),
			MaxResumeBytes: int64(getEnvInt("MAX_RESUME_BYTES", 10<<20)),
		},
		Speech: SpeechConfig{
			Source:        strings.ToLower(getEnv("SPEECH_SOURCE", SpeechClient)),
			InferenceAddr: getEnv("INFERENCE_ADDR", "localhost:50051"),
			SampleRate:    getEnvInt("SAMPLE_RATE", 16000),
			FramesPerBuf:  getEnvInt("FRAMES_PER_BUFFER", 1024),
			InputDevice:   getEnv("INPUT_DEVICE", ""),
		},
		Recording: RecordingConfig{
			Window: getEnvDuration("RECORDING_WINDOW", 20*time.Second),
			Tick:   getEnvDuration("RECORDING_TICK", time.Second),
		},
		Sessions: SessionConfig{
			IdleTTL:         getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
			CleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries: getEnvInt("QUESTION_MAX_RETRIES", 3),
			BaseDelay:  getEnvDuration("QUESTION_RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:   getEnvDuration("QUESTION_RETRY_MAX_DELAY", 10*time.Second),
		},
		Breaker: BreakerConfig{
			Threshold:    getEnvInt("BREAKER_THRESHOLD", 5),
			ResetTimeout: getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		},
		Content:     DefaultContent(),
		ContentFile: getEnv("CONTENT_FILE", ""),
	}

	customPrompt := false
	if cfg.ContentFile != "" {
		content, err := LoadContent(cfg.ContentFile)
		if err != nil {
			return nil, err
		}
		cfg.Content = cfg.Content.merge(content)
		if content.RecordingSeconds > 0 {
			cfg.Recording.Window = time.Duration(content.RecordingSeconds) * time.Second
		}
		customPrompt = content.CommunicationPrompt != ""
	}
	// The built-in prompt names the window length.
	if !customPrompt {
		cfg.Content.CommunicationPrompt = CommunicationPromptFor(cfg.Recording.Window)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the platform cannot run with.
func (c *Config) Validate() error {
	switch c.Scorer.Transport {
	case TransportHTTP:
		if c.Scorer.URL == "" {
			return fmt.Errorf("SCORER_URL is required for the http transport")
		}
	case TransportGRPC:
		if c.Scorer.GRPCAddr == "" {
			return fmt.Errorf("SCORER_GRPC_ADDR is required for the grpc transport")
		}
	default:
		return fmt.Errorf("unknown scorer transport %q", c.Scorer.Transport)
	}

	switch c.Speech.Source {
	case SpeechClient, SpeechNone:
	case SpeechLocal:
		if c.Speech.InferenceAddr == "" {
			return fmt.Errorf("INFERENCE_ADDR is required for local speech")
		}
		if c.Speech.SampleRate <= 0 {
			return fmt.Errorf("invalid sample rate: %d", c.Speech.SampleRate)
		}
	default:
		return fmt.Errorf("unknown speech source %q", c.Speech.Source)
	}

	if c.Recording.Tick <= 0 || c.Recording.Window < c.Recording.Tick {
		return fmt.Errorf("recording window %v must be at least one tick (%v)", c.Recording.Window, c.Recording.Tick)
	}
	if c.Scorer.RequestTimeout <= 0 {
		return fmt.Errorf("scorer timeout must be positive")
	}
	if c.Scorer.MaxResumeBytes <= 0 {
		return fmt.Errorf("max resume size must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("question retries cannot be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getEnvLevel(key string, def slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			return lvl
		}
	}
	return def
}
