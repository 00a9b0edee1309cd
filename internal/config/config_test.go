package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"HTTP_ADDR", "LOG_LEVEL", "SCORER_TRANSPORT", "SCORER_URL", "SCORER_GRPC_ADDR",
	"SCORER_TIMEOUT", "MAX_RESUME_BYTES", "SPEECH_SOURCE", "INFERENCE_ADDR", "SAMPLE_RATE",
	"FRAMES_PER_BUFFER", "RECORDING_WINDOW", "RECORDING_TICK", "SESSION_IDLE_TTL",
	"SESSION_CLEANUP_INTERVAL", "QUESTION_MAX_RETRIES", "QUESTION_RETRY_BASE_DELAY",
	"QUESTION_RETRY_MAX_DELAY", "BREAKER_THRESHOLD", "BREAKER_RESET_TIMEOUT", "CONTENT_FILE",
	"CORS_ORIGINS", "INPUT_DEVICE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
	if cfg.Scorer.Transport != TransportHTTP {
		t.Errorf("Scorer.Transport = %q, want %q", cfg.Scorer.Transport, TransportHTTP)
	}
	if cfg.Scorer.URL != "http://localhost:8000" {
		t.Errorf("Scorer.URL = %q", cfg.Scorer.URL)
	}
	if cfg.Scorer.RequestTimeout != 60*time.Second {
		t.Errorf("Scorer.RequestTimeout = %v, want 60s", cfg.Scorer.RequestTimeout)
	}
	if cfg.Speech.Source != SpeechClient {
		t.Errorf("Speech.Source = %q, want %q", cfg.Speech.Source, SpeechClient)
	}
	if cfg.Recording.Window != 20*time.Second {
		t.Errorf("Recording.Window = %v, want 20s", cfg.Recording.Window)
	}
	if cfg.Recording.Tick != time.Second {
		t.Errorf("Recording.Tick = %v, want 1s", cfg.Recording.Tick)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Retry.MaxRetries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Content.DefaultRole != "SDE" || cfg.Content.DefaultExperience != "Student" {
		t.Errorf("Content defaults = %+v", cfg.Content)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SCORER_TRANSPORT", "GRPC")
	t.Setenv("SCORER_GRPC_ADDR", "scorer:50052")
	t.Setenv("SCORER_URL", "http://scorer:8000/")
	t.Setenv("SPEECH_SOURCE", "local")
	t.Setenv("SAMPLE_RATE", "48000")
	t.Setenv("RECORDING_WINDOW", "30s")
	t.Setenv("QUESTION_MAX_RETRIES", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
	if cfg.Scorer.Transport != TransportGRPC {
		t.Errorf("Scorer.Transport = %q, want %q", cfg.Scorer.Transport, TransportGRPC)
	}
	if cfg.Scorer.URL != "http://scorer:8000" {
		t.Errorf("Scorer.URL should drop the trailing slash, got %q", cfg.Scorer.URL)
	}
	if cfg.Speech.Source != SpeechLocal {
		t.Errorf("Speech.Source = %q, want %q", cfg.Speech.Source, SpeechLocal)
	}
	if cfg.Speech.SampleRate != 48000 {
		t.Errorf("Speech.SampleRate = %d, want 48000", cfg.Speech.SampleRate)
	}
	if cfg.Recording.Window != 30*time.Second {
		t.Errorf("Recording.Window = %v, want 30s", cfg.Recording.Window)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("Retry.MaxRetries = %d, want 5", cfg.Retry.MaxRetries)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"transport", "SCORER_TRANSPORT", "carrier-pigeon", "unknown scorer transport"},
		{"speech", "SPEECH_SOURCE", "telepathy", "unknown speech source"},
		{"window shorter than tick", "RECORDING_WINDOW", "500ms", "recording window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadContentFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "content.yaml")
	yml := "short_answer_prompt: Explain eventual consistency.\nrecording_seconds: 45\ndefault_role: Backend\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONTENT_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Content.ShortAnswerPrompt != "Explain eventual consistency." {
		t.Errorf("ShortAnswerPrompt = %q", cfg.Content.ShortAnswerPrompt)
	}
	if cfg.Content.DefaultRole != "Backend" {
		t.Errorf("DefaultRole = %q, want Backend", cfg.Content.DefaultRole)
	}
	if cfg.Content.CommunicationPrompt != "Describe your most impactful project in 45 seconds." {
		t.Errorf("CommunicationPrompt = %q, should follow the recording window", cfg.Content.CommunicationPrompt)
	}
	if cfg.Recording.Window != 45*time.Second {
		t.Errorf("Recording.Window = %v, want 45s", cfg.Recording.Window)
	}
}

func TestCommunicationPromptFollowsWindow(t *testing.T) {
	tests := []struct {
		name   string
		window string
		yml    string
		want   string
	}{
		{"default window", "", "", "Describe your most impactful project in 20 seconds."},
		{"env window", "30s", "", "Describe your most impactful project in 30 seconds."},
		{"custom prompt kept", "30s", "communication_prompt: Pitch yourself.\n", "Pitch yourself."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.window != "" {
				t.Setenv("RECORDING_WINDOW", tt.window)
			}
			if tt.yml != "" {
				path := filepath.Join(t.TempDir(), "content.yaml")
				if err := os.WriteFile(path, []byte(tt.yml), 0o600); err != nil {
					t.Fatal(err)
				}
				t.Setenv("CONTENT_FILE", path)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.Content.CommunicationPrompt != tt.want {
				t.Errorf("CommunicationPrompt = %q, want %q", cfg.Content.CommunicationPrompt, tt.want)
			}
		})
	}
}

func TestLoadContentFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONTENT_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Error("Load() should fail for a missing content file")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if v := getEnv("TEST_STRING", "default"); v != "hello" {
		t.Errorf("getEnv = %q, want %q", v, "hello")
	}
	if v := getEnv("NONEXISTENT", "default"); v != "default" {
		t.Errorf("getEnv = %q, want %q", v, "default")
	}

	t.Setenv("TEST_INT_INVALID", "not-a-number")
	if v := getEnvInt("TEST_INT_INVALID", 100); v != 100 {
		t.Errorf("getEnvInt with invalid = %d, want %d", v, 100)
	}

	t.Setenv("TEST_DURATION", "1m30s")
	if v := getEnvDuration("TEST_DURATION", 0); v != 90*time.Second {
		t.Errorf("getEnvDuration = %v, want 1m30s", v)
	}
	t.Setenv("TEST_DURATION_INVALID", "soon")
	if v := getEnvDuration("TEST_DURATION_INVALID", time.Second); v != time.Second {
		t.Errorf("getEnvDuration with invalid = %v, want 1s", v)
	}

	t.Setenv("TEST_LEVEL", "warn")
	if v := getEnvLevel("TEST_LEVEL", slog.LevelInfo); v != slog.LevelWarn {
		t.Errorf("getEnvLevel = %v, want WARN", v)
	}
}

func TestCORSOrigins(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("default CORSOrigins = %v", cfg.CORSOrigins)
	}

	t.Setenv("CORS_ORIGINS", " https://app.example.com, ,http://localhost:5173 ")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://app.example.com", "http://localhost:5173"}
	if strings.Join(cfg.CORSOrigins, "|") != strings.Join(want, "|") {
		t.Errorf("CORSOrigins = %v, want %v", cfg.CORSOrigins, want)
	}
}
