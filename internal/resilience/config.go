package resilience

import "time"

// Circuit breaker configuration constants
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Scoring runs once per session and takes long; trip later, recover slower.
	ScoringThreshold         = 3
	ScoringResetTimeout      = 60 * time.Second
	ScoringHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // shows up in logs
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns the settings used for resume parsing and question generation.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// ScoringConfig returns settings for the final scoring call.
func ScoringConfig() Config {
	return Config{
		Threshold:         ScoringThreshold,
		ResetTimeout:      ScoringResetTimeout,
		HalfOpenSuccesses: ScoringHalfOpenSuccesses,
	}
}

// Named returns a copy of c labelled for logging.
func (c Config) Named(name string) Config {
	c.Name = name
	return c
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
