package voice

import "time"

// Recording window defaults
const (
	DefaultWindow = 20 * time.Second
	DefaultTick   = time.Second

	// Closed windows kept for the session report.
	DefaultHistory = 5

	// Pushed transcripts buffered per subscription. Only the newest matters.
	PushBuffer = 8
)

// Window outcomes recorded in the transcript log.
const (
	OutcomeUser     = "user"
	OutcomeDeadline = "deadline"
	OutcomeClosed   = "closed"
)
