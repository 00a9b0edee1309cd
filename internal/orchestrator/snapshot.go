package orchestrator

import (
	"slices"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/prep-pulse/internal/orchestrator/voice"
)

// Snapshot is an immutable view of a session for rendering.
type Snapshot struct {
	SessionID           string               `json:"session_id"`
	Version             uint64               `json:"version"`
	Session             assessment.Session   `json:"session"`
	CommunicationPrompt string               `json:"communication_prompt"`
	Resume              ResumeStatus         `json:"resume"`
	Generation          GenerationStatus     `json:"generation"`
	Voice               voice.Status         `json:"voice"`
	Recordings          []transcript.Attempt `json:"recordings,omitempty"`
	ScoreError          string               `json:"score_error,omitempty"`
	Actions             []string             `json:"actions"`
}

type ResumeStatus struct {
	Parsing bool   `json:"parsing"`
	Error   string `json:"error,omitempty"`
}

// GenerationStatus describes question generation while the session sits in
// GENERATING_QUESTIONS.
type GenerationStatus struct {
	InFlight bool   `json:"in_flight"`
	Failed   bool   `json:"failed"`
	Attempts int    `json:"attempts"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Can reports whether action is currently offered.
func (s Snapshot) Can(action string) bool {
	return slices.Contains(s.Actions, action)
}
