// Package orchestrator drives assessment sessions through their stages.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	DefaultRequestTimeout = 60 * time.Second

	// Session eviction
	DefaultIdleTTL         = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute

	// Upper bound on a resume upload accepted by UploadResume.
	DefaultMaxResumeBytes = 10 << 20
)

// Actions a client can take, as advertised in snapshots.
const (
	ActionStart          = "start"
	ActionSetProfile     = "set_profile"
	ActionUploadResume   = "upload_resume"
	ActionBegin          = "begin"
	ActionRetryQuestions = "retry_questions"
	ActionAnswer         = "answer"
	ActionShortAnswer    = "short_answer"
	ActionNext           = "next"
	ActionStartRecording = "start_recording"
	ActionStopRecording  = "stop_recording"
	ActionSubmit         = "submit"
	ActionReset          = "reset"
)
