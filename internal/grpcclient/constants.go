package grpcclient

import "time"

// Client configuration defaults
const (
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	HealthCheckTimeout = 2 * time.Second
)

// Fully qualified method names. The services exchange protobuf well-known
// types, so no generated stubs are needed on either side.
const (
	ScoringService          = "preppulse.scoring.v1.Scoring"
	MethodParseResume       = "/" + ScoringService + "/ParseResume"
	MethodGenerateQuestions = "/" + ScoringService + "/GenerateQuestions"
	MethodCalculateScore    = "/" + ScoringService + "/CalculateScore"

	TranscriptionService   = "preppulse.speech.v1.Transcription"
	MethodStreamTranscribe = "/" + TranscriptionService + "/StreamTranscribe"
)

// Metadata keys carried next to the payload.
const (
	FilenameKey   = "x-filename"
	SampleRateKey = "x-sample-rate"
)
