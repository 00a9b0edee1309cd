// Package scoring talks to the external scoring collaborator: resume parsing,
// question generation and readiness scoring.
package scoring

import (
	"context"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
)

// Collaborator is the set of opaque services an assessment waits on.
// Implementations return *errors.AppError values coded NETWORK_FAILURE,
// MALFORMED_RESPONSE, TIMEOUT or CANCELLED.
type Collaborator interface {
	ParseResume(ctx context.Context, filename string, data []byte) (string, error)
	GenerateQuestions(ctx context.Context, role assessment.Role, experience assessment.ExperienceLevel) (assessment.QuestionSet, error)
	CalculateScore(ctx context.Context, req assessment.ScoreRequest) (assessment.Result, error)
}

// Pinger is implemented by collaborators that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Operation names, used for spans and breaker labels.
const (
	OpParseResume       = "parse_resume"
	OpGenerateQuestions = "generate_questions"
	OpCalculateScore    = "calculate_score"
)
