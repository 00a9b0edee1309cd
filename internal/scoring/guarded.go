package scoring

import (
	"context"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
	"github.com/GriffinCanCode/prep-pulse/internal/resilience"
)

// Guarded puts a circuit breaker in front of each collaborator operation, so a
// dead backend fails sessions fast instead of holding them for a full timeout.
type Guarded struct {
	next      Collaborator
	resume    *resilience.Breaker
	questions *resilience.Breaker
	score     *resilience.Breaker
}

// NewGuarded wraps next. cfg applies to resume parsing and question
// generation; scoring uses scoreCfg.
func NewGuarded(next Collaborator, cfg, scoreCfg resilience.Config) *Guarded {
	return &Guarded{
		next:      next,
		resume:    resilience.New(cfg.Named(OpParseResume)),
		questions: resilience.New(cfg.Named(OpGenerateQuestions)),
		score:     resilience.New(scoreCfg.Named(OpCalculateScore)),
	}
}

func (g *Guarded) ParseResume(ctx context.Context, filename string, data []byte) (string, error) {
	return resilience.ExecuteWithResult(g.resume, func() (string, error) {
		return g.next.ParseResume(ctx, filename, data)
	})
}

func (g *Guarded) GenerateQuestions(ctx context.Context, role assessment.Role, experience assessment.ExperienceLevel) (assessment.QuestionSet, error) {
	return resilience.ExecuteWithResult(g.questions, func() (assessment.QuestionSet, error) {
		return g.next.GenerateQuestions(ctx, role, experience)
	})
}

func (g *Guarded) CalculateScore(ctx context.Context, req assessment.ScoreRequest) (assessment.Result, error) {
	return resilience.ExecuteWithResult(g.score, func() (assessment.Result, error) {
		return g.next.CalculateScore(ctx, req)
	})
}

// Ping forwards to the wrapped collaborator when it supports it.
func (g *Guarded) Ping(ctx context.Context) error {
	if p, ok := g.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// States reports each breaker's state, keyed by operation.
func (g *Guarded) States() map[string]string {
	return map[string]string{
		OpParseResume:       g.resume.State().String(),
		OpGenerateQuestions: g.questions.State().String(),
		OpCalculateScore:    g.score.State().String(),
	}
}
