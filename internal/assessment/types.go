// Package assessment holds the assessment session aggregate and the payloads
// exchanged with the scoring collaborator.
package assessment

import (
	"fmt"
	"strings"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
)

// Stage is one discrete phase of an assessment.
type Stage int

const (
	StageWelcome Stage = iota
	StageProfile
	StageGeneratingQuestions
	StageMCQ
	StageShortAnswer
	StageCommunication
	StageSubmitting
	StageResults
)

var stageNames = [...]string{
	"WELCOME", "PROFILE", "GENERATING_QUESTIONS", "MCQ",
	"SHORT_ANSWER", "COMMUNICATION", "SUBMITTING", "RESULTS",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the stage that follows s. RESULTS is terminal.
func (s Stage) Next() Stage {
	if s >= StageResults {
		return StageResults
	}
	return s + 1
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Stage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", b)
}

// Role is the target role. Values are the strings the collaborator expects.
type Role string

const (
	RoleSDE         Role = "SDE"
	RoleDataScience Role = "Data Science"
	RoleAIEngineer  Role = "AI Engineer"
	RoleFrontend    Role = "Frontend"
	RoleBackend     Role = "Backend"
)

// Roles lists every role in display order.
var Roles = []Role{RoleSDE, RoleDataScience, RoleAIEngineer, RoleFrontend, RoleBackend}

// ExperienceLevel is the candidate's seniority.
type ExperienceLevel string

const (
	ExperienceStudent  ExperienceLevel = "Student"
	ExperienceFresher  ExperienceLevel = "Fresher"
	ExperienceMidLevel ExperienceLevel = "1-3 Years"
)

// ExperienceLevels lists every level in display order.
var ExperienceLevels = []ExperienceLevel{ExperienceStudent, ExperienceFresher, ExperienceMidLevel}

// normalize folds case and drops separators so "data_science" matches "Data Science".
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// ParseRole accepts the display form or any case/separator variant of it.
func ParseRole(s string) (Role, error) {
	key := normalize(s)
	for _, r := range Roles {
		if normalize(string(r)) == key {
			return r, nil
		}
	}
	return "", apperrors.Newf(apperrors.InvalidArgument, "unknown role %q", s)
}

// ParseExperience accepts "Student", "Fresher", "1-3 Years" or "MidLevel".
func ParseExperience(s string) (ExperienceLevel, error) {
	key := normalize(s)
	if key == "midlevel" || key == "mid" {
		return ExperienceMidLevel, nil
	}
	for _, e := range ExperienceLevels {
		if normalize(string(e)) == key {
			return e, nil
		}
	}
	return "", apperrors.Newf(apperrors.InvalidArgument, "unknown experience level %q", s)
}
