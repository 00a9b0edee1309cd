package assessment

import (
	"encoding/json"
	"maps"
	"slices"
)

// ResumeFile references an uploaded resume. The bytes themselves are handed to
// the collaborator and never kept.
type ResumeFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type Profile struct {
	Role       Role            `json:"role"`
	Experience ExperienceLevel `json:"experience"`
	Resume     *ResumeFile     `json:"resume,omitempty"`
	ResumeText string          `json:"resume_text"`
}

// HasResume reports whether the upload round trip completed.
func (p Profile) HasResume() bool { return p.Resume != nil }

type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// QuestionSet is what question generation produced for a session.
type QuestionSet struct {
	MCQs        []Question `json:"mcqs"`
	ShortPrompt string     `json:"short_prompt,omitempty"`
}

// Find returns the multiple-choice question with the given id.
func (qs QuestionSet) Find(id string) (Question, bool) {
	for _, q := range qs.MCQs {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// TechnicalResponses serializes to the {"mcqs": {...}, "short": "..."} object
// the scorer receives as tech_answers.
type TechnicalResponses struct {
	MCQAnswers      map[string]int `json:"mcqs"`
	ShortAnswerText string         `json:"short"`
}

type CommunicationResponse struct {
	TranscriptText string `json:"transcript"`
}

// Result is the readiness report. Plan normally has one entry per day of the week.
type Result struct {
	Score     int            `json:"score"`
	Breakdown map[string]int `json:"breakdown"`
	Strengths []string       `json:"strengths"`
	Gaps      []string       `json:"gaps"`
	Plan      []string       `json:"plan"`
	Timeline  string         `json:"timeline,omitempty"`
}

// Session is the assessment aggregate. Only the orchestrator that owns it mutates it.
type Session struct {
	Stage         Stage                 `json:"stage"`
	Profile       Profile               `json:"profile"`
	Questions     QuestionSet           `json:"questions"`
	Technical     TechnicalResponses    `json:"technical"`
	Communication CommunicationResponse `json:"communication"`
	Result        *Result               `json:"result,omitempty"`
}

// NewSession returns the initial session for the given profile defaults.
func NewSession(role Role, experience ExperienceLevel) Session {
	return Session{
		Stage:     StageWelcome,
		Profile:   Profile{Role: role, Experience: experience},
		Technical: TechnicalResponses{MCQAnswers: map[string]int{}},
	}
}

// Clone returns a deep copy safe to hand to readers.
func (s Session) Clone() Session {
	c := s
	if s.Profile.Resume != nil {
		r := *s.Profile.Resume
		c.Profile.Resume = &r
	}
	if s.Questions.MCQs != nil {
		c.Questions.MCQs = make([]Question, len(s.Questions.MCQs))
		for i, q := range s.Questions.MCQs {
			q.Options = slices.Clone(q.Options)
			c.Questions.MCQs[i] = q
		}
	}
	c.Technical.MCQAnswers = maps.Clone(s.Technical.MCQAnswers)
	if s.Result != nil {
		r := s.Result.Clone()
		c.Result = &r
	}
	return c
}

func (r Result) Clone() Result {
	r.Breakdown = maps.Clone(r.Breakdown)
	r.Strengths = slices.Clone(r.Strengths)
	r.Gaps = slices.Clone(r.Gaps)
	r.Plan = slices.Clone(r.Plan)
	return r
}

// ScoreRequest is everything CalculateScore receives.
type ScoreRequest struct {
	Role       Role
	Experience ExperienceLevel
	ResumeText string
	Technical  TechnicalResponses
	Transcript string
}

// ScoreRequest assembles the scoring payload from the session.
func (s Session) ScoreRequest() ScoreRequest {
	return ScoreRequest{
		Role:       s.Profile.Role,
		Experience: s.Profile.Experience,
		ResumeText: s.Profile.ResumeText,
		Technical: TechnicalResponses{
			MCQAnswers:      maps.Clone(s.Technical.MCQAnswers),
			ShortAnswerText: s.Technical.ShortAnswerText,
		},
		Transcript: s.Communication.TranscriptText,
	}
}

// TechAnswersJSON encodes the technical answers as one structured field.
func (r ScoreRequest) TechAnswersJSON() ([]byte, error) {
	t := r.Technical
	if t.MCQAnswers == nil {
		t.MCQAnswers = map[string]int{}
	}
	return json.Marshal(t)
}
