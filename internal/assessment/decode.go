package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
)

// Question types as the generator labels them.
const (
	TypeMCQ   = "mcq"
	TypeShort = "short"
)

// MinOptions is the fewest options a multiple-choice question may have.
const MinOptions = 2

type rawQuestion struct {
	ID       json.RawMessage `json:"id"`
	Type     string          `json:"type"`
	Question string          `json:"question"`
	Text     string          `json:"text"`
	Options  []string        `json:"options"`
}

type rawResult struct {
	OverallScore *float64           `json:"overall_score"`
	Score        *float64           `json:"score"`
	Breakdown    map[string]float64 `json:"breakdown"`
	Strengths    []string           `json:"strengths"`
	Gaps         []string           `json:"gaps"`
	ActionPlan   []string           `json:"action_plan"`
	Plan         []string           `json:"plan"`
	Timeline     string             `json:"timeline"`
	Error        string             `json:"error"`
}

func malformed(format string, args ...any) error {
	return apperrors.Newf(apperrors.MalformedResponse, format, args...)
}

// DecodeQuestions parses a generated question list. Both a bare array and an
// object with a "questions" array are accepted, optionally inside a markdown
// code fence or after leading prose. Syntax slips such as trailing commas or
// single quotes are repaired. The first "short" item becomes the short-answer prompt; the
// correct-answer index is dropped so it never reaches a client.
func DecodeQuestions(data []byte) (QuestionSet, error) {
	data = extractJSON(data)

	var items []rawQuestion
	switch {
	case len(data) == 0:
		return QuestionSet{}, malformed("empty question payload")
	case data[0] == '[':
		if err := unmarshalJSON(data, &items); err != nil {
			return QuestionSet{}, apperrors.Wrap(err, apperrors.MalformedResponse, "decode question list")
		}
	case data[0] == '{':
		var wrapped struct {
			Questions []rawQuestion `json:"questions"`
			Error     string        `json:"error"`
		}
		if err := unmarshalJSON(data, &wrapped); err != nil {
			return QuestionSet{}, apperrors.Wrap(err, apperrors.MalformedResponse, "decode question object")
		}
		if wrapped.Error != "" && len(wrapped.Questions) == 0 {
			return QuestionSet{}, apperrors.Newf(apperrors.NetworkFailure, "question generation failed: %s", wrapped.Error)
		}
		items = wrapped.Questions
	default:
		return QuestionSet{}, malformed("question payload is neither a list nor an object")
	}

	var qs QuestionSet
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		text := strings.TrimSpace(item.Question)
		if text == "" {
			text = strings.TrimSpace(item.Text)
		}

		kind := strings.ToLower(strings.TrimSpace(item.Type))
		if kind == "" {
			kind = TypeShort
			if len(item.Options) > 0 {
				kind = TypeMCQ
			}
		}

		switch kind {
		case TypeShort:
			if qs.ShortPrompt == "" {
				qs.ShortPrompt = text
			}
		case TypeMCQ:
			id, err := decodeID(item.ID, i)
			if err != nil {
				return QuestionSet{}, err
			}
			if seen[id] {
				return QuestionSet{}, malformed("duplicate question id %q", id)
			}
			seen[id] = true
			if text == "" {
				return QuestionSet{}, malformed("question %q has no text", id)
			}
			if len(item.Options) < MinOptions {
				return QuestionSet{}, malformed("question %q has %d options, need at least %d", id, len(item.Options), MinOptions)
			}
			qs.MCQs = append(qs.MCQs, Question{ID: id, Text: text, Options: item.Options})
		default:
			return QuestionSet{}, malformed("question %d has unknown type %q", i+1, item.Type)
		}
	}

	if len(qs.MCQs) == 0 {
		return QuestionSet{}, malformed("no multiple-choice questions in payload")
	}
	return qs, nil
}

// decodeID accepts numeric or string ids; a missing id falls back to the position.
func decodeID(raw json.RawMessage, pos int) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Sprintf("q%d", pos+1), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return fmt.Sprintf("q%d", pos+1), nil
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", malformed("question %d has an invalid id %s", pos+1, raw)
	}
	return n.String(), nil
}

// DecodeResult parses a readiness report. Scores are rounded to whole percent
// and must fall within 0..100.
func DecodeResult(data []byte) (Result, error) {
	data = extractJSON(data)

	var raw rawResult
	if err := unmarshalJSON(data, &raw); err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.MalformedResponse, "decode score payload")
	}

	score := raw.OverallScore
	if score == nil {
		score = raw.Score
	}
	if score == nil {
		if raw.Error != "" {
			return Result{}, apperrors.Newf(apperrors.NetworkFailure, "scoring failed: %s", raw.Error)
		}
		return Result{}, malformed("score payload has no overall score")
	}

	overall, ok := percent(*score)
	if !ok {
		return Result{}, malformed("overall score %v outside 0..100", *score)
	}

	res := Result{
		Score:     overall,
		Breakdown: make(map[string]int, len(raw.Breakdown)),
		Strengths: raw.Strengths,
		Gaps:      raw.Gaps,
		Plan:      raw.ActionPlan,
		Timeline:  raw.Timeline,
	}
	if res.Plan == nil {
		res.Plan = raw.Plan
	}
	for signal, v := range raw.Breakdown {
		p, ok := percent(v)
		if !ok {
			return Result{}, malformed("breakdown %q = %v outside 0..100", signal, v)
		}
		res.Breakdown[signal] = p
	}
	return res, nil
}

// DecodeResumeText parses a {"text": ..., "error": ...} resume response.
func DecodeResumeText(data []byte) (string, error) {
	var raw struct {
		Text  *string `json:"text"`
		Error string  `json:"error"`
	}
	if err := unmarshalJSON(extractJSON(data), &raw); err != nil {
		return "", apperrors.Wrap(err, apperrors.MalformedResponse, "decode resume payload")
	}
	if raw.Error != "" {
		return "", apperrors.Newf(apperrors.NetworkFailure, "resume parsing failed: %s", raw.Error)
	}
	if raw.Text == nil {
		return "", malformed("resume payload has no text")
	}
	return *raw.Text, nil
}

func percent(v float64) (int, bool) {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return 0, false
	}
	return int(math.Round(v)), true
}

var fence = []byte("```")

// extractJSON narrows model output to the JSON it carries: the first fenced
// block anywhere in the text, otherwise everything from the first bracket.
func extractJSON(b []byte) []byte {
	s := bytes.TrimSpace(b)
	if i := bytes.Index(s, fence); i >= 0 {
		body := s[i+len(fence):]
		if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = bytes.TrimPrefix(body, []byte("json"))
		}
		if end := bytes.Index(body, fence); end >= 0 {
			body = body[:end]
		}
		return bytes.TrimSpace(body)
	}
	if len(s) > 0 && s[0] != '[' && s[0] != '{' {
		if i := bytes.IndexAny(s, "[{"); i >= 0 {
			return s[i:]
		}
	}
	return s
}

// unmarshalJSON decodes data into v, repairing malformed JSON on a syntax error.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) || len(data) == 0 || (data[0] != '[' && data[0] != '{') {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}
