package scoring

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// HTTP endpoints of the scoring backend.
const (
	PathParseResume       = "/parse-resume"
	PathGenerateQuestions = "/generate-questions"
	PathCalculateScore    = "/calculate-score"

	maxResponseBytes = 4 << 20
)

// HTTPClient calls the scoring backend with multipart form posts.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for baseURL. timeout bounds each call.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ParseResume uploads the resume file and returns the extracted text.
func (c *HTTPClient) ParseResume(ctx context.Context, filename string, data []byte) (string, error) {
	body, err := c.post(ctx, OpParseResume, PathParseResume, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		_, err = part.Write(data)
		return err
	})
	if err != nil {
		return "", err
	}
	return assessment.DecodeResumeText(body)
}

// GenerateQuestions asks for a question set tailored to role and experience.
func (c *HTTPClient) GenerateQuestions(ctx context.Context, role assessment.Role, experience assessment.ExperienceLevel) (assessment.QuestionSet, error) {
	body, err := c.post(ctx, OpGenerateQuestions, PathGenerateQuestions, fields(
		"role", string(role),
		"experience", string(experience),
	))
	if err != nil {
		return assessment.QuestionSet{}, err
	}
	return assessment.DecodeQuestions(body)
}

// CalculateScore submits the whole assessment and returns the readiness report.
func (c *HTTPClient) CalculateScore(ctx context.Context, req assessment.ScoreRequest) (assessment.Result, error) {
	tech, err := req.TechAnswersJSON()
	if err != nil {
		return assessment.Result{}, apperrors.Wrap(err, apperrors.Internal, "encode technical answers")
	}
	body, err := c.post(ctx, OpCalculateScore, PathCalculateScore, fields(
		"role", string(req.Role),
		"experience", string(req.Experience),
		"resume_text", req.ResumeText,
		"tech_answers", string(tech),
		"comm_text", req.Transcript,
	))
	if err != nil {
		return assessment.Result{}, err
	}
	return assessment.DecodeResult(body)
}

// Ping checks the backend answers on its root path.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "build ping request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return classify(ctx, err, "ping")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperrors.Newf(apperrors.NetworkFailure, "ping: status %d", resp.StatusCode)
	}
	return nil
}

func fields(kv ...string) func(*multipart.Writer) error {
	return func(w *multipart.Writer) error {
		for i := 0; i+1 < len(kv); i += 2 {
			if err := w.WriteField(kv[i], kv[i+1]); err != nil {
				return err
			}
		}
		return nil
	}
}

func (c *HTTPClient) post(ctx context.Context, op, path string, build func(*multipart.Writer) error) ([]byte, error) {
	ctx, span := trace.StartSpan(ctx, op)
	defer span.End()
	log := trace.Logger(ctx)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := build(w); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.Internal, "%s: build form", op)
	}
	if err := w.Close(); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.Internal, "%s: close form", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.Internal, "%s: build request", op)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	for k, v := range span.Ctx.ToMap() {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		err = classify(ctx, err, op)
		span.RecordError(err)
		log.Warn("collaborator call failed", "op", op, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classify(ctx, err, op)
	}
	span.SetAttr("status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := apperrors.Newf(apperrors.NetworkFailure, "%s: status %d", op, resp.StatusCode).
			WithMetadata("status", strconv.Itoa(resp.StatusCode))
		span.RecordError(err)
		log.Warn("collaborator returned error status", "op", op, "status", resp.StatusCode)
		return nil, err
	}

	log.Debug("collaborator call finished", "op", op, "duration", time.Since(start), "bytes", len(body))
	return body, nil
}

// classify turns transport errors into taxonomy codes.
func classify(ctx context.Context, err error, op string) error {
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrapf(err, apperrors.Cancelled, "%s: cancelled", op)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return apperrors.Wrapf(err, apperrors.Timeout, "%s: timed out", op)
	default:
		return apperrors.Wrapf(err, apperrors.NetworkFailure, "%s: request failed", op)
	}
}
