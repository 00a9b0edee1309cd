// Package grpcclient provides the gRPC transport to the scoring collaborator
// and the streaming transcription service.
package grpcclient

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// Client wraps a connection to the collaborator services.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	timeout time.Duration
}

// New creates a client for addr. timeout bounds calls whose context has no
// deadline of its own; zero disables it. Extra dial options are appended.
func New(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithStreamInterceptor(trace.StreamClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.Internal, "create grpc client for %s", addr)
	}

	return &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: timeout,
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// ParseResume sends the raw file and returns the extracted text.
func (c *Client) ParseResume(ctx context.Context, filename string, data []byte) (string, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, FilenameKey, filename)
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, MethodParseResume, wrapperspb.Bytes(data), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// GenerateQuestions requests a question set. The reply is a list of question
// objects shaped like the HTTP backend's.
func (c *Client) GenerateQuestions(ctx context.Context, role assessment.Role, experience assessment.ExperienceLevel) (assessment.QuestionSet, error) {
	in, err := structpb.NewStruct(map[string]any{
		"role":       string(role),
		"experience": string(experience),
	})
	if err != nil {
		return assessment.QuestionSet{}, apperrors.Wrap(err, apperrors.Internal, "encode question request")
	}

	out := new(structpb.ListValue)
	if err := c.invoke(ctx, MethodGenerateQuestions, in, out); err != nil {
		return assessment.QuestionSet{}, err
	}
	body, err := protojson.Marshal(out)
	if err != nil {
		return assessment.QuestionSet{}, apperrors.Wrap(err, apperrors.MalformedResponse, "re-encode question list")
	}
	return assessment.DecodeQuestions(body)
}

// CalculateScore submits the assessment; the reply struct uses the same keys
// as the HTTP backend's JSON.
func (c *Client) CalculateScore(ctx context.Context, req assessment.ScoreRequest) (assessment.Result, error) {
	mcqs := make(map[string]any, len(req.Technical.MCQAnswers))
	for id, idx := range req.Technical.MCQAnswers {
		mcqs[id] = idx
	}
	in, err := structpb.NewStruct(map[string]any{
		"role":        string(req.Role),
		"experience":  string(req.Experience),
		"resume_text": req.ResumeText,
		"tech_answers": map[string]any{
			"mcqs":  mcqs,
			"short": req.Technical.ShortAnswerText,
		},
		"comm_text": req.Transcript,
	})
	if err != nil {
		return assessment.Result{}, apperrors.Wrap(err, apperrors.Internal, "encode score request")
	}

	out := new(structpb.Struct)
	if err := c.invoke(ctx, MethodCalculateScore, in, out); err != nil {
		return assessment.Result{}, err
	}
	body, err := protojson.Marshal(out)
	if err != nil {
		return assessment.Result{}, apperrors.Wrap(err, apperrors.MalformedResponse, "re-encode score")
	}
	return assessment.DecodeResult(body)
}

// Ping asks the standard health service whether scoring is serving.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ScoringService})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperrors.Newf(apperrors.NetworkFailure, "scoring service is %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out proto.Message) error {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := trace.StartSpan(ctx, method)
	defer span.End()

	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		appErr := apperrors.FromGRPCError(err)
		span.RecordError(appErr)
		trace.Logger(ctx).Warn("collaborator call failed", "method", method, "code", appErr.Code, "error", appErr.Message)
		return appErr
	}
	return nil
}

// sampleRateMD attaches the PCM sample rate for a transcription stream.
func sampleRateMD(ctx context.Context, sampleRate int) context.Context {
	return metadata.AppendToOutgoingContext(ctx, SampleRateKey, strconv.Itoa(sampleRate))
}
