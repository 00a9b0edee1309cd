package grpcclient

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/prep-pulse/internal/assessment"
	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
	"github.com/GriffinCanCode/prep-pulse/internal/trace"
)

// fakeScoring is an in-process collaborator.
type fakeScoring struct {
	mu        sync.Mutex
	lastScore *structpb.Struct
	lastMD    metadata.MD
	scoreErr  error
	questions []any
}

type scoringAPI interface {
	record(ctx context.Context)
}

func (f *fakeScoring) record(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)
	f.mu.Lock()
	f.lastMD = md
	f.mu.Unlock()
}

var scoringDesc = grpc.ServiceDesc{
	ServiceName: ScoringService,
	HandlerType: (*scoringAPI)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ParseResume",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.BytesValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				srv.(*fakeScoring).record(ctx)
				return wrapperspb.String("parsed " + string(in.GetValue())), nil
			},
		},
		{
			MethodName: "GenerateQuestions",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				f := srv.(*fakeScoring)
				if in.GetFields()["role"].GetStringValue() == "" {
					return nil, status.Error(codes.InvalidArgument, "role required")
				}
				return structpb.NewList(f.questions)
			},
		},
		{
			MethodName: "CalculateScore",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				f := srv.(*fakeScoring)
				f.mu.Lock()
				f.lastScore = in
				err := f.scoreErr
				f.mu.Unlock()
				if err != nil {
					return nil, err
				}
				return structpb.NewStruct(map[string]any{
					"overall_score": 64.0,
					"breakdown":     map[string]any{"technical": 70.0, "communication": 58.0},
					"strengths":     []any{"clear structure"},
					"gaps":          []any{"system design"},
					"action_plan":   []any{"d1", "d2", "d3", "d4", "d5", "d6", "d7"},
					"timeline":      "3 weeks",
				})
			},
		},
	},
}

var transcriptionDesc = grpc.ServiceDesc{
	ServiceName: TranscriptionService,
	HandlerType: (*scoringAPI)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "StreamTranscribe",
		ServerStreams: true,
		ClientStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			srv.(*fakeScoring).record(stream.Context())
			var words []string
			for {
				in := new(wrapperspb.BytesValue)
				if err := stream.RecvMsg(in); err != nil {
					if err == io.EOF {
						return nil
					}
					return err
				}
				words = append(words, string(in.GetValue()))
				if err := stream.SendMsg(wrapperspb.String(strings.Join(words, " "))); err != nil {
					return err
				}
			}
		},
	}},
}

func startFake(t *testing.T, f *fakeScoring) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&scoringDesc, f)
	srv.RegisterService(&transcriptionDesc, f)

	hs := health.NewServer()
	hs.SetServingStatus(ScoringService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := New("passthrough:///bufnet", 2*time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func defaultQuestions() []any {
	return []any{
		map[string]any{"id": 1.0, "type": "mcq", "question": "What is a goroutine?", "options": []any{"thread", "green thread", "process"}, "answer": 1.0},
		map[string]any{"id": 2.0, "type": "short", "question": "Explain backpressure."},
	}
}

func TestParseResume(t *testing.T) {
	f := &fakeScoring{}
	c := startFake(t, f)

	text, err := c.ParseResume(trace.WithSession(context.Background(), "sess-1"), "cv.pdf", []byte("bytes"))
	if err != nil {
		t.Fatalf("ParseResume() error: %v", err)
	}
	if text != "parsed bytes" {
		t.Errorf("ParseResume() = %q", text)
	}

	f.mu.Lock()
	md := f.lastMD
	f.mu.Unlock()
	if v := md.Get(FilenameKey); len(v) != 1 || v[0] != "cv.pdf" {
		t.Errorf("filename metadata = %v", v)
	}
	if v := md.Get(trace.SessionIDKey); len(v) != 1 || v[0] != "sess-1" {
		t.Errorf("session metadata = %v", v)
	}
}

func TestGenerateQuestions(t *testing.T) {
	c := startFake(t, &fakeScoring{questions: defaultQuestions()})

	qs, err := c.GenerateQuestions(context.Background(), assessment.RoleBackend, assessment.ExperienceFresher)
	if err != nil {
		t.Fatalf("GenerateQuestions() error: %v", err)
	}
	if len(qs.MCQs) != 1 || qs.MCQs[0].ID != "1" || len(qs.MCQs[0].Options) != 3 {
		t.Errorf("GenerateQuestions() = %+v", qs)
	}
	if qs.ShortPrompt != "Explain backpressure." {
		t.Errorf("ShortPrompt = %q", qs.ShortPrompt)
	}
}

func TestGenerateQuestionsErrors(t *testing.T) {
	c := startFake(t, &fakeScoring{questions: []any{}})

	_, err := c.GenerateQuestions(context.Background(), assessment.RoleSDE, assessment.ExperienceStudent)
	if !apperrors.IsCode(err, apperrors.MalformedResponse) {
		t.Errorf("empty list code = %v", apperrors.CodeOf(err))
	}

	_, err = c.GenerateQuestions(context.Background(), "", assessment.ExperienceStudent)
	if !apperrors.IsCode(err, apperrors.InvalidArgument) {
		t.Errorf("missing role code = %v", apperrors.CodeOf(err))
	}
}

func TestCalculateScore(t *testing.T) {
	f := &fakeScoring{}
	c := startFake(t, f)

	req := assessment.ScoreRequest{
		Role:       assessment.RoleSDE,
		Experience: assessment.ExperienceStudent,
		ResumeText: "resume",
		Technical: assessment.TechnicalResponses{
			MCQAnswers:      map[string]int{"q1": 0, "q2": 2, "q3": 1},
			ShortAnswerText: "scale horizontally",
		},
		Transcript: "I built a caching layer",
	}
	res, err := c.CalculateScore(context.Background(), req)
	if err != nil {
		t.Fatalf("CalculateScore() error: %v", err)
	}
	if res.Score != 64 || res.Breakdown["communication"] != 58 || len(res.Plan) != 7 {
		t.Errorf("CalculateScore() = %+v", res)
	}

	f.mu.Lock()
	got := f.lastScore.AsMap()
	f.mu.Unlock()
	if got["comm_text"] != "I built a caching layer" || got["role"] != "SDE" || got["resume_text"] != "resume" {
		t.Errorf("request = %v", got)
	}
	tech, _ := got["tech_answers"].(map[string]any)
	mcqs, _ := tech["mcqs"].(map[string]any)
	if tech["short"] != "scale horizontally" || mcqs["q2"] != 2.0 {
		t.Errorf("tech_answers = %v", tech)
	}
}

func TestCalculateScoreErrorDetail(t *testing.T) {
	f := &fakeScoring{scoreErr: apperrors.New(apperrors.MalformedResponse, "model returned prose").GRPCStatus().Err()}
	c := startFake(t, f)

	_, err := c.CalculateScore(context.Background(), assessment.ScoreRequest{})
	if !apperrors.IsCode(err, apperrors.MalformedResponse) {
		t.Errorf("code = %v, want MALFORMED_RESPONSE", apperrors.CodeOf(err))
	}
}

func TestPing(t *testing.T) {
	c := startFake(t, &fakeScoring{})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestTranscribeStream(t *testing.T) {
	f := &fakeScoring{}
	c := startFake(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := c.Transcribe(ctx, 16000)
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}

	var got []string
	for _, chunk := range []string{"I", "built", "things"} {
		if err := stream.Send([]byte(chunk)); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
		text, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv() error: %v", err)
		}
		got = append(got, text)
	}
	if got[2] != "I built things" {
		t.Errorf("cumulative transcripts = %q", got)
	}

	if err := stream.CloseSend(); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("Recv() after CloseSend = %v, want io.EOF", err)
	}

	f.mu.Lock()
	md := f.lastMD
	f.mu.Unlock()
	if v := md.Get(SampleRateKey); len(v) != 1 || v[0] != "16000" {
		t.Errorf("sample rate metadata = %v", v)
	}
}

func TestUnreachable(t *testing.T) {
	c, err := New("passthrough:///nowhere", 200*time.Millisecond,
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, io.ErrClosedPipe
		}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.GenerateQuestions(context.Background(), assessment.RoleSDE, assessment.ExperienceStudent)
	code := apperrors.CodeOf(err)
	if code != apperrors.NetworkFailure && code != apperrors.Timeout {
		t.Errorf("code = %v, want NETWORK_FAILURE or TIMEOUT", code)
	}
}
