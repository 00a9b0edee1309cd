package grpcclient

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/prep-pulse/internal/errors"
)

var transcribeDesc = &grpc.StreamDesc{
	StreamName:    "StreamTranscribe",
	ServerStreams: true,
	ClientStreams: true,
}

// TranscribeStream is an open transcription session: PCM chunks go up and
// cumulative transcripts come back.
type TranscribeStream struct {
	stream grpc.ClientStream
}

// Transcribe opens a transcription stream. Cancelling ctx tears it down.
func (c *Client) Transcribe(ctx context.Context, sampleRate int) (*TranscribeStream, error) {
	stream, err := c.conn.NewStream(sampleRateMD(ctx, sampleRate), transcribeDesc, MethodStreamTranscribe)
	if err != nil {
		return nil, apperrors.FromGRPCError(err)
	}
	return &TranscribeStream{stream: stream}, nil
}

// Send uploads one chunk of 16-bit little-endian PCM.
func (s *TranscribeStream) Send(pcm []byte) error {
	if err := s.stream.SendMsg(wrapperspb.Bytes(pcm)); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return apperrors.FromGRPCError(err)
	}
	return nil
}

// Recv blocks for the next cumulative transcript. io.EOF means the server
// finished the stream.
func (s *TranscribeStream) Recv() (string, error) {
	out := new(wrapperspb.StringValue)
	if err := s.stream.RecvMsg(out); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", apperrors.FromGRPCError(err)
	}
	return out.GetValue(), nil
}

// CloseSend tells the server no more audio is coming.
func (s *TranscribeStream) CloseSend() error {
	return s.stream.CloseSend()
}
