// Package errors provides the assessment error taxonomy shared by the orchestrator,
// the collaborator transports and the HTTP/WebSocket shell.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the errdetails.ErrorInfo domain attached to gRPC statuses.
const Domain = "preppulse"

// Code identifies a class of failure.
type Code string

const (
	Unknown               Code = "UNKNOWN"
	Internal              Code = "INTERNAL"
	InvalidArgument       Code = "INVALID_ARGUMENT"
	NotFound              Code = "NOT_FOUND"
	Timeout               Code = "TIMEOUT"
	Cancelled             Code = "CANCELLED"
	CapabilityUnavailable Code = "CAPABILITY_UNAVAILABLE"
	NetworkFailure        Code = "NETWORK_FAILURE"
	MalformedResponse     Code = "MALFORMED_RESPONSE"
	InvalidTransition     Code = "INVALID_TRANSITION"
	RequestInFlight       Code = "REQUEST_IN_FLIGHT"
)

var grpcCodeMap = map[Code]codes.Code{
	Unknown:               codes.Unknown,
	Internal:              codes.Internal,
	InvalidArgument:       codes.InvalidArgument,
	NotFound:              codes.NotFound,
	Timeout:               codes.DeadlineExceeded,
	Cancelled:             codes.Canceled,
	CapabilityUnavailable: codes.FailedPrecondition,
	NetworkFailure:        codes.Unavailable,
	MalformedResponse:     codes.DataLoss,
	InvalidTransition:     codes.FailedPrecondition,
	RequestInFlight:       codes.Aborted,
}

var httpStatusMap = map[Code]int{
	Unknown:               http.StatusInternalServerError,
	Internal:              http.StatusInternalServerError,
	InvalidArgument:       http.StatusBadRequest,
	NotFound:              http.StatusNotFound,
	Timeout:               http.StatusGatewayTimeout,
	Cancelled:             499,
	CapabilityUnavailable: http.StatusPreconditionFailed,
	NetworkFailure:        http.StatusBadGateway,
	MalformedResponse:     http.StatusBadGateway,
	InvalidTransition:     http.StatusConflict,
	RequestInFlight:       http.StatusConflict,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError by code, so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Message == "" && t.Code == e.Code
}

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// HTTPStatus returns the status code the shell answers with.
func (e *AppError) HTTPStatus() int {
	if c, ok := httpStatusMap[e.Code]; ok {
		return c
	}
	return http.StatusInternalServerError
}

// GRPCStatus returns a gRPC status with an ErrorInfo detail carrying the code.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Message)
	info := &errdetails.ErrorInfo{Reason: string(e.Code), Domain: Domain, Metadata: e.Metadata}
	if withDetail, err := st.WithDetails(info); err == nil {
		return withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Sentinel returns a code-only value usable as an errors.Is target.
func Sentinel(code Code) *AppError { return &AppError{Code: code} }

// As extracts the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, classifying context and gRPC errors that were never wrapped.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return Timeout
	case stderrors.Is(err, context.Canceled):
		return Cancelled
	}
	if _, ok := status.FromError(err); ok {
		return FromGRPCError(err).Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// FromGRPCError converts a gRPC error into an AppError. An ErrorInfo detail from our
// domain wins; otherwise the gRPC code is mapped. Transport-level codes land in
// NetworkFailure since any collaborator call failure is one.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: NetworkFailure, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return &AppError{Code: Code(info.GetReason()), Message: st.Message(), Metadata: info.GetMetadata(), Cause: err}
		}
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.DataLoss:
		return MalformedResponse
	case codes.FailedPrecondition:
		return InvalidTransition
	default:
		return NetworkFailure
	}
}

// IsRetryable reports whether a collaborator failure is worth another attempt.
// Malformed payloads are retried too: an LLM-backed generator often succeeds on
// the next call.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case NetworkFailure, Timeout, MalformedResponse:
		return true
	default:
		return false
	}
}
