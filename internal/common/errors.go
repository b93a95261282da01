package common

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error kinds of the ingestion pipeline. Concrete errors match them with errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrValidation       = errors.New("validation failed")
	ErrExtraction       = errors.New("extraction failed")
	ErrRemoteRejection  = errors.New("remote service rejected request")
	ErrLocalIO          = errors.New("local file error")
	ErrInternal         = errors.New("internal error")
	ErrNotFound         = errors.New("resource not found")
	ErrConfig           = errors.New("invalid configuration")
	ErrServiceUnhealthy = errors.New("service unavailable")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// RemoteRejectionError is returned when staging, record creation or block
// appends come back with a non-success status.
type RemoteRejectionError struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteRejectionError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "…"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Op, e.StatusCode, body)
	}
	return fmt.Sprintf("%s %s: %s", e.Service, e.Op, body)
}

func (e *RemoteRejectionError) Is(target error) bool {
	return target == ErrRemoteRejection
}

// NewRemoteRejection builds a RemoteRejectionError.
func NewRemoteRejection(service, op string, statusCode int, body string) *RemoteRejectionError {
	return &RemoteRejectionError{Service: service, Op: op, StatusCode: statusCode, Body: body}
}

// LocalIOError marks failures reading or removing local temp files.
func LocalIOError(op, path string, cause error) error {
	return fmt.Errorf("%s %s: %w: %w", op, path, ErrLocalIO, cause)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func ResourceExhaustedError(message string) error {
	return status.Error(codes.ResourceExhausted, message)
}

func UnavailableError(message string) error {
	return status.Error(codes.Unavailable, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}
