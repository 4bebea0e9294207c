package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorType classifies a ClientError.
type ErrorType string

const (
	NetworkError     ErrorType = "network"
	TimeoutError     ErrorType = "timeout"
	HTTPError        ErrorType = "http"
	ValidationError  ErrorType = "validation"
	InterceptorError ErrorType = "interceptor"
)

// ClientError is implemented by every error this package returns.
type ClientError interface {
	error
	Type() ErrorType
}

type networkError struct {
	message string
	err     error
}

// NewNetworkError reports a failure to obtain a response.
func NewNetworkError(message string, err error) ClientError {
	return &networkError{message: message, err: err}
}

func (e *networkError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.err)
	}
	return "network error: " + e.message
}

func (e *networkError) Type() ErrorType { return NetworkError }
func (e *networkError) Unwrap() error   { return e.err }

type timeoutError struct {
	message string
	timeout time.Duration
	err     error
}

// NewTimeoutError reports that a request exceeded timeout.
func NewTimeoutError(message string, timeout time.Duration) ClientError {
	return &timeoutError{message: message, timeout: timeout}
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout %s)", e.message, e.timeout)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }
func (e *timeoutError) Unwrap() error   { return e.err }

// Timeout returns the client timeout in force when the error occurred.
func (e *timeoutError) Timeout() time.Duration { return e.timeout }

type httpError struct {
	message    string
	statusCode int
	body       []byte
}

// NewHTTPError reports a response whose status the caller treats as a failure.
func NewHTTPError(message string, statusCode int, body []byte) ClientError {
	return &httpError{message: message, statusCode: statusCode, body: body}
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: %s (status %d)", e.message, e.statusCode)
}

func (e *httpError) Type() ErrorType { return HTTPError }
func (e *httpError) StatusCode() int { return e.statusCode }
func (e *httpError) Body() []byte    { return e.body }

type validationError struct {
	message string
	field   string
}

// NewValidationError reports an unusable request or configuration value.
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field %s)", e.message, e.field)
	}
	return "validation error: " + e.message
}

func (e *validationError) Type() ErrorType { return ValidationError }

type interceptorError struct {
	message string
	stage   string
	err     error
}

// NewInterceptorError reports a failing request or response interceptor.
func NewInterceptorError(message, stage string, err error) ClientError {
	return &interceptorError{message: message, stage: stage, err: err}
}

func (e *interceptorError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("interceptor error: %s (stage %s): %v", e.message, e.stage, e.err)
	}
	return fmt.Sprintf("interceptor error: %s (stage %s)", e.message, e.stage)
}

func (e *interceptorError) Type() ErrorType { return InterceptorError }
func (e *interceptorError) Unwrap() error   { return e.err }

// IsErrorType reports whether err, or an error it wraps, is a ClientError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var ce ClientError
	return errors.As(err, &ce) && ce.Type() == t
}

// IsHTTPStatusError reports whether err is an HTTP error with the given status.
func IsHTTPStatusError(err error, statusCode int) bool {
	var he *httpError
	return errors.As(err, &he) && he.statusCode == statusCode
}

// IsSuccessStatus reports whether statusCode is 2xx.
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

// classifyError maps a round-trip failure to a timeout or network error.
func classifyError(message string, err error, timeout time.Duration) ClientError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &timeoutError{message: message, timeout: timeout, err: err}
	}
	return &networkError{message: message, err: err}
}
