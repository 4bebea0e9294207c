package httptransport

import (
	"fmt"
	"net/http"
	"time"
)

// ResponseKind identifies a Response variant.
type ResponseKind int

const (
	KindSuccess ResponseKind = iota
	KindRateLimited
	KindTransportError
)

func (k ResponseKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("ResponseKind(%d)", int(k))
	}
}

// Response is the terminal outcome of one logical call. The set of
// implementations is closed: *Success, *RateLimited and *TransportError.
// Callers switch on the concrete type (or Kind) before decoding.
type Response interface {
	Kind() ResponseKind
	isResponse()
}

// Success is any response that was not rate limited, including 4xx and 5xx
// application errors. Use IsOK to tell 2xx apart.
type Success struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (*Success) Kind() ResponseKind { return KindSuccess }
func (*Success) isResponse()        {}

// IsOK reports whether the status code is 2xx.
func (s *Success) IsOK() bool {
	return s.StatusCode >= http.StatusOK && s.StatusCode < http.StatusMultipleChoices
}

// RateLimited is returned when the server still refused the call after the
// last permitted attempt, or when a single-shot stream upload was refused.
type RateLimited struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// RetryAfter is the server-advised interval; valid only if HasRetryAfter.
	RetryAfter    time.Duration
	HasRetryAfter bool
	// Attempts is the number of sends made for this logical call.
	Attempts int
}

func (*RateLimited) Kind() ResponseKind { return KindRateLimited }
func (*RateLimited) isResponse()        {}

// TransportError means no response was obtained.
type TransportError struct {
	Err error
}

func (*TransportError) Kind() ResponseKind { return KindTransportError }
func (*TransportError) isResponse()        {}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "transport error"
	}
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
