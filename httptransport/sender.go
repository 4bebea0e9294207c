package httptransport

import (
	"context"
	"net/http"
)

// RawResponse is what a Sender observed on the wire for one round trip.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sender performs exactly one blocking network round trip. HTTP error
// statuses are returned as a RawResponse. A nil RawResponse with an error
// means no response was obtained. A response may come with an error when
// post-processing it failed; the response then takes precedence.
// Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, req *Request) (*RawResponse, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, req *Request) (*RawResponse, error)

func (f SenderFunc) Send(ctx context.Context, req *Request) (*RawResponse, error) {
	return f(ctx, req)
}

// RetryStrategy performs one logical call through a Sender.
//
// Implementations send a stream body at most once, return the outcome of the
// last attempt, and report I/O failures as *TransportError instead of
// dropping them.
type RetryStrategy interface {
	Execute(ctx context.Context, sender Sender, req *Request) Response
}
