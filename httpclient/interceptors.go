package httpclient

import (
	"context"
	"net/http"

	"github.com/shopbricks/storeclient/trace"
)

// NewTraceIDInterceptor sets X-Request-ID from the context when the request
// does not carry one yet.
func NewTraceIDInterceptor() RequestInterceptor {
	return NewTraceIDInterceptorFor(trace.HeaderXRequestID)
}

// NewTraceIDInterceptorFor is NewTraceIDInterceptor with a custom header name.
// A request ID is generated when the context has none.
func NewTraceIDInterceptorFor(header string) RequestInterceptor {
	if header == "" {
		header = trace.HeaderXRequestID
	}
	return func(ctx context.Context, req *http.Request) error {
		if req.Header.Get(header) == "" {
			_, id := trace.EnsureRequestID(ctx)
			req.Header.Set(header, id)
		}
		return nil
	}
}

// NewStaticHeaderInterceptor sets key to value on every request, replacing
// any value set earlier.
func NewStaticHeaderInterceptor(key, value string) RequestInterceptor {
	return func(_ context.Context, req *http.Request) error {
		req.Header.Set(key, value)
		return nil
	}
}
