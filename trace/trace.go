// Package trace carries request identifiers through a context so every
// attempt of a logical API call can be correlated on both sides of the wire.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	traceParentKey contextKey = "traceparent"

	// HeaderXRequestID is the default header carrying the request ID.
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name.
	HeaderTraceParent = "traceparent"
)

// WithRequestID stores id in ctx. All attempts of one logical call share it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns ctx unchanged when it already carries a request ID,
// otherwise a child context holding a fresh UUID.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id, ok := RequestIDFromContext(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// WithTraceParent stores a W3C traceparent value in ctx. Invalid values are ignored.
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	if !ValidTraceParent(traceParent) {
		return ctx
	}
	return context.WithValue(ctx, traceParentKey, strings.ToLower(traceParent))
}

// TraceParentFromContext returns the traceparent stored in ctx, if any.
func TraceParentFromContext(ctx context.Context) (string, bool) {
	if tp, ok := ctx.Value(traceParentKey).(string); ok && tp != "" {
		return tp, true
	}
	return "", false
}

// Inject writes the request ID and traceparent from ctx into h. Values already
// present in h win. idHeader defaults to HeaderXRequestID. A traceparent is
// generated when ctx has none.
func Inject(ctx context.Context, h http.Header, idHeader string) {
	if idHeader == "" {
		idHeader = HeaderXRequestID
	}
	if h.Get(idHeader) == "" {
		if id, ok := RequestIDFromContext(ctx); ok {
			h.Set(idHeader, id)
		}
	}
	if h.Get(HeaderTraceParent) == "" {
		tp, ok := TraceParentFromContext(ctx)
		if !ok {
			tp = GenerateTraceParent()
		}
		h.Set(HeaderTraceParent, tp)
	}
}

// GenerateTraceParent creates a sampled W3C traceparent with random IDs,
// e.g. "00-<32 hex>-<16 hex>-01".
func GenerateTraceParent() string {
	traceID := make([]byte, 16)
	spanID := make([]byte, 8)
	_, _ = crand.Read(traceID)
	_, _ = crand.Read(spanID)
	if allZero(traceID) {
		traceID[len(traceID)-1] = 0x01
	}
	if allZero(spanID) {
		spanID[len(spanID)-1] = 0x01
	}
	return "00-" + hex.EncodeToString(traceID) + "-" + hex.EncodeToString(spanID) + "-01"
}

// ValidTraceParent reports whether v is a well-formed version 00 traceparent
// with non-zero trace and span IDs.
func ValidTraceParent(v string) bool {
	parts := strings.Split(strings.ToLower(v), "-")
	if len(parts) != 4 || parts[0] != "00" {
		return false
	}
	if len(parts[1]) != 32 || len(parts[2]) != 16 || len(parts[3]) != 2 {
		return false
	}
	for _, p := range parts[1:] {
		b, err := hex.DecodeString(p)
		if err != nil {
			return false
		}
		if len(b) > 1 && allZero(b) {
			return false
		}
	}
	return true
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
