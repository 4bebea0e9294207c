package tracking

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName   = "storeclient/httptransport"
	spanExecute  = "httptransport.Execute"
	attrAttempts = "storeclient.attempts"
	attrURLHost  = "server.address"
	attrBodyKind = "storeclient.body.kind"
	eventWaiting = "rate_limit.wait"
	attrWaitSecs = "storeclient.wait.seconds"
)

// Call wraps the span of one logical call.
type Call struct {
	span trace.Span
}

// StartCall starts the span for one logical call. The tracer is looked up
// from the global provider on every call so tests can swap providers.
func StartCall(ctx context.Context, method, host, bodyKind string) (context.Context, *Call) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, spanExecute,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrMethod, method),
			attribute.String(attrURLHost, host),
			attribute.String(attrBodyKind, bodyKind),
		),
	)
	return ctx, &Call{span: span}
}

// Waiting adds a wait event to the call span.
func (c *Call) Waiting(attempt int, seconds float64) {
	c.span.AddEvent(eventWaiting, trace.WithAttributes(
		attribute.Int(attrAttempts, attempt),
		attribute.Float64(attrWaitSecs, seconds),
	))
}

// End closes the span with the terminal outcome. err is set for transport errors.
func (c *Call) End(outcome string, attempts, status int, err error) {
	c.span.SetAttributes(
		attribute.String(attrOutcome, outcome),
		attribute.Int(attrAttempts, attempts),
	)
	if status > 0 {
		c.span.SetAttributes(attribute.Int(attrStatus, status))
	}
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	} else if outcome == OutcomeRateLimited {
		c.span.SetStatus(codes.Error, "rate limit retries exhausted")
	}
	c.span.End()
}
