package httptransport

import (
	"context"
	"time"

	"github.com/shopbricks/storeclient/httptransport/internal/tracking"
	"github.com/shopbricks/storeclient/logger"
)

// executor owns the attempt/wait loop. It holds only immutable configuration;
// all per-call state lives in retryState.
type executor struct {
	cfg              RetryConfig
	retryAfterHeader string
	rateLimitStatus  int
	sleeper          Sleeper
	log              logger.Logger
}

// retryState belongs to a single logical call and never leaves it.
type retryState struct {
	attempts int
	waited   time.Duration
	started  time.Time
}

// once sends a non-replayable request a single time.
func (e *executor) once(ctx context.Context, sender Sender, req *Request) Response {
	st := &retryState{started: time.Now()}
	ctx, call := tracking.StartCall(ctx, req.Method(), req.URL().Host, req.Body().Kind().String())

	resp := e.attempt(ctx, sender, req, st)
	if rl, ok := resp.(*RateLimited); ok {
		e.log.Warn().
			Str("method", req.Method()).
			Str("url", req.URL().Redacted()).
			Int("status", rl.StatusCode).
			Msg("Rate limited on stream upload, not retrying")
	}
	e.finish(ctx, call, req, st, resp)
	return resp
}

// run loops until a non-rate-limited outcome, a transport error, or the
// attempt cap.
func (e *executor) run(ctx context.Context, sender Sender, req *Request) Response {
	st := &retryState{started: time.Now()}
	ctx, call := tracking.StartCall(ctx, req.Method(), req.URL().Host, req.Body().Kind().String())

	for {
		resp := e.attempt(ctx, sender, req, st)
		rl, ok := resp.(*RateLimited)
		if !ok {
			e.finish(ctx, call, req, st, resp)
			return resp
		}

		wait := computeWait(rl.RetryAfter, rl.HasRetryAfter, e.cfg.DefaultInterval, e.cfg.MaxInterval)
		if st.attempts >= e.cfg.MaxAttempts {
			e.log.Warn().
				Str("method", req.Method()).
				Str("url", req.URL().Redacted()).
				Int("attempts", st.attempts).
				Dur("waited", st.waited).
				Msg("Rate limit retries exhausted")
			e.finish(ctx, call, req, st, resp)
			return resp
		}

		e.log.Warn().
			Str("method", req.Method()).
			Str("url", req.URL().Redacted()).
			Int("attempt", st.attempts).
			Int("max_attempts", e.cfg.MaxAttempts).
			Dur("wait", wait).
			Msg("Rate limited, waiting before retry")
		call.Waiting(st.attempts, wait.Seconds())

		if err := e.wait(ctx, st, wait); err != nil {
			e.log.Warn().
				Err(err).
				Str("method", req.Method()).
				Int("attempts", st.attempts).
				Msg("Wait interrupted, returning last rate-limited response")
			e.finish(ctx, call, req, st, resp)
			return resp
		}
	}
}

// attempt performs one send and classifies the outcome.
func (e *executor) attempt(ctx context.Context, sender Sender, req *Request, st *retryState) Response {
	st.attempts++
	e.cfg.BeforeAttempt(ctx, st.attempts)

	e.log.Debug().
		Str("method", req.Method()).
		Str("url", req.URL().Redacted()).
		Int("attempt", st.attempts).
		Msg("Sending request")

	raw, err := sender.Send(ctx, req)
	if err != nil && raw == nil {
		tracking.RecordAttempt(ctx, req.Method(), tracking.OutcomeTransportError, 0)
		e.log.Error().
			Err(err).
			Str("method", req.Method()).
			Str("url", req.URL().Redacted()).
			Int("attempt", st.attempts).
			Msg("Transport failure")
		return &TransportError{Err: err}
	}
	if err != nil {
		e.log.Warn().
			Err(err).
			Str("method", req.Method()).
			Int("status", raw.StatusCode).
			Int("attempt", st.attempts).
			Msg("Response received with sender error")
	}
	if raw == nil {
		raw = &RawResponse{}
	}

	if raw.StatusCode == e.rateLimitStatus {
		tracking.RecordAttempt(ctx, req.Method(), tracking.OutcomeRateLimited, raw.StatusCode)
		advised, ok := parseRetryAfter(raw.Header, e.retryAfterHeader)
		return &RateLimited{
			StatusCode:    raw.StatusCode,
			Header:        raw.Header,
			Body:          raw.Body,
			RetryAfter:    advised,
			HasRetryAfter: ok,
			Attempts:      st.attempts,
		}
	}

	tracking.RecordAttempt(ctx, req.Method(), tracking.OutcomeSuccess, raw.StatusCode)
	return &Success{StatusCode: raw.StatusCode, Header: raw.Header, Body: raw.Body}
}

// wait sleeps for total in one-second slices, ticking after each full second.
// A sub-second remainder is slept without a tick.
func (e *executor) wait(ctx context.Context, st *retryState, total time.Duration) error {
	var elapsed time.Duration
	defer func() {
		st.waited += elapsed
	}()

	for second := 1; total-elapsed >= time.Second; second++ {
		if err := e.sleeper.Sleep(ctx, time.Second); err != nil {
			return err
		}
		elapsed += time.Second
		e.cfg.OnWaitTick(ctx, WaitTick{
			Attempt:   st.attempts,
			Second:    second,
			Elapsed:   elapsed,
			Remaining: total - elapsed,
			Total:     total,
		})
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if rest := total - elapsed; rest > 0 {
		if err := e.sleeper.Sleep(ctx, rest); err != nil {
			return err
		}
		elapsed += rest
	}
	return nil
}

func (e *executor) finish(ctx context.Context, call *tracking.Call, req *Request, st *retryState, resp Response) {
	var (
		outcome string
		status  int
		err     error
	)
	switch r := resp.(type) {
	case *Success:
		outcome, status = tracking.OutcomeSuccess, r.StatusCode
	case *RateLimited:
		outcome, status = tracking.OutcomeRateLimited, r.StatusCode
	case *TransportError:
		outcome, err = tracking.OutcomeTransportError, r.Err
	}
	if st.waited > 0 {
		tracking.RecordWait(ctx, req.Method(), st.waited)
	}
	tracking.RecordCall(ctx, req.Method(), outcome, time.Since(st.started))
	call.End(outcome, st.attempts, status, err)
}
