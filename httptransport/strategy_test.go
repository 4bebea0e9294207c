package httptransport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/shopbricks/storeclient/logger"
)

var errConnReset = errors.New("read tcp 10.0.0.1:443: connection reset by peer")

type reply struct {
	raw *RawResponse
	err error
}

func replyStatus(status int) reply {
	return reply{raw: &RawResponse{StatusCode: status, Header: http.Header{}, Body: []byte(strconv.Itoa(status))}}
}

func replyRateLimited(retryAfter string) reply {
	h := http.Header{}
	if retryAfter != "" {
		h.Set(DefaultRetryAfterHeader, retryAfter)
	}
	return reply{raw: &RawResponse{StatusCode: http.StatusTooManyRequests, Header: h}}
}

func replyError(err error) reply {
	return reply{err: err}
}

// scriptedSender answers with replies in order and repeats the last one.
// It drains the request body the way a real client would.
type scriptedSender struct {
	mu      sync.Mutex
	replies []reply
	sends   int
	bodies  []string
}

func newScriptedSender(replies ...reply) *scriptedSender {
	return &scriptedSender{replies: replies}
}

func (s *scriptedSender) Send(_ context.Context, req *Request) (*RawResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sends++
	rc, err := req.Body().Open()
	if err != nil {
		return nil, err
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	s.bodies = append(s.bodies, string(data))

	idx := min(s.sends-1, len(s.replies)-1)
	r := s.replies[idx]
	return r.raw, r.err
}

func (s *scriptedSender) Sends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

// fakeSleeper records requested sleeps without blocking.
type fakeSleeper struct {
	mu     sync.Mutex
	slept  []time.Duration
	failAt int // 1-based sleep call that fails; 0 never fails
	err    error
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.slept)+1 == f.failAt {
		return f.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.slept = append(f.slept, d)
	return nil
}

func (f *fakeSleeper) Total() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total time.Duration
	for _, d := range f.slept {
		total += d
	}
	return total
}

// probe counts callback invocations.
type probe struct {
	mu       sync.Mutex
	attempts []int
	ticks    []WaitTick
}

func (p *probe) beforeAttempt(_ context.Context, attempt int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, attempt)
}

func (p *probe) onWaitTick(_ context.Context, tick WaitTick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = append(p.ticks, tick)
}

func newTestStrategy(t *testing.T, cfg RetryConfig, p *probe, sleeper Sleeper, opts ...StrategyOption) *SleepRetryStrategy {
	t.Helper()
	if p != nil {
		cfg.BeforeAttempt = p.beforeAttempt
		cfg.OnWaitTick = p.onWaitTick
	}
	opts = append([]StrategyOption{WithSleeper(sleeper)}, opts...)
	s, err := NewSleepRetryStrategy(cfg, opts...)
	require.NoError(t, err)
	return s
}

func encodedRequest(t *testing.T) *Request {
	t.Helper()
	req, err := NewRequest(http.MethodPost, testStoreURL, NewStringBody(`{"sku":"A1"}`, "application/json"))
	require.NoError(t, err)
	return req
}

func streamRequest(t *testing.T) *Request {
	t.Helper()
	req, err := NewRequest(http.MethodPost, testStoreURL, NewStreamBody(strings.NewReader("imagebytes"), "image/png"))
	require.NoError(t, err)
	return req
}

func TestClampedAdvisedWaitThenSuccess(t *testing.T) {
	sender := newScriptedSender(replyRateLimited("10"), replyRateLimited("10"), replyStatus(http.StatusOK))
	sleeper := &fakeSleeper{}
	p := &probe{}
	s := newTestStrategy(t, RetryConfig{
		DefaultInterval: 2 * time.Second,
		MaxInterval:     5 * time.Second,
		MaxAttempts:     3,
	}, p, sleeper)

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	success, ok := resp.(*Success)
	require.True(t, ok, "expected *Success, got %T", resp)
	assert.Equal(t, http.StatusOK, success.StatusCode)
	assert.True(t, success.IsOK())
	assert.Equal(t, 3, sender.Sends())
	assert.Equal(t, 10*time.Second, sleeper.Total(), "two clamped waits of 5s")
	assert.Len(t, p.ticks, 10)
	assert.Equal(t, []int{1, 2, 3}, p.attempts)
	assert.Equal(t, []string{`{"sku":"A1"}`, `{"sku":"A1"}`, `{"sku":"A1"}`}, sender.bodies, "encoded body is replayed intact")
}

func TestExhaustedAttemptsReturnRateLimited(t *testing.T) {
	sender := newScriptedSender(replyRateLimited(""))
	sleeper := &fakeSleeper{}
	p := &probe{}
	s := newTestStrategy(t, RetryConfig{
		DefaultInterval: time.Second,
		MaxInterval:     5 * time.Second,
		MaxAttempts:     2,
	}, p, sleeper)

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	rl, ok := resp.(*RateLimited)
	require.True(t, ok, "expected *RateLimited, got %T", resp)
	assert.Equal(t, http.StatusTooManyRequests, rl.StatusCode)
	assert.False(t, rl.HasRetryAfter)
	assert.Equal(t, 2, rl.Attempts)
	assert.Equal(t, 2, sender.Sends())
	assert.Equal(t, []time.Duration{time.Second}, sleeper.slept)
	require.Len(t, p.ticks, 1)
	assert.Equal(t, WaitTick{Attempt: 1, Second: 1, Elapsed: time.Second, Remaining: 0, Total: time.Second}, p.ticks[0])
}

func TestStreamTransportErrorSentOnce(t *testing.T) {
	sender := newScriptedSender(replyError(errConnReset))
	sleeper := &fakeSleeper{}
	p := &probe{}
	s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: time.Second, MaxAttempts: 5}, p, sleeper)

	resp := s.Execute(context.Background(), sender, streamRequest(t))

	te, ok := resp.(*TransportError)
	require.True(t, ok, "expected *TransportError, got %T", resp)
	assert.ErrorIs(t, te, errConnReset)
	assert.Equal(t, 1, sender.Sends())
	assert.Empty(t, sleeper.slept)
	assert.Empty(t, p.ticks)
	assert.Equal(t, []int{1}, p.attempts)
}

func TestStreamSentExactlyOnceRegardlessOfResponse(t *testing.T) {
	tests := []struct {
		name string
		r    reply
		kind ResponseKind
	}{
		{name: "ok", r: replyStatus(http.StatusCreated), kind: KindSuccess},
		{name: "rate_limited", r: replyRateLimited("1"), kind: KindRateLimited},
		{name: "server_error", r: replyStatus(http.StatusInternalServerError), kind: KindSuccess},
		{name: "io_error", r: replyError(errConnReset), kind: KindTransportError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newScriptedSender(tt.r, replyStatus(http.StatusOK))
			sleeper := &fakeSleeper{}
			s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: time.Second, MaxAttempts: 4}, nil, sleeper)

			resp := s.Execute(context.Background(), sender, streamRequest(t))

			assert.Equal(t, tt.kind, resp.Kind())
			assert.Equal(t, 1, sender.Sends())
			assert.Empty(t, sleeper.slept)
			assert.Equal(t, []string{"imagebytes"}, sender.bodies)
		})
	}
}

func TestStreamReusedAfterConsumptionIsTransportError(t *testing.T) {
	s := newTestStrategy(t, RetryConfig{MaxAttempts: 1}, nil, &fakeSleeper{})
	req := streamRequest(t)

	first := s.Execute(context.Background(), newScriptedSender(replyStatus(http.StatusOK)), req)
	require.Equal(t, KindSuccess, first.Kind())

	second := s.Execute(context.Background(), newScriptedSender(replyStatus(http.StatusOK)), req)
	te, ok := second.(*TransportError)
	require.True(t, ok, "expected *TransportError, got %T", second)
	assert.ErrorIs(t, te, ErrBodyConsumed)
}

func TestSendsNeverExceedMaxAttempts(t *testing.T) {
	for maxAttempts := 1; maxAttempts <= 6; maxAttempts++ {
		t.Run(strconv.Itoa(maxAttempts), func(t *testing.T) {
			sender := newScriptedSender(replyRateLimited("1"))
			p := &probe{}
			s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: time.Second, MaxAttempts: maxAttempts}, p, &fakeSleeper{})

			resp := s.Execute(context.Background(), sender, encodedRequest(t))

			assert.Equal(t, KindRateLimited, resp.Kind())
			assert.Equal(t, maxAttempts, sender.Sends())
			assert.Len(t, p.attempts, maxAttempts)
			assert.Len(t, p.ticks, maxAttempts-1)
		})
	}
}

func TestBeforeAttemptFiresOncePerSend(t *testing.T) {
	sender := newScriptedSender(replyRateLimited("0"), replyRateLimited("0"), replyRateLimited("0"), replyStatus(http.StatusOK))
	p := &probe{}
	s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: time.Second, MaxAttempts: 10}, p, &fakeSleeper{})

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	assert.Equal(t, KindSuccess, resp.Kind())
	assert.Equal(t, []int{1, 2, 3, 4}, p.attempts)
	assert.Equal(t, sender.Sends(), len(p.attempts))
}

func TestTransportErrorStopsLoop(t *testing.T) {
	sender := newScriptedSender(replyRateLimited("1"), replyRateLimited("1"), replyError(errConnReset), replyStatus(http.StatusOK))
	sleeper := &fakeSleeper{}
	s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: time.Second, MaxAttempts: 10}, nil, sleeper)

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	te, ok := resp.(*TransportError)
	require.True(t, ok, "expected *TransportError, got %T", resp)
	assert.ErrorIs(t, te, errConnReset)
	assert.Equal(t, 3, sender.Sends())
	assert.Len(t, sleeper.slept, 2)
}

func TestResponseWithSenderErrorIsNotTransportError(t *testing.T) {
	postErr := errors.New("response interceptor failed")
	limited := replyRateLimited("1")
	limited.err = postErr
	ok200 := replyStatus(http.StatusOK)
	ok200.err = postErr

	sender := newScriptedSender(limited, ok200)
	sleeper := &fakeSleeper{}
	s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: 5 * time.Second, MaxAttempts: 3}, nil, sleeper)

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	success, ok := resp.(*Success)
	require.True(t, ok, "expected *Success, got %T", resp)
	assert.Equal(t, http.StatusOK, success.StatusCode)
	assert.Equal(t, 2, sender.Sends())
	assert.Equal(t, time.Second, sleeper.Total())
}

func TestApplicationErrorsPassThrough(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			sender := newScriptedSender(replyStatus(status), replyStatus(http.StatusOK))
			sleeper := &fakeSleeper{}
			s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: time.Second, MaxAttempts: 3}, nil, sleeper)

			resp := s.Execute(context.Background(), sender, encodedRequest(t))

			success, ok := resp.(*Success)
			require.True(t, ok, "expected *Success, got %T", resp)
			assert.Equal(t, status, success.StatusCode)
			assert.False(t, success.IsOK())
			assert.Equal(t, []byte(strconv.Itoa(status)), success.Body)
			assert.Equal(t, 1, sender.Sends())
			assert.Empty(t, sleeper.slept)
		})
	}
}

func TestMalformedRetryAfterFallsBackToDefault(t *testing.T) {
	for _, value := range []string{"soon", "-3", "2.5", "Wed, 21 Oct 2015 07:28:00 GMT"} {
		t.Run(value, func(t *testing.T) {
			sender := newScriptedSender(replyRateLimited(value), replyStatus(http.StatusOK))
			sleeper := &fakeSleeper{}
			s := newTestStrategy(t, RetryConfig{DefaultInterval: 3 * time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 2}, nil, sleeper)

			resp := s.Execute(context.Background(), sender, encodedRequest(t))

			assert.Equal(t, KindSuccess, resp.Kind())
			assert.Equal(t, 3*time.Second, sleeper.Total())
		})
	}
}

func TestWaitTicksPerElapsedSecond(t *testing.T) {
	tests := []struct {
		name      string
		def       time.Duration
		wantTicks int
		wantSleep []time.Duration
	}{
		{name: "zero", def: 0, wantTicks: 0, wantSleep: nil},
		{name: "sub_second", def: 400 * time.Millisecond, wantTicks: 0, wantSleep: []time.Duration{400 * time.Millisecond}},
		{name: "whole", def: 3 * time.Second, wantTicks: 3, wantSleep: []time.Duration{time.Second, time.Second, time.Second}},
		{name: "fractional", def: 2500 * time.Millisecond, wantTicks: 2, wantSleep: []time.Duration{time.Second, time.Second, 500 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newScriptedSender(replyRateLimited(""), replyStatus(http.StatusOK))
			sleeper := &fakeSleeper{}
			p := &probe{}
			s := newTestStrategy(t, RetryConfig{DefaultInterval: tt.def, MaxInterval: time.Minute, MaxAttempts: 2}, p, sleeper)

			resp := s.Execute(context.Background(), sender, encodedRequest(t))

			assert.Equal(t, KindSuccess, resp.Kind())
			assert.Len(t, p.ticks, tt.wantTicks)
			assert.Equal(t, tt.wantSleep, sleeper.slept)
			assert.LessOrEqual(t, time.Duration(len(p.ticks))*time.Second, tt.def)
			for i, tick := range p.ticks {
				assert.Equal(t, i+1, tick.Second)
				assert.Equal(t, tt.def, tick.Total)
				assert.Equal(t, tt.def-tick.Elapsed, tick.Remaining)
			}
		})
	}
}

func TestAdvisedZeroRetriesImmediately(t *testing.T) {
	sender := newScriptedSender(replyRateLimited("0"), replyStatus(http.StatusOK))
	sleeper := &fakeSleeper{}
	p := &probe{}
	s := newTestStrategy(t, RetryConfig{DefaultInterval: 5 * time.Second, MaxInterval: time.Minute, MaxAttempts: 2}, p, sleeper)

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	assert.Equal(t, KindSuccess, resp.Kind())
	assert.Empty(t, sleeper.slept)
	assert.Empty(t, p.ticks)
}

func TestCancelledWaitReturnsLastRateLimited(t *testing.T) {
	sender := newScriptedSender(replyRateLimited("4"), replyStatus(http.StatusOK))
	sleeper := &fakeSleeper{failAt: 2, err: context.Canceled}
	p := &probe{}
	s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: time.Minute, MaxAttempts: 3}, p, sleeper)

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	rl, ok := resp.(*RateLimited)
	require.True(t, ok, "expected *RateLimited, got %T", resp)
	assert.True(t, rl.HasRetryAfter)
	assert.Equal(t, 4*time.Second, rl.RetryAfter)
	assert.Equal(t, 1, sender.Sends())
	assert.Len(t, p.ticks, 1)
}

func TestCancelFromWaitTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	sender := newScriptedSender(replyRateLimited("30"), replyStatus(http.StatusOK))
	s, err := NewSleepRetryStrategy(RetryConfig{
		DefaultInterval: time.Second,
		MaxInterval:     time.Minute,
		MaxAttempts:     3,
		OnWaitTick: func(_ context.Context, tick WaitTick) {
			ticks.Add(1)
			if tick.Second == 2 {
				cancel()
			}
		},
	}, WithSleeper(&fakeSleeper{}))
	require.NoError(t, err)

	resp := s.Execute(ctx, sender, encodedRequest(t))

	assert.Equal(t, KindRateLimited, resp.Kind())
	assert.Equal(t, int32(2), ticks.Load())
	assert.Equal(t, 1, sender.Sends())
}

func TestTimerSleeperWaitsAndHonorsContext(t *testing.T) {
	sender := newScriptedSender(replyRateLimited(""), replyStatus(http.StatusOK))
	s, err := NewSleepRetryStrategy(RetryConfig{
		DefaultInterval: 20 * time.Millisecond,
		MaxInterval:     time.Second,
		MaxAttempts:     2,
	})
	require.NoError(t, err)

	start := time.Now()
	resp := s.Execute(context.Background(), sender, encodedRequest(t))
	assert.Equal(t, KindSuccess, resp.Kind())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = timerSleeper{}.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCustomHeaderAndStatus(t *testing.T) {
	h := http.Header{}
	h.Set("X-Ratelimit-Retry", "2")
	sender := newScriptedSender(
		reply{raw: &RawResponse{StatusCode: http.StatusServiceUnavailable, Header: h}},
		replyStatus(http.StatusOK),
	)
	sleeper := &fakeSleeper{}
	s := newTestStrategy(t, RetryConfig{DefaultInterval: 9 * time.Second, MaxInterval: time.Minute, MaxAttempts: 2}, nil, sleeper,
		WithRetryAfterHeader("X-Ratelimit-Retry"),
		WithRateLimitStatus(http.StatusServiceUnavailable),
	)

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	assert.Equal(t, KindSuccess, resp.Kind())
	assert.Equal(t, 2*time.Second, sleeper.Total())
}

func TestDefaultStatusNotRateLimitedWhenOverridden(t *testing.T) {
	sender := newScriptedSender(replyRateLimited("1"))
	s := newTestStrategy(t, RetryConfig{MaxAttempts: 3}, nil, &fakeSleeper{}, WithRateLimitStatus(http.StatusServiceUnavailable))

	resp := s.Execute(context.Background(), sender, encodedRequest(t))

	success, ok := resp.(*Success)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, success.StatusCode)
	assert.Equal(t, 1, sender.Sends())
}

func TestNewSleepRetryStrategyValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  RetryConfig
	}{
		{name: "zero_attempts", cfg: RetryConfig{MaxAttempts: 0}},
		{name: "negative_default", cfg: RetryConfig{MaxAttempts: 1, DefaultInterval: -time.Second}},
		{name: "negative_max", cfg: RetryConfig{MaxAttempts: 1, MaxInterval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSleepRetryStrategy(tt.cfg)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNilCallbacksAreNoOps(t *testing.T) {
	sender := newScriptedSender(replyRateLimited("2"), replyStatus(http.StatusOK))
	s, err := NewSleepRetryStrategy(RetryConfig{MaxAttempts: 2, MaxInterval: time.Minute}, WithSleeper(&fakeSleeper{}))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.Equal(t, KindSuccess, s.Execute(context.Background(), sender, encodedRequest(t)).Kind())
	})
}

func TestExecuteNilArguments(t *testing.T) {
	s := newTestStrategy(t, RetryConfig{MaxAttempts: 1}, nil, &fakeSleeper{})

	resp := s.Execute(context.Background(), nil, encodedRequest(t))
	assert.Equal(t, KindTransportError, resp.Kind())
	assert.ErrorIs(t, resp.(*TransportError), ErrInvalidRequest)

	resp = s.Execute(context.Background(), newScriptedSender(replyStatus(http.StatusOK)), nil)
	assert.Equal(t, KindTransportError, resp.Kind())
}

func TestConcurrentCallsDoNotShareState(t *testing.T) {
	p := &probe{}
	s := newTestStrategy(t, RetryConfig{DefaultInterval: time.Second, MaxInterval: time.Second, MaxAttempts: 3}, p, &fakeSleeper{})

	const callers = 16
	senders := make([]*scriptedSender, callers)
	var g errgroup.Group
	for i := range senders {
		senders[i] = newScriptedSender(replyRateLimited("1"), replyStatus(http.StatusOK))
		sender := senders[i]
		req := encodedRequest(t)
		g.Go(func() error {
			resp := s.Execute(context.Background(), sender, req)
			if resp.Kind() != KindSuccess {
				return errors.New("unexpected " + resp.Kind().String())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, sender := range senders {
		assert.Equal(t, 2, sender.Sends())
	}
	assert.Len(t, p.attempts, 2*callers)
	assert.Len(t, p.ticks, callers)
}

func TestStrategyLogsRateLimitWaits(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "debug")
	sender := newScriptedSender(replyRateLimited("1"))
	s := newTestStrategy(t, RetryConfig{MaxInterval: time.Second, MaxAttempts: 2}, nil, &fakeSleeper{}, WithLogger(log))

	s.Execute(context.Background(), sender, encodedRequest(t))

	out := buf.String()
	assert.Contains(t, out, "Rate limited, waiting before retry")
	assert.Contains(t, out, "Rate limit retries exhausted")
	assert.Contains(t, out, `"component":"httptransport"`)
	assert.Contains(t, out, `"attempt":2`)
}
