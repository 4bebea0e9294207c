package httptransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shopbricks/storeclient/logger"
)

// ErrInvalidConfig is wrapped by every RetryConfig validation failure.
var ErrInvalidConfig = errors.New("httptransport: invalid retry config")

const (
	// DefaultRetryAfterHeader carries the advised wait in whole seconds.
	DefaultRetryAfterHeader = "Retry-After"
	// DefaultRateLimitStatus is the status code treated as a rate-limit signal.
	DefaultRateLimitStatus = http.StatusTooManyRequests
)

// WaitTick describes one elapsed second of a wait between attempts.
type WaitTick struct {
	// Attempt is the 1-based number of the attempt that was rate limited.
	Attempt int
	// Second counts elapsed seconds within this wait, starting at 1.
	Second    int
	Elapsed   time.Duration
	Remaining time.Duration
	Total     time.Duration
}

// WaitTickFunc is called once per elapsed second of waiting.
// Cancel ctx to stop waiting early.
type WaitTickFunc func(ctx context.Context, tick WaitTick)

// BeforeAttemptFunc is called immediately before every send, including the first.
type BeforeAttemptFunc func(ctx context.Context, attempt int)

// RetryConfig configures a SleepRetryStrategy.
type RetryConfig struct {
	// DefaultInterval is used when the server gives no usable advice.
	DefaultInterval time.Duration `validate:"gte=0s"`
	// MaxInterval clamps every wait, advised or default.
	MaxInterval time.Duration `validate:"gte=0s"`
	// MaxAttempts caps the number of sends, counting the first.
	MaxAttempts int `validate:"gte=1"`

	OnWaitTick    WaitTickFunc      `validate:"-"`
	BeforeAttempt BeforeAttemptFunc `validate:"-"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the numeric bounds of the configuration.
func (c RetryConfig) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StrategyOption customizes a SleepRetryStrategy.
type StrategyOption func(*executor)

// WithLogger sets the logger used for attempt and wait events.
func WithLogger(l logger.Logger) StrategyOption {
	return func(e *executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRetryAfterHeader changes the header that carries the advised wait.
func WithRetryAfterHeader(name string) StrategyOption {
	return func(e *executor) {
		if name = strings.TrimSpace(name); name != "" {
			e.retryAfterHeader = name
		}
	}
}

// WithRateLimitStatus changes the status code treated as a rate-limit signal.
func WithRateLimitStatus(code int) StrategyOption {
	return func(e *executor) {
		if code >= 100 && code <= 599 {
			e.rateLimitStatus = code
		}
	}
}

// WithSleeper replaces the timer-based sleeper.
func WithSleeper(s Sleeper) StrategyOption {
	return func(e *executor) {
		if s != nil {
			e.sleeper = s
		}
	}
}

// SleepRetryStrategy waits out rate-limit responses and re-sends the request.
// Requests with a stream body are sent once and never retried.
// It is immutable after construction and safe for concurrent use.
type SleepRetryStrategy struct {
	exec *executor
}

var _ RetryStrategy = (*SleepRetryStrategy)(nil)

// NewSleepRetryStrategy validates cfg and builds a strategy. Nil callbacks are no-ops.
func NewSleepRetryStrategy(cfg RetryConfig, opts ...StrategyOption) (*SleepRetryStrategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OnWaitTick == nil {
		cfg.OnWaitTick = func(context.Context, WaitTick) {}
	}
	if cfg.BeforeAttempt == nil {
		cfg.BeforeAttempt = func(context.Context, int) {}
	}

	e := &executor{
		cfg:              cfg,
		retryAfterHeader: DefaultRetryAfterHeader,
		rateLimitStatus:  DefaultRateLimitStatus,
		sleeper:          timerSleeper{},
		log:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithFields(map[string]any{"component": "httptransport"})
	return &SleepRetryStrategy{exec: e}, nil
}

// Execute performs one logical call. It never returns nil.
func (s *SleepRetryStrategy) Execute(ctx context.Context, sender Sender, req *Request) Response {
	if sender == nil {
		return &TransportError{Err: fmt.Errorf("%w: nil sender", ErrInvalidRequest)}
	}
	if req == nil {
		return &TransportError{Err: fmt.Errorf("%w: nil request", ErrInvalidRequest)}
	}
	if !req.Retryable() {
		return s.exec.once(ctx, sender, req)
	}
	return s.exec.run(ctx, sender, req)
}
