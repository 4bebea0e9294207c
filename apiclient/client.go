// Package apiclient assembles the storefront API client from configuration:
// a zerolog logger, the net/http sender, the sleep-based retry strategy and,
// when enabled, the OpenTelemetry providers. Request builders call Do and
// inspect the returned httptransport.Response.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopbricks/storeclient/config"
	"github.com/shopbricks/storeclient/httpclient"
	"github.com/shopbricks/storeclient/httptransport"
	"github.com/shopbricks/storeclient/logger"
	"github.com/shopbricks/storeclient/observability"
	"github.com/shopbricks/storeclient/trace"
)

// ErrNilConfig is returned by New when no configuration is given.
var ErrNilConfig = errors.New("apiclient: config is nil")

// Client sends storefront API requests through a retry strategy.
// It is safe for concurrent use.
type Client struct {
	sender   httpclient.Client
	strategy httptransport.RetryStrategy
	provider observability.Provider
	baseURL  *url.URL
	log      logger.Logger
}

type options struct {
	log           logger.Logger
	observability []observability.Option
	sender        httpclient.Client
	strategy      httptransport.RetryStrategy
	sleeper       httptransport.Sleeper
	onWaitTick    httptransport.WaitTickFunc
	beforeAttempt httptransport.BeforeAttemptFunc
	interceptors  []httpclient.RequestInterceptor
}

// Option customizes New.
type Option func(*options)

// WithLogger replaces the logger built from the log section.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSender replaces the built-in HTTP client.
func WithSender(s httpclient.Client) Option {
	return func(o *options) { o.sender = s }
}

// WithStrategy replaces the sleep-based retry strategy. The retry section
// and the wait/attempt callbacks are then ignored.
func WithStrategy(s httptransport.RetryStrategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(s httptransport.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithWaitTick registers a callback invoked once per second of waiting.
func WithWaitTick(fn httptransport.WaitTickFunc) Option {
	return func(o *options) { o.onWaitTick = fn }
}

// WithBeforeAttempt registers a callback invoked before every send.
func WithBeforeAttempt(fn httptransport.BeforeAttemptFunc) Option {
	return func(o *options) { o.beforeAttempt = fn }
}

// WithObservability passes options to the observability provider, e.g.
// replacement exporters.
func WithObservability(opts ...observability.Option) Option {
	return func(o *options) { o.observability = append(o.observability, opts...) }
}

// WithRequestInterceptor adds an interceptor to the built-in HTTP client,
// e.g. one that signs requests.
func WithRequestInterceptor(i httpclient.RequestInterceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, i) }
}

// New builds a Client from cfg.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
	}

	c := &Client{log: o.log.WithFields(map[string]any{"component": "apiclient"})}

	if cfg.API.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.API.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse api.base_url: %w", err)
		}
		c.baseURL = u
	}

	obsOpts := append([]observability.Option{observability.WithLogger(o.log)}, o.observability...)
	provider, err := observability.NewProvider(&cfg.Observability, obsOpts...)
	if err != nil {
		return nil, err
	}
	c.provider = provider

	c.sender = o.sender
	if c.sender == nil {
		c.sender = httpclient.NewBuilder(o.log).WithConfig(httpclient.Config{
			Timeout:             cfg.HTTP.Timeout,
			UserAgent:           cfg.API.UserAgent,
			RequestInterceptors: o.interceptors,
			LogPayloads:         cfg.HTTP.LogPayloads,
			MaxPayloadLogBytes:  cfg.HTTP.MaxPayloadLogBytes,
			TraceIDHeader:       cfg.HTTP.TraceIDHeader,
			RequestsPerSecond:   cfg.HTTP.RateLimit.RequestsPerSecond,
			Burst:               cfg.HTTP.RateLimit.Burst,
			EnableHTTP2:         cfg.HTTP.HTTP2,
			EnableTracing:       cfg.HTTP.Tracing,
		}).Build()
	}

	c.strategy = o.strategy
	if c.strategy == nil {
		strategyOpts := []httptransport.StrategyOption{
			httptransport.WithLogger(o.log),
			httptransport.WithRetryAfterHeader(cfg.Retry.Header),
			httptransport.WithRateLimitStatus(cfg.Retry.Status),
		}
		if o.sleeper != nil {
			strategyOpts = append(strategyOpts, httptransport.WithSleeper(o.sleeper))
		}
		strategy, err := httptransport.NewSleepRetryStrategy(httptransport.RetryConfig{
			DefaultInterval: cfg.Retry.DefaultInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			MaxAttempts:     cfg.Retry.MaxAttempts,
			OnWaitTick:      c.waitTick(o.onWaitTick),
			BeforeAttempt:   o.beforeAttempt,
		}, strategyOpts...)
		if err != nil {
			_ = observability.Shutdown(context.Background(), provider)
			return nil, err
		}
		c.strategy = strategy
	}

	return c, nil
}

// waitTick logs wait progress and then calls next, if any.
func (c *Client) waitTick(next httptransport.WaitTickFunc) httptransport.WaitTickFunc {
	return func(ctx context.Context, tick httptransport.WaitTick) {
		c.log.Debug().
			Int("attempt", tick.Attempt).
			Int("second", tick.Second).
			Dur("remaining", tick.Remaining).
			Msg("Waiting out rate limit")
		if next != nil {
			next(ctx, tick)
		}
	}
}

// NewRequest builds a request. A path that is not an absolute URL is
// resolved against api.base_url.
func (c *Client) NewRequest(method, path string, body httptransport.Body, opts ...httptransport.RequestOption) (*httptransport.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return httptransport.NewRequest(method, target, body, opts...)
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", httptransport.ErrInvalidRequest, err)
	}
	if ref.IsAbs() || c.baseURL == nil {
		return path, nil
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return c.baseURL.ResolveReference(ref).String(), nil
}

// Do executes req. Every attempt of the call carries the same request ID,
// taken from ctx or generated once here.
func (c *Client) Do(ctx context.Context, req *httptransport.Request) httptransport.Response {
	ctx, requestID := trace.EnsureRequestID(ctx)
	resp := c.strategy.Execute(ctx, c.sender, req)

	event := c.log.Debug().
		Str("request_id", requestID).
		Str("outcome", resp.Kind().String())
	if rl, ok := resp.(*httptransport.RateLimited); ok {
		event = event.Int("attempts", rl.Attempts)
	}
	event.Msg("API call finished")
	return resp
}

// Get issues a GET for path.
//
// Get, PostJSON, PutJSON and Upload report a request that cannot be built
// (bad path, unencodable value) as a *httptransport.TransportError wrapping
// httptransport.ErrInvalidRequest, without sending anything. Use
// IsInvalidRequest to tell it apart from a connectivity failure.
func (c *Client) Get(ctx context.Context, path string, opts ...httptransport.RequestOption) httptransport.Response {
	req, err := c.NewRequest(http.MethodGet, path, nil, opts...)
	if err != nil {
		return invalidRequest(err)
	}
	return c.Do(ctx, req)
}

// PostJSON encodes v and POSTs it to path.
func (c *Client) PostJSON(ctx context.Context, path string, v any) httptransport.Response {
	return c.sendJSON(ctx, http.MethodPost, path, v)
}

// PutJSON encodes v and PUTs it to path.
func (c *Client) PutJSON(ctx context.Context, path string, v any) httptransport.Response {
	return c.sendJSON(ctx, http.MethodPut, path, v)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, v any) httptransport.Response {
	body, err := NewJSONBody(v)
	if err != nil {
		return invalidRequest(err)
	}
	req, err := c.NewRequest(method, path, body)
	if err != nil {
		return invalidRequest(err)
	}
	return c.Do(ctx, req)
}

// Upload streams r to path. The body is sent once and never retried; a
// rate-limited upload comes back as *httptransport.RateLimited.
func (c *Client) Upload(ctx context.Context, method, path string, r io.Reader, contentType string) httptransport.Response {
	req, err := c.NewRequest(method, path, httptransport.NewStreamBody(r, contentType))
	if err != nil {
		return invalidRequest(err)
	}
	return c.Do(ctx, req)
}

// Stats returns the HTTP client's round-trip statistics.
func (c *Client) Stats() httpclient.Stats {
	return c.sender.Stats()
}

// Close exports pending transport metrics and spans and stops the
// observability providers.
func (c *Client) Close(ctx context.Context) error {
	return observability.Shutdown(ctx, c.provider)
}

// NewJSONBody encodes v as an application/json body.
func NewJSONBody(v any) (httptransport.EncodedBody, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return httptransport.EncodedBody{}, fmt.Errorf("%w: encode json body: %w", httptransport.ErrInvalidRequest, err)
	}
	return httptransport.EncodedBody{Data: data, MimeType: "application/json"}, nil
}
