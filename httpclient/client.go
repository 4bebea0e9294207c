// Package httpclient is the net/http-backed Sender used by the retry
// strategies in httptransport. It performs exactly one round trip per Send,
// propagates request IDs, throttles client-side when configured and logs
// every exchange.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/shopbricks/storeclient/httptransport"
	"github.com/shopbricks/storeclient/logger"
	"github.com/shopbricks/storeclient/trace"
)

// Client sends single round trips and keeps call statistics.
type Client interface {
	httptransport.Sender
	Stats() Stats
}

// Stats accumulates over the lifetime of a Client.
type Stats struct {
	ElapsedTime time.Duration
	CallCount   int64
}

type client struct {
	httpClient *http.Client
	logger     logger.Logger
	config     *Config
	limiter    *rate.Limiter

	callCount atomic.Int64
	elapsed   atomic.Int64
}

var _ Client = (*client)(nil)

func (c *client) Stats() Stats {
	return Stats{
		ElapsedTime: time.Duration(c.elapsed.Load()),
		CallCount:   c.callCount.Load(),
	}
}

// Send performs one round trip. HTTP error statuses are returned as a
// RawResponse; only failures to obtain a response are errors.
func (c *client) Send(ctx context.Context, req *httptransport.Request) (*httptransport.RawResponse, error) {
	if req == nil {
		return nil, NewValidationError("request is nil", "request")
	}

	requestID, ok := trace.RequestIDFromContext(ctx)
	if !ok {
		requestID = c.config.NewTraceID()
		ctx = trace.WithRequestID(ctx, requestID)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classifyError("client-side rate limiter", err, c.config.Timeout)
		}
	}

	httpReq, preview, err := c.buildRequest(ctx, req, requestID)
	if err != nil {
		return nil, err
	}

	for _, interceptor := range c.config.RequestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			closeBody(httpReq)
			return nil, NewInterceptorError("request interceptor failed", "request", err)
		}
	}

	c.logRequest(httpReq, preview, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(time.Since(start))
		cerr := classifyError(fmt.Sprintf("%s %s", httpReq.Method, httpReq.URL.Redacted()), err, c.config.Timeout)
		c.logger.Error().Err(cerr).Str("request_id", requestID).Msg("REST client request failed")
		return nil, cerr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.record(elapsed)
	if err != nil {
		return nil, classifyError("read response body", err, c.config.Timeout)
	}

	raw := &httptransport.RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	c.logResponse(raw, Stats{ElapsedTime: elapsed, CallCount: c.callCount.Load()}, requestID)

	// Interceptor failures keep the received response.
	resp.Body = io.NopCloser(bytes.NewReader(body))
	for _, interceptor := range c.config.ResponseInterceptors {
		if err := interceptor(ctx, httpReq, resp); err != nil {
			cerr := NewInterceptorError("response interceptor failed", "response", err)
			c.logger.Warn().
				Err(cerr).
				Str("request_id", requestID).
				Int("status", raw.StatusCode).
				Msg("REST client response interceptor failed")
			return raw, cerr
		}
	}
	return raw, nil
}

// buildRequest converts req and opens its body. The returned preview is the
// payload for logging; stream bodies have none.
func (c *client) buildRequest(ctx context.Context, req *httptransport.Request, requestID string) (*http.Request, []byte, error) {
	body := req.Body()
	rc, err := body.Open()
	if err != nil {
		return nil, nil, NewNetworkError("open request body", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL().String(), rc)
	if err != nil {
		_ = rc.Close()
		return nil, nil, NewValidationError(err.Error(), "request")
	}
	if n := body.ContentLength(); n >= 0 {
		httpReq.ContentLength = n
		if n == 0 {
			httpReq.Body = http.NoBody
			_ = rc.Close()
		}
	}
	// Lets net/http replay the body on 307/308 redirects.
	if body.Retryable() && httpReq.ContentLength > 0 {
		httpReq.GetBody = body.Open
	}

	for k, v := range c.config.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, vs := range req.Header() {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if httpReq.Header.Get(c.config.TraceIDHeader) == "" {
		httpReq.Header.Set(c.config.TraceIDHeader, requestID)
	}
	trace.Inject(ctx, httpReq.Header, c.config.TraceIDHeader)

	var preview []byte
	if enc, ok := body.(httptransport.EncodedBody); ok {
		preview = enc.Data
	}
	return httpReq, preview, nil
}

func (c *client) record(d time.Duration) {
	c.callCount.Add(1)
	c.elapsed.Add(int64(d))
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
