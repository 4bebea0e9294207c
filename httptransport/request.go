package httptransport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidRequest is wrapped by every NewRequest validation failure.
var ErrInvalidRequest = errors.New("httptransport: invalid request")

// Request is one outbound call. It is immutable after NewRequest returns;
// accessors hand out copies.
type Request struct {
	method string
	url    *url.URL
	header http.Header
	body   Body
}

// RequestOption customizes a Request during construction.
type RequestOption func(*Request)

// WithHeader sets a header on the request, replacing earlier values for key.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.header.Set(key, value)
	}
}

// WithHeaders copies all values from h into the request.
func WithHeaders(h http.Header) RequestOption {
	return func(r *Request) {
		for k, vs := range h {
			for _, v := range vs {
				r.header.Add(k, v)
			}
		}
	}
}

// NewRequest validates method and rawURL and builds a Request.
// A nil body is treated as EmptyBody.
func NewRequest(method, rawURL string, body Body, opts ...RequestOption) (*Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" || strings.ContainsAny(method, " \t\r\n") {
		return nil, fmt.Errorf("%w: method %q", ErrInvalidRequest, method)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: url: %w", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: url %q must be absolute http(s)", ErrInvalidRequest, rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: url %q has no host", ErrInvalidRequest, rawURL)
	}

	if body == nil {
		body = EmptyBody{}
	}

	r := &Request{
		method: method,
		url:    u,
		header: make(http.Header),
		body:   body,
	}
	for _, opt := range opts {
		opt(r)
	}
	if ct := body.ContentType(); ct != "" && r.header.Get("Content-Type") == "" {
		r.header.Set("Content-Type", ct)
	}
	return r, nil
}

func (r *Request) Method() string { return r.method }

// URL returns a copy of the target URL.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// Header returns a copy of the request headers.
func (r *Request) Header() http.Header { return r.header.Clone() }

func (r *Request) Body() Body { return r.body }

// Retryable reports whether the request may be sent more than once.
func (r *Request) Retryable() bool { return r.body.Retryable() }
