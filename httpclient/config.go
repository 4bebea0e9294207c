package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/shopbricks/storeclient/logger"
	"github.com/shopbricks/storeclient/trace"
)

const (
	defaultTimeout            = 30 * time.Second
	defaultMaxPayloadLogBytes = 1024
	defaultUserAgent          = "storeclient-go"
)

// RequestInterceptor runs after headers are set and before the request is sent.
type RequestInterceptor func(ctx context.Context, req *http.Request) error

// ResponseInterceptor runs after the response body has been read.
// resp.Body can be read again.
type ResponseInterceptor func(ctx context.Context, req *http.Request, resp *http.Response) error

// Config holds the client configuration. Zero values get defaults in Build.
type Config struct {
	Timeout              time.Duration
	DefaultHeaders       map[string]string
	UserAgent            string
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	// LogPayloads enables debug-level logging of headers and body previews.
	LogPayloads bool
	// MaxPayloadLogBytes caps the logged body preview (default 1024).
	MaxPayloadLogBytes int
	// TraceIDHeader carries the request ID (default X-Request-ID).
	TraceIDHeader string
	// NewTraceID generates a request ID when the context has none (default uuid).
	NewTraceID func() string
	// RequestsPerSecond enables client-side throttling when > 0.
	RequestsPerSecond float64
	// Burst is the token bucket size; values below 1 become 1.
	Burst int
	// EnableHTTP2 negotiates HTTP/2 over TLS on the built-in transport.
	EnableHTTP2 bool
	// EnableTracing wraps the transport with OpenTelemetry instrumentation.
	EnableTracing bool
	// Transport replaces the built-in transport; EnableHTTP2 is then ignored.
	Transport http.RoundTripper
}

// Builder configures a Client step by step.
type Builder struct {
	logger logger.Logger
	config Config
}

// NewBuilder starts a builder. A nil logger discards output.
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{logger: log}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	if b.config.DefaultHeaders == nil {
		b.config.DefaultHeaders = make(map[string]string)
	}
	b.config.DefaultHeaders[key] = value
	return b
}

func (b *Builder) WithUserAgent(ua string) *Builder {
	b.config.UserAgent = ua
	return b
}

func (b *Builder) WithRequestInterceptor(i RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, i)
	return b
}

func (b *Builder) WithResponseInterceptor(i ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, i)
	return b
}

// WithPayloadLogging enables body previews of at most maxBytes.
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	b.config.MaxPayloadLogBytes = maxBytes
	return b
}

// WithTraceIDHeader changes the request ID header name.
func (b *Builder) WithTraceIDHeader(header string) *Builder {
	b.config.TraceIDHeader = header
	return b
}

// WithRateLimit throttles sends to rps with the given burst.
func (b *Builder) WithRateLimit(rps float64, burst int) *Builder {
	b.config.RequestsPerSecond = rps
	b.config.Burst = burst
	return b
}

func (b *Builder) WithHTTP2(enabled bool) *Builder {
	b.config.EnableHTTP2 = enabled
	return b
}

func (b *Builder) WithTracing(enabled bool) *Builder {
	b.config.EnableTracing = enabled
	return b
}

func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.config.Transport = rt
	return b
}

// Build applies defaults and returns the client.
func (b *Builder) Build() Client {
	cfg := b.config
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxPayloadLogBytes <= 0 {
		cfg.MaxPayloadLogBytes = defaultMaxPayloadLogBytes
	}
	if cfg.TraceIDHeader == "" {
		cfg.TraceIDHeader = trace.HeaderXRequestID
	}
	if cfg.NewTraceID == nil {
		cfg.NewTraceID = uuid.NewString
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	log := b.logger.WithFields(map[string]any{"component": "httpclient"})

	rt := cfg.Transport
	if rt == nil {
		rt = newTransport(cfg, log)
	}
	if cfg.EnableTracing {
		rt = otelhttp.NewTransport(rt)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}

	return &client{
		httpClient: &http.Client{Transport: rt, Timeout: cfg.Timeout},
		logger:     log,
		config:     &cfg,
		limiter:    limiter,
	}
}

func newTransport(cfg Config, log logger.Logger) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			log.Warn().Err(err).Msg("Failed to configure HTTP/2, falling back to HTTP/1.1")
		} else {
			log.Debug().Msg("HTTP/2 support enabled")
		}
	}
	return transport
}
