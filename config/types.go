package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/shopbricks/storeclient/observability"
)

// Config is the full client configuration. Fields not modeled here remain
// reachable through the Get* accessors.
type Config struct {
	API           APIConfig            `koanf:"api"`
	HTTP          HTTPConfig           `koanf:"http"`
	Retry         RetryConfig          `koanf:"retry"`
	Log           LogConfig            `koanf:"log"`
	Observability observability.Config `koanf:"observability" validate:"-"`

	k *koanf.Koanf
}

// APIConfig identifies the remote API.
type APIConfig struct {
	// BaseURL is prefixed to relative paths passed to the API client.
	BaseURL   string `koanf:"base_url" validate:"omitempty,url"`
	UserAgent string `koanf:"user_agent"`
}

// HTTPConfig configures the single-round-trip HTTP client.
type HTTPConfig struct {
	Timeout            time.Duration   `koanf:"timeout" validate:"gt=0s"`
	LogPayloads        bool            `koanf:"log_payloads"`
	MaxPayloadLogBytes int             `koanf:"max_payload_log_bytes" validate:"gte=0"`
	TraceIDHeader      string          `koanf:"trace_id_header"`
	RateLimit          RateLimitConfig `koanf:"rate_limit"`
	HTTP2              bool            `koanf:"http2"`
	Tracing            bool            `koanf:"tracing"`
}

// RateLimitConfig throttles outgoing requests on the client side.
// RequestsPerSecond 0 disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" validate:"gte=0"`
}

// RetryConfig configures how server rate limiting is absorbed.
type RetryConfig struct {
	DefaultInterval time.Duration `koanf:"default_interval" validate:"gte=0s"`
	MaxInterval     time.Duration `koanf:"max_interval" validate:"gte=0s"`
	MaxAttempts     int           `koanf:"max_attempts" validate:"gte=1"`
	// Header names the response header carrying the advised wait in seconds.
	Header string `koanf:"header" validate:"required"`
	// Status is the response status that signals rate limiting.
	Status int `koanf:"status" validate:"gte=100,lte=599"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Pretty bool   `koanf:"pretty"`
}
