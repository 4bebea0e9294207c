package observability

import (
	"maps"
	"strings"
	"time"
)

const (
	// EndpointStdout prints telemetry to stdout instead of exporting it.
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// EnvironmentDevelopment is the default deployment environment.
	EnvironmentDevelopment = "development"
)

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Config controls tracing and metrics export for the API client.
type Config struct {
	// Enabled turns the SDK providers on. When false NewProvider returns no-ops.
	Enabled     bool          `koanf:"enabled"`
	Service     ServiceConfig `koanf:"service"`
	Environment string        `koanf:"environment"`
	Trace       TraceConfig   `koanf:"trace"`
	Metrics     MetricsConfig `koanf:"metrics"`
}

// ServiceConfig identifies the process in exported telemetry.
type ServiceConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

// TraceConfig configures the span exporter.
type TraceConfig struct {
	// Enabled defaults to true when observability is enabled.
	Enabled  *bool             `koanf:"enabled"`
	Endpoint string            `koanf:"endpoint"`
	Protocol string            `koanf:"protocol"`
	Insecure bool              `koanf:"insecure"`
	Headers  map[string]string `koanf:"headers"`
	Sample   SampleConfig      `koanf:"sample"`
	Batch    BatchConfig       `koanf:"batch"`
	Export   ExportConfig      `koanf:"export"`
}

// SampleConfig holds the trace sampling ratio.
type SampleConfig struct {
	// Rate is the fraction of traces kept, 0.0 to 1.0. Nil means 1.0.
	Rate *float64 `koanf:"rate"`
}

// BatchConfig tunes the batch span processor.
type BatchConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	Size    int           `koanf:"size"`
}

// ExportConfig bounds a single export call.
type ExportConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// MetricsConfig configures the metric exporter. Protocol, Insecure and
// Headers fall back to the trace settings when unset.
type MetricsConfig struct {
	Enabled  *bool             `koanf:"enabled"`
	Endpoint string            `koanf:"endpoint"`
	Protocol string            `koanf:"protocol"`
	Insecure *bool             `koanf:"insecure"`
	Headers  map[string]string `koanf:"headers"`
	Interval time.Duration     `koanf:"interval"`
	Export   ExportConfig      `koanf:"export"`
}

// ApplyDefaults fills unset fields. Explicit false and zero values set
// through pointers are preserved.
func (c *Config) ApplyDefaults() {
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}
	c.applyTraceDefaults()
	c.applyMetricsDefaults()
}

func (c *Config) development() bool {
	return c.Environment == EnvironmentDevelopment
}

func (c *Config) applyTraceDefaults() {
	if c.Trace.Endpoint == "" {
		c.Trace.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Trace.Enabled == nil {
		c.Trace.Enabled = BoolPtr(true)
	}
	if c.Trace.Protocol == "" {
		c.Trace.Protocol = ProtocolHTTP
	}
	if c.Trace.Sample.Rate == nil {
		c.Trace.Sample.Rate = Float64Ptr(1.0)
	}
	if c.Trace.Batch.Timeout == 0 {
		if c.development() || c.Trace.Endpoint == EndpointStdout {
			c.Trace.Batch.Timeout = 500 * time.Millisecond
		} else {
			c.Trace.Batch.Timeout = 5 * time.Second
		}
	}
	if c.Trace.Batch.Size == 0 {
		c.Trace.Batch.Size = 512
	}
	if c.Trace.Export.Timeout == 0 {
		c.Trace.Export.Timeout = c.exportTimeout(c.Trace.Endpoint)
	}
}

func (c *Config) applyMetricsDefaults() {
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Metrics.Enabled == nil {
		c.Metrics.Enabled = BoolPtr(true)
	}
	if c.Metrics.Protocol == "" {
		c.Metrics.Protocol = c.Trace.Protocol
	}
	if c.Metrics.Insecure == nil {
		c.Metrics.Insecure = BoolPtr(c.Trace.Insecure)
	}
	if c.Metrics.Headers == nil && c.Trace.Headers != nil {
		c.Metrics.Headers = maps.Clone(c.Trace.Headers)
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 10 * time.Second
	}
	if c.Metrics.Export.Timeout == 0 {
		c.Metrics.Export.Timeout = c.exportTimeout(c.Metrics.Endpoint)
	}
}

// exportTimeout is short in development so a missing collector fails fast.
func (c *Config) exportTimeout(endpoint string) time.Duration {
	if c.development() || endpoint == EndpointStdout {
		return 10 * time.Second
	}
	return 60 * time.Second
}

// Validate checks the configuration. A disabled configuration is always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if rate := c.Trace.Sample.Rate; rate != nil && (*rate < 0 || *rate > 1) {
		return ErrInvalidSampleRate
	}
	if err := validateEndpoint(c.Trace.Endpoint, c.Trace.Protocol); err != nil {
		return err
	}
	protocol := c.Metrics.Protocol
	if protocol == "" {
		protocol = c.Trace.Protocol
	}
	return validateEndpoint(c.Metrics.Endpoint, protocol)
}

// validateEndpoint requires a scheme for HTTP endpoints and rejects one for
// gRPC endpoints, which are host:port.
func validateEndpoint(endpoint, protocol string) error {
	if endpoint == "" || endpoint == EndpointStdout {
		return nil
	}
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	hasScheme := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
	switch protocol {
	case ProtocolHTTP:
		if !hasScheme {
			return ErrInvalidEndpointFormat
		}
	case ProtocolGRPC:
		if hasScheme {
			return ErrInvalidEndpointFormat
		}
	default:
		return ErrInvalidProtocol
	}
	return nil
}
