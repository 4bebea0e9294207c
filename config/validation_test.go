package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopbricks/storeclient/observability"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadFromYAML(nil)
	require.NoError(t, err)
	return cfg
}

func TestValidateValidConfig(t *testing.T) {
	assert.NoError(t, Validate(validConfig(t)))
}

func TestValidateNil(t *testing.T) {
	assert.Error(t, Validate(nil))
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		category string
		contains string
	}{
		{
			name:     "max_attempts_zero",
			mutate:   func(c *Config) { c.Retry.MaxAttempts = 0 },
			field:    "retry.max_attempts",
			category: "invalid",
			contains: "must be gte 1",
		},
		{
			name:     "negative_default_interval",
			mutate:   func(c *Config) { c.Retry.DefaultInterval = -time.Second },
			field:    "retry.default_interval",
			category: "invalid",
		},
		{
			name:     "missing_header",
			mutate:   func(c *Config) { c.Retry.Header = "" },
			field:    "retry.header",
			category: "missing",
			contains: "STORECLIENT_RETRY__HEADER",
		},
		{
			name:     "status_out_of_range",
			mutate:   func(c *Config) { c.Retry.Status = 700 },
			field:    "retry.status",
			category: "invalid",
		},
		{
			name:     "zero_timeout",
			mutate:   func(c *Config) { c.HTTP.Timeout = 0 },
			field:    "http.timeout",
			category: "invalid",
		},
		{
			name:     "negative_rps",
			mutate:   func(c *Config) { c.HTTP.RateLimit.RequestsPerSecond = -1 },
			field:    "http.rate_limit.requests_per_second",
			category: "invalid",
		},
		{
			name:     "bad_log_level",
			mutate:   func(c *Config) { c.Log.Level = "verbose" },
			field:    "log.level",
			category: "invalid",
			contains: "must be one of",
		},
		{
			name:     "relative_base_url",
			mutate:   func(c *Config) { c.API.BaseURL = "not a url" },
			field:    "api.base_url",
			category: "invalid",
		},
		{
			name: "observability_without_service",
			mutate: func(c *Config) {
				c.Observability = observability.Config{Enabled: true}
			},
			field:    "observability",
			category: "invalid",
			contains: "service name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)

			fields := FieldErrors(err)
			require.Len(t, fields, 1)
			assert.Equal(t, tt.field, fields[0].Field)
			assert.Equal(t, tt.category, fields[0].Category)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}

			var ce *ConfigError
			assert.True(t, errors.As(err, &ce))
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig(t)
	cfg.Retry.MaxAttempts = 0
	cfg.Log.Level = "loud"

	fields := FieldErrors(Validate(cfg))
	require.Len(t, fields, 2)
	assert.ElementsMatch(t, []string{"retry.max_attempts", "log.level"}, []string{fields[0].Field, fields[1].Field})
}
