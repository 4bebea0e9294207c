// Package config loads client configuration from defaults, an optional YAML
// file and STORECLIENT_ environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables read by Load. A double
	// underscore separates nesting levels: STORECLIENT_RETRY__MAX_ATTEMPTS
	// sets retry.max_attempts.
	EnvPrefix = "STORECLIENT_"

	// DefaultFile is the YAML file read by Load when present.
	DefaultFile = "config.yaml"
)

// Load reads defaults, then DefaultFile if it exists, then the environment.
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile is Load with an explicit YAML path. A missing file is skipped.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return finish(k)
}

// LoadFromYAML reads defaults overlaid with the given YAML document. The
// environment is not consulted.
func LoadFromYAML(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}

	return finish(k)
}

func finish(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey maps STORECLIENT_HTTP__RATE_LIMIT__BURST to http.rate_limit.burst.
func envKey(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ReplaceAll(strings.ToLower(key), "__", ".")
	return key, value
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"api.base_url":   "",
		"api.user_agent": "storeclient-go",

		"http.timeout":                        "30s",
		"http.log_payloads":                   false,
		"http.max_payload_log_bytes":          1024,
		"http.trace_id_header":                "X-Request-ID",
		"http.rate_limit.requests_per_second": 0,
		"http.rate_limit.burst":               1,
		"http.http2":                          true,
		"http.tracing":                        false,

		"retry.default_interval": "1s",
		"retry.max_interval":     "60s",
		"retry.max_attempts":     5,
		"retry.header":           "Retry-After",
		"retry.status":           429,

		"log.level":  "info",
		"log.pretty": false,

		// Observability stays off until explicitly configured.
		"observability.enabled": false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
