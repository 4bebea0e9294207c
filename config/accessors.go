package config

import (
	"time"
)

// GetString returns the value at key, or the optional default when unset.
func (c *Config) GetString(key string, defaultVal ...string) string {
	if !c.exists(key) {
		return optionalDefault("", defaultVal...)
	}
	return c.k.String(key)
}

// GetInt returns the value at key converted to int, or the default when unset.
func (c *Config) GetInt(key string, defaultVal ...int) int {
	if !c.exists(key) {
		return optionalDefault(0, defaultVal...)
	}
	return c.k.Int(key)
}

// GetFloat64 returns the value at key converted to float64, or the default.
func (c *Config) GetFloat64(key string, defaultVal ...float64) float64 {
	if !c.exists(key) {
		return optionalDefault(float64(0), defaultVal...)
	}
	return c.k.Float64(key)
}

// GetBool returns the value at key converted to bool, or the default.
func (c *Config) GetBool(key string, defaultVal ...bool) bool {
	if !c.exists(key) {
		return optionalDefault(false, defaultVal...)
	}
	return c.k.Bool(key)
}

// GetDuration parses the value at key ("1500ms", "2s") or returns the default.
// Integer values are taken as nanoseconds.
func (c *Config) GetDuration(key string, defaultVal ...time.Duration) time.Duration {
	if !c.exists(key) {
		return optionalDefault(time.Duration(0), defaultVal...)
	}
	return c.k.Duration(key)
}

// Exists reports whether key has a value from any source.
func (c *Config) Exists(key string) bool {
	return c.exists(key)
}

func (c *Config) exists(key string) bool {
	return c != nil && c.k != nil && c.k.Exists(key)
}

func optionalDefault[T any](zero T, defaultVal ...T) T {
	if len(defaultVal) > 0 {
		return defaultVal[0]
	}
	return zero
}
