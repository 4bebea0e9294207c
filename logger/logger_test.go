package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopbricks/storeclient/trace"
)

const testMessage = "test message"

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{level: "debug", want: zerolog.DebugLevel},
		{level: "info", want: zerolog.InfoLevel},
		{level: "warn", want: zerolog.WarnLevel},
		{level: "error", want: zerolog.ErrorLevel},
		{level: "invalid_level", want: zerolog.InfoLevel},
		{level: "", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.level))
		})
	}
}

func TestNewWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Info().Msg("hidden")
	log.Debug().Msg("hidden")
	log.Warn().Str("store", "1003").Msg(testMessage)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, testMessage, lines[0]["message"])
	assert.Equal(t, "1003", lines[0]["store"])
}

func TestLogEventFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	log.Debug().
		Err(errors.New("boom")).
		Int("attempt", 2).
		Int64("call_count", 7).
		Uint64("bytes", 9).
		Dur("wait", 1500*time.Millisecond).
		Interface("meta", map[string]any{"sku": "A1"}).
		Bytes("preview", []byte("abc")).
		Msgf("attempt %d", 2)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	l := lines[0]
	assert.Equal(t, "boom", l["error"])
	assert.EqualValues(t, 2, l["attempt"])
	assert.EqualValues(t, 7, l["call_count"])
	assert.EqualValues(t, 9, l["bytes"])
	assert.EqualValues(t, 1500, l["wait"])
	assert.Equal(t, map[string]any{"sku": "A1"}, l["meta"])
	assert.Equal(t, "abc", l["preview"])
	assert.Equal(t, "attempt 2", l["message"])
}

func TestSensitiveValuesAreMasked(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info")

	log.Info().
		Str("authorization", "Bearer secret_token_1").
		Str("url", "https://app.example.com/api/v3/1003/products?token=abc&limit=10").
		Interface("headers", map[string][]string{"Authorization": {"Bearer x"}, "Accept": {"application/json"}}).
		Msg(testMessage)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	l := lines[0]
	assert.Equal(t, DefaultMaskValue, l["authorization"])
	assert.Equal(t, "https://app.example.com/api/v3/1003/products?token=***&limit=10", l["url"])
	headers, ok := l["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{DefaultMaskValue}, headers["Authorization"])
	assert.Equal(t, []any{"application/json"}, headers["Accept"])
}

func TestWithFieldsMasksAndPropagates(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info").WithFields(map[string]any{
		"component": "httpclient",
		"api_key":   "k-123",
	})

	log.Info().Msg(testMessage)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "httpclient", lines[0]["component"])
	assert.Equal(t, DefaultMaskValue, lines[0]["api_key"])
}

func TestWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, "info")

	ctx := trace.WithRequestID(context.Background(), "req-42")
	base.WithContext(ctx).Info().Msg(testMessage)
	base.WithContext(context.Background()).Info().Msg(testMessage)
	base.WithContext("not a context").Info().Msg(testMessage)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "req-42", lines[0]["request_id"])
	assert.NotContains(t, lines[1], "request_id")
	assert.NotContains(t, lines[2], "request_id")
}

func TestWithContextWithoutRequestIDReturnsSameLogger(t *testing.T) {
	base := NewWithWriter(&bytes.Buffer{}, "info")
	assert.Same(t, base, base.WithContext(context.Background()))
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.Error().Err(errors.New("x")).Str("k", "v").Msg(testMessage)
		log.WithFields(map[string]any{"a": 1}).Warn().Msg(testMessage)
	})
}

func TestNewBuildsStdoutLogger(t *testing.T) {
	assert.NotNil(t, New("debug", false))
	assert.NotNil(t, New("info", true))
	assert.NotNil(t, NewWithFilter("info", false, &FilterConfig{SensitiveFields: []string{"sku"}}))
}
