package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEventAdapter adapts a zerolog event to LogEvent, masking sensitive
// string and structured values on the way in.
type LogEventAdapter struct {
	event  *zerolog.Event
	filter *SensitiveDataFilter
}

func (a *LogEventAdapter) with(e *zerolog.Event) LogEvent {
	return &LogEventAdapter{event: e, filter: a.filter}
}

func (a *LogEventAdapter) Msg(msg string) { a.event.Msg(msg) }

func (a *LogEventAdapter) Msgf(format string, args ...any) { a.event.Msgf(format, args...) }

func (a *LogEventAdapter) Err(err error) LogEvent { return a.with(a.event.Err(err)) }

func (a *LogEventAdapter) Str(key, value string) LogEvent {
	if a.filter != nil {
		value = a.filter.FilterString(key, value)
	}
	return a.with(a.event.Str(key, value))
}

func (a *LogEventAdapter) Int(key string, value int) LogEvent {
	return a.with(a.event.Int(key, value))
}

func (a *LogEventAdapter) Int64(key string, value int64) LogEvent {
	return a.with(a.event.Int64(key, value))
}

func (a *LogEventAdapter) Uint64(key string, value uint64) LogEvent {
	return a.with(a.event.Uint64(key, value))
}

func (a *LogEventAdapter) Dur(key string, d time.Duration) LogEvent {
	return a.with(a.event.Dur(key, d))
}

func (a *LogEventAdapter) Interface(key string, i any) LogEvent {
	if a.filter != nil {
		i = a.filter.FilterValue(key, i)
	}
	return a.with(a.event.Interface(key, i))
}

// Bytes is not filtered; callers log payload previews through it.
func (a *LogEventAdapter) Bytes(key string, val []byte) LogEvent {
	return a.with(a.event.Bytes(key, val))
}
