package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shopbricks/storeclient/trace"
)

// ZeroLogger implements Logger on top of zerolog.
type ZeroLogger struct {
	zlog   *zerolog.Logger
	filter *SensitiveDataFilter
}

var _ Logger = (*ZeroLogger)(nil)

var callerMarshalOnce sync.Once

func shortCaller() {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			parent := filepath.Base(filepath.Dir(file))
			if parent != "." && parent != "" {
				return parent + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
			}
			return filepath.Base(file) + ":" + strconv.Itoa(line)
		}
	})
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// New logs to stdout at level, as JSON or, when pretty is set, as
// human-readable console output. Unknown levels fall back to info.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithFilter(level, pretty, DefaultFilterConfig())
}

// NewWithFilter is New with a custom sensitive-field configuration.
func NewWithFilter(level string, pretty bool, filterConfig *FilterConfig) *ZeroLogger {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return newZeroLogger(out, level, filterConfig, true)
}

// NewWithWriter writes JSON lines to w without caller info. Mostly useful in tests.
func NewWithWriter(w io.Writer, level string) *ZeroLogger {
	return newZeroLogger(w, level, DefaultFilterConfig(), false)
}

func newZeroLogger(w io.Writer, level string, filterConfig *FilterConfig, caller bool) *ZeroLogger {
	ctx := zerolog.New(w).With().Timestamp()
	if caller {
		shortCaller()
		ctx = ctx.CallerWithSkipFrameCount(3)
	}
	l := ctx.Logger().Level(parseLevel(level))
	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(filterConfig)}
}

// Nop returns a logger that discards everything.
func Nop() *ZeroLogger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(nil)}
}

// WithContext attaches the request ID carried by ctx, if any.
func (l *ZeroLogger) WithContext(ctx any) Logger {
	c, ok := ctx.(context.Context)
	if !ok || c == nil {
		return l
	}
	id, ok := trace.RequestIDFromContext(c)
	if !ok {
		return l
	}
	child := l.zlog.With().Str("request_id", id).Logger()
	return &ZeroLogger{zlog: &child, filter: l.filter}
}

// WithFields returns a child logger carrying fields on every entry.
// Sensitive values are masked first.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	child := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &child, filter: l.filter}
}

func (l *ZeroLogger) Info() LogEvent  { return l.event(l.zlog.Info()) }
func (l *ZeroLogger) Error() LogEvent { return l.event(l.zlog.Error()) }
func (l *ZeroLogger) Debug() LogEvent { return l.event(l.zlog.Debug()) }
func (l *ZeroLogger) Warn() LogEvent  { return l.event(l.zlog.Warn()) }
func (l *ZeroLogger) Fatal() LogEvent { return l.event(l.zlog.Fatal()) }

func (l *ZeroLogger) event(e *zerolog.Event) LogEvent {
	return &LogEventAdapter{event: e, filter: l.filter}
}
