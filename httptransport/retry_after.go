package httptransport

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxAdvisedSeconds caps parsed values so the conversion to time.Duration
// cannot overflow. Anything this large is clamped by MaxInterval anyway.
const maxAdvisedSeconds = int64(time.Duration(1<<63-1) / time.Second)

// parseRetryAfter reads an advised wait in whole seconds from header.
// Absent, negative and unparseable values all report ok == false.
func parseRetryAfter(h http.Header, header string) (time.Duration, bool) {
	raw := strings.TrimSpace(h.Get(header))
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	if secs > maxAdvisedSeconds {
		secs = maxAdvisedSeconds
	}
	return time.Duration(secs) * time.Second, true
}

// computeWait picks the advised interval when present, the default otherwise,
// and clamps the result to limit.
func computeWait(advised time.Duration, hasAdvised bool, def, limit time.Duration) time.Duration {
	wait := def
	if hasAdvised {
		wait = advised
	}
	return min(wait, limit)
}
