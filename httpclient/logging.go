package httpclient

import (
	"net/http"
	"strconv"

	"github.com/shopbricks/storeclient/httptransport"
	"github.com/shopbricks/storeclient/logger"
)

func (c *client) maxPayloadLogBytes() int {
	if c.config.MaxPayloadLogBytes > 0 {
		return c.config.MaxPayloadLogBytes
	}
	return defaultMaxPayloadLogBytes
}

func (c *client) logRequest(req *http.Request, body []byte, requestID string) {
	event := c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Str("request_id", requestID)
	if n := len(req.Header); n > 0 {
		event = event.Int("header_count", n)
	}
	if len(body) > 0 {
		event = event.Int("body_size", len(body))
	}
	event.Msg("REST client request")

	if !c.config.LogPayloads {
		return
	}
	debug := c.logger.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("request_id", requestID).
		Interface("headers", req.Header)
	c.withPreview(debug, body).Msg("REST client request")
}

func (c *client) logResponse(resp *httptransport.RawResponse, stats Stats, requestID string) {
	event := c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", stats.ElapsedTime).
		Int64("call_count", stats.CallCount).
		Str("request_id", requestID)
	if len(resp.Body) > 0 {
		event = event.Int("body_size", len(resp.Body))
	}
	event.Msg("REST client response")

	if !c.config.LogPayloads {
		return
	}
	debug := c.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Interface("headers", resp.Header)
	c.withPreview(debug, resp.Body).Msg("REST client response")
}

func (c *client) withPreview(event logger.LogEvent, body []byte) logger.LogEvent {
	if len(body) == 0 {
		return event
	}
	limit := c.maxPayloadLogBytes()
	truncated := len(body) > limit
	preview := body
	if truncated {
		preview = body[:limit]
	}
	return event.
		Int("body_size", len(body)).
		Str("body_truncated", strconv.FormatBool(truncated)).
		Bytes("body_preview", preview)
}
