// Package httptransport executes storefront API requests and absorbs
// server-side rate limiting.
//
// A Request carries one of three Body variants. EmptyBody and EncodedBody can
// be replayed; a StreamBody (file upload) is consumed by the first send and is
// never retried. A RetryStrategy turns one logical call into exactly one
// Response: *Success (any non-rate-limited status), *RateLimited (the server
// still refused after the last permitted attempt) or *TransportError (no
// response was obtained). Outcomes are values; Execute never panics or
// returns an error for them.
//
// Typical use:
//
//	strategy, err := httptransport.NewSleepRetryStrategy(httptransport.RetryConfig{
//		DefaultInterval: 2 * time.Second,
//		MaxInterval:     10 * time.Second,
//		MaxAttempts:     5,
//	})
//	...
//	switch r := strategy.Execute(ctx, sender, req).(type) {
//	case *httptransport.Success:
//	case *httptransport.RateLimited:
//	case *httptransport.TransportError:
//	}
package httptransport
