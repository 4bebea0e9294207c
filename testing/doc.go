// Package testing provides test helpers for code built on the storeclient
// packages.
//
// # Mocks
//
// The mocks subpackage provides testify-based implementations of
// httptransport.Sender, httpclient.Client and httptransport.RetryStrategy.
//
// # Fixtures
//
// The fixtures subpackage builds canned responses and preconfigured senders
// for rate-limit scenarios:
//
//	sender := fixtures.NewRateLimitedSender(2, "1", `{"ok":true}`)
//	resp := strategy.Execute(ctx, sender, req)
//	sender.AssertExpectations(t)
package testing
