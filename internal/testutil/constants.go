// Package testutil provides shared constants for tests across storeclient.
// These constants eliminate repeated string literals in test files.
package testutil

// Test error messages.
const (
	// TestError is a generic error message for test error scenarios.
	TestError = "test error"

	// TestConnectionRefused is the network error message for connection failures.
	TestConnectionRefused = "connection refused"
)

// Test request values.
const (
	// TestBaseURL is the storefront API root used in request builder tests.
	TestBaseURL = "https://app.example.com/api/v3/1003"

	// TestProductsURL is TestBaseURL joined with the products resource.
	TestProductsURL = TestBaseURL + "/products"

	// TestRequestID is a fixed request ID for correlation assertions.
	TestRequestID = "req-7f3c2a"

	// TestJSONContentType is the content type of encoded JSON bodies.
	TestJSONContentType = "application/json"
)
