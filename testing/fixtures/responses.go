package fixtures

import (
	"errors"
	"net/http"

	"github.com/shopbricks/storeclient/httptransport"
	"github.com/shopbricks/storeclient/testing/mocks"
)

// Header and content constants shared by client tests.
const (
	RetryAfterHeader           = "Retry-After"
	ContentTypeHeader          = "Content-Type"
	ApplicationJSONContentType = "application/json"
	TestStoreURL               = "https://app.example.com/api/v3/1003/products"
)

// ErrConnectionReset is the transport failure returned by failing senders.
var ErrConnectionReset = errors.New("read tcp: connection reset by peer")

// OK returns a 200 response with a JSON body.
func OK(body string) *httptransport.RawResponse {
	return &httptransport.RawResponse{
		StatusCode: http.StatusOK,
		Header:     http.Header{ContentTypeHeader: {ApplicationJSONContentType}},
		Body:       []byte(body),
	}
}

// Status returns a response with the given status and no body.
func Status(code int) *httptransport.RawResponse {
	return &httptransport.RawResponse{StatusCode: code, Header: http.Header{}}
}

// RateLimited returns a 429 response. An empty retryAfter omits the header.
func RateLimited(retryAfter string) *httptransport.RawResponse {
	h := http.Header{}
	if retryAfter != "" {
		h.Set(RetryAfterHeader, retryAfter)
	}
	return &httptransport.RawResponse{
		StatusCode: http.StatusTooManyRequests,
		Header:     h,
		Body:       []byte(`{"errorMessage":"Too many requests"}`),
	}
}

// NewSequenceSender returns a mock sender that replies with responses in
// order, one per Send. A Send past the end of the sequence panics in mock.
func NewSequenceSender(responses ...*httptransport.RawResponse) *mocks.MockSender {
	sender := &mocks.MockSender{}
	for _, resp := range responses {
		sender.ExpectSend(resp, nil)
	}
	return sender
}

// NewRateLimitedSender returns a mock sender that is rate limited n times
// with the given advice and then succeeds with body.
func NewRateLimitedSender(n int, retryAfter, body string) *mocks.MockSender {
	responses := make([]*httptransport.RawResponse, 0, n+1)
	for range n {
		responses = append(responses, RateLimited(retryAfter))
	}
	return NewSequenceSender(append(responses, OK(body))...)
}

// NewFailingSender returns a mock sender whose first Send fails with
// ErrConnectionReset.
func NewFailingSender() *mocks.MockSender {
	sender := &mocks.MockSender{}
	sender.ExpectSend(nil, ErrConnectionReset)
	return sender
}
