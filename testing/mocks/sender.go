package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shopbricks/storeclient/httpclient"
	"github.com/shopbricks/storeclient/httptransport"
)

// MockSender provides a testify-based mock implementation of httptransport.Sender
// and httpclient.Client. Each Send consumes the request body the way a real
// client would, so stream bodies behave as in production.
//
// Example usage:
//
//	sender := &mocks.MockSender{}
//	sender.On("Send", mock.Anything, mock.Anything).
//		Return(&httptransport.RawResponse{StatusCode: 429}, nil).Once()
//	sender.On("Send", mock.Anything, mock.Anything).
//		Return(&httptransport.RawResponse{StatusCode: 200}, nil)
type MockSender struct {
	mock.Mock

	// KeepBody skips opening the request body on Send.
	KeepBody bool
}

var (
	_ httptransport.Sender = (*MockSender)(nil)
	_ httpclient.Client    = (*MockSender)(nil)
)

// Send implements httptransport.Sender
func (m *MockSender) Send(ctx context.Context, req *httptransport.Request) (*httptransport.RawResponse, error) {
	if !m.KeepBody && req != nil {
		rc, err := req.Body().Open()
		if err != nil {
			return nil, err
		}
		_ = rc.Close()
	}

	arguments := m.Called(ctx, req)
	if arguments.Get(0) == nil {
		return nil, arguments.Error(1)
	}
	return arguments.Get(0).(*httptransport.RawResponse), arguments.Error(1)
}

// Stats implements httpclient.Client. It returns zero stats unless an
// expectation is set.
func (m *MockSender) Stats() httpclient.Stats {
	if !m.hasExpectation("Stats") {
		return httpclient.Stats{}
	}
	return m.Called().Get(0).(httpclient.Stats)
}

// ExpectSend queues one Send result.
func (m *MockSender) ExpectSend(resp *httptransport.RawResponse, err error) *mock.Call {
	return m.On("Send", mock.Anything, mock.Anything).Return(resp, err).Once()
}

// SendCount returns how many times Send was called.
func (m *MockSender) SendCount() int {
	n := 0
	for _, call := range m.Calls {
		if call.Method == "Send" {
			n++
		}
	}
	return n
}

func (m *MockSender) hasExpectation(method string) bool {
	for _, call := range m.ExpectedCalls {
		if call.Method == method {
			return true
		}
	}
	return false
}

// MockRetryStrategy provides a testify-based mock implementation of
// httptransport.RetryStrategy.
type MockRetryStrategy struct {
	mock.Mock
}

var _ httptransport.RetryStrategy = (*MockRetryStrategy)(nil)

// Execute implements httptransport.RetryStrategy
func (m *MockRetryStrategy) Execute(ctx context.Context, sender httptransport.Sender, req *httptransport.Request) httptransport.Response {
	arguments := m.Called(ctx, sender, req)
	return arguments.Get(0).(httptransport.Response)
}
