package httptransport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
)

// ErrBodyConsumed is returned when a stream body is opened a second time.
var ErrBodyConsumed = errors.New("httptransport: stream body already consumed")

// BodyKind identifies a Body variant.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyEncoded
	BodyStream
)

func (k BodyKind) String() string {
	switch k {
	case BodyEmpty:
		return "empty"
	case BodyEncoded:
		return "encoded"
	case BodyStream:
		return "stream"
	default:
		return fmt.Sprintf("BodyKind(%d)", int(k))
	}
}

// Body is the payload of a Request. The set of implementations is closed:
// EmptyBody, EncodedBody and *StreamBody.
type Body interface {
	Kind() BodyKind
	// Retryable reports whether the payload can be sent more than once.
	Retryable() bool
	// ContentType returns the MIME type, or "" when unknown.
	ContentType() string
	// ContentLength returns the payload size in bytes, or -1 when unknown.
	ContentLength() int64
	// Open returns a reader positioned at the start of the payload.
	Open() (io.ReadCloser, error)

	isBody()
}

// EmptyBody carries no payload.
type EmptyBody struct{}

func (EmptyBody) Kind() BodyKind       { return BodyEmpty }
func (EmptyBody) Retryable() bool      { return true }
func (EmptyBody) ContentType() string  { return "" }
func (EmptyBody) ContentLength() int64 { return 0 }
func (EmptyBody) Open() (io.ReadCloser, error) {
	return http.NoBody, nil
}
func (EmptyBody) isBody() {}

// EncodedBody is an in-memory payload that can be replayed any number of times.
type EncodedBody struct {
	Data     []byte
	MimeType string
}

// NewEncodedBody copies data so later mutation by the caller does not leak into retries.
func NewEncodedBody(data []byte, contentType string) EncodedBody {
	return EncodedBody{Data: bytes.Clone(data), MimeType: contentType}
}

// NewStringBody builds an EncodedBody from a string.
func NewStringBody(s, contentType string) EncodedBody {
	return EncodedBody{Data: []byte(s), MimeType: contentType}
}

func (b EncodedBody) Kind() BodyKind       { return BodyEncoded }
func (b EncodedBody) Retryable() bool      { return true }
func (b EncodedBody) ContentType() string  { return b.MimeType }
func (b EncodedBody) ContentLength() int64 { return int64(len(b.Data)) }
func (b EncodedBody) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}
func (b EncodedBody) isBody() {}

// StreamBody wraps a single-consumption source such as an open file.
// Open succeeds once; every later call returns ErrBodyConsumed.
type StreamBody struct {
	src      io.Reader
	mimeType string
	length   int64
	consumed atomic.Bool
}

// NewStreamBody wraps r. If r implements io.Closer it is closed by the reader
// returned from Open. The length is -1 (unknown).
func NewStreamBody(r io.Reader, contentType string) *StreamBody {
	return &StreamBody{src: r, mimeType: contentType, length: -1}
}

// OpenFileBody opens path for a single upload. The file handle is released
// when the transport closes the request body.
func OpenFileBody(path, contentType string) (*StreamBody, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat upload file: %w", err)
	}
	return &StreamBody{src: f, mimeType: contentType, length: info.Size()}, nil
}

func (b *StreamBody) Kind() BodyKind       { return BodyStream }
func (b *StreamBody) Retryable() bool      { return false }
func (b *StreamBody) ContentType() string  { return b.mimeType }
func (b *StreamBody) ContentLength() int64 { return b.length }
func (b *StreamBody) isBody()              {}

// Consumed reports whether Open has already been called.
func (b *StreamBody) Consumed() bool { return b.consumed.Load() }

func (b *StreamBody) Open() (io.ReadCloser, error) {
	if !b.consumed.CompareAndSwap(false, true) {
		return nil, ErrBodyConsumed
	}
	if rc, ok := b.src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(b.src), nil
}
