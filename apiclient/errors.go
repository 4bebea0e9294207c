package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopbricks/storeclient/httpclient"
	"github.com/shopbricks/storeclient/httptransport"
)

// AsError converts a non-2xx or failed outcome into an error. It returns nil
// for a 2xx *httptransport.Success.
//
// Rate-limited and error-status responses become httpclient HTTP errors
// carrying the status and body; transport errors return their cause.
func AsError(resp httptransport.Response) error {
	switch r := resp.(type) {
	case *httptransport.Success:
		if r.IsOK() {
			return nil
		}
		return httpclient.NewHTTPError("unexpected response status", r.StatusCode, r.Body)
	case *httptransport.RateLimited:
		return httpclient.NewHTTPError(
			fmt.Sprintf("rate limited after %d attempts", r.Attempts), r.StatusCode, r.Body)
	case *httptransport.TransportError:
		return r.Err
	case nil:
		return httpclient.NewValidationError("response is nil", "response")
	default:
		return fmt.Errorf("unknown response type %T", resp)
	}
}

// DecodeJSON unmarshals a 2xx response body into v. Other outcomes return
// the AsError error.
func DecodeJSON(resp httptransport.Response, v any) error {
	if err := AsError(resp); err != nil {
		return err
	}
	body := resp.(*httptransport.Success).Body
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// IsInvalidRequest reports whether resp is a request that failed before
// anything was sent because it could not be built.
func IsInvalidRequest(resp httptransport.Response) bool {
	te, ok := resp.(*httptransport.TransportError)
	return ok && errors.Is(te.Err, httptransport.ErrInvalidRequest)
}

// invalidRequest wraps a build failure so that it matches
// httptransport.ErrInvalidRequest.
func invalidRequest(err error) httptransport.Response {
	if !errors.Is(err, httptransport.ErrInvalidRequest) {
		err = fmt.Errorf("%w: %w", httptransport.ErrInvalidRequest, err)
	}
	return &httptransport.TransportError{Err: err}
}
