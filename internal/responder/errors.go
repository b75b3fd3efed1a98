package responder

import (
	"errors"
	"fmt"
)

// ErrNotConfigured means no access credential is set; generation fails
// fast without a network call.
var ErrNotConfigured = errors.New("responder gateway not configured")

// ErrMalformedResponse means the upstream answered 200 but the generated
// text was missing from the expected structural path.
var ErrMalformedResponse = errors.New("malformed responder response")

// UpstreamError is any non-success response from the external capability.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("responder upstream error %d: %s", e.StatusCode, e.Body)
}
