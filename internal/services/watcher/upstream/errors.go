package upstream

import (
	"errors"
	"fmt"
)

// Classifier flags reported in Error.Flag.
const (
	FlagRateLimited   = "rate_limited"
	FlagServerError   = "server_error"
	FlagLoggedOut     = "session_logged_out"
	flagHTTPStatusFmt = "http_%d"
)

// ErrMalformedResponse marks a body that is not JSON or lacks the expected
// envelope shape.
var ErrMalformedResponse = errors.New("malformed upstream response")

// ErrThreadNotFound is the version-check answer for a batch whose threads are
// gone upstream. It is recoverable per batch.
var ErrThreadNotFound = errors.New("thread not found")

// Error is a structured upstream failure detected from the response itself:
// rate limiting, maintenance pages, an expired session, or a bare HTTP error.
type Error struct {
	Flag       string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream error %s (http %d)", e.Flag, e.StatusCode)
	}
	return "upstream error " + e.Flag
}

// StatusError is a well-formed envelope whose status is not "ok".
type StatusError struct {
	Endpoint string
	Status   string
	Msg      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %q: %s", e.Endpoint, e.Status, e.Msg)
}
