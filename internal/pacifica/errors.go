package pacifica

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEnvelopeExpired matches errors where the exchange rejected a request
// because its signed timestamp fell outside the expiry window.
var ErrEnvelopeExpired = errors.New("signed request expired")

// APIError is any failure talking to the exchange: transport errors,
// non-2xx replies and unsuccessful responses.
type APIError struct {
	Endpoint string
	Status   int
	Code     string
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil && e.Status == 0:
		return fmt.Sprintf("pacifica %s: %v", e.Endpoint, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("pacifica %s: status %d: %v", e.Endpoint, e.Status, e.Err)
	case e.Code != "":
		return fmt.Sprintf("pacifica %s: status %d: %s (code %s)", e.Endpoint, e.Status, e.Message, e.Code)
	default:
		return fmt.Sprintf("pacifica %s: status %d: %s", e.Endpoint, e.Status, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Is reports expiry rejections as ErrEnvelopeExpired.
func (e *APIError) Is(target error) bool {
	return target == ErrEnvelopeExpired && e.Expired()
}

// Expired reports whether the exchange rejected the request for an elapsed
// expiry window.
func (e *APIError) Expired() bool {
	text := strings.ToLower(e.Code + " " + e.Message)
	return strings.Contains(text, "expired") || strings.Contains(text, "expiry")
}

// Transport reports whether the request never got a reply.
func (e *APIError) Transport() bool {
	return e.Status == 0 && e.Err != nil
}
