package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// failureClass decides whether an attempt is worth repeating.
type failureClass int

const (
	classRetryable failureClass = iota
	classTerminal
)

// classify maps a fetch error to its retry class.
//
// Retryable: network errors and timeouts, 5xx, 429, malformed bodies.
// Terminal: any other 4xx — a client-side error a retry cannot fix.
func classify(err error) failureClass {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return classRetryable
		case httpErr.StatusCode >= 500:
			return classRetryable
		case httpErr.StatusCode >= 400:
			return classTerminal
		default:
			return classRetryable
		}
	}
	// Transport errors, timeouts, malformed bodies.
	return classRetryable
}

// failureReason renders a stable reason string for the manifest.
func failureReason(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("http-%d", httpErr.StatusCode)
	}
	if errors.Is(err, ErrMalformedBody) {
		return "malformed-body"
	}
	return err.Error()
}
