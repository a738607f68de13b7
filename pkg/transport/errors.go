// Package transport fetches package documents and payloads over HTTP.
//
// HTTPFetcher retries transient failures (429, 5xx, network errors) with
// exponential backoff, stops calling a host that keeps failing through a
// per-host circuit breaker, caches DNS lookups and can be rate limited. It is
// the production implementation of the fetch capability the installers take.
package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is wrapped by every error HTTPFetcher returns.
	ErrTransport = errors.New("transport error")

	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("request not authorized")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream unavailable")
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)

// Error carries the URL and, when a response was received, its status code.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// retriable reports whether a failed attempt is worth repeating.
func retriable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown)
}
