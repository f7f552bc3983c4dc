package scraper

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when the encoded cache is read before any run
// has populated it.
var ErrNotReady = errors.New("movie snapshot not yet available")

// NetworkError reports a failed remote retrieval: timeout, connection
// failure, or a non-success status code.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RenderError reports a headless rendering failure.
type RenderError struct {
	URL string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.URL, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PersistenceError reports a failure in one writer sink.
type PersistenceError struct {
	Sink SinkName
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Sink, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
