package transport

import (
	"fmt"
	"net/http"
	"time"
)

// HTTPError is returned when a response arrives with a non-2xx status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status %d %s: %s %s", e.StatusCode, http.StatusText(e.StatusCode), e.Method, e.URL)
}

// StatusText is the transport's default message for the response status.
func (e *HTTPError) StatusText() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// TimeoutError is returned when no response arrived within the per-request timeout.
type TimeoutError struct {
	Method  string
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s: %s %s", e.Timeout, e.Method, e.URL)
}
