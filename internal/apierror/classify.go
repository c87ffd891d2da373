package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvcrn/authclient/internal/transport"
)

const (
	unknownMessage = "An unknown error occurred"
	timeoutMessage = "Request timed out"
)

// Classify turns any failure value into an *Error. It never panics and
// never returns nil; already classified errors are returned unchanged.
func Classify(v any) (classified *Error) {
	defer func() {
		if r := recover(); r != nil {
			classified = &Error{Kind: KindUnknown, Message: unknownMessage}
		}
	}()

	err, ok := v.(error)
	if !ok || err == nil {
		return &Error{Kind: KindUnknown, Message: unknownMessage}
	}

	if e, ok := As(err); ok {
		return e
	}

	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Message: timeoutMessage, Cause: err}
	}

	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		return classifyResponse(httpErr)
	}

	return &Error{Kind: KindNetwork, Message: err.Error(), Cause: err}
}

func isTimeout(err error) bool {
	var timeoutErr *transport.TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classifyResponse(httpErr *transport.HTTPError) *Error {
	body := parseBody(httpErr.Body)

	e := &Error{
		Kind:       kindForStatus(httpErr.StatusCode),
		Message:    body.message(httpErr.StatusText()),
		StatusCode: httpErr.StatusCode,
		Cause:      httpErr,
	}

	switch e.Kind {
	case KindValidation:
		e.FieldErrors = body.FieldErrors
	case KindRateLimit:
		e.RetryAfter = parseRetryAfter(httpErr.Header)
	}
	return e
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindAuthentication
	case http.StatusForbidden:
		return KindAuthorization
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindServer
	default:
		return KindUnknown
	}
}

// parseRetryAfter reads Retry-After as whole seconds. HTTP-date values and
// garbage are treated as absent.
func parseRetryAfter(h http.Header) *int {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return nil
	}
	return &seconds
}

type errorBody struct {
	Message     string
	Error       string
	FieldErrors map[string][]string
}

func (b errorBody) message(fallback string) string {
	if b.Message != "" {
		return b.Message
	}
	if b.Error != "" {
		return b.Error
	}
	return fallback
}

// parseBody extracts message, error and errors from a JSON object body.
// Anything that is not a JSON object yields an empty errorBody.
func parseBody(data []byte) errorBody {
	var out errorBody
	var raw map[string]json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &raw) != nil {
		return out
	}

	out.Message = stringOrList(raw["message"])
	out.Error = stringOrList(raw["error"])
	out.FieldErrors = fieldErrors(raw["errors"])
	return out
}

// stringOrList accepts "msg" or ["msg1", "msg2"].
func stringOrList(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

// fieldErrors accepts {"field": ["msg"]} and {"field": "msg"}.
func fieldErrors(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil || len(fields) == 0 {
		return nil
	}
	out := make(map[string][]string, len(fields))
	for field, v := range fields {
		var list []string
		if json.Unmarshal(v, &list) == nil {
			out[field] = list
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[field] = []string{s}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
