// Package apierror maps transport failures to a single tagged error type.
//
// Every failure leaving the client is an *Error whose Kind tells callers what
// went wrong; the raw transport error is kept as Cause.
package apierror

import "errors"

// Kind discriminates classified errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindValidation
	KindRateLimit
	KindServer
	KindTimeout
	KindNetwork
)

var kindNames = map[Kind]string{
	KindUnknown:        "UnknownError",
	KindAuthentication: "AuthenticationError",
	KindAuthorization:  "AuthorizationError",
	KindNotFound:       "NotFoundError",
	KindValidation:     "ValidationError",
	KindRateLimit:      "RateLimitError",
	KindServer:         "ServerError",
	KindTimeout:        "TimeoutError",
	KindNetwork:        "NetworkError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrUnknown        = &Error{Kind: KindUnknown}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrServer         = &Error{Kind: KindServer}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrNetwork        = &Error{Kind: KindNetwork}
)

// Error is a classified failure. Values are never modified after Classify
// returns them.
type Error struct {
	Kind    Kind
	Message string
	// StatusCode is zero when no response was received.
	StatusCode int
	// RetryAfter is the Retry-After header in seconds, nil when absent.
	RetryAfter *int
	// FieldErrors holds per-field messages of a validation failure.
	FieldErrors map[string][]string
	Cause       error
}

// Name returns the per-kind error name, e.g. "NotFoundError".
func (e *Error) Name() string {
	return e.Kind.String()
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
