package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the login and token exchange path.
type ErrorKind int

const (
	// KindMissingVerifier means a callback carried a code but no verifier was stored.
	// The flow cannot be recovered; the user has to start a new login.
	KindMissingVerifier ErrorKind = iota + 1
	// KindTokenEndpoint covers non-success responses and transport failures of the token endpoint.
	KindTokenEndpoint
	// KindMalformedResponse means the token endpoint answered 2xx without the required fields.
	KindMalformedResponse
	// KindUnauthenticated is returned when a valid access token was required but none is held.
	KindUnauthenticated
	// KindTimeout means the token exchange did not finish within the configured timeout.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingVerifier:
		return "MissingVerifier"
	case KindTokenEndpoint:
		return "TokenEndpointError"
	case KindMalformedResponse:
		return "MalformedResponse"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the tagged error returned by the auth core.
// It never carries token material or raw provider response bodies.
type Error struct {
	Kind ErrorKind
	Op   string
	// Status is the HTTP status of the token endpoint response, if one was received.
	Status int
	// Code is the OAuth2 error code reported by the provider, if any.
	Code string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnauthenticated is wrapped by every KindUnauthenticated error.
var ErrUnauthenticated = errors.New("not authenticated")

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind == kind
	}
	return false
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
