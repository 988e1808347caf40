package relay

import (
	"errors"
	"net/http"
)

// ErrorKind is the machine-readable category of a relay failure.
type ErrorKind string

const (
	KindMissingParameter   ErrorKind = "missing_parameter"
	KindMalformedReference ErrorKind = "malformed_reference"
	KindNotFound           ErrorKind = "not_found"
	KindNetwork            ErrorKind = "network_error"
	KindStoreUnavailable   ErrorKind = "store_unavailable"
)

// Error is the error type surfaced by the relay core. Detail is the
// human-readable message sent back to clients.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

var (
	// ErrMissingParameter is returned when a request names neither a URL nor a token.
	ErrMissingParameter = &Error{Kind: KindMissingParameter}

	// ErrMalformedReference is returned by Resolve for a URI that does not parse.
	ErrMalformedReference = &Error{Kind: KindMalformedReference}

	// ErrNotFound is returned for unknown or expired tokens.
	ErrNotFound = &Error{Kind: KindNotFound}

	// ErrNetwork is returned when the upstream fetch fails or times out.
	ErrNetwork = &Error{Kind: KindNetwork}

	// ErrStoreUnavailable is returned when a shared indirection backend cannot be reached.
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found failure regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the ErrorKind carried by err, or "" if err is not a relay error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code clients should see.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMissingParameter, KindMalformedReference:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// detail returns the client-facing message for err.
func detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Detail != "" && e.Err != nil:
			return e.Detail + ": " + e.Err.Error()
		case e.Detail != "":
			return e.Detail
		case e.Err != nil:
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return err.Error()
}
