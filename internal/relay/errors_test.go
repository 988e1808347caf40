package relay

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Is_matches_kind(t *testing.T) {
	err := fmt.Errorf("relay: %w", newError(KindNotFound, "unknown or expired token", nil))

	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped not-found error should match ErrNotFound")
	}
	if errors.Is(err, ErrStoreUnavailable) {
		t.Error("not-found error must not match ErrStoreUnavailable")
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf: got %q", KindOf(err))
	}
}

func TestError_unwraps_cause(t *testing.T) {
	cause := errors.New("connection reset")
	err := newError(KindNetwork, "failed to fetch upstream", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
	if got := err.Error(); got != "network_error: failed to fetch upstream: connection reset" {
		t.Errorf("Error(): got %q", got)
	}
	if got := detail(err); got != "failed to fetch upstream: connection reset" {
		t.Errorf("detail: got %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrMissingParameter, http.StatusBadRequest},
		{ErrMalformedReference, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{ErrNetwork, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDetail_plain_error(t *testing.T) {
	if got := detail(errors.New("boom")); got != "boom" {
		t.Errorf("got %q", got)
	}
	if got := detail(ErrNotFound); got != "not_found" {
		t.Errorf("got %q", got)
	}
}
