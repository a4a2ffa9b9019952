package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := NewError(ErrCodeConflict, "version 3 is not current")
	wrapped := fmt.Errorf("append: %w", err)

	if !errors.Is(wrapped, &Error{Code: ErrCodeConflict}) {
		t.Error("expected match by code")
	}
	if errors.Is(wrapped, &Error{Code: ErrCodeNotFound}) {
		t.Error("unexpected match on different code")
	}
}

func TestWireRoundTrip(t *testing.T) {
	for _, code := range []string{
		ErrCodeConflict,
		ErrCodeInvalidState,
		ErrCodeNotFound,
		ErrCodeIOError,
		ErrCodeInvalidMessage,
	} {
		orig := NewError(code, "boom")
		back := FromWire(orig.Wire())
		if back == nil {
			t.Fatalf("%s: lost on the wire", code)
		}
		if back.Code != orig.Code || back.Message != orig.Message {
			t.Errorf("%s: got %+v", code, back)
		}
	}
}

func TestFromWireUnrecognized(t *testing.T) {
	if got := FromWire(errors.New("plain")); got != nil {
		t.Errorf("expected nil for non-rpc error, got %+v", got)
	}
}
