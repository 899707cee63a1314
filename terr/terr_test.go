package terr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormattingWithoutCause(t *testing.T) {
	err := New(NotFound, "no match")
	want := "NotFound: no match"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestErrorFormattingWithCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(EngineError, "insert failed", cause)
	want := "EngineError: insert failed: disk full"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(Cancelled, "aborted", cause)
	if errors.Unwrap(err) != cause {
		t.Fatalf("expected Unwrap to return the original cause")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}

func TestIsFindsKindThroughWrapping(t *testing.T) {
	inner := New(TooMany, "multiple matches")
	outer := fmt.Errorf("operation failed: %w", inner)
	if !Is(outer, TooMany) {
		t.Fatalf("expected Is to see through fmt.Errorf wrapping")
	}
	if Is(outer, NotFound) {
		t.Fatalf("expected Is to reject the wrong kind")
	}
}

func TestIsOnPlainErrorIsFalse(t *testing.T) {
	if Is(errors.New("plain"), EngineError) {
		t.Fatalf("expected a plain error to never match any Kind")
	}
	if Is(nil, EngineError) {
		t.Fatalf("expected a nil error to never match any Kind")
	}
}

func TestAsErrorRecoversConcreteType(t *testing.T) {
	original := New(InvalidOperation, "bad args")
	wrapped := fmt.Errorf("context: %w", original)
	var target *Error
	if !errors.As(wrapped, &target) {
		t.Fatalf("expected errors.As to recover the *Error")
	}
	if target.Kind != InvalidOperation {
		t.Fatalf("recovered Kind = %v, want %v", target.Kind, InvalidOperation)
	}
}
