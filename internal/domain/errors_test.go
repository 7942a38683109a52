package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrorMessage(t *testing.T) {
	err := NewDomainError("Router.Invoke", ErrToolNotFound, "comet:search")
	want := "Router.Invoke: comet:search: tool not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	bare := NewDomainError("Router.Invoke", ErrToolNotFound, "")
	if bare.Error() != "Router.Invoke: tool not found" {
		t.Errorf("got %q", bare.Error())
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("orchestrator.run", ErrDeadlineExceeded, "task_1")
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Error("expected errors.Is to find the sentinel")
	}
}

func TestErrorCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeUnknown},
		{ErrNoTemplateMatch, CodeNoTemplateMatch},
		{NewDomainError("op", ErrDeadlineExceeded, ""), CodeTimeout},
		{fmt.Errorf("outer: %w", ErrStepFailed), CodeStepFailed},
		{fmt.Errorf("outer: %w", NewDomainError("op", ErrTaskCancelled, "")), CodeCancelled},
		{errors.New("something else"), CodeUnknown},
	}
	for _, tc := range cases {
		if got := ErrorCodeOf(tc.err); got != tc.want {
			t.Errorf("ErrorCodeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
	wrapped := WrapOp("op", ErrToolNotFound)
	if !errors.Is(wrapped, ErrToolNotFound) {
		t.Error("WrapOp lost the sentinel")
	}
}

func TestDomainErrorCode(t *testing.T) {
	if code := NewDomainError("op", ErrBridgeUnavailable, "").Code(); code != CodeBridgeUnavailable {
		t.Errorf("got %s", code)
	}
	if code := NewDomainError("op", errors.New("misc"), "").Code(); code != CodeUnknown {
		t.Errorf("got %s", code)
	}
}
