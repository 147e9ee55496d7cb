package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{NotFound("task %s not found", "t1"), KindNotFound},
		{Unauthorized("missing bearer token"), KindUnauthorized},
		{Forbidden("owner x is outside your scope"), KindForbidden},
		{Conflict("benchmark exists"), KindConflict},
		{Validation("bad status"), KindValidation},
		{Precondition("task has no episode"), KindPrecondition},
		{DependencyMissing("prompt p1 not found"), KindDependencyMissing},
		{RemoteFailure(500, "remote blew up"), KindRemoteFailure},
		{Timeout("deadline"), KindTimeout},
		{Transient(errors.New("connection reset")), KindTransient},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Errorf("KindOf(%v) = %v, want %v", tc.err, got, tc.kind)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("saving task: %w", NotFound("task t1 not found"))
	if !IsNotFound(err) {
		t.Fatalf("wrapped not-found error should still classify")
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("KindOf(wrapped) = %v", KindOf(err))
	}
}

func TestIsRemoteNotFound(t *testing.T) {
	if !IsRemoteNotFound(RemoteFailure(404, "no such task")) {
		t.Fatal("404 remote failure should read as remote not found")
	}
	if IsRemoteNotFound(RemoteFailure(500, "boom")) {
		t.Fatal("500 remote failure is not a remote not found")
	}
	if IsRemoteNotFound(NotFound("local miss")) {
		t.Fatal("local not found is not a remote not found")
	}
	if IsRemoteNotFound(nil) {
		t.Fatal("nil is not a remote not found")
	}
}

func TestErrorMessage(t *testing.T) {
	err := NotFound("task %s not found", "t1")
	if err.Error() != "task t1 not found" {
		t.Fatalf("Error() = %q", err.Error())
	}

	wrapped := Transient(errors.New("connection reset"))
	if wrapped.Error() != "transient: connection reset" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, wrapped.Err) {
		t.Fatal("Transient should unwrap to its cause")
	}
}

func TestPredicates(t *testing.T) {
	if !IsConflict(Conflict("dup")) || IsConflict(Validation("nope")) {
		t.Fatal("IsConflict misclassified")
	}
	if !IsTimeout(Timeout("slow")) || IsTimeout(Conflict("dup")) {
		t.Fatal("IsTimeout misclassified")
	}
}
