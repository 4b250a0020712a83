package main

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapExit(t *testing.T) {
	if err := mapExit(nil); err != nil {
		t.Fatalf("nil maps to nil, got %v", err)
	}

	plain := fmt.Errorf("network down")
	if err := mapExit(plain); err != plain {
		t.Fatalf("plain errors pass through, got %v", err)
	}

	cases := []struct {
		code string
		want int
	}{
		{codeInvalidTransition, exitInvalidTransition},
		{codeUnknownContainer, exitUnknownContainer},
	}
	for _, tc := range cases {
		err := mapExit(&APIError{Code: tc.code, Message: "m"})
		var ee *exitError
		if !errors.As(err, &ee) {
			t.Fatalf("%s: expected exitError, got %v", tc.code, err)
		}
		if ee.code != tc.want {
			t.Fatalf("%s: exit code %d, want %d", tc.code, ee.code, tc.want)
		}
	}

	// Unrecognized API codes pass through unmapped.
	other := &APIError{Code: "bad_request", Message: "m"}
	if err := mapExit(other); err != error(other) {
		t.Fatalf("unmapped code should pass through, got %v", err)
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	inner := &APIError{Code: codeUnknownContainer, Message: "no such container"}
	ee := &exitError{code: exitUnknownContainer, err: inner}
	if ee.Error() != "no such container" {
		t.Fatalf("unexpected message: %q", ee.Error())
	}
	var apiErr *APIError
	if !errors.As(ee, &apiErr) {
		t.Fatalf("exitError should unwrap to APIError")
	}
}
