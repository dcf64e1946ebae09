package mabain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesSentinel(t *testing.T) {
	err := newErr("Find", KindNotExist, nil)
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("errors.Is(%v, ErrNotExist) = false, want true", err)
	}
	if errors.Is(err, ErrInDict) {
		t.Fatalf("errors.Is(%v, ErrInDict) = true, want false", err)
	}
}

func TestErrorUnwrapReachesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := newErr("Add", KindWriteError, cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is did not reach wrapped cause %v", cause)
	}
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	err := newErr("Remove", KindNotExist, nil)
	got := err.Error()
	want := "Remove: key does not exist"
	if got != want {
		t.Fatalf("Error(): got %q, want %q", got, want)
	}
}

func TestKindWithNoSentinelIsNotAnySentinel(t *testing.T) {
	err := newErr("Open", KindMmapFailed, nil)
	for _, sentinel := range []error{ErrNotExist, ErrInDict, ErrDBClosed} {
		if errors.Is(err, sentinel) {
			t.Fatalf("errors.Is(%v, %v) = true, want false", err, sentinel)
		}
	}
}
