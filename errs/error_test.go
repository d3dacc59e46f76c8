package errs

import (
	"errors"
	"testing"
)

func TestCodeErrorIs(t *testing.T) {
	err := Unknown.Printf("test")
	if !errors.Is(err, Unknown) {
		t.Fatalf("expected wrapped error to match Unknown by code, got %v", err)
	}
	if errors.Is(err, ChannelFull) {
		t.Fatalf("expected wrapped error not to match a different code")
	}
}

func TestCodeErrorPrint(t *testing.T) {
	err := ChannelFull.Print("worker-1", "queue=64")
	if err.Code() != ErrCode_ChannelFull {
		t.Fatalf("expected code %d, got %d", ErrCode_ChannelFull, err.Code())
	}
	if err.Error() == ChannelFull.Error() {
		t.Fatalf("expected Print to extend the description")
	}
}

func TestWrapError(t *testing.T) {
	plain := errors.New("boom")
	wrapped := WrapError(plain)
	if wrapped.Code() != ErrCode_Unknown {
		t.Fatalf("expected unknown code for a non-CodeError, got %d", wrapped.Code())
	}
}
