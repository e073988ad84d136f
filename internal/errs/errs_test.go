package errs

import (
	"errors"
	"reflect"
	"testing"
)

func TestErrorChainStringsFollowsWrapAndJoin(t *testing.T) {
	root := errors.New("disk full")
	other := errors.New("lock lost")
	err := Wrap(errors.Join(root, other), "save payout")

	got := ErrorChainStrings(err)
	want := []string{"save payout: disk full\nlock lost", "disk full\nlock lost", "disk full", "lock lost"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ErrorChainStrings() = %q, want %q", got, want)
	}
}

func TestWrapfKeepsChain(t *testing.T) {
	root := errors.New("boom")
	err := Wrapf(root, "load claim %s", "CLM-1")
	if !errors.Is(err, root) {
		t.Fatalf("errors.Is(Wrapf()) = false")
	}
	if err.Error() != "load claim CLM-1: boom" {
		t.Fatalf("Wrapf() = %q", err.Error())
	}
	if Wrap(nil, "x") != nil || Wrapf(nil, "x") != nil || WithStack(nil) != nil {
		t.Fatalf("nil errors must stay nil")
	}
}

func TestWithStackCapturesOnce(t *testing.T) {
	err := WithStack(errors.New("boom"))
	again := WithStack(Wrap(err, "outer"))

	var se *StackError
	if !errors.As(again, &se) || len(se.Stack()) == 0 {
		t.Fatalf("WithStack() lost the stack")
	}
	if _, ok := again.(*StackError); ok {
		t.Fatalf("WithStack() captured a second stack")
	}
}
