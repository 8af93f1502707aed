package bridge

import (
	"fmt"

	"github.com/pkg/errors"
)

// NullResultError reports that a foreign call expected to produce an object
// returned nil. It always identifies the failing operation; the bridge never
// silently substitutes a value for a foreign nil (the one documented
// exception is AssembleResults under NullMeansEmpty).
type NullResultError struct {
	// Op is the foreign operation that returned nil, e.g.
	// "MPSGraph placeholderWithShape:dataType:name:".
	Op string
}

func (e *NullResultError) Error() string {
	return fmt.Sprintf("foreign call %q returned nil", e.Op)
}

// errNullResult builds a stack-carrying NullResultError.
func errNullResult(op string) error {
	return errors.WithStack(&NullResultError{Op: op})
}

// IsNullResult reports whether err is (or wraps) a NullResultError.
func IsNullResult(err error) bool {
	var target *NullResultError
	return errors.As(err, &target)
}

// SignatureError reports that a foreign collection carried a different number
// of elements than its contract guarantees. It indicates a broken invariant
// on the foreign side and is never recovered from.
type SignatureError struct {
	Op   string
	Want int
	Got  int
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("foreign call %q: expected %d elements, got %d", e.Op, e.Want, e.Got)
}

// ClosurePanicError records a panic raised by a host closure while it was
// executing inside a trampoline. The panic is stopped at the trampoline
// boundary -- it must never unwind into the foreign runtime's stack -- and
// surfaced as this error after the installing foreign call returns.
type ClosurePanicError struct {
	// Value is the value the closure panicked with.
	Value any
	// Stack is the goroutine stack captured at recovery.
	Stack []byte
}

func (e *ClosurePanicError) Error() string {
	return fmt.Sprintf("closure panicked inside a trampoline: %v", e.Value)
}
