package nativebridge

import (
	"context"
	"errors"
	"strings"

	"github.com/Gaurav-Gosain/nativebridge/internal/affinity"
)

// Kind categorizes bridge errors.
type Kind string

const (
	KindAllocation     Kind = "allocation"      // foreign resource could not be created
	KindInvalidHandle  Kind = "invalid_handle"  // null, released or foreign handle
	KindForeignRuntime Kind = "foreign_runtime" // the foreign call faulted
	KindTimeout        Kind = "timeout"         // bounded wait exceeded
	KindSessionClosed  Kind = "session_closed"  // session torn down
	KindNotInitialized Kind = "not_initialized" // session used before Initialize
)

// Error is the structured error returned by bridge operations.
type Error struct {
	Cause  error
	Kind   Kind
	Op     string
	Handle Handle
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrAllocation     = &Error{Kind: KindAllocation}
	ErrInvalidHandle  = &Error{Kind: KindInvalidHandle}
	ErrForeignRuntime = &Error{Kind: KindForeignRuntime}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrSessionClosed  = &Error{Kind: KindSessionClosed}
	ErrNotInitialized = &Error{Kind: KindNotInitialized}
)

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString("nativebridge: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if !e.Handle.IsNull() {
		b.WriteString(" (handle ")
		b.WriteString(e.Handle.String())
		b.WriteByte(')')
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, op string, h Handle, cause error) *Error {
	return &Error{Kind: kind, Op: op, Handle: h, Cause: cause}
}

// classify maps an error coming back from the affinity loop. Errors that
// are already *Error pass through, loop errors get their kind, a canceled
// context is returned as is and anything else is a fault raised by the
// foreign runtime.
func classify(op string, h Handle, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	switch {
	case errors.Is(err, affinity.ErrClosed):
		return newError(KindSessionClosed, op, h, nil)
	case errors.Is(err, affinity.ErrTimeout):
		return newError(KindTimeout, op, h, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, op, h, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return newError(KindForeignRuntime, op, h, err)
}
