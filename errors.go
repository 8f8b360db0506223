package txnfs

import (
	"github.com/pkg/errors"
)

// Kind classifies an Error so callers can branch on failure mode
// without matching on message text.
type Kind int

const (
	// KindIoError wraps any OS-level failure: open, pwrite, fsync,
	// mmap, unlink, truncate.
	KindIoError Kind = iota

	// KindBusy means another process holds the file's advisory lock.
	KindBusy

	// KindWouldTruncate means Open requested a length shorter than
	// the file's existing content.
	KindWouldTruncate

	// KindStillOpen means Remove was invoked on an owned handle.
	KindStillOpen

	// KindNotOpen means Close was invoked on a handle already closed.
	KindNotOpen

	// KindNotOwner means Read/Write was invoked from a process other
	// than the handle's owning_pid.
	KindNotOwner

	// KindInvalidArgument means an offset/length bounds violation.
	KindInvalidArgument

	// KindInvalidState means Abort was invoked on a record that is
	// neither pending nor partially synced.
	KindInvalidState

	// KindCorrupt names a torn or corrupt log frame. No exported
	// operation returns it: the recovery driver treats such a frame as
	// the end of valid log history and stops replay there, not as a
	// failure.
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindIoError:
		return "IoError"
	case KindBusy:
		return "Busy"
	case KindWouldTruncate:
		return "WouldTruncate"
	case KindStillOpen:
		return "StillOpen"
	case KindNotOpen:
		return "NotOpen"
	case KindNotOwner:
		return "NotOwner"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidState:
		return "InvalidState"
	case KindCorrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every exported
// operation. Use errors.As to recover the Kind.
type Error struct {
	kind Kind
	op   string
	err  error
}

// Kind reports the classification of this error.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.err == nil {
		return e.op + ": " + e.kind.String()
	}
	return e.op + ": " + e.kind.String() + ": " + e.err.Error()
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.err }

func newErr(kind Kind, op string, cause error) *Error {
	return &Error{kind: kind, op: op, err: cause}
}

// wrapIo reports an OS-level failure with operation context, the way
// the teacher wraps syscalls with errors.Wrap/errors.Wrapf.
func wrapIo(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return newErr(KindIoError, op, errors.Wrap(cause, op))
}

// Is lets plain sentinels (ErrBusy, ErrWouldTruncate, ...) compare
// equal to any *Error of the same Kind via errors.Is, without
// requiring both sides to share the same op/cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == other.kind
}

// Sentinel errors for errors.Is comparisons against a bare Kind,
// mirroring the os.ErrExist/os.ErrNotExist/os.ErrPermission sentinels
// the teacher compares against in convertNTStatus.
var (
	ErrBusy            = &Error{kind: KindBusy}
	ErrWouldTruncate   = &Error{kind: KindWouldTruncate}
	ErrStillOpen       = &Error{kind: KindStillOpen}
	ErrNotOpen         = &Error{kind: KindNotOpen}
	ErrNotOwner        = &Error{kind: KindNotOwner}
	ErrInvalidArgument = &Error{kind: KindInvalidArgument}
	ErrInvalidState    = &Error{kind: KindInvalidState}
)
