// Package lockfile implements the whole-file exclusive advisory lock
// that gives a FileHandle cross-process mutual exclusion. The Lock
// type is adapted from aegistudio/go-winfsp's pathlock.Lock: a
// reference object released exactly once, with a finalizer safety
// net, except the thing being locked is an OS file descriptor guarded
// by flock(2) rather than an in-process path namespace.
package lockfile

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by Acquire when another process already
// holds the lock.
var ErrWouldBlock = errors.New("file is locked by another process")

// Lock is the reference object held by a FileHandle for as long as it
// is open. Unlock is idempotent and safe to call from a finalizer.
type Lock struct {
	fd         int
	unlockOnce sync.Once
	unlockErr  error
	explicit   atomic.Bool
}

// Acquire takes a non-blocking, whole-file exclusive advisory lock on
// fd. It returns ErrWouldBlock if another process holds the lock.
//
// onLeak, if non-nil, is invoked from a runtime finalizer if the Lock
// is garbage collected before Unlock was ever called; it exists
// purely to surface a diagnostic, never to recover the lock itself,
// since by that point the owning FileHandle was already abandoned by
// its caller.
func Acquire(fd int, onLeak func()) (*Lock, error) {
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return nil, ErrWouldBlock
		}
		return nil, errors.Wrap(err, "flock")
	}
	l := &Lock{fd: fd}
	runtime.SetFinalizer(l, func(leaked *Lock) {
		if !leaked.explicit.Load() && onLeak != nil {
			onLeak()
		}
		leaked.unlock()
	})
	return l, nil
}

// Unlock releases the lock. Safe to call more than once; only the
// first call has any effect.
func (l *Lock) Unlock() error {
	l.explicit.Store(true)
	runtime.SetFinalizer(l, nil)
	return l.unlock()
}

func (l *Lock) unlock() error {
	l.unlockOnce.Do(func() {
		l.unlockErr = errors.Wrap(unix.Flock(l.fd, unix.LOCK_UN), "funlock")
	})
	return l.unlockErr
}
