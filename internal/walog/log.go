// Package walog: append/truncate half of the LogEngine. Modeled on
// the teacher's resource-lifecycle style (open, operate, fsync,
// close every call — no retained file handle between calls) seen in
// aegistudio/go-winfsp's host_windows.go FSP callbacks, adapted here
// to the POSIX open/pwrite/fsync/close sequence
// _examples/other_examples/.../Jipok-go-persist__wal.go uses for its
// own append-only store.
package walog

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Log manages the on-disk redo log file for a single data file.
type Log struct {
	path string
}

// Open returns a Log bound to path. The log file itself is created
// lazily by the first Append.
func Open(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file's path.
func (l *Log) Path() string { return l.path }

// Append writes one frame to the end of the log and fsyncs the log
// file, so that by the time Append returns, the frame is durable.
func (l *Log) Append(f Frame) error {
	if err := l.AppendNoSync(f); err != nil {
		return err
	}
	return l.Fsync()
}

// AppendNoSync writes one frame to the end of the log without
// fsyncing it. Record.Sync uses this to control exactly when the log
// becomes durable relative to the data file's own fsync.
func (l *Log) AppendNoSync(f Frame) error {
	fd, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return errors.Wrap(err, "open log for append")
	}
	defer fd.Close()

	if _, err := fd.Write(Encode(f)); err != nil {
		return errors.Wrap(err, "write log frame")
	}
	return nil
}

// Fsync flushes the log file to stable storage.
func (l *Log) Fsync() error {
	fd, err := os.OpenFile(l.path, os.O_WRONLY, 0666)
	if err != nil {
		return errors.Wrap(err, "open log for fsync")
	}
	defer fd.Close()
	return errors.Wrap(fd.Sync(), "fsync log")
}

// ReadAll reads the entire log file's bytes. It returns an empty
// slice, not an error, if the log does not exist.
func (l *Log) ReadAll() ([]byte, error) {
	buf, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read log")
	}
	return buf, nil
}

// Size reports the log file's size in bytes, or 0 if it does not
// exist.
func (l *Log) Size() (int64, error) {
	st, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "stat log")
	}
	return st.Size(), nil
}

// Truncate implements the log truncation sequence from spec.md §4.7:
// unlink the log file, then create an empty replacement, then fsync
// the containing directory so the unlink and re-creation are
// themselves durable. The
// caller must have already fsynced the data file before calling
// Truncate, since a crash between unlink and create is defined to
// leave "nothing to replay", which is only correct if the data file
// is already consistent.
func (l *Log) Truncate() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unlink log")
	}
	fd, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return errors.Wrap(err, "recreate log")
	}
	if err := fd.Close(); err != nil {
		return errors.Wrap(err, "close recreated log")
	}
	return l.syncDir()
}

// syncDir fsyncs the log's parent directory so that the log file's
// recreation is durable even across a crash that loses the page
// cache entry for the directory entry itself.
func (l *Log) syncDir() error {
	dir, err := os.Open(filepath.Dir(l.path))
	if err != nil {
		return errors.Wrap(err, "open log directory")
	}
	defer dir.Close()
	return errors.Wrap(dir.Sync(), "fsync log directory")
}
