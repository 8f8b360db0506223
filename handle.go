package txnfs

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/txnfs/txnfs/internal/lockfile"
	"github.com/txnfs/txnfs/internal/record"
	"github.com/txnfs/txnfs/internal/walog"
)

// FileHandle is the per-open-file state: mapped view, current
// length, owning process id, redo log and pending WriteRecords.
// Obtain one with FileSystem.Open; never construct directly.
type FileHandle struct {
	fs       *FileSystem
	filename string
	path     string
	logPath  string

	mu   sync.Mutex
	fd   *os.File
	lock *lockfile.Lock
	view []byte
	log  *walog.Log

	length    atomic.Uint64
	owningPid atomic.Int64

	pending []*record.Record // ordered by issuance
}

// Path returns the absolute path of the managed data file.
func (h *FileHandle) Path() string { return h.path }

// LogPath returns the absolute path of the file's redo log.
func (h *FileHandle) LogPath() string { return h.logPath }

// GetLength returns the handle's current logical length.
func (h *FileHandle) GetLength() uint64 { return h.length.Load() }

func (h *FileHandle) isOpen() bool { return h.owningPid.Load() != 0 }

func (h *FileHandle) checkOwner() error {
	if h.owningPid.Load() != int64(os.Getpid()) {
		return newErr(KindNotOwner, "check owner", nil)
	}
	return nil
}

// Open opens filename inside fs, creating it if absent, extending it
// to requestedLength if it is smaller, mapping it into memory, and then
// replaying any durable redo log onto it. See spec.md §4.2 for the
// full policy.
func (fs *FileSystem) Open(filename string, requestedLength uint64) (*FileHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if existing, ok := fs.files[filename]; ok {
		if existing.isOpen() {
			return nil, newErr(KindBusy, "open", nil)
		}
		if existing.length.Load() > requestedLength {
			return nil, newErr(KindWouldTruncate, "open", nil)
		}
	}

	path := fs.dataPath(filename)
	logPath := logPathFor(path)

	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, wrapIo("open data file", err)
	}

	onLeak := func() {
		fs.diag.Infof("lock on %s released by finalizer, not Close", filename)
	}
	lock, err := lockfile.Acquire(int(fd.Fd()), onLeak)
	if err != nil {
		fd.Close()
		if errors.Is(err, lockfile.ErrWouldBlock) {
			return nil, newErr(KindBusy, "open", nil)
		}
		return nil, wrapIo("acquire lock", err)
	}

	st, err := fd.Stat()
	if err != nil {
		lock.Unlock()
		fd.Close()
		return nil, wrapIo("stat data file", err)
	}

	currentLength := uint64(st.Size())
	mapLength := currentLength
	if currentLength < requestedLength {
		if err := fd.Truncate(int64(requestedLength)); err != nil {
			lock.Unlock()
			fd.Close()
			return nil, wrapIo("extend data file", err)
		}
		mapLength = requestedLength
	}

	view, err := unix.Mmap(int(fd.Fd()), 0, int(mapLength), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		lock.Unlock()
		fd.Close()
		return nil, wrapIo("mmap data file", err)
	}

	logg := walog.Open(logPath)
	if err := replayLog(path, logg, fs.diag); err != nil {
		unix.Munmap(view)
		lock.Unlock()
		fd.Close()
		return nil, wrapIo("recover log", err)
	}

	h, ok := fs.files[filename]
	if !ok {
		h = &FileHandle{fs: fs, filename: filename, path: path, logPath: logPath}
		fs.files[filename] = h
		fs.order = append(fs.order, filename)
	}
	h.fd = fd
	h.lock = lock
	h.view = view
	h.log = logg
	h.pending = nil
	h.length.Store(mapLength)
	h.owningPid.Store(int64(os.Getpid()))

	fs.diag.Infof("opened %s (length=%d)", filename, mapLength)
	return h, nil
}

// replayLog runs RecoveryDriver: if the log is non-empty, every valid
// frame is applied to the data file and the data file is fsynced. A
// torn trailing frame is silently dropped, per spec.md §4.7.
func replayLog(dataPath string, logg *walog.Log, d diagLogger) error {
	buf, err := logg.ReadAll()
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	frames := walog.ParseFrames(buf)
	if len(frames) == 0 {
		return nil
	}
	d.Debugf("replaying %d log frame(s) for %s", len(frames), dataPath)
	return walog.Replay(dataPath, frames)
}

// diagLogger is the minimal interface handle.go needs from
// internal/diag, so tests can stub it without importing zap.
type diagLogger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
}

// Read returns a fresh copy of the bytes in [offset, offset+length)
// as currently held in the mapped view, reflecting any unsynced
// writes this handle has made. Reading past the current logical
// length returns an empty slice rather than an error; reading a range
// that only partially exceeds it is InvalidArgument.
func (h *FileHandle) Read(offset, length int64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkOwner(); err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, newErr(KindInvalidArgument, "read", nil)
	}
	curLen := int64(h.length.Load())
	if offset > curLen {
		return []byte{}, nil
	}
	if offset+length > curLen {
		return nil, newErr(KindInvalidArgument, "read", nil)
	}
	out := make([]byte, length)
	copy(out, h.view[offset:offset+length])
	return out, nil
}

// Write overwrites [offset, offset+len(data)) in the mapped view and
// returns a WriteRecord describing the pending mutation. The caller
// must later call Sync or Abort on it. Writing past the handle's
// mapped capacity (fixed at Open to the larger of the file's size and
// requestedLength) is
// InvalidArgument, since growing the mapping itself is not supported
// mid-session.
func (h *FileHandle) Write(offset int64, data []byte) (*WriteRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkOwner(); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, newErr(KindInvalidArgument, "write", nil)
	}
	uoffset := uint64(offset)
	curLen := h.length.Load()
	if uoffset > curLen {
		return nil, newErr(KindInvalidArgument, "write", nil)
	}
	end := uoffset + uint64(len(data))
	if end > uint64(len(h.view)) {
		return nil, newErr(KindInvalidArgument, "write", nil)
	}

	view := h.view[uoffset:end]
	displaced := append([]byte(nil), view...)
	copy(view, data)

	rec := record.New(h.path, h.log, uoffset, append([]byte(nil), data...), displaced, view)
	h.pending = append(h.pending, rec)

	if end > curLen {
		h.length.Store(end)
	}
	return &WriteRecord{handle: h, rec: rec}, nil
}

// Close releases the advisory lock and unmaps the view. Any records
// still in pending_writes are persisted to the log first — so
// recovery can complete them on a future Open — rather than being
// silently dropped.
func (h *FileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isOpen() {
		return newErr(KindNotOpen, "close", nil)
	}

	for _, r := range h.pending {
		if recordIsLive(r) {
			if err := r.PersistRemaining(); err != nil {
				return wrapIo("persist pending record on close", err)
			}
		}
	}
	h.pending = nil

	if err := unix.Munmap(h.view); err != nil {
		return wrapIo("munmap", err)
	}
	h.view = nil

	if err := h.lock.Unlock(); err != nil {
		return wrapIo("unlock", err)
	}
	if err := h.fd.Close(); err != nil {
		return wrapIo("close data file", err)
	}
	h.fd = nil
	h.owningPid.Store(0)

	h.fs.diag.Infof("closed %s", h.filename)
	return nil
}

// flushPending syncs as many of h's pending/partially-synced records
// as budget allows (nil meaning unbounded), in issuance order,
// discarding aborted records and dropping fully-synced ones from
// pending. It reports whether the budget was exhausted before every
// live record could be fully synced.
func (h *FileHandle) flushPending(budget *uint64, reclaimed *uint64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	exhausted := false
	kept := h.pending[:0]
	for _, r := range h.pending {
		switch {
		case r.State == record.Synced || r.State == record.Aborted:
			continue
		case exhausted:
			kept = append(kept, r)
			continue
		}

		var (
			n   uint64
			err error
		)
		if budget == nil {
			n, err = r.Sync()
		} else {
			remaining := *budget - *reclaimed
			if remaining == 0 {
				exhausted = true
				kept = append(kept, r)
				continue
			}
			n, err = r.SyncBounded(remaining)
		}
		if err != nil {
			return exhausted, wrapIo("sync pending record", err)
		}
		*reclaimed += n
		if r.State != record.Synced {
			exhausted = true
			kept = append(kept, r)
		}
	}
	h.pending = kept
	return exhausted, nil
}

// truncateLog implements the end-of-Cleanup sequence from spec.md
// §4.7: fsync the data file, unlink the log, recreate it empty, fsync
// the containing directory.
func (h *FileHandle) truncateLog() error {
	if err := h.fsyncData(); err != nil {
		return err
	}
	return wrapIo("truncate log", h.log.Truncate())
}

// fsyncData fsyncs the data file. It works whether or not the handle
// is currently open, since Cleanup must truncate logs for closed
// handles too.
func (h *FileHandle) fsyncData() error {
	if h.fd != nil {
		return wrapIo("fsync data file", h.fd.Sync())
	}
	fd, err := os.OpenFile(h.path, os.O_WRONLY, 0666)
	if err != nil {
		return wrapIo("open data file for fsync", err)
	}
	defer fd.Close()
	return wrapIo("fsync data file", fd.Sync())
}
