// Package record implements WriteRecord: the in-memory description of
// one pending, partially-synced, synced or aborted mutation, and the
// Sync/SyncBounded/Abort state machine spec.md §4.5 defines for it.
//
// Grounded on the buffer-and-flush-state pattern in
// aegistudio/go-winfsp's FSP write path (host_windows.go's write
// callback tracks a pending byte range and its displaced contents
// across the Create/Write/Flush lifecycle) generalized from a single
// synchronous write into an explicitly staged pending/partial/synced
// state machine, since this library lets the caller defer the
// decision to persist or roll back.
package record

import (
	"os"

	"github.com/pkg/errors"
	"github.com/txnfs/txnfs/internal/walog"
)

// State is the lifecycle stage of a Record.
type State int

const (
	// Pending means no bytes of this record have been made durable.
	Pending State = iota
	// PartiallySynced means a prefix of Length bytes is durable.
	PartiallySynced
	// Synced means the full record is durable in both the data file
	// and the log.
	Synced
	// Aborted means the in-memory effect was rolled back and no
	// durable trace remains.
	Aborted
)

// Record is one WriteRecord. View aliases the FileHandle's mapped
// view at [Offset, Offset+Length) so Abort can restore it in place
// without the record package depending on the handle's type.
type Record struct {
	DataPath string
	Log      *walog.Log

	Offset uint64
	Length uint64

	View           []byte // aliases the handle's mapped view
	NewBytes       []byte
	DisplacedBytes []byte

	State        State
	SyncedPrefix uint64
}

// New constructs a pending Record. view must alias the handle's
// mapped view at [offset, offset+len(newBytes)); displaced must hold
// a copy of the bytes that occupied that range before the write.
func New(dataPath string, log *walog.Log, offset uint64, newBytes, displaced []byte, view []byte) *Record {
	return &Record{
		DataPath:       dataPath,
		Log:            log,
		Offset:         offset,
		Length:         uint64(len(newBytes)),
		View:           view,
		NewBytes:       newBytes,
		DisplacedBytes: displaced,
		State:          Pending,
	}
}

// ErrInvalidState is returned by Abort when the record is not
// Pending or PartiallySynced.
var ErrInvalidState = errors.New("record is not pending or partially synced")

// Sync persists the entire remaining unsynced suffix of the record:
// pwrite the data file, append a redo frame for the same range, then
// fsync the data file and the log, in that order.
func (r *Record) Sync() (uint64, error) {
	return r.SyncBounded(r.Length - r.SyncedPrefix)
}

// SyncBounded persists at most n bytes of the remaining unsynced
// suffix and advances SyncedPrefix accordingly. It transitions the
// record to Synced iff this call covers the rest of the record.
func (r *Record) SyncBounded(n uint64) (uint64, error) {
	remaining := r.Length - r.SyncedPrefix
	if n > remaining {
		n = remaining
	}
	if n == 0 {
		if r.SyncedPrefix == r.Length {
			r.State = Synced
		}
		return 0, nil
	}

	start := r.SyncedPrefix
	end := start + n
	payload := r.NewBytes[start:end]
	writeOffset := r.Offset + start

	fd, err := os.OpenFile(r.DataPath, os.O_WRONLY, 0666)
	if err != nil {
		return 0, errors.Wrap(err, "open data file for sync")
	}
	defer fd.Close()

	if _, err := fd.WriteAt(payload, int64(writeOffset)); err != nil {
		return 0, errors.Wrap(err, "pwrite data file")
	}

	frame := walog.Frame{Offset: writeOffset, Length: n, Payload: payload}
	if err := r.Log.AppendNoSync(frame); err != nil {
		// The data file already has the bytes but the log append
		// failed: the record stays Pending/PartiallySynced so the
		// caller may retry Sync, per spec.md §4.5 step 5.
		return 0, errors.Wrap(err, "append redo frame")
	}

	if err := fd.Sync(); err != nil {
		return 0, errors.Wrap(err, "fsync data file")
	}
	if err := r.Log.Fsync(); err != nil {
		return 0, errors.Wrap(err, "fsync log")
	}

	r.SyncedPrefix += n
	if r.SyncedPrefix == r.Length {
		r.State = Synced
		r.NewBytes = nil
		r.DisplacedBytes = nil
	} else {
		r.State = PartiallySynced
	}
	return n, nil
}

// Abort rolls back the in-memory effect: the displaced bytes are
// copied back over the mapped view and the record is marked Aborted.
// The caller is responsible for enforcing spec.md §4.5's constraint
// that records are aborted in reverse issuance order within a file.
func (r *Record) Abort() error {
	if r.State != Pending && r.State != PartiallySynced {
		return ErrInvalidState
	}
	copy(r.View, r.DisplacedBytes)
	r.State = Aborted
	r.NewBytes = nil
	r.DisplacedBytes = nil
	return nil
}

// PersistRemaining completes whatever suffix of the record is still
// unsynced by running Sync on it: the suffix is written to the data
// file and appended to the log as a redo frame, and both are fsynced,
// so that recovery can replay it later. This
// backs Close's contract (spec.md §9 note 5): a handle closed with
// pending records does not lose them, it persists them for recovery.
func (r *Record) PersistRemaining() error {
	if r.State == Synced || r.State == Aborted {
		return nil
	}
	_, err := r.Sync()
	return err
}
