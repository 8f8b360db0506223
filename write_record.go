package txnfs

import (
	"github.com/txnfs/txnfs/internal/record"
)

// WriteRecord describes one pending, partially-synced or synced
// mutation returned by FileHandle.Write. Call Sync (or SyncBounded)
// to persist it, or Abort to roll it back; a WriteRecord is no longer
// usable after either succeeds, or after its owning FileHandle is
// closed.
type WriteRecord struct {
	handle *FileHandle
	rec    *record.Record
}

// Offset returns the byte offset this record targets.
func (w *WriteRecord) Offset() uint64 { return w.rec.Offset }

// Length returns the number of bytes this record covers.
func (w *WriteRecord) Length() uint64 { return w.rec.Length }

// SyncedPrefix returns how many of Length bytes are currently
// durable.
func (w *WriteRecord) SyncedPrefix() uint64 { return w.rec.SyncedPrefix }

// Synced reports whether the record is fully durable.
func (w *WriteRecord) Synced() bool { return w.rec.State == record.Synced }

// Sync persists the entire remaining unsynced suffix of the record:
// it pwrites the data file, appends a redo frame, then fsyncs the
// data file and the log, in that order. On any I/O failure the
// record's state reflects however many bytes were actually accepted,
// and the caller may retry.
func (w *WriteRecord) Sync() (uint64, error) {
	n, err := w.rec.Sync()
	if err != nil {
		return n, wrapIo("sync", err)
	}
	return n, nil
}

// SyncBounded persists at most n bytes of the record's remaining
// unsynced suffix.
func (w *WriteRecord) SyncBounded(n uint64) (uint64, error) {
	written, err := w.rec.SyncBounded(n)
	if err != nil {
		return written, wrapIo("sync bounded", err)
	}
	return written, nil
}

// Abort rolls back the record's in-memory effect: the bytes it
// displaced are restored into the mapped view and no durable trace is
// left. The caller must abort records in reverse issuance order
// within a file; aborting an older record under a newer overlapping
// write produces an undefined overlay (spec.md §4.5).
func (w *WriteRecord) Abort() error {
	if err := w.rec.Abort(); err != nil {
		return newErr(KindInvalidState, "abort", err)
	}
	return nil
}
