package txnfs

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/txnfs/txnfs/internal/diag"
	"github.com/txnfs/txnfs/internal/record"
)

// FileSystem owns a directory of managed files and the lifecycle of
// their FileHandles. Obtain one with Init; never construct directly.
type FileSystem struct {
	mu        sync.Mutex
	directory string
	files     map[string]*FileHandle
	order     []string // registration order, for Cleanup's deterministic contract
	diag      *diag.Logger
}

// Directory returns the absolute path this FileSystem manages.
func (fs *FileSystem) Directory() string { return fs.directory }

func (fs *FileSystem) dataPath(filename string) string {
	return filepath.Join(fs.directory, filename)
}

// logPathFor derives a file's redo log path by stripping the data
// file's extension and appending "-log.txt", mirroring the naming the
// teacher's on-disk layout observes for sidecar files.
func logPathFor(dataPath string) string {
	ext := filepath.Ext(dataPath)
	base := strings.TrimSuffix(dataPath, ext)
	return base + "-log.txt"
}

// Remove deletes the named handle's data file and log from disk and
// drops it from this FileSystem. It fails with ErrStillOpen if the
// handle is currently open.
func (fs *FileSystem) Remove(h *FileHandle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if h.isOpen() {
		return newErr(KindStillOpen, "remove", nil)
	}

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return wrapIo("remove data file", err)
	}
	if err := os.Remove(h.logPath); err != nil && !os.IsNotExist(err) {
		return wrapIo("remove log file", err)
	}

	delete(fs.files, h.filename)
	for i, name := range fs.order {
		if name == h.filename {
			fs.order = append(fs.order[:i], fs.order[i+1:]...)
			break
		}
	}
	fs.diag.Infof("removed %s", h.filename)
	return nil
}

// Cleanup flushes every pending WriteRecord on every managed file via
// the redo log, discards aborted records, and truncates each file's
// log to zero length. After Cleanup returns successfully, every
// WriteRecord tracked by this FileSystem is either synced or aborted.
func (fs *FileSystem) Cleanup() (uint64, error) {
	return fs.cleanup(nil)
}

// CleanupBounded behaves like Cleanup but stops flushing pending
// bytes once budgetBytes have been synced. A record that straddles
// the budget is left PartiallySynced, with the unflushed tail
// remaining in the handle's pending_writes. Files are visited in
// registration order, and within each file, records in issuance
// order — a deterministic contract relied on by callers that checkpoint
// incrementally.
func (fs *FileSystem) CleanupBounded(budgetBytes uint64) (uint64, error) {
	return fs.cleanup(&budgetBytes)
}

func (fs *FileSystem) cleanup(budget *uint64) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var reclaimed uint64
	for _, filename := range fs.order {
		h := fs.files[filename]
		exhausted, err := h.flushPending(budget, &reclaimed)
		if err != nil {
			return reclaimed, err
		}
		// Whatever this file's records synced this pass is already
		// durable in the data file (each Sync/SyncBounded fsyncs it
		// before the log), so its log is safe to truncate regardless
		// of whether the budget ran out mid-file.
		if err := h.truncateLog(); err != nil {
			return reclaimed, err
		}
		if exhausted {
			break
		}
	}
	fs.diag.Infof("cleanup reclaimed %d bytes", reclaimed)
	return reclaimed, nil
}

// recordIsLive reports whether r still needs a Sync/Abort decision.
func recordIsLive(r *record.Record) bool {
	return r.State == record.Pending || r.State == record.PartiallySynced
}
