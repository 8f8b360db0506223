package txnfs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/txnfs/txnfs/internal/diag"
)

// directoryRegistry is the process-wide map of directory path to live
// FileSystem. It is the only package-level mutable state, guarded by
// a single mutex covering Init, the way spec.md §5 requires.
//
// Adapted from the registry pattern in
// _examples/other_examples/.../dan-strohschein-SyndrDB__src-buffermgr-file_registry.go's
// FileRegistry, which keys a mutex-guarded map by a data directory and
// lazily creates it with os.MkdirAll before handing out entries.
var directoryRegistry = struct {
	mu      sync.Mutex
	systems map[string]*FileSystem
}{systems: make(map[string]*FileSystem)}

// Init returns the FileSystem rooted at directory, creating the
// directory (mode 0755) if it does not already exist. Repeated calls
// for the same directory within one process return the same
// FileSystem. verbose enables the diagnostic channel.
func Init(directory string, verbose bool) (*FileSystem, error) {
	abs, err := filepath.Abs(directory)
	if err != nil {
		return nil, wrapIo("resolve directory", err)
	}

	directoryRegistry.mu.Lock()
	defer directoryRegistry.mu.Unlock()

	if fs, ok := directoryRegistry.systems[abs]; ok {
		return fs, nil
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, wrapIo("create directory", errors.Wrapf(err, "mkdir %q", abs))
	}

	fs := &FileSystem{
		directory: abs,
		files:     make(map[string]*FileHandle),
		diag:      diag.New(verbose),
	}
	directoryRegistry.systems[abs] = fs
	return fs, nil
}
