package txnfs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	fs, err := Init(t.TempDir(), false)
	require.NoError(t, err)
	return fs
}

func TestWriteReadRoundTrip(t *testing.T) {
	assert := assert.New(t)
	fs := newTestFS(t)

	h, err := fs.Open("t1.txt", 100)
	require.NoError(t, err)
	defer h.Close()

	rec, err := h.Write(10, []byte("Hi, I'm the writer.\n"))
	require.NoError(t, err)
	_, err = rec.Sync()
	require.NoError(t, err)

	got, err := h.Read(10, 20)
	require.NoError(t, err)
	assert.Equal("Hi, I'm the writer.\n", string(got))
}

func TestCrossProcessReadAfterReopen(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	fsA, err := Init(dir, false)
	require.NoError(t, err)
	h, err := fsA.Open("t1.txt", 100)
	require.NoError(t, err)
	rec, err := h.Write(10, []byte("Hi, I'm the writer.\n"))
	require.NoError(t, err)
	_, err = rec.Sync()
	require.NoError(t, err)
	require.NoError(t, h.Close())

	// A distinct FileSystem over the same directory simulates a
	// second process reopening the file after the writer exits.
	fsB := &FileSystem{directory: fsA.directory, files: make(map[string]*FileHandle), diag: fsA.diag}
	h2, err := fsB.Open("t1.txt", 100)
	require.NoError(t, err)
	defer h2.Close()

	got, err := h2.Read(10, 20)
	require.NoError(t, err)
	assert.Equal("Hi, I'm the writer.\n", string(got))
}

func TestAbortRestoresBytes(t *testing.T) {
	assert := assert.New(t)
	fs := newTestFS(t)
	h, err := fs.Open("t2.txt", 100)
	require.NoError(t, err)
	defer h.Close()

	w1, err := h.Write(0, []byte("Testing string.\n"))
	require.NoError(t, err)
	_, err = w1.Sync()
	require.NoError(t, err)

	w2, err := h.Write(20, []byte("Testing string.\n"))
	require.NoError(t, err)
	require.NoError(t, w2.Abort())

	got, err := h.Read(0, 16)
	require.NoError(t, err)
	assert.Equal("Testing string.\n", string(got))

	got, err = h.Read(20, 16)
	require.NoError(t, err)
	assert.Equal(make([]byte, 16), got)
}

func TestLogTruncationAfterCleanup(t *testing.T) {
	assert := assert.New(t)
	fs := newTestFS(t)
	h, err := fs.Open("t3.txt", 100)
	require.NoError(t, err)
	defer h.Close()

	for _, s := range []string{"first-write-", "second-write"} {
		w, err := h.Write(0, []byte(s))
		require.NoError(t, err)
		_, err = w.Sync()
		require.NoError(t, err)
	}

	logSize, err := os.Stat(h.logPath)
	require.NoError(t, err)
	assert.Greater(logSize.Size(), int64(0))

	before, err := h.Read(0, 12)
	require.NoError(t, err)

	_, err = fs.Cleanup()
	require.NoError(t, err)

	logSize, err = os.Stat(h.logPath)
	require.NoError(t, err)
	assert.Equal(int64(0), logSize.Size())

	after, err := h.Read(0, 12)
	require.NoError(t, err)
	assert.Equal(before, after)
}

func TestCrashRecoveryReplaysOnlySyncedWrite(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	fsA, err := Init(dir, false)
	require.NoError(t, err)
	h, err := fsA.Open("t4.txt", 100)
	require.NoError(t, err)

	s := []byte("xxxxxxxxxxxxxxxxxxxx") // 20 bytes
	w1, err := h.Write(10, s)
	require.NoError(t, err)
	w2, err := h.Write(20, s)
	require.NoError(t, err)
	_, err = w2.Sync()
	require.NoError(t, err)
	_ = w1 // crash before Sync(w1)

	// Simulate the crash: drop the fd directly (which releases its
	// flock at the OS level, the same way process exit would) without
	// going through Close, so w1's pending bytes are never persisted.
	require.NoError(t, h.fd.Close())

	// A fresh FileSystem struct (bypassing the process-wide registry,
	// which would just return fsA again) models a brand new process
	// reopening the same directory after the crash.
	fsC := &FileSystem{directory: fsA.directory, files: make(map[string]*FileHandle), diag: fsA.diag}
	h2, err := fsC.Open("t4.txt", 100)
	require.NoError(t, err)
	defer h2.Close()

	got, err := h2.Read(10, 20)
	require.NoError(t, err)
	assert.Equal(make([]byte, 20), got) // w1 lost, never synced

	got, err = h2.Read(20, 20)
	require.NoError(t, err)
	assert.Equal(s, got) // w2 recovered from log
}

func TestOpenTooSmallWouldTruncate(t *testing.T) {
	fs := newTestFS(t)
	h, err := fs.Open("t5.txt", 100)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = fs.Open("t5.txt", 50)
	assert.ErrorIs(t, err, ErrWouldTruncate)
}

func TestOpenExpand(t *testing.T) {
	assert := assert.New(t)
	fs := newTestFS(t)
	h, err := fs.Open("t6.txt", 100)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h2, err := fs.Open("t6.txt", 200)
	require.NoError(t, err)
	defer h2.Close()
	assert.Equal(uint64(200), h2.GetLength())
}

func TestOpenBusyWhileAlreadyOpen(t *testing.T) {
	fs := newTestFS(t)
	h, err := fs.Open("t7.txt", 10)
	require.NoError(t, err)
	defer h.Close()

	_, err = fs.Open("t7.txt", 10)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestRemoveFailsWhileOpen(t *testing.T) {
	fs := newTestFS(t)
	h, err := fs.Open("t8.txt", 10)
	require.NoError(t, err)
	defer h.Close()

	assert.ErrorIs(t, fs.Remove(h), ErrStillOpen)
}

func TestRemoveDeletesFiles(t *testing.T) {
	assert := assert.New(t)
	fs := newTestFS(t)
	h, err := fs.Open("t9.txt", 10)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	require.NoError(t, fs.Remove(h))
	_, err = os.Stat(h.path)
	assert.True(os.IsNotExist(err))
}

func TestReadPastEOFReturnsEmpty(t *testing.T) {
	assert := assert.New(t)
	fs := newTestFS(t)
	h, err := fs.Open("t10.txt", 10)
	require.NoError(t, err)
	defer h.Close()

	got, err := h.Read(20, 0)
	require.NoError(t, err)
	assert.Empty(got)
}

func TestReadOutOfBoundsInvalidArgument(t *testing.T) {
	fs := newTestFS(t)
	h, err := fs.Open("t11.txt", 10)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Read(5, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWriteBeyondMappedCapacityInvalidArgument(t *testing.T) {
	fs := newTestFS(t)
	h, err := fs.Open("t12.txt", 10)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Write(5, make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCleanupBoundedPartialAdvancesPrefix(t *testing.T) {
	assert := assert.New(t)
	fs := newTestFS(t)
	h, err := fs.Open("t13.txt", 10)
	require.NoError(t, err)
	defer h.Close()

	w, err := h.Write(0, []byte("0123456789"))
	require.NoError(t, err)

	reclaimed, err := fs.CleanupBounded(4)
	require.NoError(t, err)
	assert.Equal(uint64(4), reclaimed)
	assert.Equal(uint64(4), w.SyncedPrefix())
	assert.False(w.Synced())
}
