// Package txnfs is a transactional file system library: crash-consistent,
// log-backed updates to fixed-size byte files held inside a single host
// directory.
//
// Clients call Init to obtain a FileSystem rooted at a directory, Open a
// named file to get a FileHandle, issue in-memory Writes that return
// WriteRecords, and explicitly Sync or Abort each one. A per-file redo
// log records every synced write so Cleanup can reclaim log space while
// preserving recoverability of writes that were never synced.
//
// The library assumes a POSIX-like host: byte-addressable files with
// truncate, advisory range locking, memory mapping, unbuffered writes
// and synchronous metadata flushes. It is not safe to share a FileHandle
// across goroutines without external synchronization, and it provides
// no multi-file atomicity, no concurrent-writer support within one
// process, and no snapshot isolation for concurrent readers.
package txnfs
