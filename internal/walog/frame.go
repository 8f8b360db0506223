// Package walog implements the per-file redo log: the append-only,
// framed, checksummed record stream that makes a synced write durable
// and lets a crashed process recover it. Frame encoding is grounded
// on the header/entry layout documented in
// _examples/other_examples/.../marmos91-dittofs__pkg-wal-mmap.go,
// generalized from that file's variable-length cache-slice records
// down to the fixed {offset, length, payload, crc32} frame this
// library's spec prescribes.
package walog

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

// frameHeaderSize is the size in bytes of the offset+length prefix of
// a frame, before the payload and trailing checksum.
const frameHeaderSize = 16

// trailerSize is the size in bytes of the CRC32 trailer.
const trailerSize = 4

// Frame is one redo record: enough to reproduce a single pwrite on
// replay.
type Frame struct {
	Offset  uint64
	Length  uint64
	Payload []byte
}

// Encode serializes f as {u64 offset, u64 length, payload, u32 crc32}
// in little-endian byte order, the format spec.md §6 prescribes.
func Encode(f Frame) []byte {
	buf := make([]byte, frameHeaderSize+len(f.Payload)+trailerSize)
	binary.LittleEndian.PutUint64(buf[0:8], f.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], f.Length)
	copy(buf[16:16+len(f.Payload)], f.Payload)
	sum := crc32.ChecksumIEEE(buf[:frameHeaderSize+len(f.Payload)])
	binary.LittleEndian.PutUint32(buf[16+len(f.Payload):], sum)
	return buf
}

// ErrTornFrame is returned by Decode when fewer bytes remain in the
// log than the frame declares, or the trailing checksum does not
// verify. Both conditions mean the frame was not fully durable when
// the process crashed; recovery stops at the first one, per spec.md
// §4.7 step 1.
var ErrTornFrame = errors.New("torn or corrupt log frame")

// Decode parses one frame from the head of buf and returns it along
// with the number of bytes consumed. It returns ErrTornFrame if buf
// does not contain a complete, checksum-valid frame.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < frameHeaderSize+trailerSize {
		return Frame{}, 0, ErrTornFrame
	}
	length := binary.LittleEndian.Uint64(buf[8:16])
	total := frameHeaderSize + int(length) + trailerSize
	if total < 0 || total > len(buf) {
		// length overflowed the remaining bytes: a torn tail.
		return Frame{}, 0, ErrTornFrame
	}
	body := buf[:frameHeaderSize+int(length)]
	want := binary.LittleEndian.Uint32(buf[frameHeaderSize+int(length) : total])
	if crc32.ChecksumIEEE(body) != want {
		return Frame{}, 0, ErrTornFrame
	}
	f := Frame{
		Offset:  binary.LittleEndian.Uint64(buf[0:8]),
		Length:  length,
		Payload: append([]byte(nil), buf[frameHeaderSize:frameHeaderSize+int(length)]...),
	}
	return f, total, nil
}
