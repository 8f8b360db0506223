package walog

import (
	"os"

	"github.com/pkg/errors"
)

// ParseFrames decodes every valid frame from the head of buf, in
// order, stopping at the first frame that fails to decode (a torn or
// corrupt tail). It never returns an error: a torn tail after zero or
// more valid frames is the expected shape of a log written by a
// process that crashed mid-Append, not a failure of ParseFrames
// itself.
func ParseFrames(buf []byte) []Frame {
	var frames []Frame
	for len(buf) > 0 {
		f, n, err := Decode(buf)
		if err != nil {
			break
		}
		frames = append(frames, f)
		buf = buf[n:]
	}
	return frames
}

// Replay applies every frame in frames onto the data file at
// dataPath, in order, then fsyncs the data file. It
// implements RecoveryDriver's replay step (spec.md §4.7): a crash
// before Sync's own fsync of the data file can leave a frame in the
// log whose bytes are not yet reflected in the data file, and this
// restores that invariant before the file is reopened for use.
//
// Replay leaves the log itself untouched; only Cleanup ever truncates
// it, so the log remains the source of truth for any record Replay
// applied until the next Cleanup confirms the data file durably
// contains it.
func Replay(dataPath string, frames []Frame) error {
	if len(frames) == 0 {
		return nil
	}
	fd, err := os.OpenFile(dataPath, os.O_WRONLY, 0666)
	if err != nil {
		return errors.Wrap(err, "open data file for replay")
	}
	defer fd.Close()

	for _, f := range frames {
		if _, err := fd.WriteAt(f.Payload, int64(f.Offset)); err != nil {
			return errors.Wrap(err, "replay frame")
		}
	}
	return errors.Wrap(fd.Sync(), "fsync data file after replay")
}
