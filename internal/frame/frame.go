// Package frame defines the raw capture unit that flows through every stage
// of the pipeline before it is either encoded (Focus) or hashed (Context).
package frame

import "time"

// PixelFormatBGRA is the unified 8-bit-per-channel, 4-byte-per-pixel layout
// (byte 0 = blue, byte 2 = red) that every stage downstream of the Capture
// Worker assumes.
const PixelFormatBGRA = "BGRA"

// Raw is an uncompressed capture. TimestampHNS is a monotonic 100-nanosecond
// timestamp assigned at acquisition time, not wall-clock time.
type Raw struct {
	Data         []byte
	Width        int
	Height       int
	TimestampHNS int64
	TraceID      string

	// Repeated is true when this frame is a duplicate of the last
	// successfully acquired frame, re-stamped with a fresh timestamp
	// because the duplication backend reported no new frame available.
	Repeated bool
}

// Clone returns a deep copy of the frame's pixel buffer. The Capture Worker
// uses this to give each repeated frame its own copy of the last acquired
// frame's pixels.
func (r Raw) Clone() Raw {
	buf := make([]byte, len(r.Data))
	copy(buf, r.Data)
	r.Data = buf
	return r
}

// hnsEpoch is the process-local reference point HNSFromTime counts from.
var hnsEpoch = time.Now()

// HNSFromTime converts a time.Time into the 100-nanosecond tick units used
// for frame and sample timestamps, counted from process start. For values
// from time.Now() the difference is taken on the monotonic clock, so the
// result does not jump with wall-clock adjustments.
func HNSFromTime(t time.Time) int64 {
	return int64(t.Sub(hnsEpoch) / 100)
}
