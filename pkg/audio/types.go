package audio

import "time"

// Frame is one fixed-size block of captured audio, the unit of capture and
// transmission. Samples are mono float32 values nominally in [-1, 1] as
// delivered by the input device.
//
// Frames are transient: the capture pipeline hands each one to its consumers
// exactly once and does not retain it afterwards.
type Frame struct {
	// Samples holds the raw device samples. Consumers must not retain the
	// slice past the callback that delivered it; the device may reuse it.
	Samples []float32

	// SampleRate in Hz (16000 on the bridge wire).
	SampleRate int

	// Seq is the capture sequence number, starting at 0 for the first block
	// of a stream.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Clip is a decoded response buffer ready for output on a [Sink].
type Clip struct {
	// PCM is little-endian int16 audio in the sink's output format.
	PCM []byte

	Format Format
}

// Duration reports the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.Format.SampleRate <= 0 || c.Format.Channels <= 0 {
		return 0
	}
	samples := len(c.PCM) / 2 / c.Format.Channels
	return time.Duration(samples) * time.Second / time.Duration(c.Format.SampleRate)
}
