// Package audio defines the device abstractions and PCM helpers used by the
// callbridge voice client.
//
// The three primary abstractions are:
//
//   - [Microphone]: requests access to an input device and returns a [Source].
//   - [Source]: a started capture stream pushing fixed-size [Frame] blocks.
//   - [Sink]: decodes response audio into [Clip] values and plays them.
//
// Implementations live in adapter packages (audio/portaudio for real devices,
// audio/mock for tests).
package audio

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by [Microphone.Open] when the user or the
// operating system refuses access to the input device.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// WireFormat is the capture format expected by the speech bridge: 16 kHz mono.
var WireFormat = Format{SampleRate: 16000, Channels: 1}

// DefaultBlockSize is the number of samples per captured [Frame].
const DefaultBlockSize = 1024

// Source is an open capture stream. Blocks are pushed, never polled.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start begins delivering frames to fn. fn is called sequentially from a
	// device goroutine and must not block for longer than one block period.
	// Start may only be called once.
	Start(fn func(Frame)) error

	// Close stops capture and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// Microphone grants access to an input device.
type Microphone interface {
	// Open requests permission and opens a capture stream producing blocks of
	// blockSize samples in format f. It returns an error wrapping
	// [ErrPermissionDenied] when access is refused.
	Open(ctx context.Context, f Format, blockSize int) (Source, error)
}

// Sink decodes and plays response audio.
//
// Decode may be called from any goroutine; Play is called sequentially by a
// single scheduler goroutine.
type Sink interface {
	// Decode converts raw little-endian PCM16 mono audio at the bridge output
	// rate into a [Clip] playable on this sink. A malformed buffer yields an
	// error.
	Decode(pcm []byte) (Clip, error)

	// Play submits clip for output and returns once the device has accepted
	// it, or ctx is cancelled.
	Play(ctx context.Context, clip Clip) error

	// Close releases the output device. Calling Close more than once is safe.
	Close() error
}
