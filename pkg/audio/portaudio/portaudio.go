//go:build portaudio

// Package portaudio binds [audio.Microphone] and [audio.Sink] to the host's
// audio devices through PortAudio.
//
// The package is only compiled with the "portaudio" build tag because it
// requires cgo and the PortAudio development headers.
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/brightclean/callbridge/pkg/audio"
)

var (
	_ audio.Microphone = (*Microphone)(nil)
	_ audio.Source     = (*source)(nil)
	_ audio.Sink       = (*Sink)(nil)
)

// Microphone opens an input device. An empty Device selects the system
// default; otherwise the first device whose name contains Device is used.
type Microphone struct {
	Device string
}

// Open initialises PortAudio and opens a callback-driven input stream. Only
// an unavailable device is reported as [audio.ErrPermissionDenied]; unknown
// device names and unsupported formats are plain errors.
func (m Microphone) Open(_ context.Context, f audio.Format, blockSize int) (audio.Source, error) {
	if err := pa.Initialize(); err != nil {
		return nil, openError("initialise", err)
	}
	dev, err := findDevice(m.Device, true)
	if err != nil {
		_ = pa.Terminate()
		return nil, openError("input", err)
	}
	p := pa.LowLatencyParameters(dev, nil)
	p.Input.Channels = f.Channels
	p.SampleRate = float64(f.SampleRate)
	p.FramesPerBuffer = blockSize

	s := &source{format: f, blockSize: blockSize}
	stream, err := pa.OpenStream(p, s.callback)
	if err != nil {
		_ = pa.Terminate()
		return nil, openError(fmt.Sprintf("open input %q", dev.Name), err)
	}
	s.stream = stream
	return s, nil
}

// openError wraps err for op. PortAudio reports a device the process may not
// use (denied by the OS or held exclusively) as DeviceUnavailable.
func openError(op string, err error) error {
	if errors.Is(err, pa.DeviceUnavailable) {
		return fmt.Errorf("%w: %s: %v", audio.ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("portaudio: %s: %w", op, err)
}

// findDevice resolves name to a device with input (or output) channels.
// PortAudio must be initialised.
func findDevice(name string, input bool) (*pa.DeviceInfo, error) {
	if name == "" {
		if input {
			return pa.DefaultInputDevice()
		}
		return pa.DefaultOutputDevice()
	}
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devs {
		if !strings.Contains(d.Name, name) {
			continue
		}
		if (input && d.MaxInputChannels > 0) || (!input && d.MaxOutputChannels > 0) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no device matching %q", name)
}

type source struct {
	format    audio.Format
	blockSize int
	stream    *pa.Stream

	mu      sync.Mutex
	fn      func(audio.Frame)
	seq     uint64
	started time.Time
	closed  bool
}

// callback runs on the PortAudio thread.
func (s *source) callback(in []float32) {
	s.mu.Lock()
	fn := s.fn
	frame := audio.Frame{
		Samples:    in,
		SampleRate: s.format.SampleRate,
		Seq:        s.seq,
		Timestamp:  time.Since(s.started),
	}
	s.seq++
	s.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

func (s *source) Start(fn func(audio.Frame)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("portaudio: source closed")
	}
	s.fn = fn
	s.started = time.Now()
	s.mu.Unlock()
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start input: %w", err)
	}
	return nil
}

func (s *source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.fn = nil
	s.mu.Unlock()

	var firstErr error
	if err := s.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := s.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := pa.Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("portaudio: close input: %w", firstErr)
	}
	return nil
}

// Sink plays clips on the default output device using a blocking stream.
type Sink struct {
	conv   audio.Converter
	buf    []int16
	stream *pa.Stream

	mu     sync.Mutex
	closed bool
}

// NewSink opens the output device matching device (empty for the default) in
// format out. Buffers passed to Decode are expected in the bridge's output
// format in.
func NewSink(device string, in, out audio.Format, framesPerBuffer int) (*Sink, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}
	dev, err := findDevice(device, false)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: output: %w", err)
	}
	s := &Sink{
		conv: audio.Converter{Source: in, Target: out},
		buf:  make([]int16, framesPerBuffer*out.Channels),
	}
	p := pa.HighLatencyParameters(nil, dev)
	p.Output.Channels = out.Channels
	p.SampleRate = float64(out.SampleRate)
	p.FramesPerBuffer = framesPerBuffer
	stream, err := pa.OpenStream(p, &s.buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open output %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}
	s.stream = stream
	return s, nil
}

// Decode converts a bridge buffer into the device format.
func (s *Sink) Decode(pcm []byte) (audio.Clip, error) {
	return s.conv.Convert(pcm)
}

// Play writes clip to the device one buffer at a time, checking ctx between
// writes. The final partial buffer is padded with silence.
func (s *Sink) Play(ctx context.Context, clip audio.Clip) error {
	samples := len(clip.PCM) / 2
	for off := 0; off < samples; off += len(s.buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(s.buf), samples-off)
		for i := range n {
			s.buf[i] = int16(binary.LittleEndian.Uint16(clip.PCM[(off+i)*2:]))
		}
		clear(s.buf[n:])
		if err := s.stream.Write(); err != nil {
			if err == pa.OutputUnderflowed {
				slog.Debug("portaudio: output underflow")
				continue
			}
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Close stops the output stream. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	err := s.stream.Close()
	_ = pa.Terminate()
	if err != nil {
		return fmt.Errorf("portaudio: close output: %w", err)
	}
	return nil
}
