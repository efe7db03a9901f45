// Package mock provides in-memory implementations of [audio.Microphone],
// [audio.Source] and [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	mic := &mock.Microphone{OpenResult: src}
//	// ... start a call, then push scripted blocks:
//	src.Push(make([]float32, 1024))
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/brightclean/callbridge/pkg/audio"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Microphone.Open] invocation.
type OpenCall struct {
	Format    audio.Format
	BlockSize int
}

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenResult is returned by Open. When nil a fresh [Source] is created.
	OpenResult *Source

	// OpenError is returned by Open instead of a source.
	OpenError error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(_ context.Context, f audio.Format, blockSize int) (audio.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls = append(m.OpenCalls, OpenCall{Format: f, BlockSize: blockSize})
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	if m.OpenResult == nil {
		m.OpenResult = &Source{}
	}
	m.OpenResult.format = f
	return m.OpenResult, nil
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Tests drive capture by
// calling [Source.Push], which invokes the registered callback synchronously.
type Source struct {
	mu     sync.Mutex
	fn     func(audio.Frame)
	format audio.Format
	seq    uint64

	started chan struct{}
	once    sync.Once

	// StartError is returned by Start.
	StartError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Start implements [audio.Source].
func (s *Source) Start(fn func(audio.Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	if s.fn != nil {
		return errors.New("mock: source already started")
	}
	s.fn = fn
	s.startedCh()
	s.once.Do(func() { close(s.started) })
	return nil
}

// Close implements [audio.Source]. It records the call; after Close, Push is a
// no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.fn = nil
	return nil
}

// Started returns a channel that is closed once Start has succeeded.
func (s *Source) Started() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedCh()
}

// Push delivers samples to the capture callback as the next frame. It reports
// whether a callback was registered.
func (s *Source) Push(samples []float32) bool {
	s.mu.Lock()
	fn := s.fn
	frame := audio.Frame{Samples: samples, SampleRate: s.format.SampleRate, Seq: s.seq}
	if fn != nil {
		s.seq++
	}
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(frame)
	return true
}

// Closes returns the number of Close calls.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}

// startedCh lazily creates the started channel. Must be called with s.mu held.
func (s *Source) startedCh() chan struct{} {
	if s.started == nil {
		s.started = make(chan struct{})
	}
	return s.started
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink]. Decode wraps the buffer in a
// clip unchanged; Play records the clip and signals the Played channel.
type Sink struct {
	mu sync.Mutex

	// DecodeFunc overrides Decode when set.
	DecodeFunc func(pcm []byte) (audio.Clip, error)

	// PlayFunc is invoked by Play after the clip has been recorded. It lets a
	// test block or observe playback.
	PlayFunc func(ctx context.Context, clip audio.Clip) error

	// PlayedClips records every clip passed to Play, in order.
	PlayedClips []audio.Clip

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// Played receives one value per Play call when non-nil. Sends are
	// non-blocking, so size the buffer for the expected number of clips.
	Played chan audio.Clip

	playing    int
	maxPlaying int
}

// Decode implements [audio.Sink].
func (s *Sink) Decode(pcm []byte) (audio.Clip, error) {
	s.mu.Lock()
	fn := s.DecodeFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(pcm)
	}
	if len(pcm)%2 != 0 {
		return audio.Clip{}, audio.ErrMisaligned
	}
	return audio.Clip{PCM: pcm, Format: audio.WireFormat}, nil
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, clip audio.Clip) error {
	s.mu.Lock()
	s.PlayedClips = append(s.PlayedClips, clip)
	s.playing++
	s.maxPlaying = max(s.maxPlaying, s.playing)
	fn := s.PlayFunc
	played := s.Played
	s.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(ctx, clip)
	}

	s.mu.Lock()
	s.playing--
	s.mu.Unlock()

	if played != nil {
		select {
		case played <- clip:
		default:
		}
	}
	return err
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

// Clips returns a copy of the clips played so far.
func (s *Sink) Clips() []audio.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Clip, len(s.PlayedClips))
	copy(out, s.PlayedClips)
	return out
}

// MaxConcurrent reports the highest number of overlapping Play calls seen.
func (s *Sink) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPlaying
}
