// Package playback plays response audio in strict arrival order.
//
// The [Scheduler] accepts base64 response frames from the call loop without
// blocking it. A single worker goroutine decodes each frame and hands it to
// an [audio.Sink]; the next frame is not started before the previous Play
// returns. Frames that fail to decode are logged, counted and skipped.
package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brightclean/callbridge/internal/observe"
	"github.com/brightclean/callbridge/pkg/audio"
)

// Scheduler queues response audio for a single [audio.Sink].
// All methods are safe for concurrent use.
type Scheduler struct {
	sink    audio.Sink
	metrics *observe.Metrics
	log     *slog.Logger

	mu     sync.Mutex
	queue  []string
	closed bool

	// turn counters, guarded by mu
	turnClips  int
	turnErrors int

	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithMetrics records decode failures on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the logger used for decode and playback failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New starts a Scheduler playing into sink. The caller owns sink; Close does
// not close it.
func New(sink audio.Sink, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sink:   sink,
		log:    slog.Default(),
		notify: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	go s.run()
	return s
}

// Enqueue appends one base64 PCM16 frame. It never blocks. Frames enqueued
// after Close are discarded.
func (s *Scheduler) Enqueue(b64 string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, b64)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// EndTurn marks the end of the current response turn.
func (s *Scheduler) EndTurn() {
	s.mu.Lock()
	clips, errs, pending := s.turnClips, s.turnErrors, len(s.queue)
	s.turnClips, s.turnErrors = 0, 0
	s.mu.Unlock()
	s.log.Debug("playback: response turn done", "clips", clips, "decode_errors", errs, "pending", pending)
}

// Pending returns the number of frames waiting to be played.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the worker and discards pending frames. It waits for an
// in-flight Play to observe cancellation. Calling Close again is a no-op.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

func (s *Scheduler) run() {
	defer close(s.done)
	for {
		b64, ok := s.next()
		if !ok {
			select {
			case <-s.ctx.Done():
				return
			case <-s.notify:
				continue
			}
		}
		s.play(b64)
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *Scheduler) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	b64 := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	return b64, true
}

func (s *Scheduler) play(b64 string) {
	pcm, err := audio.DecodeBase64(b64)
	if err == nil {
		var clip audio.Clip
		if clip, err = s.sink.Decode(pcm); err == nil {
			s.mu.Lock()
			s.turnClips++
			s.mu.Unlock()
			if err := s.sink.Play(s.ctx, clip); err != nil && s.ctx.Err() == nil {
				s.log.Warn("playback: play failed", "err", err)
			}
			return
		}
	}

	s.mu.Lock()
	s.turnErrors++
	s.mu.Unlock()
	s.metrics.DecodeErrors.Add(s.ctx, 1)
	s.log.Warn("playback: dropping undecodable frame", "err", err)
}
