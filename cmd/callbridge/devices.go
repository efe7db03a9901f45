//go:build !portaudio

package main

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/brightclean/callbridge/internal/config"
	"github.com/brightclean/callbridge/pkg/audio"
)

// openDevices returns a synthetic tone microphone and a speaker that paces
// clips without output. Build with -tags portaudio for real devices.
func openDevices(cfg *config.Config) (audio.Microphone, audio.Sink, error) {
	if cfg.Audio.InputDevice != "" || cfg.Audio.OutputDevice != "" {
		slog.Warn("audio device names are ignored without the portaudio build tag")
	}
	slog.Info("using synthetic audio devices")
	return toneMicrophone{}, newPacedSink(), nil
}

// ── Tone microphone ───────────────────────────────────────────────────────────

// toneMicrophone produces a 220 Hz tone gated on and off every two seconds,
// one block per block period.
type toneMicrophone struct{}

var _ audio.Microphone = toneMicrophone{}

const (
	toneHz   = 220
	toneGate = 2 * time.Second
	toneAmp  = 0.3
)

func (toneMicrophone) Open(_ context.Context, f audio.Format, blockSize int) (audio.Source, error) {
	return &toneSource{format: f, blockSize: blockSize, stop: make(chan struct{})}, nil
}

type toneSource struct {
	format    audio.Format
	blockSize int

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func (s *toneSource) Start(fn func(audio.Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return nil
	}
	s.started = true
	s.wg.Add(1)
	go s.run(fn)
	return nil
}

func (s *toneSource) run(fn func(audio.Frame)) {
	defer s.wg.Done()
	period := time.Duration(s.blockSize) * time.Second / time.Duration(s.format.SampleRate)
	t := time.NewTicker(period)
	defer t.Stop()

	begin := time.Now()
	var pos int
	for seq := uint64(0); ; seq++ {
		select {
		case <-s.stop:
			return
		case <-t.C:
		}
		ts := time.Since(begin)
		samples := make([]float32, s.blockSize)
		if (ts/toneGate)%2 == 0 {
			for i := range samples {
				phase := 2 * math.Pi * toneHz * float64(pos+i) / float64(s.format.SampleRate)
				samples[i] = float32(toneAmp * math.Sin(phase))
			}
		}
		pos += s.blockSize
		fn(audio.Frame{Samples: samples, SampleRate: s.format.SampleRate, Seq: seq, Timestamp: ts})
	}
}

func (s *toneSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// ── Paced sink ────────────────────────────────────────────────────────────────

// pacedSink validates clips and blocks for their duration, so playback order
// and timing match a real speaker.
type pacedSink struct {
	conv audio.Converter
}

var _ audio.Sink = (*pacedSink)(nil)

func newPacedSink() *pacedSink {
	return &pacedSink{conv: audio.Converter{Source: audio.WireFormat, Target: audio.WireFormat}}
}

func (s *pacedSink) Decode(pcm []byte) (audio.Clip, error) { return s.conv.Convert(pcm) }

func (s *pacedSink) Play(ctx context.Context, clip audio.Clip) error {
	t := time.NewTimer(clip.Duration())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *pacedSink) Close() error { return nil }
