package activity

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default hysteresis marks for [Simulation].
const (
	DefaultHigh Level = 30
	DefaultLow  Level = 15
)

// Generator yields successive simulated levels.
type Generator interface {
	Next() Level
}

// GeneratorFunc adapts a function to [Generator].
type GeneratorFunc func() Level

// Next implements [Generator].
func (f GeneratorFunc) Next() Level { return f() }

// RandomWalk is a smoothed random walk that alternates between quiet and
// talking phases so the level keeps crossing the speech marks.
type RandomWalk struct {
	rng     *rand.Rand
	level   float64
	talking bool
}

// NewRandomWalk seeds a RandomWalk. Seed zero draws a random seed.
func NewRandomWalk(seed uint64) *RandomWalk {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomWalk{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next implements [Generator].
func (w *RandomWalk) Next() Level {
	// About one phase change every two seconds at the default tick.
	if w.rng.Float64() < 0.05 {
		w.talking = !w.talking
	}
	target := 5.0
	if w.talking {
		target = 60
	}
	noise := (w.rng.Float64() - 0.5) * 16
	w.level = 0.7*w.level + 0.3*target + noise
	return Level(w.level).Clamp()
}

// Simulation emits generated levels and the speech boundaries they imply.
type Simulation struct {
	tick time.Duration
	gen  Generator
	high Level
	low  Level
}

// SimulationOption configures a [Simulation].
type SimulationOption func(*Simulation)

// WithTick sets the emission interval.
func WithTick(d time.Duration) SimulationOption {
	return func(s *Simulation) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithGenerator replaces the default [RandomWalk].
func WithGenerator(g Generator) SimulationOption {
	return func(s *Simulation) { s.gen = g }
}

// WithThresholds sets the high and low speech marks.
func WithThresholds(high, low Level) SimulationOption {
	return func(s *Simulation) {
		if high > low {
			s.high, s.low = high, low
		}
	}
}

// NewSimulation returns a Simulation with the default tick, marks and a
// randomly seeded walk unless overridden.
func NewSimulation(opts ...SimulationOption) *Simulation {
	s := &Simulation{tick: DefaultTick, high: DefaultHigh, low: DefaultLow}
	for _, o := range opts {
		o(s)
	}
	if s.gen == nil {
		s.gen = NewRandomWalk(0)
	}
	return s
}

// Run implements [Source]. A simulated utterance still open at cancellation
// is not closed with a SpeechStopped.
func (s *Simulation) Run(ctx context.Context, e Emitter) error {
	h := Hysteresis{High: s.high, Low: s.low}
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			l := s.gen.Next().Clamp()
			e.Level(l)
			started, stopped := h.Feed(l)
			if started {
				e.SpeechStarted()
			}
			if stopped {
				e.SpeechStopped()
			}
		}
	}
}

var _ Source = (*Simulation)(nil)
