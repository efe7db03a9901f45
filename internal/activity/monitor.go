package activity

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/brightclean/callbridge/pkg/audio"
)

// DefaultTick is the emission interval of both sources.
const DefaultTick = 100 * time.Millisecond

// Monitor reports the energy of live capture. The capture callback feeds it
// with [Monitor.Observe]; [Monitor.Run] emits the loudest block seen since the
// previous tick. It never synthesizes speech boundaries; those come from the
// bridge.
type Monitor struct {
	tick time.Duration
	peak atomic.Uint64 // math.Float64bits of the current window peak
	seen atomic.Bool
}

// NewMonitor returns a Monitor emitting every tick. A non-positive tick
// selects [DefaultTick].
func NewMonitor(tick time.Duration) *Monitor {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Monitor{tick: tick}
}

// Observe records one captured frame. Safe to call from the device goroutine.
func (m *Monitor) Observe(f audio.Frame) {
	l := audio.LevelOf(f.Samples)
	m.seen.Store(true)
	for {
		old := m.peak.Load()
		if math.Float64frombits(old) >= l {
			return
		}
		if m.peak.CompareAndSwap(old, math.Float64bits(l)) {
			return
		}
	}
}

// Run implements [Source].
func (m *Monitor) Run(ctx context.Context, e Emitter) error {
	t := time.NewTicker(m.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !m.seen.Swap(false) {
				e.Level(0)
				continue
			}
			peak := math.Float64frombits(m.peak.Swap(0))
			e.Level(Level(peak).Clamp())
		}
	}
}

var _ Source = (*Monitor)(nil)
