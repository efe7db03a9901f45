// Package activity produces the input level and speech activity signals that
// drive the listening indicator.
//
// Two sources exist. [Monitor] measures the live microphone while a call is
// connected. [Simulation] fabricates plausible levels and speech boundaries
// while the bridge is unreachable. Both report through the same [Emitter], so
// consumers cannot tell which one is running.
package activity

import "context"

// Level is an input energy reading on a [0,100] scale.
type Level float64

// Clamp limits l to [0,100].
func (l Level) Clamp() Level {
	return min(max(l, 0), 100)
}

// Emitter receives activity signals. Implementations must not block.
type Emitter interface {
	Level(Level)
	SpeechStarted()
	SpeechStopped()
}

// Source emits activity until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, e Emitter) error
}

// Hysteresis turns a level stream into speech boundaries. A crossing above
// High starts speech; dropping below Low stops it. Not safe for concurrent
// use.
type Hysteresis struct {
	High, Low Level
	speaking  bool
}

// Feed applies one reading and reports any boundary it produces.
func (h *Hysteresis) Feed(l Level) (started, stopped bool) {
	switch {
	case !h.speaking && l > h.High:
		h.speaking = true
		return true, false
	case h.speaking && l < h.Low:
		h.speaking = false
		return false, true
	}
	return false, false
}

// Speaking reports whether the last boundary was a start.
func (h *Hysteresis) Speaking() bool { return h.speaking }
