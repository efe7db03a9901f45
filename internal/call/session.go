package call

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/brightclean/callbridge/internal/activity"
	"github.com/brightclean/callbridge/internal/playback"
	"github.com/brightclean/callbridge/pkg/audio"
	"github.com/brightclean/callbridge/pkg/realtime"
)

// Session is one call from StartCall until teardown.
//
// State and Muted may be read from any goroutine. Every other field belongs
// to the manager loop, which is also the only writer of state and muted.
type Session struct {
	ID        string
	StartedAt time.Time

	state atomic.Int32
	muted atomic.Bool

	// ── loop-owned ──

	duration int
	tornDown bool
	// closing is set before the channel is closed locally so the resulting
	// read error is not handled as a failure.
	closing bool

	ctx    context.Context // cancelled at teardown
	cancel context.CancelFunc
	span   trace.Span
	log    *slog.Logger

	mic          audio.Source
	channel      realtime.Channel
	cancelDial   context.CancelFunc
	connectTimer *time.Timer
	stopActivity context.CancelFunc

	// ── shared, internally synchronised ──

	outbox   *outbox
	playback *playback.Scheduler
	monitor  *activity.Monitor
}

func newSession() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	s.state.Store(int32(Disconnected))
	return s
}

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Muted reports whether captured audio is being dropped.
func (s *Session) Muted() bool { return s.muted.Load() }

// Duration returns the whole seconds spent Connected or Simulating. Loop only.
func (s *Session) Duration() int { return s.duration }
