// Package call implements the voice call state machine.
//
// A [Manager] owns at most one [Session]. Every state change, timer, network
// result and server event is executed on a single loop goroutine, so session
// fields need no locks. Device and network goroutines only post closures to
// the loop; the capture callback additionally reads the session's atomic
// state and muted flags and feeds the bounded outbox directly.
//
//	Disconnected → Connecting → Connected  → Disconnected
//	                          ↘ Simulating → Disconnected
//
// When the bridge cannot be reached within the connect timeout the call
// degrades to Simulating, where locally synthesized activity drives the same
// [Router] and [View] as real server events.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/brightclean/callbridge/internal/activity"
	"github.com/brightclean/callbridge/internal/observe"
	"github.com/brightclean/callbridge/internal/playback"
	"github.com/brightclean/callbridge/internal/resilience"
	"github.com/brightclean/callbridge/pkg/audio"
	"github.com/brightclean/callbridge/pkg/realtime"
)

var (
	// ErrCallActive is returned by StartCall while a call is starting or live.
	ErrCallActive = errors.New("call: a call is already active")

	// ErrNoCall is returned by operations that need a live session.
	ErrNoCall = errors.New("call: no active call")

	// ErrStartCanceled is returned by StartCall when EndCall or shutdown
	// overtook the microphone request.
	ErrStartCanceled = errors.New("call: start canceled")

	// ErrStopped is returned once the manager loop has exited.
	ErrStopped = errors.New("call: manager stopped")
)

// Defaults for [New].
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultOutboxSize     = 64
	DefaultDurationTick   = time.Second
)

// User-visible error texts.
const (
	msgPermission = "Microphone access was denied."
	msgMicFailed  = "Could not open the microphone."
	msgCapture    = "Could not start capturing audio."
	msgLost       = "Connection to the assistant was lost."
)

// Option configures a [Manager].
type Option func(*Manager)

// WithConnectTimeout bounds the bridge handshake before falling back to
// simulation.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

// WithCapture sets the capture format and block size.
func WithCapture(f audio.Format, blockSize int) Option {
	return func(m *Manager) {
		m.format = f
		if blockSize > 0 {
			m.blockSize = blockSize
		}
	}
}

// WithOutboxSize bounds the number of frames queued for sending.
func WithOutboxSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.outboxSize = n
		}
	}
}

// WithBreaker guards each dial with b. An open breaker sends the call
// straight to simulation.
func WithBreaker(b *resilience.Breaker) Option {
	return func(m *Manager) { m.breaker = b }
}

// WithMonitorTick sets the level emission interval while connected.
func WithMonitorTick(d time.Duration) Option {
	return func(m *Manager) { m.monitorTick = d }
}

// WithSimulation sets the factory for the activity source used while
// simulating. One source is created per simulated call.
func WithSimulation(fn func() activity.Source) Option {
	return func(m *Manager) { m.newSimulation = fn }
}

// WithDurationTick sets the call duration counter interval.
func WithDurationTick(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.durationTick = d
		}
	}
}

// WithObserver registers o for every published [View].
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithMetrics records on met instead of [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithLogger sets the base logger. Session loggers add session_id.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager runs the call state machine. Create it with [New] and drive the
// loop with [Manager.Run]; all other methods are safe for concurrent use.
type Manager struct {
	mic    audio.Microphone
	dialer realtime.Dialer
	sink   audio.Sink

	connectTimeout time.Duration
	format         audio.Format
	blockSize      int
	outboxSize     int
	monitorTick    time.Duration
	durationTick   time.Duration
	newSimulation  func() activity.Source
	breaker        *resilience.Breaker
	metrics        *observe.Metrics
	log            *slog.Logger

	ops      chan func()
	done     chan struct{}
	running  atomic.Bool
	snapshot atomic.Pointer[View]

	// ── loop-owned ──

	runCtx     context.Context
	sess       *Session
	starting   bool
	gen        uint64
	view       View
	transcript TranscriptBuffer
	observers  []Observer
	router     Router
}

// New returns a Manager capturing from mic, dialing through dialer and
// playing responses on sink. The caller keeps ownership of sink.
func New(mic audio.Microphone, dialer realtime.Dialer, sink audio.Sink, opts ...Option) *Manager {
	m := &Manager{
		mic:            mic,
		dialer:         dialer,
		sink:           sink,
		connectTimeout: DefaultConnectTimeout,
		format:         audio.WireFormat,
		blockSize:      audio.DefaultBlockSize,
		outboxSize:     DefaultOutboxSize,
		durationTick:   DefaultDurationTick,
		log:            slog.Default(),
		ops:            make(chan func(), 64),
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.newSimulation == nil {
		m.newSimulation = func() activity.Source { return activity.NewSimulation() }
	}
	m.router = Router{m: m}
	m.snapshot.Store(&View{StateName: Disconnected.String()})
	return m
}

// Run executes the loop until ctx is cancelled, then ends any live call.
// It may be called once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("call: manager already running")
	}
	m.runCtx = ctx
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case op := <-m.ops:
			op()
		}
	}
}

// Done is closed when Run has returned.
func (m *Manager) Done() <-chan struct{} { return m.done }

// ── Public operations ────────────────────────────────────────────────────────

// StartCall requests the microphone and, once granted, starts connecting.
// It returns after the permission outcome; the handshake continues in the
// background and is reported through the [View].
func (m *Manager) StartCall(ctx context.Context) error {
	res := make(chan error, 1)
	if !m.post(func() { m.startCall(ctx, res) }) {
		return ErrStopped
	}
	return m.wait(ctx, res)
}

// EndCall tears the current call down. Without a call it does nothing.
func (m *Manager) EndCall(ctx context.Context) error {
	return m.do(ctx, func() error {
		if m.starting {
			m.starting = false
			m.gen++
			return nil
		}
		if m.sess != nil {
			m.teardown(m.sess)
		}
		return nil
	})
}

// SetMuted sets whether captured audio is dropped before sending. Capture
// itself keeps running.
func (m *Manager) SetMuted(ctx context.Context, muted bool) error {
	return m.do(ctx, func() error {
		s := m.sess
		if s == nil {
			return ErrNoCall
		}
		m.setMuted(s, muted)
		return nil
	})
}

// ToggleMute flips the muted flag and returns the new value.
func (m *Manager) ToggleMute(ctx context.Context) (bool, error) {
	var muted bool
	err := m.do(ctx, func() error {
		s := m.sess
		if s == nil {
			return ErrNoCall
		}
		muted = !s.Muted()
		m.setMuted(s, muted)
		return nil
	})
	return muted, err
}

// Subscribe adds o to the observers of published views.
func (m *Manager) Subscribe(ctx context.Context, o Observer) error {
	return m.do(ctx, func() error {
		m.observers = append(m.observers, o)
		return nil
	})
}

// View returns the last published snapshot.
func (m *Manager) View() View { return *m.snapshot.Load() }

// ── Loop plumbing ────────────────────────────────────────────────────────────

// post queues fn for the loop. It reports false once the loop has exited.
func (m *Manager) post(fn func()) bool {
	select {
	case m.ops <- fn:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !m.post(func() { res <- fn() }) {
		return ErrStopped
	}
	return m.wait(ctx, res)
}

func (m *Manager) wait(ctx context.Context, res <-chan error) error {
	select {
	case err := <-res:
		return err
	case <-m.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) shutdown() {
	if m.starting {
		m.starting = false
		m.gen++
	}
	if m.sess != nil {
		m.teardown(m.sess)
	}
}

// ── Lifecycle (loop only) ────────────────────────────────────────────────────

func (m *Manager) startCall(ctx context.Context, res chan<- error) {
	if m.sess != nil || m.starting {
		res <- ErrCallActive
		return
	}
	m.starting = true
	m.gen++
	gen := m.gen

	go func() {
		src, err := m.mic.Open(ctx, m.format, m.blockSize)
		if !m.post(func() { m.micOpened(ctx, gen, src, err, res) }) {
			if src != nil {
				_ = src.Close()
			}
			res <- ErrStopped
		}
	}()
}

func (m *Manager) micOpened(ctx context.Context, gen uint64, src audio.Source, err error, res chan<- error) {
	if gen != m.gen || !m.starting {
		if src != nil {
			_ = src.Close()
		}
		res <- ErrStartCanceled
		return
	}
	m.starting = false

	if err == nil && ctx.Err() != nil {
		_ = src.Close()
		res <- ctx.Err()
		return
	}
	if err != nil {
		m.view.Error = msgMicFailed
		if errors.Is(err, audio.ErrPermissionDenied) {
			m.view.Error = msgPermission
			m.metrics.PermissionErrors.Add(m.runCtx, 1)
		}
		m.log.Warn("call: microphone unavailable", "err", err)
		m.publish()
		res <- fmt.Errorf("call: open microphone: %w", err)
		return
	}

	s := newSession()
	spanCtx, span := observe.StartCallSpan(m.runCtx, s.ID)
	s.ctx, s.cancel = context.WithCancel(spanCtx)
	s.span = span
	s.log = observe.LoggerFrom(spanCtx, m.log).With("session_id", s.ID)
	s.mic = src
	s.outbox = newOutbox(m.outboxSize)
	s.playback = playback.New(m.sink, playback.WithMetrics(m.metrics), playback.WithLogger(s.log))

	m.sess = s
	m.view = View{}
	m.transcript.Reset()
	m.metrics.ActiveCalls.Add(m.runCtx, 1)

	m.transition(s, Connecting)
	m.startDurationTicker(s)
	m.dial(s)
	res <- nil
}

func (m *Manager) dial(s *Session) {
	dctx, cancel := context.WithTimeout(s.ctx, m.connectTimeout)
	s.cancelDial = cancel
	s.connectTimer = time.AfterFunc(m.connectTimeout, func() {
		m.post(func() { m.connectTimedOut(s) })
	})

	started := time.Now()
	go func() {
		var ch realtime.Channel
		op := func(ctx context.Context) error {
			c, err := m.dialer.Dial(ctx)
			ch = c
			return err
		}
		var err error
		if m.breaker != nil {
			err = m.breaker.Do(dctx, op)
		} else {
			err = op(dctx)
		}
		elapsed := time.Since(started)
		if !m.post(func() { m.dialed(s, ch, err, elapsed) }) && ch != nil {
			_ = ch.Close()
		}
	}()
}

func (m *Manager) connectTimedOut(s *Session) {
	if s != m.sess || s.State() != Connecting {
		return
	}
	// The dial context shares the deadline, so the breaker sees a timeout
	// rather than a cancellation.
	s.log.Warn("call: bridge did not answer in time", "timeout", m.connectTimeout)
	m.enterSimulation(s)
}

// dialed handles the handshake result. A result for a session that is gone
// or no longer connecting is discarded and its channel closed.
func (m *Manager) dialed(s *Session, ch realtime.Channel, err error, elapsed time.Duration) {
	if s != m.sess || s.tornDown || s.State() != Connecting {
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	s.connectTimer.Stop()
	s.cancelDial()

	if err == nil && ch == nil {
		err = errors.New("call: dialer returned no channel")
	}
	if err != nil {
		if ch != nil {
			_ = ch.Close()
		}
		if errors.Is(err, resilience.ErrOpen) {
			s.log.Info("call: bridge circuit open")
		} else {
			s.log.Warn("call: bridge unreachable", "err", err)
		}
		m.enterSimulation(s)
		return
	}

	m.metrics.ConnectDuration.Record(s.ctx, elapsed.Seconds())
	s.channel = ch
	if !m.transition(s, Connected) {
		return
	}
	m.metrics.RecordCallStarted(s.ctx, "connected")
	go m.send(s)
	go m.read(s)

	s.monitor = activity.NewMonitor(m.monitorTick)
	m.runActivity(s, s.monitor)
	if err := s.mic.Start(m.captureFunc(s)); err != nil {
		s.log.Error("call: capture failed to start", "err", err)
		m.view.Error = msgCapture
		m.teardown(s)
	}
}

func (m *Manager) enterSimulation(s *Session) {
	s.connectTimer.Stop()
	if !m.transition(s, Simulating) {
		return
	}
	m.metrics.RecordCallStarted(s.ctx, "simulating")
	m.runActivity(s, m.newSimulation())
}

// teardown ends s. It leaves Connected first so capture stops forwarding,
// marks the session closing so the channel's close error is ignored, closes
// the channel, stops timers and activity, and finally releases playback and
// the microphone. Repeated calls are no-ops.
func (m *Manager) teardown(s *Session) {
	if s.tornDown {
		return
	}
	s.tornDown = true
	from := s.State()
	m.setState(s, Disconnected)

	s.closing = true
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.log.Debug("call: channel close", "err", err)
		}
	}
	if s.connectTimer != nil {
		s.connectTimer.Stop()
	}
	if s.cancelDial != nil {
		s.cancelDial()
	}
	if s.stopActivity != nil {
		s.stopActivity()
	}
	s.cancel()
	s.outbox.close()
	_ = s.playback.Close()
	if err := s.mic.Close(); err != nil {
		s.log.Warn("call: releasing microphone", "err", err)
	}

	m.metrics.ActiveCalls.Add(m.runCtx, -1)
	m.metrics.CallDuration.Record(m.runCtx, time.Since(s.StartedAt).Seconds())
	s.span.End()
	s.log.Info("call ended", "from", from.String(), "duration_s", s.duration)

	m.sess = nil
	m.view.DurationSeconds = s.duration
	m.view.Listening = false
	m.view.Level = 0
	m.publish()
}

// setState applies a transition without publishing. Illegal transitions are
// logged and refused.
func (m *Manager) setState(s *Session, next State) bool {
	from := s.State()
	if !from.CanTransition(next) {
		s.log.Error("call: refusing illegal transition", "from", from.String(), "to", next.String())
		return false
	}
	s.state.Store(int32(next))
	m.metrics.RecordTransition(m.runCtx, from.String(), next.String())
	s.span.AddEvent("state." + next.String())
	s.log.Info("call state changed", "from", from.String(), "to", next.String())
	return true
}

func (m *Manager) transition(s *Session, next State) bool {
	if !m.setState(s, next) {
		return false
	}
	m.publish()
	return true
}

func (m *Manager) setMuted(s *Session, muted bool) {
	s.muted.Store(muted)
	s.log.Info("call mute changed", "muted", muted)
	m.publish()
}

func (m *Manager) publish() {
	v := m.view
	v.SessionID, v.State, v.Muted = "", Disconnected, false
	if s := m.sess; s != nil {
		v.SessionID = s.ID
		v.State = s.State()
		v.Muted = s.Muted()
		v.DurationSeconds = s.duration
	}
	v.StateName = v.State.String()
	m.snapshot.Store(&v)
	for _, o := range m.observers {
		o.Update(v)
	}
}

func (m *Manager) sessionLog() *slog.Logger {
	if m.sess != nil {
		return m.sess.log
	}
	return m.log
}

// ── Session goroutines ───────────────────────────────────────────────────────

// captureFunc returns the device callback for s. It runs on the device
// goroutine and touches only atomics, the monitor and the outbox.
func (m *Manager) captureFunc(s *Session) func(audio.Frame) {
	mon, ctx := s.monitor, s.ctx
	return func(f audio.Frame) {
		if s.State() != Connected {
			return
		}
		if mon != nil {
			mon.Observe(f)
		}
		if s.Muted() {
			m.metrics.RecordDrop(ctx, observe.DropMuted)
			return
		}
		msg, err := realtime.AppendMessage(audio.EncodeBase64(audio.EncodePCM16(f.Samples)))
		if err != nil {
			return
		}
		if s.outbox.push(msg, true) {
			m.metrics.RecordDrop(ctx, observe.DropBackpressure)
		}
	}
}

func (m *Manager) send(s *Session) {
	err := s.outbox.run(s.ctx, s.channel, func() { m.metrics.FramesSent.Add(s.ctx, 1) })
	if err != nil {
		m.post(func() { m.channelFailed(s, fmt.Errorf("call: send: %w", err)) })
	}
}

// read posts inbound events to the loop in arrival order.
func (m *Manager) read(s *Session) {
	for {
		data, err := s.channel.Read(s.ctx)
		if err != nil {
			m.post(func() { m.channelFailed(s, err) })
			return
		}
		ev, err := realtime.ParseServerEvent(data)
		if err != nil {
			s.log.Warn("call: skipping malformed server message", "err", err)
			continue
		}
		if !m.post(func() { m.handleEvent(s, ev) }) {
			return
		}
	}
}

func (m *Manager) handleEvent(s *Session, ev realtime.ServerEvent) {
	if s != m.sess || s.tornDown {
		return
	}
	typ := ev.Type()
	if _, ok := ev.(realtime.Unknown); ok {
		typ = "unknown"
	}
	m.metrics.RecordEvent(s.ctx, typ)
	m.router.Route(ev)
}

// channelFailed ends a connected call on a read or write failure, unless the
// failure is the echo of a local close.
func (m *Manager) channelFailed(s *Session, err error) {
	if s != m.sess || s.tornDown || s.closing {
		return
	}
	s.log.Warn("call: connection to bridge lost", "err", err)
	m.view.Error = msgLost
	m.teardown(s)
}

func (m *Manager) startDurationTicker(s *Session) {
	go func() {
		t := time.NewTicker(m.durationTick)
		defer t.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.C:
				if !m.post(func() { m.tickDuration(s) }) {
					return
				}
			}
		}
	}()
}

func (m *Manager) tickDuration(s *Session) {
	if s != m.sess || s.tornDown {
		return
	}
	if st := s.State(); st == Connected || st == Simulating {
		s.duration++
		m.publish()
	}
}

func (m *Manager) runActivity(s *Session, src activity.Source) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.stopActivity = cancel
	e := &emitter{m: m, s: s}
	go func() { _ = src.Run(ctx, e) }()
}

var _ activity.Emitter = (*emitter)(nil)

// emitter forwards activity to the loop for the session it was created for.
type emitter struct {
	m *Manager
	s *Session
}

func (e *emitter) live() bool { return e.m.sess == e.s && !e.s.tornDown }

func (e *emitter) Level(l activity.Level) {
	e.m.post(func() {
		if e.live() {
			e.m.view.Level = l
			e.m.publish()
		}
	})
}

func (e *emitter) SpeechStarted() {
	e.m.post(func() {
		if e.live() {
			e.m.router.SpeechStarted(realtime.SpeechStarted{})
		}
	})
}

func (e *emitter) SpeechStopped() {
	e.m.post(func() {
		if e.live() {
			e.m.router.SpeechStopped(realtime.SpeechStopped{})
		}
	})
}
