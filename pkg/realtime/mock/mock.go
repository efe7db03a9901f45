// Package mock provides a scripted in-memory [realtime.Channel] and
// [realtime.Dialer] for tests.
//
// Tests deliver inbound messages with [Channel.Deliver], simulate a remote
// close with [Channel.Fail], and inspect outbound traffic via
// [Channel.Written]. [Dialer] can complete immediately, fail, or hang until
// its context is cancelled to exercise the connect timeout.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/brightclean/callbridge/pkg/realtime"
)

// Compile-time assertions.
var (
	_ realtime.Channel = (*Channel)(nil)
	_ realtime.Dialer  = (*Dialer)(nil)
)

// ErrRemoteClosed is the default error returned by Read after [Channel.Fail].
var ErrRemoteClosed = errors.New("mock: remote closed")

// ─── Channel ──────────────────────────────────────────────────────────────────

// Channel is a scripted [realtime.Channel].
type Channel struct {
	inbound chan []byte
	failed  chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	failErr   error
	failOnce  sync.Once
	closeOnce sync.Once
	written   [][]byte
	writeErr  error
	notify    chan struct{}

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewChannel creates a channel with room for buffered inbound messages.
func NewChannel() *Channel {
	return &Channel{
		inbound: make(chan []byte, 256),
		failed:  make(chan struct{}),
		done:    make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Deliver queues an inbound message. Messages are read in delivery order.
func (c *Channel) Deliver(msg []byte) {
	c.inbound <- msg
}

// DeliverString is a convenience wrapper around Deliver.
func (c *Channel) DeliverString(msg string) { c.Deliver([]byte(msg)) }

// Fail makes Read return err (or [ErrRemoteClosed] when nil) once all
// previously delivered messages have been read.
func (c *Channel) Fail(err error) {
	if err == nil {
		err = ErrRemoteClosed
	}
	c.failOnce.Do(func() {
		c.mu.Lock()
		c.failErr = err
		c.mu.Unlock()
		close(c.failed)
	})
}

// SetWriteError makes subsequent writes fail with err.
func (c *Channel) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Read implements [realtime.Channel].
func (c *Channel) Read(ctx context.Context) ([]byte, error) {
	// Prefer queued messages so a Fail after Deliver preserves ordering.
	select {
	case msg := <-c.inbound:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.failed:
		select {
		case msg := <-c.inbound:
			return msg, nil
		default:
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.failErr
	case <-c.done:
		return nil, realtime.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements [realtime.Channel].
func (c *Channel) Write(_ context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return realtime.ErrClosed
	default:
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), msg...))
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close implements [realtime.Channel].
func (c *Channel) Close() error {
	c.mu.Lock()
	c.CallCountClose++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Closes returns the number of Close calls.
func (c *Channel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountClose
}

// Written returns a copy of all messages written so far, in order.
func (c *Channel) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// WaitWritten blocks until at least n messages were written or ctx ends, and
// returns the messages written so far.
func (c *Channel) WaitWritten(ctx context.Context, n int) [][]byte {
	for {
		w := c.Written()
		if len(w) >= n {
			return w
		}
		select {
		case <-c.notify:
		case <-ctx.Done():
			return c.Written()
		}
	}
}

// ─── Dialer ───────────────────────────────────────────────────────────────────

// Dialer is a scripted [realtime.Dialer].
type Dialer struct {
	mu sync.Mutex

	// Channel is returned by Dial when DialError is nil and Hang is false.
	Channel *Channel

	// DialError is returned by Dial.
	DialError error

	// Hang makes Dial block until its context is cancelled or Release is
	// called.
	Hang bool

	release  chan struct{}
	released sync.Once

	// CallCountDial records how many times Dial was called.
	CallCountDial int
}

// Dial implements [realtime.Dialer].
func (d *Dialer) Dial(ctx context.Context) (realtime.Channel, error) {
	d.mu.Lock()
	d.CallCountDial++
	hang := d.Hang
	rel := d.releaseCh()
	d.mu.Unlock()

	if hang {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-rel:
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialError != nil {
		return nil, d.DialError
	}
	if d.Channel == nil {
		d.Channel = NewChannel()
	}
	return d.Channel, nil
}

// Release unblocks a hanging Dial, which then completes normally.
func (d *Dialer) Release() {
	d.mu.Lock()
	rel := d.releaseCh()
	d.mu.Unlock()
	d.released.Do(func() { close(rel) })
}

// Dials returns the number of Dial calls.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountDial
}

// releaseCh lazily creates the release channel. Must be called with d.mu held.
func (d *Dialer) releaseCh() chan struct{} {
	if d.release == nil {
		d.release = make(chan struct{})
	}
	return d.release
}
