package realtime

import (
	"context"
	"errors"
)

// ErrClosed is returned by [Channel] methods after the channel was closed
// locally.
var ErrClosed = errors.New("realtime: channel closed")

// Channel is an open duplex connection to the speech bridge. Messages are
// whole JSON documents.
//
// Read must only be called from one goroutine; Write is safe for concurrent
// use but callers needing ordering must serialise writes themselves.
type Channel interface {
	// Read blocks until the next inbound message arrives, ctx is cancelled or
	// the channel fails. After a remote close or error every subsequent call
	// returns an error.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one outbound message.
	Write(ctx context.Context, msg []byte) error

	// Close closes the channel. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Dialer opens channels to the bridge. Dial returns once the handshake has
// completed, which is the channel "open" event.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc adapts a function to the [Dialer] interface.
type DialerFunc func(ctx context.Context) (Channel, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Channel, error) { return f(ctx) }
