// Package ws implements [realtime.Channel] over a WebSocket connection using
// github.com/coder/websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/brightclean/callbridge/pkg/realtime"
)

// Compile-time assertions.
var (
	_ realtime.Dialer  = (*Dialer)(nil)
	_ realtime.Channel = (*Channel)(nil)
)

// defaultReadLimit bounds a single inbound message. Response audio deltas are
// far larger than the library default of 32 KiB.
const defaultReadLimit = 4 << 20

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithHeader adds an HTTP header to the upgrade request (e.g. a session
// cookie or bearer token for the bridge).
func WithHeader(key, value string) Option {
	return func(d *Dialer) { d.header.Add(key, value) }
}

// WithReadLimit overrides the maximum inbound message size in bytes.
func WithReadLimit(n int64) Option {
	return func(d *Dialer) {
		if n > 0 {
			d.readLimit = n
		}
	}
}

// Dialer opens WebSocket channels to a fixed bridge URL.
type Dialer struct {
	url       string
	header    http.Header
	readLimit int64
}

// NewDialer creates a Dialer for url (ws:// or wss://). See
// [realtime.BridgeURL] for deriving it from the REST base.
func NewDialer(url string, opts ...Option) *Dialer {
	d := &Dialer{
		url:       url,
		header:    http.Header{},
		readLimit: defaultReadLimit,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// URL returns the endpoint this Dialer connects to.
func (d *Dialer) URL() string { return d.url }

// Dial performs the WebSocket handshake. ctx bounds the handshake only.
func (d *Dialer) Dial(ctx context.Context) (realtime.Channel, error) {
	conn, _, err := websocket.Dial(ctx, d.url, &websocket.DialOptions{
		HTTPHeader: d.header.Clone(),
	})
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", d.url, err)
	}
	conn.SetReadLimit(d.readLimit)
	return &Channel{conn: conn}, nil
}

// Channel is an open bridge connection. Text and binary frames are both
// accepted on read; writes are always text frames.
type Channel struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Read returns the payload of the next message.
func (c *Channel) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if c.isClosed() {
			return nil, realtime.ErrClosed
		}
		return nil, fmt.Errorf("ws: read: %w", err)
	}
	return data, nil
}

// Write sends msg as one text frame.
func (c *Channel) Write(ctx context.Context, msg []byte) error {
	if c.isClosed() {
		return realtime.ErrClosed
	}
	if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

// Close performs a normal closure handshake. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "call ended")
	if err != nil && !isBenignClose(err) {
		return fmt.Errorf("ws: close: %w", err)
	}
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// isBenignClose reports whether err only says the peer already went away.
func isBenignClose(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
