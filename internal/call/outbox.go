package call

import (
	"context"
	"sync"

	"github.com/brightclean/callbridge/pkg/realtime"
)

// outMsg is one queued outbound message. Only audio frames may be dropped.
type outMsg struct {
	data  []byte
	frame bool
}

// outbox is the bounded queue between capture and the single sender
// goroutine. When limit frames are queued the oldest frame is discarded to
// make room; control messages are never discarded.
type outbox struct {
	limit  int
	notify chan struct{}

	mu     sync.Mutex
	items  []outMsg
	frames int
	closed bool
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: max(limit, 1), notify: make(chan struct{}, 1)}
}

// push queues msg and reports whether an older frame was dropped for it.
// Pushing to a closed outbox is a silent no-op.
func (o *outbox) push(data []byte, frame bool) (dropped bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	if frame && o.frames >= o.limit {
		for i, it := range o.items {
			if it.frame {
				o.items = append(o.items[:i], o.items[i+1:]...)
				o.frames--
				dropped = true
				break
			}
		}
	}
	o.items = append(o.items, outMsg{data: data, frame: frame})
	if frame {
		o.frames++
	}
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (o *outbox) pop() (outMsg, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return outMsg{}, false
	}
	it := o.items[0]
	o.items[0] = outMsg{}
	o.items = o.items[1:]
	if it.frame {
		o.frames--
	}
	return it, true
}

// close discards queued messages and rejects further pushes.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.items = nil
	o.frames = 0
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *outbox) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// run writes queued messages to ch in order until ctx is cancelled, the
// outbox is closed or a write fails. sent is called after each frame.
func (o *outbox) run(ctx context.Context, ch realtime.Channel, sent func()) error {
	for {
		it, ok := o.pop()
		if !ok {
			if o.isClosed() {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-o.notify:
				continue
			}
		}
		if err := ch.Write(ctx, it.data); err != nil {
			if ctx.Err() != nil || o.isClosed() {
				return nil
			}
			return err
		}
		if it.frame && sent != nil {
			sent()
		}
	}
}
