package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errDial = errors.New("dial refused")

// fakeClock lets tests step past the cool-down without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(cfg)
	b.now = clk.Now
	return b, clk
}

func fail(context.Context) error    { return errDial }
func succeed(context.Context) error { return nil }

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	if b.maxFailures != 3 || b.cooldown != 30*time.Second {
		t.Errorf("defaults = %d/%v, want 3/30s", b.maxFailures, b.cooldown)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 2, Cooldown: time.Minute})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	if b.State() != StateClosed {
		t.Fatal("opened after a single failure")
	}
	_ = b.Do(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("open breaker: err=%v called=%v", err, called)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 2})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, succeed)
	_ = b.Do(ctx, fail)
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success closes", func(t *testing.T) {
		t.Parallel()
		b, clk := newTestBreaker(Config{MaxFailures: 1, Cooldown: time.Second})
		_ = b.Do(ctx, fail)
		clk.Advance(time.Second)
		if b.State() != StateHalfOpen {
			t.Fatalf("state = %v, want half-open", b.State())
		}
		if err := b.Do(ctx, succeed); err != nil {
			t.Fatalf("probe: %v", err)
		}
		if b.State() != StateClosed {
			t.Errorf("state = %v, want closed", b.State())
		}
	})

	t.Run("failure re-opens", func(t *testing.T) {
		t.Parallel()
		b, clk := newTestBreaker(Config{MaxFailures: 1, Cooldown: time.Second})
		_ = b.Do(ctx, fail)
		clk.Advance(time.Second)
		_ = b.Do(ctx, fail)
		if b.State() != StateOpen {
			t.Errorf("state = %v, want open", b.State())
		}
	})

	t.Run("single probe at a time", func(t *testing.T) {
		t.Parallel()
		b, clk := newTestBreaker(Config{MaxFailures: 1, Cooldown: time.Second})
		_ = b.Do(ctx, fail)
		clk.Advance(time.Second)

		inProbe := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- b.Do(ctx, func(context.Context) error {
				close(inProbe)
				<-release
				return nil
			})
		}()
		<-inProbe
		if err := b.Do(ctx, succeed); !errors.Is(err, ErrOpen) {
			t.Errorf("concurrent probe err = %v, want ErrOpen", err)
		}
		close(release)
		if err := <-done; err != nil {
			t.Errorf("probe err = %v", err)
		}
	})
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_DeadlineIsFailure(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 1})
	_ = b.Do(context.Background(), func(context.Context) error { return context.DeadlineExceeded })
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
}

func TestBreaker_ResetAndNotify(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		trans []string
	)
	b, _ := newTestBreaker(Config{MaxFailures: 1, OnStateChange: func(from, to State) {
		mu.Lock()
		trans = append(trans, from.String()+"->"+to.String())
		mu.Unlock()
	}})

	_ = b.Do(context.Background(), fail)
	b.Reset()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"closed->open", "open->closed"}
	if len(trans) != len(want) {
		t.Fatalf("transitions = %v, want %v", trans, want)
	}
	for i := range want {
		if trans[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, trans[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
