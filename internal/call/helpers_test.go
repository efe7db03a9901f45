package call

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/brightclean/callbridge/internal/activity"
	"github.com/brightclean/callbridge/internal/observe"
	"github.com/brightclean/callbridge/pkg/audio"
	amock "github.com/brightclean/callbridge/pkg/audio/mock"
	"github.com/brightclean/callbridge/pkg/realtime"
	rmock "github.com/brightclean/callbridge/pkg/realtime/mock"
)

const waitTimeout = 2 * time.Second

// viewRecorder is an Observer keeping every published view.
type viewRecorder struct {
	mu     sync.Mutex
	views  []View
	signal chan struct{}
}

func newViewRecorder() *viewRecorder { return &viewRecorder{signal: make(chan struct{}, 1)} }

func (r *viewRecorder) Update(v View) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// states returns the sequence of distinct consecutive states published.
func (r *viewRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, v := range r.views {
		if len(out) == 0 || out[len(out)-1] != v.State {
			out = append(out, v.State)
		}
	}
	return out
}

func (r *viewRecorder) last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}
	}
	return r.views[len(r.views)-1]
}

// waitFor blocks until some published view satisfies pred.
func (r *viewRecorder) waitFor(t *testing.T, what string, pred func(View) bool) View {
	t.Helper()
	deadline := time.After(waitTimeout)
	seen := 0
	for {
		r.mu.Lock()
		for ; seen < len(r.views); seen++ {
			if pred(r.views[seen]) {
				v := r.views[seen]
				r.mu.Unlock()
				return v
			}
		}
		r.mu.Unlock()
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %s; last view %+v", what, r.last())
		}
	}
}

func (r *viewRecorder) waitState(t *testing.T, st State) View {
	t.Helper()
	return r.waitFor(t, "state "+st.String(), func(v View) bool { return v.State == st })
}

// harness wires a Manager to mocks and runs its loop for the test.
type harness struct {
	m      *Manager
	mic    *amock.Microphone
	src    *amock.Source
	dialer *rmock.Dialer
	ch     *rmock.Channel
	sink   *amock.Sink
	rec    *viewRecorder
	reader *sdkmetric.ManualReader

	simMu   sync.Mutex
	simRuns int
}

// scriptedLevels returns a generator yielding levels then repeating the last.
func scriptedLevels(levels ...activity.Level) activity.Generator {
	var (
		mu sync.Mutex
		i  int
	)
	return activity.GeneratorFunc(func() activity.Level {
		mu.Lock()
		defer mu.Unlock()
		l := levels[min(i, len(levels)-1)]
		i++
		return l
	})
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		src:  &amock.Source{},
		ch:   rmock.NewChannel(),
		sink: &amock.Sink{Played: make(chan audio.Clip, 64)},
		rec:  newViewRecorder(),
	}
	h.mic = &amock.Microphone{OpenResult: h.src}
	h.dialer = &rmock.Dialer{Channel: h.ch}

	met, reader := testMetrics(t)
	h.reader = reader

	base := []Option{
		WithMetrics(met),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithObserver(h.rec),
		WithMonitorTick(5 * time.Millisecond),
		WithConnectTimeout(time.Second),
		WithSimulation(func() activity.Source {
			h.simMu.Lock()
			h.simRuns++
			h.simMu.Unlock()
			return activity.NewSimulation(
				activity.WithTick(2*time.Millisecond),
				activity.WithGenerator(scriptedLevels(5, 10, 40)),
			)
		}),
	}
	h.m = New(h.mic, h.dialer, h.sink, append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return met, reader
}

func (h *harness) simulations() int {
	h.simMu.Lock()
	defer h.simMu.Unlock()
	return h.simRuns
}

// connect starts a call and waits until it is Connected with capture running.
func (h *harness) connect(t *testing.T) {
	t.Helper()
	if err := h.m.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	h.rec.waitState(t, Connected)
	select {
	case <-h.src.Started():
	case <-time.After(waitTimeout):
		t.Fatal("capture never started")
	}
}

func (h *harness) counter(t *testing.T, name string, attrs map[string]string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
		points:
			for _, dp := range sum.DataPoints {
				for k, v := range attrs {
					got, ok := dp.Attributes.Value(attribute.Key(k))
					if !ok || got.AsString() != v {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

// messageTypes decodes the type discriminator of each written message.
func messageTypes(t *testing.T, msgs [][]byte) []string {
	t.Helper()
	out := make([]string, 0, len(msgs))
	for _, raw := range msgs {
		var m struct {
			Type  string `json:"type"`
			Audio string `json:"audio"`
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("written message %q is not JSON: %v", raw, err)
		}
		out = append(out, m.Type)
	}
	return out
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

var _ realtime.Dialer = (*rmock.Dialer)(nil)
