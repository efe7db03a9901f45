package activity

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/brightclean/callbridge/pkg/audio"
)

// recorder is an Emitter that logs every signal in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	levels []Level
	signal chan struct{}
}

func newRecorder() *recorder { return &recorder{signal: make(chan struct{}, 256)} }

func (r *recorder) add(ev string, l Level) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	if ev == "level" {
		r.levels = append(r.levels, l)
	}
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *recorder) Level(l Level)   { r.add("level", l) }
func (r *recorder) SpeechStarted() { r.add("started", 0) }
func (r *recorder) SpeechStopped() { r.add("stopped", 0) }

func (r *recorder) snapshot() ([]string, []Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]Level(nil), r.levels...)
}

// waitLevels blocks until n level readings were emitted.
func (r *recorder) waitLevels(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if _, l := r.snapshot(); len(l) >= n {
			return
		}
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d levels", n)
		}
	}
}

func start(t *testing.T, s Source, e Emitter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, e) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	})
}

func TestHysteresis(t *testing.T) {
	t.Parallel()
	h := Hysteresis{High: 30, Low: 15}
	steps := []struct {
		in               Level
		started, stopped bool
	}{
		{10, false, false},
		{30, false, false}, // must exceed, not reach
		{31, true, false},
		{50, false, false},
		{20, false, false}, // between the marks keeps speaking
		{15, false, false},
		{14, false, true},
		{5, false, false},
	}
	for i, s := range steps {
		started, stopped := h.Feed(s.in)
		if started != s.started || stopped != s.stopped {
			t.Errorf("step %d (%v): got %v/%v, want %v/%v", i, s.in, started, stopped, s.started, s.stopped)
		}
	}
}

func TestLevelClamp(t *testing.T) {
	t.Parallel()
	for in, want := range map[Level]Level{-5: 0, 0: 0, 42: 42, 100: 100, 250: 100} {
		if got := in.Clamp(); got != want {
			t.Errorf("Clamp(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestSimulation_SynthesizesSpeech(t *testing.T) {
	t.Parallel()
	script := []Level{5, 10, 35, 40, 25, 12, 8}
	var (
		mu sync.Mutex
		i  int
	)
	gen := GeneratorFunc(func() Level {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(script) {
			return 0
		}
		l := script[i]
		i++
		return l
	})

	rec := newRecorder()
	start(t, NewSimulation(WithTick(time.Millisecond), WithGenerator(gen)), rec)
	rec.waitLevels(t, len(script))

	events, levels := rec.snapshot()
	for k, want := range script {
		if levels[k] != want {
			t.Errorf("level %d = %v, want %v", k, levels[k], want)
		}
	}
	var boundaries []string
	for _, ev := range events {
		if ev != "level" {
			boundaries = append(boundaries, ev)
		}
	}
	if len(boundaries) < 2 || boundaries[0] != "started" || boundaries[1] != "stopped" {
		t.Errorf("boundaries = %v, want [started stopped]", boundaries)
	}
	// The start is reported right after the first level above the mark.
	if events[3] != "started" {
		t.Errorf("events = %v, want started after the third level", events)
	}
}

func TestSimulation_CustomThresholds(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	gen := GeneratorFunc(func() Level { return 35 })
	start(t, NewSimulation(WithTick(time.Millisecond), WithGenerator(gen), WithThresholds(50, 20)), rec)
	rec.waitLevels(t, 5)

	events, _ := rec.snapshot()
	for _, ev := range events {
		if ev != "level" {
			t.Fatalf("unexpected boundary %q below a high mark of 50", ev)
		}
	}
}

func TestRandomWalk_CrossesMarks(t *testing.T) {
	t.Parallel()
	w := NewRandomWalk(42)
	h := Hysteresis{High: DefaultHigh, Low: DefaultLow}
	var starts, stops int
	for range 5000 {
		l := w.Next()
		if l < 0 || l > 100 {
			t.Fatalf("level %v out of range", l)
		}
		s, e := h.Feed(l)
		if s {
			starts++
		}
		if e {
			stops++
		}
	}
	if starts == 0 || stops == 0 {
		t.Errorf("random walk produced %d starts and %d stops", starts, stops)
	}
}

func TestRandomWalk_Deterministic(t *testing.T) {
	t.Parallel()
	a, b := NewRandomWalk(7), NewRandomWalk(7)
	for i := range 100 {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("step %d: %v != %v", i, x, y)
		}
	}
}

func TestMonitor_EmitsWindowPeak(t *testing.T) {
	t.Parallel()
	m := NewMonitor(time.Hour) // ticks are driven by hand below
	quiet := make([]float32, 256)
	loud := make([]float32, 256)
	for i := range loud {
		loud[i] = float32(0.5 * math.Sin(2*math.Pi*float64(i)/32))
	}
	m.Observe(audio.Frame{Samples: quiet})
	m.Observe(audio.Frame{Samples: loud})
	m.Observe(audio.Frame{Samples: quiet})

	got := Level(math.Float64frombits(m.peak.Load()))
	want := Level(audio.LevelOf(loud))
	if got != want {
		t.Errorf("window peak = %v, want %v", got, want)
	}
}

func TestMonitor_Run(t *testing.T) {
	t.Parallel()
	m := NewMonitor(time.Millisecond)
	loud := make([]float32, 256)
	for i := range loud {
		loud[i] = 0.5
	}
	rec := newRecorder()
	start(t, m, rec)

	m.Observe(audio.Frame{Samples: loud})
	deadline := time.After(2 * time.Second)
	for {
		_, levels := rec.snapshot()
		found := false
		for _, l := range levels {
			if l > 80 {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-rec.signal:
		case <-deadline:
			t.Fatalf("no loud level emitted, got %v", levels)
		}
	}

	events, _ := rec.snapshot()
	for _, ev := range events {
		if ev != "level" {
			t.Fatalf("monitor emitted %q; speech boundaries come from the bridge", ev)
		}
	}
}
