package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/brightclean/callbridge/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	if d := config.Diff(config.Default(), config.Default()); !d.Empty() {
		t.Errorf("diff of identical configs = %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, cur := config.Default(), config.Default()
	cur.Server.LogLevel = config.LogDebug

	d := config.Diff(old, cur)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v", d)
	}
	if len(d.Restart) != 0 {
		t.Errorf("restart keys = %v, want none", d.Restart)
	}
}

func TestDiff_RestartKeys(t *testing.T) {
	t.Parallel()
	old, cur := config.Default(), config.Default()
	cur.Bridge.ConnectTimeout = time.Second
	cur.Bridge.Headers = map[string]string{"X-Key": "1"}
	cur.Bridge.ReadLimit = 1 << 10
	cur.Activity.Seed = 3

	d := config.Diff(old, cur)
	for _, key := range []string{"bridge.connect_timeout", "bridge.headers", "bridge.read_limit", "activity"} {
		if !slices.Contains(d.Restart, key) {
			t.Errorf("restart keys %v missing %q", d.Restart, key)
		}
	}
	if slices.Contains(d.Restart, "audio") {
		t.Errorf("audio reported as changed: %v", d.Restart)
	}
}
