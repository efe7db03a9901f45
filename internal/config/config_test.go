package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brightclean/callbridge/internal/config"
)

const sampleYAML = `
server:
  listen_addr: "127.0.0.1:9090"
  log_level: debug

bridge:
  api_base: https://bridge.example.com/api
  connect_timeout: 5s
  read_limit: 1048576
  headers:
    Authorization: Bearer test
  breaker:
    max_failures: 2
    cooldown: 1m

audio:
  block_size: 512
  output_sample_rate: 44100
  outbox_size: 16

activity:
  tick: 50ms
  simulation_high: 40
  simulation_low: 20
  seed: 7
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != "127.0.0.1:9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Bridge.APIBase != "https://bridge.example.com/api" {
		t.Errorf("api_base = %q", cfg.Bridge.APIBase)
	}
	if cfg.Bridge.ConnectTimeout != 5*time.Second {
		t.Errorf("connect_timeout = %v, want 5s", cfg.Bridge.ConnectTimeout)
	}
	if cfg.Bridge.ReadLimit != 1<<20 {
		t.Errorf("read_limit = %d, want 1 MiB", cfg.Bridge.ReadLimit)
	}
	if cfg.Bridge.Headers["Authorization"] != "Bearer test" {
		t.Errorf("headers = %v", cfg.Bridge.Headers)
	}
	if cfg.Bridge.Breaker.MaxFailures != 2 || cfg.Bridge.Breaker.Cooldown != time.Minute {
		t.Errorf("breaker = %+v", cfg.Bridge.Breaker)
	}
	if cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("sample_rate = %d, want default %d", cfg.Audio.SampleRate, config.DefaultSampleRate)
	}
	if cfg.Audio.BlockSize != 512 || cfg.Audio.OutputSampleRate != 44100 || cfg.Audio.OutboxSize != 16 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Activity.Tick != 50*time.Millisecond || cfg.Activity.Seed != 7 {
		t.Errorf("activity = %+v", cfg.Activity)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := config.Default()
	if cfg.Audio != want.Audio || cfg.Activity != want.Activity || cfg.Server != want.Server {
		t.Errorf("empty config = %+v, want defaults", cfg)
	}
	if cfg.Bridge.ConnectTimeout != 10*time.Second {
		t.Errorf("connect_timeout = %v, want 10s", cfg.Bridge.ConnectTimeout)
	}
	if cfg.Activity.SimulationHigh != 30 || cfg.Activity.SimulationLow != 15 {
		t.Errorf("simulation marks = %v/%v, want 30/15", cfg.Activity.SimulationHigh, cfg.Activity.SimulationLow)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("bridge:\n  api_bsae: http://x\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"api scheme", func(c *config.Config) { c.Bridge.APIBase = "ftp://bridge" }, "bridge.api_base"},
		{"api host", func(c *config.Config) { c.Bridge.APIBase = "http://" }, "has no host"},
		{"timeout", func(c *config.Config) { c.Bridge.ConnectTimeout = -time.Second }, "bridge.connect_timeout"},
		{"read limit", func(c *config.Config) { c.Bridge.ReadLimit = -1 }, "bridge.read_limit"},
		{"block size", func(c *config.Config) { c.Audio.BlockSize = -1 }, "audio.block_size"},
		{"outbox", func(c *config.Config) { c.Audio.OutboxSize = -4 }, "audio.outbox_size"},
		{"tick", func(c *config.Config) { c.Activity.Tick = -time.Millisecond }, "activity.tick"},
		{"range", func(c *config.Config) { c.Activity.SimulationHigh = 120 }, "out of range"},
		{"hysteresis", func(c *config.Config) { c.Activity.SimulationLow = 40 }, "must be below"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Audio.BlockSize = -1
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "server.log_level") || !strings.Contains(msg, "audio.block_size") {
		t.Errorf("joined error missing entries: %s", msg)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "callbridge.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.BlockSize != 512 {
		t.Errorf("block_size = %d", cfg.Audio.BlockSize)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace" should be invalid`)
	}
}
