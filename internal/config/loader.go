package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates. Unknown
// keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every incoherent value in cfg as one joined error.
// It expects defaults to have been applied.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if u, err := url.Parse(cfg.Bridge.APIBase); err != nil {
		errs = append(errs, fmt.Errorf("bridge.api_base %q: %w", cfg.Bridge.APIBase, err))
	} else {
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			errs = append(errs, fmt.Errorf("bridge.api_base %q must use http, https, ws or wss", cfg.Bridge.APIBase))
		}
		if u.Host == "" {
			errs = append(errs, fmt.Errorf("bridge.api_base %q has no host", cfg.Bridge.APIBase))
		}
	}
	if cfg.Bridge.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("bridge.connect_timeout %v must be positive", cfg.Bridge.ConnectTimeout))
	}
	if cfg.Bridge.ReadLimit < 0 {
		errs = append(errs, fmt.Errorf("bridge.read_limit %d must not be negative", cfg.Bridge.ReadLimit))
	}
	if cfg.Bridge.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("bridge.breaker.max_failures %d must not be negative", cfg.Bridge.Breaker.MaxFailures))
	}
	if cfg.Bridge.Breaker.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("bridge.breaker.cooldown %v must not be negative", cfg.Bridge.Breaker.Cooldown))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	} else if cfg.Audio.SampleRate != DefaultSampleRate {
		slog.Warn("audio.sample_rate differs from the bridge wire rate; the bridge may reject or misinterpret audio",
			"sample_rate", cfg.Audio.SampleRate,
			"wire_rate", DefaultSampleRate,
		)
	}
	if cfg.Audio.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be positive", cfg.Audio.BlockSize))
	}
	if cfg.Audio.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must be positive", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.OutboxSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.outbox_size %d must be positive", cfg.Audio.OutboxSize))
	}

	if cfg.Activity.Tick <= 0 {
		errs = append(errs, fmt.Errorf("activity.tick %v must be positive", cfg.Activity.Tick))
	}
	for name, v := range map[string]float64{
		"activity.simulation_high": cfg.Activity.SimulationHigh,
		"activity.simulation_low":  cfg.Activity.SimulationLow,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s %.1f is out of range [0, 100]", name, v))
		}
	}
	if cfg.Activity.SimulationLow >= cfg.Activity.SimulationHigh {
		errs = append(errs, fmt.Errorf("activity.simulation_low %.1f must be below simulation_high %.1f",
			cfg.Activity.SimulationLow, cfg.Activity.SimulationHigh))
	}

	return errors.Join(errs...)
}
