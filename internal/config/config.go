// Package config defines the callbridge configuration schema and its YAML
// loader.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultAPIBase          = "http://localhost:8000"
	DefaultConnectTimeout   = 10 * time.Second
	DefaultBreakerFailures  = 3
	DefaultBreakerCooldown  = 30 * time.Second
	DefaultReadLimit        = 4 << 20
	DefaultSampleRate       = 16000
	DefaultBlockSize        = 1024
	DefaultOutputSampleRate = 48000
	DefaultOutboxSize       = 64
	DefaultTick             = 100 * time.Millisecond
	DefaultSimulationHigh   = 30
	DefaultSimulationLow    = 15
)

// Config is the root configuration, usually loaded with [Load].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Audio    AudioConfig    `yaml:"audio"`
	Activity ActivityConfig `yaml:"activity"`
}

// ServerConfig holds logging and the optional status server.
type ServerConfig struct {
	// ListenAddr enables the status server (/healthz, /readyz, /metrics,
	// /call) when non-empty, e.g. "127.0.0.1:9090".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// BridgeConfig locates the speech bridge.
type BridgeConfig struct {
	// APIBase is the bridge's HTTP base URL. The realtime endpoint is derived
	// from it by swapping the scheme to ws/wss.
	APIBase string `yaml:"api_base"`

	// ConnectTimeout bounds the handshake before the call falls back to
	// simulation.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Headers are sent with the websocket upgrade request.
	Headers map[string]string `yaml:"headers"`

	// ReadLimit bounds one inbound message in bytes. Response audio deltas
	// exceed the websocket library default of 32 KiB.
	ReadLimit int64 `yaml:"read_limit"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the handshake.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// AudioConfig sets capture and playback parameters.
type AudioConfig struct {
	// SampleRate is the capture rate. The bridge expects 16 kHz mono.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is the number of samples per captured frame.
	BlockSize int `yaml:"block_size"`

	// OutputSampleRate is the speaker rate; response audio is resampled to it.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// OutboxSize bounds the queue of encoded frames awaiting send. When full
	// the oldest frame is dropped.
	OutboxSize int `yaml:"outbox_size"`

	// InputDevice and OutputDevice select hardware devices in builds with the
	// portaudio tag. Empty means the system default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

// ActivityConfig tunes the level monitor and the simulation fallback.
type ActivityConfig struct {
	Tick time.Duration `yaml:"tick"`

	// SimulationHigh and SimulationLow are the speech hysteresis marks on the
	// [0,100] level scale.
	SimulationHigh float64 `yaml:"simulation_high"`
	SimulationLow  float64 `yaml:"simulation_low"`

	// Seed fixes the simulation generator. Zero picks a random seed.
	Seed uint64 `yaml:"seed"`
}

// ApplyDefaults fills zero fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Bridge.APIBase == "" {
		cfg.Bridge.APIBase = DefaultAPIBase
	}
	if cfg.Bridge.ConnectTimeout == 0 {
		cfg.Bridge.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Bridge.ReadLimit == 0 {
		cfg.Bridge.ReadLimit = DefaultReadLimit
	}
	if cfg.Bridge.Breaker.MaxFailures == 0 {
		cfg.Bridge.Breaker.MaxFailures = DefaultBreakerFailures
	}
	if cfg.Bridge.Breaker.Cooldown == 0 {
		cfg.Bridge.Breaker.Cooldown = DefaultBreakerCooldown
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.BlockSize == 0 {
		cfg.Audio.BlockSize = DefaultBlockSize
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultOutputSampleRate
	}
	if cfg.Audio.OutboxSize == 0 {
		cfg.Audio.OutboxSize = DefaultOutboxSize
	}
	if cfg.Activity.Tick == 0 {
		cfg.Activity.Tick = DefaultTick
	}
	if cfg.Activity.SimulationHigh == 0 {
		cfg.Activity.SimulationHigh = DefaultSimulationHigh
	}
	if cfg.Activity.SimulationLow == 0 {
		cfg.Activity.SimulationLow = DefaultSimulationLow
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
