// Command callbridge places realtime voice calls through the speech bridge
// from a terminal.
//
// Usage:
//
//	callbridge -config callbridge.yaml [-simulate]
//
// Commands on stdin: m toggles mute, s starts a new call, e ends the current
// call and q ends it and exits.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brightclean/callbridge/internal/activity"
	"github.com/brightclean/callbridge/internal/call"
	"github.com/brightclean/callbridge/internal/config"
	"github.com/brightclean/callbridge/internal/observe"
	"github.com/brightclean/callbridge/internal/resilience"
	"github.com/brightclean/callbridge/pkg/audio"
	"github.com/brightclean/callbridge/pkg/realtime"
	"github.com/brightclean/callbridge/pkg/realtime/ws"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// errQuit ends the process after the user asked to exit.
var errQuit = errors.New("quit requested")

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "callbridge.yaml", "path to the YAML configuration file")
	simulate := flag.Bool("simulate", false, "never dial the bridge; every call runs in simulation")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, fromFile, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "callbridge: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("callbridge starting",
		"version", version,
		"config", *configPath,
		"config_loaded", fromFile,
		"api_base", cfg.Bridge.APIBase,
		"simulate", *simulate,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Devices and bridge ────────────────────────────────────────────────────
	mic, sink, err := openDevices(cfg)
	if err != nil {
		slog.Error("failed to open audio devices", "err", err)
		return 1
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Warn("closing speaker", "err", err)
		}
	}()

	dialer, err := newDialer(cfg, *simulate)
	if err != nil {
		slog.Error("invalid bridge address", "err", err)
		return 1
	}

	breaker := resilience.New(resilience.Config{
		Name:        "bridge",
		MaxFailures: cfg.Bridge.Breaker.MaxFailures,
		Cooldown:    cfg.Bridge.Breaker.Cooldown,
		OnStateChange: func(from, to resilience.State) {
			slog.Info("bridge circuit breaker changed", "from", from.String(), "to", to.String())
		},
	})

	mgr := call.New(mic, dialer, sink,
		call.WithConnectTimeout(cfg.Bridge.ConnectTimeout),
		call.WithCapture(audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: 1}, cfg.Audio.BlockSize),
		call.WithOutboxSize(cfg.Audio.OutboxSize),
		call.WithBreaker(breaker),
		call.WithMonitorTick(cfg.Activity.Tick),
		call.WithSimulation(simulationFactory(cfg.Activity)),
		call.WithObserver(newViewLogger(logger)),
		call.WithMetrics(metrics),
		call.WithLogger(logger),
	)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })

	if cfg.Server.ListenAddr != "" {
		srv := newStatusServer(cfg.Server.ListenAddr, mgr, breaker, metrics)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if fromFile {
		w, err := config.NewWatcher(*configPath, func(old, cur *config.Config) {
			applyConfigChange(logger, level, config.Diff(old, cur))
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	g.Go(func() error { return controls(gctx, os.Stdin, mgr) })

	slog.Info("ready: m mute, s start, e end, q quit")

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path. A missing file at the default path falls back to
// the built-in defaults; fromFile reports whether the file was used.
func loadConfig(path string) (cfg *config.Config, fromFile bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist) && !flagSet("config"):
		return config.Default(), false, nil
	default:
		return nil, false, err
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func newDialer(cfg *config.Config, simulate bool) (realtime.Dialer, error) {
	if simulate {
		return realtime.DialerFunc(func(context.Context) (realtime.Channel, error) {
			return nil, errors.New("simulation mode")
		}), nil
	}
	url, err := realtime.BridgeURL(cfg.Bridge.APIBase)
	if err != nil {
		return nil, err
	}
	opts := []ws.Option{ws.WithReadLimit(cfg.Bridge.ReadLimit)}
	for k, v := range cfg.Bridge.Headers {
		opts = append(opts, ws.WithHeader(k, v))
	}
	return ws.NewDialer(url, opts...), nil
}

func simulationFactory(cfg config.ActivityConfig) func() activity.Source {
	n := uint64(0)
	return func() activity.Source {
		opts := []activity.SimulationOption{
			activity.WithTick(cfg.Tick),
			activity.WithThresholds(activity.Level(cfg.SimulationHigh), activity.Level(cfg.SimulationLow)),
		}
		if cfg.Seed != 0 {
			// Successive calls replay distinct but reproducible walks.
			opts = append(opts, activity.WithGenerator(activity.NewRandomWalk(cfg.Seed+n)))
			n++
		}
		return activity.NewSimulation(opts...)
	}
}

func applyConfigChange(logger *slog.Logger, level *slog.LevelVar, c config.Change) {
	if c.LogLevelChanged {
		level.Set(slogLevel(c.NewLogLevel))
		logger.Info("log level changed", "level", c.NewLogLevel)
	}
	if len(c.Restart) > 0 {
		logger.Warn("config changes take effect after restart", "keys", c.Restart)
	}
}

// controls starts the first call and then applies stdin commands until ctx
// ends, stdin closes or the user quits.
func controls(ctx context.Context, in io.Reader, mgr *call.Manager) error {
	startCall(ctx, mgr)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// Stdin closed; keep the call running until a signal arrives.
				<-ctx.Done()
				return nil
			}
			if err := command(ctx, line, mgr); err != nil {
				return err
			}
		}
	}
}

func command(ctx context.Context, line string, mgr *call.Manager) error {
	switch line {
	case "m":
		muted, err := mgr.ToggleMute(ctx)
		if err != nil {
			slog.Warn("mute", "err", err)
			return nil
		}
		slog.Info("microphone muted", "muted", muted)
	case "s":
		startCall(ctx, mgr)
	case "e":
		if err := mgr.EndCall(ctx); err != nil {
			slog.Warn("end call", "err", err)
		}
	case "q":
		if err := mgr.EndCall(ctx); err != nil {
			slog.Warn("end call", "err", err)
		}
		return errQuit
	case "":
	default:
		slog.Info("unknown command", "command", line)
	}
	return nil
}

func startCall(ctx context.Context, mgr *call.Manager) {
	err := mgr.StartCall(ctx)
	switch {
	case err == nil:
	case errors.Is(err, call.ErrCallActive):
		slog.Info("a call is already active")
	case errors.Is(err, audio.ErrPermissionDenied):
		slog.Error("microphone access denied", "err", err)
	default:
		slog.Warn("start call", "err", err)
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
