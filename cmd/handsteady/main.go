package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"handsteady/internal/handik"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "handsteady",
		Short: "Hand tracking stabilizer and avatar retargeting daemon",
		Long: `handsteady turns noisy optical hand tracking into stable IK targets and
finger joint rotations for a rigged avatar.

It rejects implausible samples, keeps hands alive through short dropouts,
fades arms in and out of the IK solver, and can mirror or swap hands.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Path to YAML config file")
	root.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "handsteady v%s (%s) built %s\n", version, commit, buildTime)
		},
	})
	root.AddCommand(newRunCmd(), newReplayCmd())
	return root
}

// loadConfig applies defaults, then the config file, then overrides.
func loadConfig(cmd *cobra.Command, o FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		c, err := LoadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = c
	}
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		o.LogLevel = &v
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg Config) *slog.Logger {
	level, _ := parseLogLevel(cfg.Logging.Level) // validated
	return setupLogger(os.Stderr, level)
}

// ============================================================================
// run
// ============================================================================

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stabilization daemon",
		RunE:  runDaemonCmd,
	}
	f := cmd.Flags()
	f.Bool("mirror", false, "Mirror hands (left drives right)")
	f.Bool("swap", false, "Swap sensor hands")
	f.Bool("track", true, "Master tracking switch")
	f.Float64("smoothing", handik.DefaultSmoothing, "Joint smoothing factor in [0, 1]")
	f.Int("skip-frames", defaultSkipFrames, "Ticks skipped after start and reinitialize")
	f.String("rig", "", "Rig YAML file (empty uses the built-in 15-joint hand)")
	f.String("sensor", sensorModeWebsocket, "Sensor mode: websocket or replay")
	f.String("sensor-ws-url", defaultSensorWsURL, "Tracking bridge websocket URL")
	f.String("replay-file", "", "Replay YAML file (sensor=replay)")
	f.Bool("replay-loop", false, "Loop the replay file")
	f.Int("replay-ticks-per-frame", 1, "Ticks between replayed frames")
	f.Int("update-hz", defaultUpdateHz, "Engine tick rate in Hz")
	f.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
	f.Int("http-port", defaultHTTPPort, "HTTP port for /ws/state and /api/state (0 disables)")
	f.StringSlice("hotkey-device", nil, "Linux input event device for hotkeys (repeatable)")
	return cmd
}

// runOverrides collects only the flags the user actually set.
func runOverrides(cmd *cobra.Command) FlagOverrides {
	f := cmd.Flags()
	var o FlagOverrides

	boolFlag := func(name string, dst **bool) {
		if f.Changed(name) {
			v, _ := f.GetBool(name)
			*dst = &v
		}
	}
	intFlag := func(name string, dst **int) {
		if f.Changed(name) {
			v, _ := f.GetInt(name)
			*dst = &v
		}
	}
	stringFlag := func(name string, dst **string) {
		if f.Changed(name) {
			v, _ := f.GetString(name)
			*dst = &v
		}
	}

	boolFlag("mirror", &o.Mirror)
	boolFlag("swap", &o.Swap)
	boolFlag("track", &o.Track)
	if f.Changed("smoothing") {
		v, _ := f.GetFloat64("smoothing")
		o.Smoothing = &v
	}
	intFlag("skip-frames", &o.SkipFrames)
	stringFlag("rig", &o.RigFile)
	stringFlag("sensor", &o.SensorMode)
	stringFlag("sensor-ws-url", &o.SensorWsURL)
	stringFlag("replay-file", &o.ReplayFile)
	boolFlag("replay-loop", &o.ReplayLoop)
	intFlag("replay-ticks-per-frame", &o.ReplayTicksPerFrame)
	intFlag("update-hz", &o.UpdateHz)
	stringFlag("ipc-socket", &o.IPCSocketPath)
	intFlag("http-port", &o.HTTPPort)
	if f.Changed("hotkey-device") {
		v, _ := f.GetStringSlice("hotkey-device")
		o.HotkeyDevices = &v
	}
	return o
}

func runDaemonCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, runOverrides(cmd))
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				logger.Error(name+" stopped", "error", err)
				stop()
			}
		}()
	}

	// Frame source
	var source FrameSource
	switch cfg.Sensor.Mode {
	case sensorModeReplay:
		rs, err := OpenReplay(cfg.Sensor.ReplayFile, cfg.Sensor.ReplayTicksPerFrame, cfg.Sensor.ReplayLoop)
		if err != nil {
			return err
		}
		logger.Info("replaying tracking file", "file", cfg.Sensor.ReplayFile, "frames", rs.Len())
		source = rs
	default:
		tc, err := NewTrackingClient(cfg.Sensor.WsURL, cfg.Sensor.TimeoutMS, logger)
		if err != nil {
			return err
		}
		goRun("tracking client", func() error { return tc.Run(ctx) })
		source = tc
	}

	engine := handik.New(cfg.ToEngineConfig(), newRigBinder(cfg.Rig.File), logger)
	if engine.Disabled() {
		logger.Warn("engine starts disabled; send reinitialize after fixing the rig", "error", engine.InitErr())
	}
	state := NewDaemonState(engine, cfg.Engine.SkipFrames)

	// Central buses
	events := make(chan Event, 64)
	var broadcasts chan StateBroadcast

	if cfg.HTTP.Port > 0 {
		broadcasts = make(chan StateBroadcast, 256)
		ws := NewServer(logger, events, ServerConfig{})
		goRun("ws hub", func() error { ws.Hub().Run(ctx); return nil })
		goRun("ws broadcaster", func() error { RunBroadcaster(ctx, ws.Hub(), broadcasts, logger); return nil })
		mux := newStateMux(ws, events, logger)
		goRun("http server", func() error { return runHTTPServer(ctx, cfg.HTTP.Port, mux, logger) })
	}

	goRun("ipc server", func() error { return runIPCServer(ctx, cfg.IPC.SocketPath, events, logger) })
	goRun("hotkeys", func() error { return runHotkeys(ctx, cfg.Hotkeys.Devices, events, logger) })

	logger.Info("listening",
		"sensor", cfg.Sensor.Mode,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"update_hz", cfg.Daemon.UpdateHz,
		"version", version)

	runDaemon(ctx, events, source, newPoseRecorder(broadcasts), state, cfg.Daemon.UpdateHz, broadcasts, logger)

	stop()
	wg.Wait()
	return nil
}

// ============================================================================
// replay
// ============================================================================

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Run a replay file through the engine and print pose frames as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayCmd,
	}
	f := cmd.Flags()
	f.Float64("dt", 0, "Seconds per tick (default 1/update_hz)")
	f.Int("ticks", 0, "Stop after this many ticks (required with --loop)")
	f.Int("tail", 0, "Extra ticks to run after the last frame (default: enough for fades to finish)")
	f.Bool("loop", false, "Loop the replay file")
	f.Int("ticks-per-frame", 1, "Ticks between replayed frames")
	f.String("rig", "", "Rig YAML file")
	f.StringP("output", "o", "-", "Output file ('-' for stdout)")
	return cmd
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	o := FlagOverrides{ReplayFile: &args[0]}
	mode := sensorModeReplay
	o.SensorMode = &mode
	if f.Changed("rig") {
		v, _ := f.GetString("rig")
		o.RigFile = &v
	}
	if f.Changed("loop") {
		v, _ := f.GetBool("loop")
		o.ReplayLoop = &v
	}
	if f.Changed("ticks-per-frame") {
		v, _ := f.GetInt("ticks-per-frame")
		o.ReplayTicksPerFrame = &v
	}
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	dt, _ := f.GetFloat64("dt")
	if dt <= 0 {
		dt = 1 / float64(cfg.Daemon.UpdateHz)
	}
	maxTicks, _ := f.GetInt("ticks")
	tail, _ := f.GetInt("tail")
	if !f.Changed("tail") {
		// Long enough for the grace period plus a fade out that starts
		// before the fade in completed.
		tail = int((cfg.Engine.GracePeriodSec+2*cfg.Engine.LerpOutSec)/dt) + 1
	}

	src, err := OpenReplay(cfg.Sensor.ReplayFile, cfg.Sensor.ReplayTicksPerFrame, cfg.Sensor.ReplayLoop)
	if err != nil {
		return err
	}
	if src.loop && maxTicks <= 0 {
		return errors.New("--ticks is required when looping")
	}

	var w io.Writer = cmd.OutOrStdout()
	if out, _ := f.GetString("output"); out != "-" {
		file, err := os.Create(ExpandPath(out))
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		w = file
	}

	engine := handik.New(cfg.ToEngineConfig(), newRigBinder(cfg.Rig.File), logger)
	if engine.Disabled() {
		return fmt.Errorf("rig binding failed: %w", engine.InitErr())
	}
	state := NewDaemonState(engine, cfg.Engine.SkipFrames)

	ticks, err := driveReplay(state, src, newJSONLineSink(w), dt, tail, maxTicks, logger)
	if err != nil {
		return err
	}
	logger.Info("replay finished", "frames", src.Len(), "ticks", ticks, "updates", state.Updates)
	return nil
}
