package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"handsteady/internal/handik"
)

// Config is the top-level YAML configuration for the handsteady daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config. Flags are overrides on top of the file.
type Config struct {
	// Hand stabilization engine tunables
	Engine EngineFileConfig `yaml:"engine"`

	// Avatar hand rig description
	Rig RigConfig `yaml:"rig"`

	// Tracking input
	Sensor SensorConfig `yaml:"sensor"`

	// Tick loop
	Daemon DaemonConfig `yaml:"daemon"`

	// IPC control socket (used by handsteady-ctl)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP server for the state/pose websocket
	HTTP HTTPConfig `yaml:"http"`

	// Keyboard hotkeys via evdev
	Hotkeys HotkeysConfig `yaml:"hotkeys"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EngineFileConfig is the user-facing engine configuration as represented in YAML.
// It maps 1:1 to handik.Config but uses YAML-friendly types (rotations are
// [x, y, z, w] lists).
type EngineFileConfig struct {
	Smoothing      float64 `yaml:"smoothing"`
	GracePeriodSec float64 `yaml:"grace_period_sec"`
	LerpInSec      float64 `yaml:"lerp_in_sec"`
	LerpOutSec     float64 `yaml:"lerp_out_sec"`

	RangeLimit   bool    `yaml:"range_limit"`
	MaximumRange float64 `yaml:"maximum_range"`

	Mirror bool `yaml:"mirror"`
	Swap   bool `yaml:"swap"`
	Track  bool `yaml:"track"`

	MinAliveFrames int `yaml:"min_alive_frames"`
	SkipFrames     int `yaml:"skip_frames"`

	Thresholds ThresholdsFileConfig `yaml:"thresholds"`
	Root       RootFileConfig       `yaml:"root"`
}

type ThresholdsFileConfig struct {
	BadThreshold     int     `yaml:"bad_threshold"`
	GoodFactor       int     `yaml:"good_factor"`
	BadFactor        int     `yaml:"bad_factor"`
	MaxBadness       int     `yaml:"max_badness"`
	AngularDeg       float64 `yaml:"angular_deg"`
	DistanceLow      float64 `yaml:"distance_low"`
	DistanceHigh     float64 `yaml:"distance_high"`
	JumpMargin       float64 `yaml:"jump_margin"`
	AlivePivotFrames int     `yaml:"alive_pivot_frames"`
}

// RootFileConfig is the avatar reference frame used when frames carry none.
type RootFileConfig struct {
	Position [3]float64 `yaml:"position"`
	Rotation [4]float64 `yaml:"rotation"` // x, y, z, w
	Scale    float64    `yaml:"scale"`
}

type RigConfig struct {
	// File is a rig YAML description. Empty selects the built-in 15-joint hand.
	File string `yaml:"file"`
}

type SensorConfig struct {
	Mode string `yaml:"mode"` // "websocket" or "replay"

	WsURL     string `yaml:"ws_url"`
	TimeoutMS int    `yaml:"timeout_ms"`

	ReplayFile          string `yaml:"replay_file"`
	ReplayLoop          bool   `yaml:"replay_loop"`
	ReplayTicksPerFrame int    `yaml:"replay_ticks_per_frame"`
}

const (
	sensorModeWebsocket = "websocket"
	sensorModeReplay    = "replay"
)

type DaemonConfig struct {
	UpdateHz int `yaml:"update_hz"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type HotkeysConfig struct {
	Devices []string `yaml:"devices,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with handik.DefaultConfig and constants.go.
func DefaultConfig() Config {
	th := handik.DefaultThresholds()
	return Config{
		Engine: EngineFileConfig{
			Smoothing:      handik.DefaultSmoothing,
			GracePeriodSec: handik.DefaultGracePeriod,
			LerpInSec:      handik.DefaultLerpIn,
			LerpOutSec:     handik.DefaultLerpOut,
			RangeLimit:     true,
			MaximumRange:   handik.DefaultMaximumRange,
			Track:          true,
			MinAliveFrames: handik.DefaultMinAlive,
			SkipFrames:     defaultSkipFrames,
			Thresholds: ThresholdsFileConfig{
				BadThreshold:     th.BadThreshold,
				GoodFactor:       th.GoodFactor,
				BadFactor:        th.BadFactor,
				MaxBadness:       th.MaxBadness,
				AngularDeg:       th.AngularThreshold,
				DistanceLow:      th.DistanceLow,
				DistanceHigh:     th.DistanceHigh,
				JumpMargin:       th.JumpMargin,
				AlivePivotFrames: th.AlivePivot,
			},
			Root: RootFileConfig{
				Rotation: [4]float64{0, 0, 0, 1},
				Scale:    1,
			},
		},
		Sensor: SensorConfig{
			Mode:                sensorModeWebsocket,
			WsURL:               defaultSensorWsURL,
			TimeoutMS:           defaultReadTimeoutMS,
			ReplayTicksPerFrame: 1,
		},
		Daemon: DaemonConfig{
			UpdateHz: defaultUpdateHz,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from command-line flags. Each override is only
// applied when its pointer is non-nil; main.go decides which flags exist.
type FlagOverrides struct {
	Mirror     *bool
	Swap       *bool
	Track      *bool
	Smoothing  *float64
	SkipFrames *int

	RigFile *string

	SensorMode          *string
	SensorWsURL         *string
	ReplayFile          *string
	ReplayLoop          *bool
	ReplayTicksPerFrame *int

	UpdateHz      *int
	IPCSocketPath *string
	HTTPPort      *int
	HotkeyDevices *[]string
	LogLevel      *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.Mirror != nil {
		cfg.Engine.Mirror = *o.Mirror
	}
	if o.Swap != nil {
		cfg.Engine.Swap = *o.Swap
	}
	if o.Track != nil {
		cfg.Engine.Track = *o.Track
	}
	if o.Smoothing != nil {
		cfg.Engine.Smoothing = *o.Smoothing
	}
	if o.SkipFrames != nil {
		cfg.Engine.SkipFrames = *o.SkipFrames
	}

	if o.RigFile != nil {
		cfg.Rig.File = *o.RigFile
	}

	if o.SensorMode != nil {
		cfg.Sensor.Mode = *o.SensorMode
	}
	if o.SensorWsURL != nil {
		cfg.Sensor.WsURL = *o.SensorWsURL
	}
	if o.ReplayFile != nil {
		cfg.Sensor.ReplayFile = *o.ReplayFile
	}
	if o.ReplayLoop != nil {
		cfg.Sensor.ReplayLoop = *o.ReplayLoop
	}
	if o.ReplayTicksPerFrame != nil {
		cfg.Sensor.ReplayTicksPerFrame = *o.ReplayTicksPerFrame
	}

	if o.UpdateHz != nil {
		cfg.Daemon.UpdateHz = *o.UpdateHz
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.HotkeyDevices != nil {
		cfg.Hotkeys.Devices = append([]string(nil), (*o.HotkeyDevices)...)
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if err := c.ToEngineConfig().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Engine.Root.Scale < 0 {
		return errors.New("engine.root.scale must be >= 0")
	}

	switch c.Sensor.Mode {
	case sensorModeWebsocket:
		if c.Sensor.WsURL == "" {
			return errors.New("sensor.ws_url must not be empty")
		}
		if c.Sensor.TimeoutMS <= 0 {
			return errors.New("sensor.timeout_ms must be > 0")
		}
	case sensorModeReplay:
		if c.Sensor.ReplayFile == "" {
			return errors.New("sensor.replay_file must not be empty in replay mode")
		}
		if c.Sensor.ReplayTicksPerFrame < 1 {
			return errors.New("sensor.replay_ticks_per_frame must be >= 1")
		}
	default:
		return fmt.Errorf("sensor.mode must be %q or %q", sensorModeWebsocket, sensorModeReplay)
	}

	if c.Daemon.UpdateHz <= 0 || c.Daemon.UpdateHz > 1000 {
		return errors.New("daemon.update_hz must be between 1 and 1000")
	}
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}
	for i, dev := range c.Hotkeys.Devices {
		if dev == "" {
			return fmt.Errorf("hotkeys.devices[%d] is empty", i)
		}
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToEngineConfig converts the file config into the engine config.
func (c *Config) ToEngineConfig() handik.Config {
	e := c.Engine
	r := e.Root
	return handik.Config{
		Smoothing:    e.Smoothing,
		GracePeriod:  e.GracePeriodSec,
		LerpIn:       e.LerpInSec,
		LerpOut:      e.LerpOutSec,
		RangeLimit:   e.RangeLimit,
		MaximumRange: e.MaximumRange,
		Mirror:       e.Mirror,
		Swap:         e.Swap,
		Track:        e.Track,
		MinAlive:     e.MinAliveFrames,
		SkipFrames:   e.SkipFrames,
		Thresholds: handik.Thresholds{
			BadThreshold:     e.Thresholds.BadThreshold,
			GoodFactor:       e.Thresholds.GoodFactor,
			BadFactor:        e.Thresholds.BadFactor,
			MaxBadness:       e.Thresholds.MaxBadness,
			AngularThreshold: e.Thresholds.AngularDeg,
			DistanceLow:      e.Thresholds.DistanceLow,
			DistanceHigh:     e.Thresholds.DistanceHigh,
			JumpMargin:       e.Thresholds.JumpMargin,
			AlivePivot:       e.Thresholds.AlivePivotFrames,
		},
		Root: handik.Transform{
			Position: vec3(r.Position),
			Rotation: handik.Quat(r.Rotation[0], r.Rotation[1], r.Rotation[2], r.Rotation[3]),
			Scale:    r.Scale,
		},
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
