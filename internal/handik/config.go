package handik

import (
	"errors"
	"fmt"
)

// Classifier defaults. These are empirical values tuned against real
// sensor noise; they are configuration, not invariants.
const (
	DefaultBadThreshold     = 10
	DefaultGoodFactor       = 2
	DefaultBadFactor        = 1
	DefaultMaxBadness       = 112
	DefaultAngularThreshold = 5.0   // degrees
	DefaultDistanceLow      = 0.001 // root-local units
	DefaultDistanceHigh     = 0.013
	DefaultJumpMargin       = 0.05
	DefaultAlivePivot       = 6

	DefaultSmoothing     = 0.5
	DefaultGracePeriod   = 0.25 // seconds
	DefaultLerpIn        = 0.4
	DefaultLerpOut       = 1.25
	DefaultMaximumRange  = 0.5
	DefaultMinAlive      = 4
	DefaultAvgInterpRate = 0.15
	MaxInterpolationT    = 0.985
)

// Thresholds tune the noise/ghost classifier.
type Thresholds struct {
	BadThreshold     int
	GoodFactor       int
	BadFactor        int
	MaxBadness       int
	AngularThreshold float64
	DistanceLow      float64
	DistanceHigh     float64
	// JumpMargin is added to half of MaximumRange to get the jump threshold.
	JumpMargin float64
	// AlivePivot weights badness harder while the alive counter is below it.
	AlivePivot int
}

// DefaultThresholds returns the tuned classifier constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BadThreshold:     DefaultBadThreshold,
		GoodFactor:       DefaultGoodFactor,
		BadFactor:        DefaultBadFactor,
		MaxBadness:       DefaultMaxBadness,
		AngularThreshold: DefaultAngularThreshold,
		DistanceLow:      DefaultDistanceLow,
		DistanceHigh:     DefaultDistanceHigh,
		JumpMargin:       DefaultJumpMargin,
		AlivePivot:       DefaultAlivePivot,
	}
}

// Config holds every engine tunable.
type Config struct {
	// Smoothing is the low-pass factor in [0,1]; 0 passes raw data through.
	Smoothing float64
	// GracePeriod is how long (seconds) a lost hand keeps full weight.
	GracePeriod float64
	// LerpIn and LerpOut are the ramp durations (seconds) for acquisition and loss.
	LerpIn  float64
	LerpOut float64

	RangeLimit   bool
	MaximumRange float64

	Mirror bool
	Swap   bool
	// Track is the master switch; when false both hands fade out.
	Track bool

	MinAlive int
	// SkipFrames arms the frame-skip countdown at construction and on Reset.
	SkipFrames int

	Thresholds Thresholds
	Root       Transform
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Smoothing:    DefaultSmoothing,
		GracePeriod:  DefaultGracePeriod,
		LerpIn:       DefaultLerpIn,
		LerpOut:      DefaultLerpOut,
		RangeLimit:   true,
		MaximumRange: DefaultMaximumRange,
		Track:        true,
		MinAlive:     DefaultMinAlive,
		Thresholds:   DefaultThresholds(),
		Root:         IdentityTransform(),
	}
}

// JumpThreshold is the per-update palm displacement treated as a glitch.
func (c Config) JumpThreshold() float64 {
	return c.MaximumRange/2 + c.Thresholds.JumpMargin
}

// Validate reports the first out-of-range tunable.
func (c Config) Validate() error {
	if c.Smoothing < 0 || c.Smoothing > 1 {
		return fmt.Errorf("smoothing must be within [0,1], got %v", c.Smoothing)
	}
	if c.GracePeriod < 0 {
		return errors.New("grace period must be >= 0")
	}
	if c.LerpIn <= 0 || c.LerpOut <= 0 {
		return errors.New("lerp periods must be > 0")
	}
	if c.MaximumRange <= 0 {
		return errors.New("maximum range must be > 0")
	}
	if c.MinAlive < 1 {
		return errors.New("minimum alive frames must be >= 1")
	}
	if c.SkipFrames < 0 {
		return errors.New("skip frames must be >= 0")
	}
	th := c.Thresholds
	if th.MaxBadness <= 0 || th.BadThreshold < 0 || th.BadThreshold > th.MaxBadness {
		return fmt.Errorf("bad threshold must be within [0,%d]", th.MaxBadness)
	}
	if th.GoodFactor < 0 || th.BadFactor < 0 {
		return errors.New("badness factors must be >= 0")
	}
	if th.DistanceLow > th.DistanceHigh {
		return errors.New("distance low must be <= distance high")
	}
	return nil
}
