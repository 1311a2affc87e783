package main

import (
	"io"
	"log/slog"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"handsteady/internal/handik"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestState returns a daemon state around an engine bound to the default
// rig. skip is the start-up frame-skip count.
func newTestState(t *testing.T, skip int) *DaemonState {
	t.Helper()
	cfg := handik.DefaultConfig()
	cfg.SkipFrames = skip
	if err := cfg.Validate(); err != nil {
		t.Fatalf("engine config: %v", err)
	}
	e := handik.New(cfg, handik.DefaultBinder(), quietLogger())
	if e.Disabled() {
		t.Fatalf("engine disabled: %v", e.InitErr())
	}
	return NewDaemonState(e, defaultSkipFrames)
}

// leftHandFrame is a steady left hand in front of the root. Repeating it
// acquires the hand after handik.DefaultMinAlive updates.
func leftHandFrame(seq uint64) *handik.Frame {
	joints := make([]quat.Number, handik.DefaultJointCount)
	for i := range joints {
		joints[i] = handik.AxisAngle(10, r3.Vec{X: 1})
	}
	return &handik.Frame{
		Seq: seq,
		Left: &handik.RawSample{
			PalmPosition: r3.Vec{Y: 0.2, Z: 0.1},
			PalmRotation: handik.Identity,
			Joints:       joints,
		},
	}
}

// recordingSink is an OutputSink that keeps every committed tick.
type recordingSink struct {
	poseBuilder
	frames []PoseFrame
	err    error
}

func (s *recordingSink) Commit(tick uint64, t float64) error {
	f, err := s.finish(tick, t)
	if err != nil {
		return err
	}
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}
