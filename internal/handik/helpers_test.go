package handik

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	e := New(cfg, DefaultBinder(), quietLogger())
	require.False(t, e.Disabled())
	return e
}

var xAxis = r3.Vec{X: 1}

// fingers returns n joints each bent deg degrees about X.
func fingers(n int, deg float64) []quat.Number {
	js := make([]quat.Number, n)
	for i := range js {
		js[i] = AxisAngle(deg, xAxis)
	}
	return js
}

func handAt(x, y, z float64, joints []quat.Number) *RawSample {
	return &RawSample{
		PalmPosition: r3.Vec{X: x, Y: y, Z: z},
		PalmRotation: Identity,
		Joints:       joints,
	}
}

func leftOnly(s *RawSample) *Frame  { return &Frame{Left: s} }
func rightOnly(s *RawSample) *Frame { return &Frame{Right: s} }

func isUnit(q quat.Number) bool {
	return math.Abs(quat.Abs(q)-1) < 1e-9
}

func vecNear(t *testing.T, want, got r3.Vec, delta float64, msg string) {
	t.Helper()
	if r3.Norm(r3.Sub(want, got)) > delta {
		t.Fatalf("%s: want %+v, got %+v", msg, want, got)
	}
}

type armCall struct {
	side   Side
	pos    r3.Vec
	rot    quat.Number
	pw, rw float64
}

type recordingSolver struct {
	calls []armCall
}

func (r *recordingSolver) SetArmTarget(side Side, pos r3.Vec, rot quat.Number, pw, rw float64) {
	r.calls = append(r.calls, armCall{side: side, pos: pos, rot: rot, pw: pw, rw: rw})
}

type recordingSkeleton struct {
	calls  int
	joints [2]map[int]quat.Number
}

func (r *recordingSkeleton) SetJointLocalRotation(side Side, joint int, rot quat.Number) {
	if r.joints[side] == nil {
		r.joints[side] = make(map[int]quat.Number)
	}
	r.joints[side][joint] = rot
	r.calls++
}
