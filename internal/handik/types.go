package handik

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Side identifies a hand.
type Side int

const (
	Left Side = iota
	Right
)

// Sides is the fixed per-tick processing order.
var Sides = [2]Side{Left, Right}

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Other returns the opposite hand.
func (s Side) Other() Side {
	if s == Left {
		return Right
	}
	return Left
}

// RawSample is one hand as reported by the tracking sensor. It is treated
// as immutable once handed to the engine.
type RawSample struct {
	PalmPosition r3.Vec
	PalmRotation quat.Number
	// Joints are local rotations in rig order. The length is fixed per hand.
	Joints    []quat.Number
	Timestamp float64
}

// Transform is the avatar reference frame the sensor data is expressed
// relative to.
type Transform struct {
	Position r3.Vec
	Rotation quat.Number
	// Scale is the uniform lossy scale of the root. Zero means 1.
	Scale float64
}

// IdentityTransform is the origin frame with unit scale.
func IdentityTransform() Transform {
	return Transform{Rotation: Identity, Scale: 1}
}

func (t Transform) normalized() Transform {
	if t.Scale == 0 {
		t.Scale = 1
	}
	if t.Rotation == (quat.Number{}) {
		t.Rotation = Identity
	}
	t.Rotation = Normalize(t.Rotation)
	return t
}

// local expresses a world-space point relative to the root position.
func (t Transform) local(p r3.Vec) r3.Vec {
	return r3.Sub(p, t.Position)
}

// Frame is one tracking update. A nil hand means the sensor did not see it.
type Frame struct {
	Seq   uint64
	Left  *RawSample
	Right *RawSample
	// Root overrides the configured reference transform when set.
	Root *Transform
}

// Hand returns the sample for side, or nil.
func (f *Frame) Hand(s Side) *RawSample {
	if f == nil {
		return nil
	}
	if s == Left {
		return f.Left
	}
	return f.Right
}

// IKTarget is the arm goal handed to the IK solver.
type IKTarget struct {
	Position       r3.Vec
	Rotation       quat.Number
	PositionWeight float64
	RotationWeight float64
}

// Phase is the acquisition/loss state of one output hand.
type Phase int

const (
	PhaseLost Phase = iota
	PhaseAcquiring
	PhaseTracking
	PhaseReleasing
)

func (p Phase) String() string {
	switch p {
	case PhaseLost:
		return "lost"
	case PhaseAcquiring:
		return "acquiring"
	case PhaseTracking:
		return "tracking"
	case PhaseReleasing:
		return "releasing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// HandOutput is everything emitted for one output hand in one tick.
type HandOutput struct {
	Phase  Phase
	Target IKTarget
	Joints []quat.Number
	// Badness is the classifier score of the source hand feeding this output.
	Badness int
}

// Output is the result of one engine tick.
type Output struct {
	// Skipped is set when the frame-skip countdown suppressed this tick.
	Skipped bool
	// Disabled is set when rig binding failed.
	Disabled bool
	// Updated is set when a new tracking update was consumed this tick.
	Updated bool
	// T is the sub-step interpolation fraction used for this tick.
	T     float64
	Hands [2]HandOutput
}

// Hand returns the output for side.
func (o *Output) Hand(s Side) *HandOutput {
	return &o.Hands[s]
}

// Writes reports whether the tick produced solver/skeleton writes.
func (o Output) Writes() bool {
	return !o.Skipped && !o.Disabled
}
