package handik

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
)

var (
	// ErrRigUnavailable means the avatar has no usable hand rig.
	ErrRigUnavailable = errors.New("hand rig unavailable")
	// ErrJointCountMismatch means rest rotations and joints disagree in length.
	ErrJointCountMismatch = errors.New("joint count mismatch")
)

// InitError is returned by a binder when one hand cannot be bound.
type InitError struct {
	Side Side
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("bind %s hand: %v", e.Side, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// HandRig is the capability a rigged hand model exposes to the engine.
type HandRig interface {
	// JointNames lists the tracked joints in the order the engine indexes them.
	JointNames() []string
	// RestRotations are the local rotations of the joints in the bind pose.
	RestRotations() []quat.Number
	// Reorientation maps the sensor palm basis onto the model palm basis.
	Reorientation() quat.Number
}

// HandBinding is the resolved, immutable view of one rigged hand.
type HandBinding struct {
	Joints        []string
	Rest          []quat.Number
	Reorientation quat.Number
}

// JointCount returns the number of tracked joints.
func (h HandBinding) JointCount() int { return len(h.Rest) }

// RigBinding is the result of binding both hands, resolved once before the
// first tick.
type RigBinding struct {
	Hands [2]HandBinding
}

// Hand returns the binding for side.
func (b RigBinding) Hand(s Side) HandBinding { return b.Hands[s] }

// RigBinder performs skeleton discovery for the engine.
type RigBinder interface {
	Bind() (RigBinding, error)
}

// BinderFunc adapts a function to RigBinder.
type BinderFunc func() (RigBinding, error)

func (f BinderFunc) Bind() (RigBinding, error) { return f() }

// BindHands resolves two hand rigs into a binding.
func BindHands(left, right HandRig) (RigBinding, error) {
	var b RigBinding
	for _, s := range Sides {
		rig := left
		if s == Right {
			rig = right
		}
		h, err := bindHand(rig)
		if err != nil {
			return RigBinding{}, &InitError{Side: s, Err: err}
		}
		b.Hands[s] = h
	}
	return b, nil
}

func bindHand(rig HandRig) (HandBinding, error) {
	if rig == nil {
		return HandBinding{}, ErrRigUnavailable
	}
	names := rig.JointNames()
	rest := rig.RestRotations()
	if len(names) != len(rest) {
		return HandBinding{}, fmt.Errorf("%w: %d joints, %d rest rotations", ErrJointCountMismatch, len(names), len(rest))
	}
	h := HandBinding{
		Joints:        append([]string(nil), names...),
		Rest:          make([]quat.Number, len(rest)),
		Reorientation: Normalize(rig.Reorientation()),
	}
	for i, q := range rest {
		h.Rest[i] = Normalize(q)
	}
	return h, nil
}

// StaticRig is a HandRig backed by fixed data.
type StaticRig struct {
	Names    []string
	Rest     []quat.Number
	Reorient quat.Number
}

func (r StaticRig) JointNames() []string         { return r.Names }
func (r StaticRig) RestRotations() []quat.Number { return r.Rest }
func (r StaticRig) Reorientation() quat.Number   { return r.Reorient }

var fingerNames = []string{"thumb", "index", "middle", "ring", "pinky"}

// DefaultJointCount is the number of finger joints in the default rig.
const DefaultJointCount = 15

// DefaultHandRig returns a three-bone-per-finger hand with identity rest
// pose and no reorientation.
func DefaultHandRig() StaticRig {
	r := StaticRig{Reorient: Identity}
	for _, f := range fingerNames {
		for bone := 1; bone <= 3; bone++ {
			r.Names = append(r.Names, fmt.Sprintf("%s_%d", f, bone))
			r.Rest = append(r.Rest, Identity)
		}
	}
	return r
}

// DefaultBinder binds the default rig to both hands.
func DefaultBinder() RigBinder {
	return BinderFunc(func() (RigBinding, error) {
		return BindHands(DefaultHandRig(), DefaultHandRig())
	})
}
