package handik

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// IKSolver receives one arm goal per hand per tick.
type IKSolver interface {
	SetArmTarget(side Side, position r3.Vec, rotation quat.Number, positionWeight, rotationWeight float64)
}

// Skeleton receives joint local rotations.
type Skeleton interface {
	SetJointLocalRotation(side Side, joint int, rotation quat.Number)
}

// Emit writes out to the solver and skeleton. Nothing is written for a
// skipped or disabled tick. Either sink may be nil.
func Emit(out Output, solver IKSolver, skel Skeleton) {
	if !out.Writes() {
		return
	}
	for _, s := range Sides {
		h := out.Hands[s]
		if solver != nil {
			solver.SetArmTarget(s, h.Target.Position, h.Target.Rotation,
				clamp01(h.Target.PositionWeight), clamp01(h.Target.RotationWeight))
		}
		if skel != nil {
			for i, q := range h.Joints {
				skel.SetJointLocalRotation(s, i, q)
			}
		}
	}
}
