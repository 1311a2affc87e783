package handik

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a world-space position and rotation.
type Pose struct {
	Position r3.Vec
	Rotation quat.Number
}

// MirrorPose reflects p across the root's lateral plane. It is an
// involution: MirrorPose(root, MirrorPose(root, p)) == p.
func MirrorPose(root Transform, p Pose) Pose {
	root = root.normalized()
	inv := Inverse(root.Rotation)
	local := Rotate(inv, root.local(p.Position))
	return Pose{
		Position: r3.Add(root.Position, Rotate(root.Rotation, MirrorVec(local))),
		Rotation: Normalize(quat.Mul(root.Rotation, MirrorRotation(quat.Mul(inv, p.Rotation)))),
	}
}

// mirroring reports the effective left/right remap state.
func mirroring(cfg Config) bool {
	return cfg.Mirror != cfg.Swap
}

// source returns the sensor hand that feeds output side s.
func source(s Side, mirror bool) Side {
	if mirror {
		return s.Other()
	}
	return s
}

// armTarget builds the unsmoothed IK goal for output side s from the latest
// palm pose of its source hand.
func armTarget(src *HandTrackState, reorient quat.Number, root Transform, mirror bool) Pose {
	p := Pose{
		Position: src.Palm,
		Rotation: Normalize(quat.Mul(quat.Mul(src.PalmRotation, reorient), flipUp)),
	}
	if mirror {
		p = MirrorPose(root, p)
	}
	return p
}

func mirrorJoints(js []quat.Number) []quat.Number {
	out := make([]quat.Number, len(js))
	for i, q := range js {
		out[i] = MirrorRotation(q)
	}
	return out
}
