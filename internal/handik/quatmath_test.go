package handik

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestMirrorRotation_Involution(t *testing.T) {
	q := AxisAngle(37, r3.Vec{X: 0.3, Y: 1, Z: -0.4})
	assert.Equal(t, q, MirrorRotation(MirrorRotation(q)))

	v := r3.Vec{X: 0.2, Y: -1, Z: 3}
	assert.Equal(t, v, MirrorVec(MirrorVec(v)))
}

func TestMirrorRotation_ReflectsLateralAxis(t *testing.T) {
	// A yaw to the right mirrors to the same yaw to the left.
	yaw := AxisAngle(30, r3.Vec{Y: 1})
	fwd := r3.Vec{Z: 1}

	got := Rotate(MirrorRotation(yaw), fwd)
	want := MirrorVec(Rotate(yaw, fwd))
	vecNear(t, want, got, 1e-12, "mirrored yaw")
}

func TestMirrorPose_InvolutionUnderRotatedRoot(t *testing.T) {
	root := Transform{
		Position: r3.Vec{X: 1, Y: 2, Z: -3},
		Rotation: AxisAngle(70, r3.Vec{Y: 1}),
		Scale:    1.5,
	}
	p := Pose{Position: r3.Vec{X: 1.4, Y: 2.3, Z: -2.8}, Rotation: AxisAngle(-20, r3.Vec{X: 1, Z: 1})}

	back := MirrorPose(root, MirrorPose(root, p))
	vecNear(t, p.Position, back.Position, 1e-12, "position")
	assert.InDelta(t, 0, AngleBetween(p.Rotation, back.Rotation), 1e-4)

	// A point on the root's lateral plane maps to itself.
	onPlane := Pose{Position: r3.Add(root.Position, Rotate(root.Rotation, r3.Vec{Y: 0.5, Z: 0.2})), Rotation: Identity}
	vecNear(t, onPlane.Position, MirrorPose(root, onPlane).Position, 1e-12, "on-plane point")
}

func TestNlerp_TakesShortArc(t *testing.T) {
	a := AxisAngle(10, xAxis)
	b := quat.Scale(-1, AxisAngle(30, xAxis))

	mid := Nlerp(a, b, 0.5)
	require.True(t, isUnit(mid))
	assert.InDelta(t, 20, AngleBetween(Identity, mid), 1e-9)

	assert.InDelta(t, 0, AngleBetween(a, Nlerp(a, b, -1)), 1e-4)
	assert.InDelta(t, 0, AngleBetween(b, Nlerp(a, b, 2)), 1e-4)
}

func TestAngleBetween(t *testing.T) {
	assert.InDelta(t, 90, AngleBetween(Identity, AxisAngle(90, r3.Vec{Z: 1})), 1e-9)
	assert.InDelta(t, 0, AngleBetween(AxisAngle(45, xAxis), quat.Scale(-1, AxisAngle(45, xAxis))), 1e-4)
	assert.Zero(t, AngleBetween(Identity, Identity))
}

func TestNormalize_Degenerate(t *testing.T) {
	assert.Equal(t, Identity, Normalize(quat.Number{}))
	assert.Equal(t, Identity, Normalize(quat.Number{Real: math.NaN()}))
	assert.True(t, isUnit(Normalize(Quat(1, 2, 3, 4))))
}

func TestLerpRotations_ShorterLength(t *testing.T) {
	out := lerpRotations(fingers(5, 0), fingers(3, 40), 0.5)
	require.Len(t, out, 3)
	assert.InDelta(t, 20, AngleBetween(Identity, out[2]), 1e-9)
	assert.Empty(t, lerpRotations(nil, fingers(3, 0), 0.5))
}
