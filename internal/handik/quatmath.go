package handik

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rotations are unit quaternions with Real as the scalar part and
// Imag/Jmag/Kmag as the X/Y/Z parts. Composition is the Hamilton product
// (quat.Mul), vector rotation is q*v*conj(q).

// Identity is the no-rotation quaternion.
var Identity = quat.Number{Real: 1}

// flipUp is a 180 degree rotation about the vertical (Y) axis.
var flipUp = quat.Number{Jmag: 1}

// Quat builds a rotation from x, y, z, w components.
func Quat(x, y, z, w float64) quat.Number {
	return quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
}

// AxisAngle returns the rotation of deg degrees about axis.
func AxisAngle(deg float64, axis r3.Vec) quat.Number {
	return quat.Number(r3.NewRotation(deg*math.Pi/180, axis))
}

// Normalize returns q scaled to unit length. The zero quaternion (and
// anything non-finite) normalizes to Identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

func qdot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Nlerp blends a toward b by t (clamped to [0,1]) along the shorter arc and
// renormalizes.
func Nlerp(a, b quat.Number, t float64) quat.Number {
	t = clamp01(t)
	if qdot(a, b) < 0 {
		b = quat.Scale(-1, b)
	}
	return Normalize(quat.Add(quat.Scale(1-t, a), quat.Scale(t, b)))
}

// AngleBetween returns the angle in degrees needed to rotate a onto b.
func AngleBetween(a, b quat.Number) float64 {
	d := math.Abs(qdot(Normalize(a), Normalize(b)))
	if d >= 1 {
		return 0
	}
	return 2 * math.Acos(d) * 180 / math.Pi
}

// Rotate applies q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}

// Inverse returns the inverse of a unit rotation.
func Inverse(q quat.Number) quat.Number {
	return quat.Conj(q)
}

// MirrorRotation reflects a rotation across the lateral (X) axis plane.
// Applying it twice yields the input.
func MirrorRotation(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: q.Jmag, Kmag: q.Kmag}
}

// MirrorVec negates the lateral component.
func MirrorVec(v r3.Vec) r3.Vec {
	return r3.Vec{X: -v.X, Y: v.Y, Z: v.Z}
}

// LerpVec blends a toward b by t (clamped to [0,1]).
func LerpVec(a, b r3.Vec, t float64) r3.Vec {
	t = clamp01(t)
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

func lerp(a, b, t float64) float64 {
	t = clamp01(t)
	return a + (b-a)*t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, 0, 1)
}

// lerpRotations blends two joint sequences element-wise. The result has
// the length of the shorter sequence.
func lerpRotations(a, b []quat.Number, t float64) []quat.Number {
	n := min(len(a), len(b))
	out := make([]quat.Number, n)
	for i := 0; i < n; i++ {
		out[i] = Nlerp(a[i], b[i], t)
	}
	return out
}

func cloneRotations(src []quat.Number) []quat.Number {
	if src == nil {
		return nil
	}
	out := make([]quat.Number, len(src))
	copy(out, src)
	return out
}
