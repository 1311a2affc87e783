package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"handsteady/internal/handik"
)

// wireHand is one tracked hand as sent by the tracking bridge (JSON) and as
// written in replay scripts (YAML). Rotations are [x, y, z, w].
type wireHand struct {
	Position  [3]float64   `json:"position" yaml:"position"`
	Rotation  [4]float64   `json:"rotation" yaml:"rotation"`
	Joints    [][4]float64 `json:"joints" yaml:"joints"`
	Timestamp float64      `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

type wireTransform struct {
	Position [3]float64 `json:"position" yaml:"position"`
	Rotation [4]float64 `json:"rotation" yaml:"rotation"`
	Scale    float64    `json:"scale" yaml:"scale"`
}

// wireFrame is one tracking update. A missing hand means the sensor did not
// see it this update.
type wireFrame struct {
	Seq   uint64         `json:"seq" yaml:"seq"`
	Left  *wireHand      `json:"left,omitempty" yaml:"left,omitempty"`
	Right *wireHand      `json:"right,omitempty" yaml:"right,omitempty"`
	Root  *wireTransform `json:"root,omitempty" yaml:"root,omitempty"`
}

func vec3(v [3]float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// xyzw flattens a rotation into wire order.
func xyzw(q quat.Number) [4]float64 {
	return [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real}
}

func (h *wireHand) toSample() (*handik.RawSample, error) {
	if h == nil {
		return nil, nil
	}
	if !finite(h.Position[:]...) {
		return nil, fmt.Errorf("palm: non-finite position %v", h.Position)
	}
	if !finite(h.Rotation[:]...) {
		return nil, fmt.Errorf("palm: non-finite rotation %v", h.Rotation)
	}
	palm := handik.Quat(h.Rotation[0], h.Rotation[1], h.Rotation[2], h.Rotation[3])
	if palm == (quat.Number{}) {
		return nil, fmt.Errorf("palm: zero rotation")
	}
	s := &handik.RawSample{
		PalmPosition: vec3(h.Position),
		PalmRotation: handik.Normalize(palm),
		Joints:       make([]quat.Number, len(h.Joints)),
		Timestamp:    h.Timestamp,
	}
	for i, j := range h.Joints {
		if !finite(j[:]...) {
			return nil, fmt.Errorf("joint %d: non-finite rotation %v", i, j)
		}
		q := handik.Quat(j[0], j[1], j[2], j[3])
		if q == (quat.Number{}) {
			return nil, fmt.Errorf("joint %d: zero rotation", i)
		}
		s.Joints[i] = handik.Normalize(q)
	}
	return s, nil
}

// toFrame converts the wire representation into an engine frame.
func (f *wireFrame) toFrame() (*handik.Frame, error) {
	left, err := f.Left.toSample()
	if err != nil {
		return nil, fmt.Errorf("left hand: %w", err)
	}
	right, err := f.Right.toSample()
	if err != nil {
		return nil, fmt.Errorf("right hand: %w", err)
	}
	out := &handik.Frame{Seq: f.Seq, Left: left, Right: right}
	if f.Root != nil {
		r := f.Root
		if !finite(r.Position[:]...) || !finite(r.Rotation[:]...) || !finite(r.Scale) {
			return nil, fmt.Errorf("root: non-finite transform")
		}
		out.Root = &handik.Transform{
			Position: vec3(f.Root.Position),
			Rotation: handik.Quat(f.Root.Rotation[0], f.Root.Rotation[1], f.Root.Rotation[2], f.Root.Rotation[3]),
			Scale:    f.Root.Scale,
		}
	}
	return out, nil
}
