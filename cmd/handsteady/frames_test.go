package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWireHandToSample_RejectsNonFinite(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := map[string]wireHand{
		"position nan": {Position: [3]float64{nan, 0, 0}, Rotation: [4]float64{0, 0, 0, 1}},
		"position inf": {Position: [3]float64{0, 0, -inf}, Rotation: [4]float64{0, 0, 0, 1}},
		"rotation nan": {Rotation: [4]float64{0, nan, 0, 1}},
		"joint inf":    {Rotation: [4]float64{0, 0, 0, 1}, Joints: [][4]float64{{0, 0, 0, 1}, {inf, 0, 0, 1}}},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := h.toSample()
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestWireFrameToFrame_YAMLSpecialFloats(t *testing.T) {
	var f wireFrame
	require.NoError(t, yaml.Unmarshal([]byte("seq: 3\nright: {position: [0.1, .nan, 0.1], rotation: [0, 0, 0, 1]}\n"), &f))
	require.True(t, math.IsNaN(f.Right.Position[1]))

	_, err := f.toFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "right hand")
	assert.Contains(t, err.Error(), "non-finite position")
}

func TestWireFrameToFrame_FiniteFrameConverts(t *testing.T) {
	f := wireFrame{
		Seq:  4,
		Left: &wireHand{Position: [3]float64{0.1, 0.2, 0.1}, Rotation: [4]float64{0, 0, 0, 2}, Joints: [][4]float64{{0, 0, 0, 1}}},
		Root: &wireTransform{Rotation: [4]float64{0, 0, 0, 1}, Scale: 1},
	}
	out, err := f.toFrame()
	require.NoError(t, err)
	require.NotNil(t, out.Left)
	assert.Nil(t, out.Right)
	assert.InDelta(t, 1, out.Left.PalmRotation.Real, 1e-12)
	assert.Len(t, out.Left.Joints, 1)
	require.NotNil(t, out.Root)
}
