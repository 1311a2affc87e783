package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handsteady/internal/handik"
)

const twoJointRig = `
left:
  reorientation: [0, 0, 0, 2]
  joints:
    - {name: index_1, rest: [0, 0, 0, 1]}
    - {name: index_2, rest: [0, 0, 0.7071068, 0.7071068]}
right:
  joints:
    - {name: index_1, rest: [0, 0, 0, 1]}
    - {name: index_2, rest: [0, 0, -0.7071068, 0.7071068]}
`

func TestLoadRigFile(t *testing.T) {
	b, err := loadRigFile(writeTempFile(t, "rig.yaml", twoJointRig))
	require.NoError(t, err)

	left := b.Hand(handik.Left)
	assert.Equal(t, []string{"index_1", "index_2"}, left.Joints)
	assert.Equal(t, 2, left.JointCount())
	// Rotations are normalized on bind.
	assert.Equal(t, handik.Identity, left.Reorientation)
	assert.InDelta(t, 90, handik.AngleBetween(handik.Identity, left.Rest[1]), 1e-4)

	right := b.Hand(handik.Right)
	assert.Equal(t, handik.Identity, right.Reorientation)
	assert.Equal(t, 2, right.JointCount())
}

func TestLoadRigFile_Errors(t *testing.T) {
	tests := map[string]string{
		"missing hand":  "left:\n  joints:\n    - {name: a, rest: [0, 0, 0, 1]}\n",
		"empty name":    "left:\n  joints:\n    - {rest: [0, 0, 0, 1]}\nright:\n  joints: []\n",
		"zero rest":     "left:\n  joints:\n    - {name: a, rest: [0, 0, 0, 0]}\nright:\n  joints: []\n",
		"zero reorient": "left:\n  reorientation: [0, 0, 0, 0]\nright:\n  joints: []\n",
		"unknown key":   "left:\n  bones: []\nright:\n  joints: []\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadRigFile(writeTempFile(t, "rig.yaml", body))
			assert.Error(t, err)
		})
	}

	_, err := loadRigFile("/nonexistent/rig.yaml")
	assert.Error(t, err)
}

func TestLoadRigFile_MissingHandIsUnavailable(t *testing.T) {
	_, err := loadRigFile(writeTempFile(t, "rig.yaml", "left:\n  joints: []\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, handik.ErrRigUnavailable))

	var ie *handik.InitError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, handik.Right, ie.Side)
}

func TestNewRigBinder(t *testing.T) {
	b, err := newRigBinder("").Bind()
	require.NoError(t, err)
	assert.Equal(t, handik.DefaultJointCount, b.Hand(handik.Left).JointCount())

	// File binders re-read the file on every Bind.
	path := writeTempFile(t, "rig.yaml", twoJointRig)
	binder := newRigBinder(path)
	b, err = binder.Bind()
	require.NoError(t, err)
	assert.Equal(t, 2, b.Hand(handik.Right).JointCount())

	require.NoError(t, os.WriteFile(path, []byte("left:\n  joints: []\n"), 0o644))
	_, err = binder.Bind()
	assert.ErrorIs(t, err, handik.ErrRigUnavailable)
}
