package main

import (
	"bytes"
	"fmt"
	"os"

	"gonum.org/v1/gonum/num/quat"
	"gopkg.in/yaml.v3"

	"handsteady/internal/handik"
)

// rigFile is the YAML description of the avatar's hands.
//
//	left:
//	  reorientation: [0, 0, 0, 1]
//	  joints:
//	    - {name: thumb_1, rest: [0, 0, 0, 1]}
//	right: ...
type rigFile struct {
	Left  *rigHandFile `yaml:"left"`
	Right *rigHandFile `yaml:"right"`
}

type rigHandFile struct {
	Reorientation *[4]float64    `yaml:"reorientation"`
	Joints        []rigJointFile `yaml:"joints"`
}

type rigJointFile struct {
	Name string     `yaml:"name"`
	Rest [4]float64 `yaml:"rest"`
}

func (h *rigHandFile) toRig() (handik.HandRig, error) {
	if h == nil {
		// Missing hand means the avatar has none; BindHands reports it.
		return nil, nil
	}
	r := handik.StaticRig{Reorient: handik.Identity}
	if h.Reorientation != nil {
		q := quatFrom(*h.Reorientation)
		if q == (quat.Number{}) {
			return nil, fmt.Errorf("reorientation: zero rotation")
		}
		r.Reorient = q
	}
	for i, j := range h.Joints {
		if j.Name == "" {
			return nil, fmt.Errorf("joint %d: empty name", i)
		}
		q := quatFrom(j.Rest)
		if q == (quat.Number{}) {
			return nil, fmt.Errorf("joint %q: zero rest rotation", j.Name)
		}
		r.Names = append(r.Names, j.Name)
		r.Rest = append(r.Rest, q)
	}
	return r, nil
}

func quatFrom(v [4]float64) quat.Number {
	return handik.Quat(v[0], v[1], v[2], v[3])
}

// loadRigFile parses a rig description and binds it.
func loadRigFile(path string) (handik.RigBinding, error) {
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return handik.RigBinding{}, fmt.Errorf("read rig file: %w", err)
	}

	var rf rigFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return handik.RigBinding{}, fmt.Errorf("decode rig yaml: %w", err)
	}

	left, err := rf.Left.toRig()
	if err != nil {
		return handik.RigBinding{}, fmt.Errorf("left hand: %w", err)
	}
	right, err := rf.Right.toRig()
	if err != nil {
		return handik.RigBinding{}, fmt.Errorf("right hand: %w", err)
	}
	return handik.BindHands(left, right)
}

// newRigBinder returns the binder for the configured rig. The file is re-read
// on every Bind so a reinitialize picks up edits.
func newRigBinder(path string) handik.RigBinder {
	if path == "" {
		return handik.DefaultBinder()
	}
	return handik.BinderFunc(func() (handik.RigBinding, error) {
		return loadRigFile(path)
	})
}
