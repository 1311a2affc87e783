package handik

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// HandTrackState is the per-sensor-hand classifier and smoothing state.
type HandTrackState struct {
	Badness int
	Alive   int
	Active  bool

	// LastRawPosition is the previous palm position in root-local, scale
	// normalized space.
	LastRawPosition r3.Vec
	// LastRawJoints is nil whenever the hand has been lost. An out-of-range
	// rejection keeps it, so the next acquisition is scored against it.
	LastRawJoints []quat.Number

	// PrevSmoothed and Smoothed are the joint rotations of the previous and
	// latest update after low-pass filtering.
	PrevSmoothed []quat.Number
	Smoothed     []quat.Number

	// Palm pose from the latest sample that contained this hand.
	Palm         r3.Vec
	PalmRotation quat.Number

	// Verdict of the latest classification, for diagnostics.
	LastBad      bool
	LastDistance float64
	LastAngle    float64
}

func (h *HandTrackState) lose() {
	h.Badness = 0
	h.Alive = 0
	h.Active = false
	h.LastRawJoints = nil
}

// meanAngle is the average absolute angle in degrees between corresponding
// joints of two sequences, over the shorter length.
func meanAngle(prev, cur []quat.Number) float64 {
	n := min(len(prev), len(cur))
	if prev == nil || n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += AngleBetween(prev[i], cur[i])
	}
	return sum / float64(n)
}

// classify folds one tracking update into h. A nil sample means the sensor
// did not report the hand.
func classify(h *HandTrackState, sample *RawSample, root Transform, cfg Config) {
	if sample == nil {
		h.lose()
		h.LastBad = false
		return
	}
	th := cfg.Thresholds

	h.Alive++
	h.Palm = sample.PalmPosition
	h.PalmRotation = Normalize(sample.PalmRotation)

	angle := meanAngle(h.LastRawJoints, sample.Joints)

	local := r3.Scale(1/root.Scale, root.local(sample.PalmPosition))
	dist := r3.Norm(r3.Sub(local, h.LastRawPosition))

	bad := angle > th.AngularThreshold &&
		(h.Alive == 1 || (dist > th.DistanceLow && dist < th.DistanceHigh))
	if bad {
		h.Badness += th.BadFactor + max(0, th.AlivePivot-h.Alive)
		if h.Badness > th.MaxBadness {
			h.Badness = th.MaxBadness
		}
	} else {
		h.Badness = max(0, h.Badness-th.GoodFactor)
	}

	if cfg.RangeLimit && h.Alive > 2 && dist > cfg.JumpThreshold() {
		h.Badness = th.MaxBadness
		bad = true
	}

	h.LastRawJoints = cloneRotations(sample.Joints)
	h.LastRawPosition = local
	h.LastBad = bad
	h.LastDistance = dist
	h.LastAngle = angle

	if cfg.RangeLimit && h.Alive == 1 && r3.Norm(local) > cfg.MaximumRange {
		h.Badness = 0
		h.Alive = 0
		h.Active = false
		return
	}
	h.Active = h.Alive >= cfg.MinAlive
}

// smooth low-pass filters the joint rotations of one hand. A nil sample
// holds the previous result.
func smooth(h *HandTrackState, sample *RawSample, jointCount int, smoothing float64) {
	h.PrevSmoothed = h.Smoothed
	if sample == nil {
		return
	}
	raw := sample.Joints
	if len(raw) > jointCount {
		raw = raw[:jointCount]
	}
	if len(h.PrevSmoothed) == 0 {
		next := make([]quat.Number, len(raw))
		for i, q := range raw {
			next[i] = Normalize(q)
		}
		h.Smoothed = next
		return
	}
	h.Smoothed = lerpRotations(h.PrevSmoothed, raw, 1-smoothing)
}
