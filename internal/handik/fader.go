package handik

import "gonum.org/v1/gonum/num/quat"

// FadeState is the acquisition/loss state of one output hand.
type FadeState struct {
	Acquired bool
	// rising is set by the update that acquired the hand and consumed by
	// the next emitted frame.
	rising bool

	FirstAcquired float64
	LastSeen      float64
	// In and Out are the ramp fractions in [0,1].
	In  float64
	Out float64

	// Prev and Target are the last resolved and the newest goal poses; the
	// emitted pose interpolates between them.
	Prev   Pose
	Target Pose
	// Emitted is the pose most recently written to the solver.
	Emitted Pose

	// KnownGood is the joint snapshot captured while acquired. It is frozen
	// while the hand fades out.
	KnownGood []quat.Number

	Phase Phase
}

// longAgo is the clock value used for a hand that was never seen, far
// enough in the past that its ramps start fully released.
const longAgo = -10.0

func newFadeState(rest []quat.Number) FadeState {
	idle := Pose{Rotation: Identity}
	return FadeState{
		FirstAcquired: longAgo,
		LastSeen:      longAgo,
		Out:           1,
		Prev:          idle,
		Target:        idle,
		Emitted:       idle,
		KnownGood:     cloneRotations(rest),
		Phase:         PhaseLost,
	}
}

// mirrored returns f with every held pose reflected, for handing the state
// over to the opposite output side.
func (f FadeState) mirrored(root Transform) FadeState {
	f.Prev = MirrorPose(root, f.Prev)
	f.Target = MirrorPose(root, f.Target)
	f.Emitted = MirrorPose(root, f.Emitted)
	f.KnownGood = mirrorJoints(f.KnownGood)
	return f
}

// fadeIn advances the in-ramp for an acquired hand and returns the weight.
func (f *FadeState) fadeIn(now float64, cfg Config) float64 {
	f.In = clamp01((now-f.FirstAcquired)/cfg.LerpIn + (1 - f.Out))
	f.LastSeen = now
	if f.rising {
		f.Phase = PhaseAcquiring
	} else {
		f.Phase = PhaseTracking
	}
	f.rising = false
	return f.In
}

// fadeOut advances the out-ramp for a hand that is not acquired and returns
// the weight.
func (f *FadeState) fadeOut(now float64, cfg Config) float64 {
	f.Out = clamp01(((now-f.LastSeen)-cfg.GracePeriod)/cfg.LerpOut - (1 - f.In))
	f.rising = false
	if f.Out >= 1 {
		f.Phase = PhaseLost
	} else {
		f.Phase = PhaseReleasing
	}
	return lerp(1, 0, f.Out)
}

// interpolator tracks how many ticks elapse between tracking updates and
// produces the sub-step fraction.
type interpolator struct {
	state int
	count float64
	avg   float64
}

func newInterpolator() interpolator {
	return interpolator{count: 1, avg: 1}
}

func (ip *interpolator) reset() {
	ip.state = 0
	ip.count = 1
	ip.avg = 1
}

// update is called once per tracking update after acquisition is resolved.
func (ip *interpolator) update(acquired bool) {
	if acquired && ip.state < 2 {
		ip.state++
	}
	if ip.state > 1 {
		ip.avg = max(1, lerp(ip.avg, ip.count, DefaultAvgInterpRate))
	}
	ip.count = 0
}

// step returns the fraction for this tick and advances the sub-step counter.
func (ip *interpolator) step() float64 {
	avg := max(1, ip.avg)
	t := clamp(ip.count/avg, 0, MaxInterpolationT)
	ip.count++
	return t
}

// AvgTicksPerUpdate is the smoothed number of ticks between updates.
func (ip interpolator) AvgTicksPerUpdate() float64 { return ip.avg }
