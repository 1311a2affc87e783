package handik

import (
	"fmt"
	"log/slog"
	"math"
)

// Engine turns raw hand tracking updates into IK targets and joint
// rotations. It owns all per-hand state and is not safe for concurrent use;
// the owning loop calls Tick once per frame.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	binder   RigBinder
	rig      RigBinding
	disabled bool
	initErr  error

	now  float64
	skip int

	hands  [2]HandTrackState // by sensor side
	fades  [2]FadeState      // by output side
	interp interpolator

	root       Transform
	lastMirror bool
	mirror     bool
}

// New binds the rig and returns a ready engine. A binding failure does not
// fail construction: the engine is returned disabled and every Tick is a
// no-op. Use InitErr to inspect the failure.
func New(cfg Config, binder RigBinder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:    cfg,
		logger: logger,
		binder: binder,
	}
	e.bind()
	e.Reset()
	return e
}

func (e *Engine) bind() {
	e.disabled = false
	e.initErr = nil
	if e.binder == nil {
		e.initErr = ErrRigUnavailable
	} else {
		rig, err := e.binder.Bind()
		if err != nil {
			e.initErr = err
		} else {
			e.rig = rig
		}
	}
	if e.initErr != nil {
		e.disabled = true
		e.rig = RigBinding{}
		e.logger.Warn("hand rig binding failed; hand tracking disabled", "error", e.initErr)
	}
}

// Reset clears all tracking history and re-arms the frame-skip countdown.
// The engine clock keeps running.
func (e *Engine) Reset() {
	for _, s := range Sides {
		e.hands[s] = HandTrackState{PalmRotation: Identity}
		e.fades[s] = newFadeState(e.rig.Hand(s).Rest)
	}
	e.interp = newInterpolator()
	e.root = e.cfg.Root.normalized()
	e.mirror = mirroring(e.cfg)
	e.lastMirror = e.mirror
	e.skip = e.cfg.SkipFrames
}

// Reinitialize re-runs rig binding, resets state and skips the next
// skipFrames ticks.
func (e *Engine) Reinitialize(skipFrames int) error {
	e.bind()
	e.Reset()
	if skipFrames > 0 {
		e.skip = skipFrames
	}
	return e.initErr
}

// Config returns the active configuration.
func (e *Engine) Config() Config { return e.cfg }

// SetMirror, SetSwap and SetTrack change runtime switches. They take effect
// on the next tracking update.
func (e *Engine) SetMirror(on bool) { e.cfg.Mirror = on }
func (e *Engine) SetSwap(on bool)   { e.cfg.Swap = on }
func (e *Engine) SetTrack(on bool)  { e.cfg.Track = on }

// Disabled reports whether rig binding failed.
func (e *Engine) Disabled() bool { return e.disabled }

// InitErr returns the rig binding error, if any.
func (e *Engine) InitErr() error { return e.initErr }

// Rig returns the bound rig.
func (e *Engine) Rig() RigBinding { return e.rig }

// Now returns the engine clock in seconds.
func (e *Engine) Now() float64 { return e.now }

// SkipRemaining returns the frame-skip countdown.
func (e *Engine) SkipRemaining() int { return e.skip }

// HandState returns a copy of the classifier state for sensor hand s.
func (e *Engine) HandState(s Side) HandTrackState { return e.hands[s] }

// Fade returns a copy of the fade state for output hand s.
func (e *Engine) Fade(s Side) FadeState { return e.fades[s] }

// Mirroring reports whether output sides are currently remapped.
func (e *Engine) Mirroring() bool { return e.mirror }

// AvgTicksPerUpdate is the running average of ticks between updates.
func (e *Engine) AvgTicksPerUpdate() float64 { return e.interp.avg }

// Tick advances the engine by dt seconds. frame is the tracking update
// polled this tick, or nil when the sensor has nothing new.
func (e *Engine) Tick(dt float64, frame *Frame) (out Output) {
	if e.disabled {
		return Output{Disabled: true}
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		dt = 0
	}
	e.now += dt

	if e.skip > 0 {
		e.skip--
		return Output{Skipped: true}
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("hand engine tick panicked", "panic", fmt.Sprint(r))
			out = Output{Skipped: true}
		}
	}()

	if frame != nil {
		e.update(frame)
		out.Updated = true
	}
	e.emitFrame(&out)
	return out
}

// update runs the classifier, remapper and smoother for one tracking update.
func (e *Engine) update(frame *Frame) {
	if frame.Root != nil {
		e.root = frame.Root.normalized()
	} else {
		e.root = e.cfg.Root.normalized()
	}

	for _, s := range Sides {
		classify(&e.hands[s], frame.Hand(s), e.root, e.cfg)
	}
	if !e.hands[Left].Active && !e.hands[Right].Active {
		e.interp.reset()
	}
	for _, s := range Sides {
		smooth(&e.hands[s], frame.Hand(s), e.rig.Hand(s).JointCount(), e.cfg.Smoothing)
	}

	mirror := mirroring(e.cfg)
	if mirror != e.lastMirror {
		left, right := e.fades[Left], e.fades[Right]
		e.fades[Left] = right.mirrored(e.root)
		e.fades[Right] = left.mirrored(e.root)
		e.logger.Debug("hand mirroring changed", "mirror", mirror)
	}
	e.mirror = mirror

	anyAcquired := false
	for _, s := range Sides {
		f := &e.fades[s]
		src := source(s, mirror)
		h := &e.hands[src]

		wasAcquired := f.Acquired
		f.Prev = f.Target

		got := false
		if h.Active {
			f.Target = armTarget(h, e.rig.Hand(src).Reorientation, e.root, mirror)
			got = true
			if h.Badness > e.cfg.Thresholds.BadThreshold || (!wasAcquired && h.Badness > 0) {
				got = false
			}
		}
		if got && !wasAcquired {
			f.FirstAcquired = e.now
			f.Prev = f.Target
			f.rising = true
		}
		f.Acquired = got
		if got {
			anyAcquired = true
		}

		alpha := 1 - e.cfg.Smoothing
		f.Target = Pose{
			Position: LerpVec(f.Prev.Position, f.Target.Position, alpha),
			Rotation: Nlerp(f.Prev.Rotation, f.Target.Rotation, alpha),
		}
	}
	e.interp.update(anyAcquired)
	e.lastMirror = mirror
}

// emitFrame runs the interpolator and fader and fills out with the writes
// for this tick.
func (e *Engine) emitFrame(out *Output) {
	if !e.cfg.Track {
		for _, s := range Sides {
			e.fades[s].Acquired = false
		}
	}

	t := e.interp.step()
	out.T = t

	for _, s := range Sides {
		f := &e.fades[s]
		src := source(s, e.mirror)
		h := &e.hands[src]
		ho := &out.Hands[s]
		ho.Badness = h.Badness
		prevPhase := f.Phase
		rest := e.rig.Hand(s).Rest

		if f.Acquired {
			w := f.fadeIn(e.now, e.cfg)
			f.Emitted = Pose{
				Position: LerpVec(f.Prev.Position, f.Target.Position, t),
				Rotation: Nlerp(f.Prev.Rotation, f.Target.Rotation, t),
			}
			ho.Target = IKTarget{
				Position:       f.Emitted.Position,
				Rotation:       f.Emitted.Rotation,
				PositionWeight: w,
				RotationWeight: w,
			}

			joints := lerpRotations(h.PrevSmoothed, h.Smoothed, t)
			if len(h.PrevSmoothed) == 0 {
				joints = cloneRotations(h.Smoothed)
			}
			if len(joints) > len(rest) {
				joints = joints[:len(rest)]
			}
			if e.mirror {
				joints = mirrorJoints(joints)
			}
			ho.Joints = joints
			if len(joints) > 0 {
				f.KnownGood = cloneRotations(joints)
			}
		} else {
			w := f.fadeOut(e.now, e.cfg)
			ho.Target = IKTarget{
				Position:       f.Emitted.Position,
				Rotation:       f.Emitted.Rotation,
				PositionWeight: w,
				RotationWeight: w,
			}
			ho.Joints = lerpRotations(f.KnownGood, rest, f.Out)
		}
		ho.Phase = f.Phase

		if f.Phase != prevPhase {
			e.logger.Debug("hand phase changed",
				"side", s.String(),
				"from", prevPhase.String(),
				"to", f.Phase.String(),
				"badness", h.Badness,
			)
		}
	}
}
