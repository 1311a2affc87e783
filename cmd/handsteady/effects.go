package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"handsteady/internal/handik"
)

// OutputSink receives the writes of one tick through the solver and skeleton
// interfaces, then Commit marks the end of the tick.
type OutputSink interface {
	handik.IKSolver
	handik.Skeleton
	Commit(tick uint64, t float64) error
}

// runEffect executes a single reducer-emitted Command (side effect) and emits
// an observation Event via onEvent when something goes wrong.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
func runEffect(
	sink OutputSink,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	now := time.Now()

	switch c := cmd.(type) {
	case CmdApplyOutput:
		if sink == nil {
			onEvent(OutputApplyFailed{Command: cmd, Err: errNoSink, At: now})
			return
		}
		handik.Emit(c.Output, sink, sink)
		if err := sink.Commit(c.Tick, c.Output.T); err != nil {
			logger.Debug("output commit failed", "error", err, "tick", c.Tick)
			onEvent(OutputApplyFailed{Command: cmd, Err: err, At: now})
		}

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(OutputApplyFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

var (
	errNoSink      = errors.New("no output sink")
	errPoseDropped = errors.New("pose broadcast queue full")
	errEmptyCommit = errors.New("commit without writes")
)

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }

// ============================================================================
// Pose frames
// ============================================================================

// PoseHand is one output hand in wire form. Rotations are [x, y, z, w].
type PoseHand struct {
	Side           string       `json:"side"`
	Position       [3]float64   `json:"position"`
	Rotation       [4]float64   `json:"rotation"`
	PositionWeight float64      `json:"position_weight"`
	RotationWeight float64      `json:"rotation_weight"`
	Joints         [][4]float64 `json:"joints"`
}

// PoseFrame is everything written to the rig in one tick.
type PoseFrame struct {
	Seq   uint64      `json:"seq"`
	T     float64     `json:"t"`
	Hands [2]PoseHand `json:"hands"`
}

// poseBuilder accumulates solver and skeleton writes into a PoseFrame.
type poseBuilder struct {
	frame  PoseFrame
	writes int
}

func (b *poseBuilder) SetArmTarget(side handik.Side, position r3.Vec, rotation quat.Number, positionWeight, rotationWeight float64) {
	h := &b.frame.Hands[side]
	h.Side = side.String()
	h.Position = [3]float64{position.X, position.Y, position.Z}
	h.Rotation = xyzw(rotation)
	h.PositionWeight = positionWeight
	h.RotationWeight = rotationWeight
	b.writes++
}

func (b *poseBuilder) SetJointLocalRotation(side handik.Side, joint int, rotation quat.Number) {
	h := &b.frame.Hands[side]
	for len(h.Joints) <= joint {
		h.Joints = append(h.Joints, [4]float64{0, 0, 0, 1})
	}
	h.Joints[joint] = xyzw(rotation)
	b.writes++
}

// finish returns the accumulated frame and starts a new one.
func (b *poseBuilder) finish(tick uint64, t float64) (PoseFrame, error) {
	if b.writes == 0 {
		return PoseFrame{}, errEmptyCommit
	}
	f := b.frame
	f.Seq = tick
	f.T = t
	*b = poseBuilder{}
	return f, nil
}

// poseRecorder publishes each committed tick as a BroadcastPoseFrame.
// The send never blocks the daemon loop; a full queue is reported as a failure.
type poseRecorder struct {
	poseBuilder
	out chan<- StateBroadcast
}

func newPoseRecorder(out chan<- StateBroadcast) *poseRecorder {
	return &poseRecorder{out: out}
}

func (r *poseRecorder) Commit(tick uint64, t float64) error {
	f, err := r.finish(tick, t)
	if err != nil {
		return err
	}
	if r.out == nil {
		return nil
	}
	select {
	case r.out <- BroadcastPoseFrame{Frame: f, At: time.Now()}:
		return nil
	default:
		return errPoseDropped
	}
}

// jsonLineSink writes one JSON object per committed tick.
type jsonLineSink struct {
	poseBuilder
	enc *json.Encoder
}

func newJSONLineSink(w io.Writer) *jsonLineSink {
	return &jsonLineSink{enc: json.NewEncoder(w)}
}

func (s *jsonLineSink) Commit(tick uint64, t float64) error {
	f, err := s.finish(tick, t)
	if err != nil {
		return err
	}
	if err := s.enc.Encode(f); err != nil {
		return fmt.Errorf("write pose frame: %w", err)
	}
	return nil
}
