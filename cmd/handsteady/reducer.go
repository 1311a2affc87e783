package main

import (
	"time"

	"handsteady/internal/handik"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (operator actions, engine ticks, sink failures)
//   - Commands: side effects requested by the reducer (output writes, snapshot replies)
//   - Broadcasts: externally visible state changes for websocket clients
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The engine is owned by DaemonState and is advanced in place by Reduce. Nothing
// else holds a reference to it, so the daemon goroutine stays its single owner.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
// It can be an operator Action, a Tick, or a failure report from the sink.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is the clamped wall-clock delta in seconds; Frame is the tracking update
// received since the previous tick, or nil.
type Tick struct {
	Now   time.Time
	Dt    float64
	Frame *handik.Frame
}

func (Tick) eventMarker() {}

// TimedEvent stamps an externally received event with its arrival time.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// RequestStateSnapshot asks the daemon for a copy of its state.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// OutputApplyFailed is emitted when writing a tick to the sink fails.
type OutputApplyFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (OutputApplyFailed) eventMarker() {}

// ==============================
// Reducer input/output
// ==============================

// ReduceResult is the output of Reduce(): next state plus Commands to execute
// and Broadcasts to publish.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce applies one event.
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not touch anything outside s (the engine belongs to s)
func Reduce(s *DaemonState, e Event) ReduceResult {
	if s == nil {
		s = &DaemonState{}
	}
	at := time.Now()
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		if !te.At.IsZero() {
			at = te.At
		}
	}

	var cmds []Command
	var bcasts []StateBroadcast

	if s.Engine == nil {
		// Snapshot requests are still served so clients can see the daemon is idle.
		if req, ok := e.(RequestStateSnapshot); ok {
			cmds = append(cmds, CmdPublishStateSnapshot{Reply: req.Reply, Snapshot: s.Snapshot()})
		}
		return ReduceResult{State: s, Commands: cmds}
	}

	// settingsChange wraps a switch mutation and broadcasts only real changes.
	settingsChange := func(apply func()) {
		before := s.Engine.Config()
		apply()
		after := s.Engine.Config()
		if before.Mirror != after.Mirror || before.Swap != after.Swap || before.Track != after.Track {
			bcasts = append(bcasts, s.settingsBroadcast(at))
		}
	}

	switch ev := e.(type) {
	case Tick:
		if !ev.Now.IsZero() {
			at = ev.Now
		}
		s.Ticks++
		s.LastTickAt = at

		out := s.Engine.Tick(ev.Dt, ev.Frame)
		if out.Updated {
			s.Updates++
			if ev.Frame.Seq != 0 {
				s.LastFrameSeq = ev.Frame.Seq
			}
		}
		if !out.Writes() {
			break
		}
		s.Last = out
		cmds = append(cmds, CmdApplyOutput{Tick: s.Ticks, Output: out})

		for _, side := range handik.Sides {
			h := out.Hands[side]
			if h.Phase == s.Phases[side] {
				continue
			}
			bcasts = append(bcasts, BroadcastHandPhaseChanged{
				Side:    side.String(),
				From:    s.Phases[side].String(),
				To:      h.Phase.String(),
				Badness: h.Badness,
				At:      at,
			})
			s.Phases[side] = h.Phase
		}

	case SetMirror:
		settingsChange(func() { s.Engine.SetMirror(ev.Enabled) })
	case SetSwap:
		settingsChange(func() { s.Engine.SetSwap(ev.Enabled) })
	case SetTracking:
		settingsChange(func() { s.Engine.SetTrack(ev.Enabled) })
	case ToggleMirror:
		settingsChange(func() { s.Engine.SetMirror(!s.Engine.Config().Mirror) })
	case ToggleSwap:
		settingsChange(func() { s.Engine.SetSwap(!s.Engine.Config().Swap) })
	case ToggleTracking:
		settingsChange(func() { s.Engine.SetTrack(!s.Engine.Config().Track) })

	case Reinitialize:
		skip := ev.SkipFrames
		if skip == 0 {
			skip = s.ReinitSkipFrames
		}
		status := BroadcastEngineStatus{At: at}
		if err := s.Engine.Reinitialize(skip); err != nil {
			status.Error = err.Error()
		}
		status.Disabled = s.Engine.Disabled()
		s.Phases = [2]handik.Phase{}
		s.Last = handik.Output{}
		bcasts = append(bcasts, status)

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	case OutputApplyFailed:
		s.SetObservedOutputFailure(ev.Err, ev.At)

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcasts,
	}
}
