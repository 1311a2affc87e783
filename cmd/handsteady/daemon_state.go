package main

import (
	"time"

	"handsteady/internal/handik"
)

// DaemonState is the top-level, daemon-owned state container.
//
// The engine itself lives here so the reducer is the only code that ticks it
// or changes its switches. Never hand *DaemonState to other goroutines; they
// get a StateSnapshot through RequestStateSnapshot instead.
type DaemonState struct {
	Engine *handik.Engine

	// ReinitSkipFrames is used by Reinitialize actions that carry no count.
	ReinitSkipFrames int

	// Ticks counts every reduced Tick; Updates counts ticks that consumed a
	// tracking frame.
	Ticks        uint64
	Updates      uint64
	LastFrameSeq uint64
	LastTickAt   time.Time

	// Phases is the last published phase per output hand.
	Phases [2]handik.Phase
	// Last is the most recent tick output that produced writes.
	Last handik.Output

	Output OutputState
}

// OutputState tracks the health of the output sink as reported by effects.
type OutputState struct {
	Failures  int
	LastError string
	LastAt    time.Time
}

// NewDaemonState wraps an engine.
func NewDaemonState(engine *handik.Engine, reinitSkipFrames int) *DaemonState {
	return &DaemonState{
		Engine:           engine,
		ReinitSkipFrames: reinitSkipFrames,
	}
}

// StateSnapshot is an immutable copy of the daemon state for other
// goroutines (websocket clients, IPC).
type StateSnapshot struct {
	Mirror    bool
	Swap      bool
	Track     bool
	Mirroring bool

	Disabled  bool
	InitError string

	Ticks             uint64
	Updates           uint64
	LastFrameSeq      uint64
	AvgTicksPerUpdate float64
	EngineTime        float64

	Hands [2]HandSnapshot

	OutputFailures int
}

// HandSnapshot is the published view of one output hand.
type HandSnapshot struct {
	Side    string
	Phase   string
	Weight  float64
	Badness int
}

// Snapshot builds a StateSnapshot.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Ticks:          s.Ticks,
		Updates:        s.Updates,
		LastFrameSeq:   s.LastFrameSeq,
		OutputFailures: s.Output.Failures,
	}
	for _, side := range handik.Sides {
		snap.Hands[side] = HandSnapshot{
			Side:    side.String(),
			Phase:   s.Phases[side].String(),
			Weight:  s.Last.Hands[side].Target.PositionWeight,
			Badness: s.Last.Hands[side].Badness,
		}
	}
	if s.Engine == nil {
		snap.Disabled = true
		return snap
	}

	cfg := s.Engine.Config()
	snap.Mirror = cfg.Mirror
	snap.Swap = cfg.Swap
	snap.Track = cfg.Track
	snap.Mirroring = s.Engine.Mirroring()
	snap.Disabled = s.Engine.Disabled()
	if err := s.Engine.InitErr(); err != nil {
		snap.InitError = err.Error()
	}
	snap.AvgTicksPerUpdate = s.Engine.AvgTicksPerUpdate()
	snap.EngineTime = s.Engine.Now()
	return snap
}

// settingsBroadcast describes the current switches.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) settingsBroadcast(at time.Time) BroadcastSettingsChanged {
	cfg := s.Engine.Config()
	return BroadcastSettingsChanged{
		Mirror: cfg.Mirror,
		Swap:   cfg.Swap,
		Track:  cfg.Track,
		At:     at,
	}
}

// SetObservedOutputFailure records a failed sink write.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetObservedOutputFailure(err error, now time.Time) {
	s.Output.Failures++
	if err != nil {
		s.Output.LastError = err.Error()
	}
	s.Output.LastAt = now
}
