package main

import "time"

// StateBroadcast is an externally visible state change. Broadcasts are
// produced by the reducer (and by the output sink for pose frames) and fanned
// out to websocket clients by RunBroadcaster.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastHandPhaseChanged is emitted when an output hand changes phase.
type BroadcastHandPhaseChanged struct {
	Side    string
	From    string
	To      string
	Badness int
	At      time.Time
}

func (BroadcastHandPhaseChanged) broadcastMarker() {}

// BroadcastSettingsChanged is emitted when mirror, swap or tracking change.
type BroadcastSettingsChanged struct {
	Mirror bool
	Swap   bool
	Track  bool
	At     time.Time
}

func (BroadcastSettingsChanged) broadcastMarker() {}

// BroadcastEngineStatus is emitted after a reinitialize.
type BroadcastEngineStatus struct {
	Disabled bool
	Error    string
	At       time.Time
}

func (BroadcastEngineStatus) broadcastMarker() {}

// BroadcastPoseFrame carries the writes of one tick. Bursts are coalesced by
// the broadcaster (latest wins).
type BroadcastPoseFrame struct {
	Frame PoseFrame
	At    time.Time
}

func (BroadcastPoseFrame) broadcastMarker() {}
