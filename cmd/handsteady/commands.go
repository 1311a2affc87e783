package main

import (
	"fmt"

	"handsteady/internal/handik"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// In this codebase, those are writes to the output sink and snapshot replies.
type Command interface {
	commandMarker()
	String() string
}

// CmdApplyOutput writes one engine tick to the IK solver and skeleton sink.
type CmdApplyOutput struct {
	Tick   uint64
	Output handik.Output
}

func (CmdApplyOutput) commandMarker() {}
func (c CmdApplyOutput) String() string {
	return fmt.Sprintf("CmdApplyOutput(tick=%d, left=%s, right=%s)",
		c.Tick, c.Output.Hands[handik.Left].Phase, c.Output.Hands[handik.Right].Phase)
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
