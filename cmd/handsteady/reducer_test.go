package main

import (
	"errors"
	"testing"
	"time"

	"handsteady/internal/handik"
)

func applyCommands(t *testing.T, rr ReduceResult) []CmdApplyOutput {
	t.Helper()
	var out []CmdApplyOutput
	for _, c := range rr.Commands {
		if a, ok := c.(CmdApplyOutput); ok {
			out = append(out, a)
		}
	}
	return out
}

func phaseBroadcasts(rr ReduceResult) []BroadcastHandPhaseChanged {
	var out []BroadcastHandPhaseChanged
	for _, b := range rr.Broadcasts {
		if p, ok := b.(BroadcastHandPhaseChanged); ok {
			out = append(out, p)
		}
	}
	return out
}

func TestReduce_SkippedTicksEmitNothing(t *testing.T) {
	s := newTestState(t, 3)
	t0 := time.Unix(1000, 0).UTC()

	for i := 0; i < 3; i++ {
		rr := Reduce(s, Tick{Now: t0, Dt: 0.01, Frame: leftHandFrame(uint64(i + 1))})
		if len(rr.Commands) != 0 || len(rr.Broadcasts) != 0 {
			t.Fatalf("tick %d: expected no commands/broadcasts while skipping, got %d/%d", i, len(rr.Commands), len(rr.Broadcasts))
		}
	}
	if s.Ticks != 3 || s.Updates != 0 {
		t.Fatalf("expected ticks=3 updates=0 while skipping, got %d/%d", s.Ticks, s.Updates)
	}

	rr := Reduce(s, Tick{Now: t0, Dt: 0.01})
	cmds := applyCommands(t, rr)
	if len(cmds) != 1 {
		t.Fatalf("expected 1 CmdApplyOutput after skip countdown, got %d", len(cmds))
	}
	if cmds[0].Tick != 4 {
		t.Fatalf("expected tick index 4, got %d", cmds[0].Tick)
	}
}

func TestReduce_PhaseChangesAreBroadcastOnce(t *testing.T) {
	s := newTestState(t, 0)
	t0 := time.Unix(1000, 0).UTC()

	// Not yet acquired: hands stay lost, nothing to broadcast.
	for i := 1; i < handik.DefaultMinAlive; i++ {
		rr := Reduce(s, Tick{Now: t0, Dt: 0.05, Frame: leftHandFrame(uint64(i))})
		if got := phaseBroadcasts(rr); len(got) != 0 {
			t.Fatalf("tick %d: unexpected phase broadcast %+v", i, got)
		}
		if len(applyCommands(t, rr)) != 1 {
			t.Fatalf("tick %d: expected CmdApplyOutput", i)
		}
	}

	rr := Reduce(s, Tick{Now: t0, Dt: 0.05, Frame: leftHandFrame(uint64(handik.DefaultMinAlive))})
	got := phaseBroadcasts(rr)
	if len(got) != 1 {
		t.Fatalf("expected 1 phase broadcast on acquisition, got %d", len(got))
	}
	if got[0].Side != "left" || got[0].From != "lost" || got[0].To != "acquiring" {
		t.Fatalf("unexpected broadcast %+v", got[0])
	}
	if !got[0].At.Equal(t0) {
		t.Fatalf("expected broadcast timestamp %v, got %v", t0, got[0].At)
	}

	rr = Reduce(s, Tick{Now: t0, Dt: 0.05})
	got = phaseBroadcasts(rr)
	if len(got) != 1 || got[0].To != "tracking" {
		t.Fatalf("expected acquiring->tracking broadcast, got %+v", got)
	}

	rr = Reduce(s, Tick{Now: t0, Dt: 0.05, Frame: leftHandFrame(99)})
	if got := phaseBroadcasts(rr); len(got) != 0 {
		t.Fatalf("expected no broadcast while tracking, got %+v", got)
	}
	if s.Phases[handik.Left] != handik.PhaseTracking || s.Phases[handik.Right] != handik.PhaseLost {
		t.Fatalf("unexpected phases %v", s.Phases)
	}
	if s.LastFrameSeq != 99 {
		t.Fatalf("expected last frame seq 99, got %d", s.LastFrameSeq)
	}
}

func TestReduce_SettingsBroadcastOnlyOnChange(t *testing.T) {
	s := newTestState(t, 0)
	at := time.Unix(2000, 0).UTC()

	rr := Reduce(s, TimedEvent{Event: SetMirror{Enabled: true}, At: at})
	if len(rr.Broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(rr.Broadcasts))
	}
	bc, ok := rr.Broadcasts[0].(BroadcastSettingsChanged)
	if !ok {
		t.Fatalf("expected BroadcastSettingsChanged, got %T", rr.Broadcasts[0])
	}
	if !bc.Mirror || bc.Swap || !bc.Track {
		t.Fatalf("unexpected settings %+v", bc)
	}
	if !bc.At.Equal(at) {
		t.Fatalf("expected timestamp from TimedEvent %v, got %v", at, bc.At)
	}

	rr = Reduce(s, SetMirror{Enabled: true})
	if len(rr.Broadcasts) != 0 {
		t.Fatalf("expected no broadcast when mirror unchanged, got %d", len(rr.Broadcasts))
	}

	rr = Reduce(s, ToggleMirror{})
	if len(rr.Broadcasts) != 1 || s.Engine.Config().Mirror {
		t.Fatalf("expected toggle to disable mirror with broadcast; mirror=%v broadcasts=%d", s.Engine.Config().Mirror, len(rr.Broadcasts))
	}

	Reduce(s, ToggleSwap{})
	if !s.Engine.Config().Swap {
		t.Fatalf("expected swap enabled")
	}
	Reduce(s, SetTracking{Enabled: false})
	if s.Engine.Config().Track {
		t.Fatalf("expected tracking disabled")
	}
	Reduce(s, ToggleTracking{})
	if !s.Engine.Config().Track {
		t.Fatalf("expected tracking re-enabled")
	}
}

func TestReduce_ReinitializeUsesConfiguredSkip(t *testing.T) {
	s := newTestState(t, 0)
	s.ReinitSkipFrames = 2

	// Acquire the left hand first so the reset is observable.
	for i := 0; i <= handik.DefaultMinAlive; i++ {
		Reduce(s, Tick{Dt: 0.05, Frame: leftHandFrame(uint64(i + 1))})
	}
	if s.Phases[handik.Left] == handik.PhaseLost {
		t.Fatalf("expected left hand acquired before reinitialize")
	}

	rr := Reduce(s, Reinitialize{})
	if len(rr.Broadcasts) != 1 {
		t.Fatalf("expected engine status broadcast, got %d", len(rr.Broadcasts))
	}
	st, ok := rr.Broadcasts[0].(BroadcastEngineStatus)
	if !ok || st.Disabled || st.Error != "" {
		t.Fatalf("unexpected status %+v", rr.Broadcasts[0])
	}
	if got := s.Engine.SkipRemaining(); got != 2 {
		t.Fatalf("expected skip countdown 2, got %d", got)
	}
	if s.Phases[handik.Left] != handik.PhaseLost {
		t.Fatalf("expected published phases reset")
	}

	Reduce(s, Reinitialize{SkipFrames: 7})
	if got := s.Engine.SkipRemaining(); got != 7 {
		t.Fatalf("expected explicit skip 7, got %d", got)
	}
}

func TestReduce_ReinitializeReportsRigFailure(t *testing.T) {
	calls := 0
	binder := handik.BinderFunc(func() (handik.RigBinding, error) {
		calls++
		if calls > 1 {
			return handik.RigBinding{}, handik.ErrRigUnavailable
		}
		return handik.BindHands(handik.DefaultHandRig(), handik.DefaultHandRig())
	})
	s := NewDaemonState(handik.New(handik.DefaultConfig(), binder, quietLogger()), 0)

	rr := Reduce(s, Reinitialize{})
	st := rr.Broadcasts[0].(BroadcastEngineStatus)
	if !st.Disabled || st.Error == "" {
		t.Fatalf("expected disabled status with error, got %+v", st)
	}

	rr = Reduce(s, Tick{Dt: 0.01, Frame: leftHandFrame(1)})
	if len(rr.Commands) != 0 {
		t.Fatalf("expected disabled engine to emit no commands, got %d", len(rr.Commands))
	}
	if snap := s.Snapshot(); !snap.Disabled || snap.InitError == "" {
		t.Fatalf("expected snapshot to report disabled engine, got %+v", snap)
	}
}

func TestReduce_SnapshotRequestAndFailures(t *testing.T) {
	s := newTestState(t, 0)
	Reduce(s, SetSwap{Enabled: true})
	Reduce(s, Tick{Dt: 0.01, Frame: leftHandFrame(5)})

	failAt := time.Unix(3000, 0)
	Reduce(s, OutputApplyFailed{Err: errors.New("boom"), At: failAt})
	if s.Output.Failures != 1 || s.Output.LastError != "boom" || !s.Output.LastAt.Equal(failAt) {
		t.Fatalf("unexpected output state %+v", s.Output)
	}

	reply := make(chan StateSnapshot, 1)
	rr := Reduce(s, RequestStateSnapshot{Reply: reply})
	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	cmd, ok := rr.Commands[0].(CmdPublishStateSnapshot)
	if !ok {
		t.Fatalf("expected CmdPublishStateSnapshot, got %T", rr.Commands[0])
	}
	snap := cmd.Snapshot
	if !snap.Swap || snap.Mirror || !snap.Track || !snap.Mirroring {
		t.Fatalf("unexpected switches %+v", snap)
	}
	if snap.Ticks != 1 || snap.Updates != 1 || snap.LastFrameSeq != 5 || snap.OutputFailures != 1 {
		t.Fatalf("unexpected counters %+v", snap)
	}
	if snap.Hands[0].Side != "left" || snap.Hands[1].Side != "right" {
		t.Fatalf("unexpected hand sides %+v", snap.Hands)
	}
}

func TestReduce_NilEngineStillAnswersSnapshots(t *testing.T) {
	s := &DaemonState{}
	reply := make(chan StateSnapshot, 1)
	rr := Reduce(s, RequestStateSnapshot{Reply: reply})
	if len(rr.Commands) != 1 {
		t.Fatalf("expected snapshot command, got %d", len(rr.Commands))
	}
	if rr := Reduce(s, Tick{Dt: 0.01}); len(rr.Commands) != 0 {
		t.Fatalf("expected no commands without an engine")
	}
}
