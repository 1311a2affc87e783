package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"handsteady/internal/handik"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects (sink writes).
//   - Sink failures are turned into Events and fed back into the reducer.
//   - Explicit event and command queues (no nested/re-entrant execution).
//
// ============================================================================

// FrameSource yields the newest tracking frame received since the last call,
// or nil when nothing new arrived. Poll must not block.
type FrameSource interface {
	Poll() *handik.Frame
}

// runDaemon is the main daemon loop that:
//   - Receives operator Events from hotkeys and IPC
//   - Emits Tick events on a fixed cadence carrying the latest tracking frame
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands against the sink and feeds failures back into the reducer
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	source FrameSource,
	sink OutputSink,
	state *DaemonState,
	updateHz int,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if updateHz <= 0 {
		updateHz = defaultUpdateHz
	}

	updateInterval := time.Second / time.Duration(updateHz)
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	// Allow up to ~2 ticks worth of time to be integrated in one step.
	maxDt := 2.0 / float64(updateHz)
	lastTick := time.Now()

	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bs []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bs {
			// Never block the daemon loop on slow websocket fanout.
			select {
			case broadcasts <- b:
			default:
				logger.Debug("broadcast queue full; dropping", "type", fmt.Sprintf("%T", b))
			}
		}
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(sink, cmd, logger, enqueueEvent)
			flushEvents()
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			if dt > maxDt {
				dt = maxDt
			}
			var frame *handik.Frame
			if source != nil {
				frame = source.Poll()
			}
			enqueueEvent(Tick{Now: now, Dt: dt, Frame: frame})
			flushEvents()
			flushCommands()
		}
	}
}
