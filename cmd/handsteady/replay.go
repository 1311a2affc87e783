package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"handsteady/internal/handik"
)

// replayScript is the YAML form of a recorded tracking session.
//
//	ticks_per_frame: 2
//	loop: false
//	frames:
//	  - seq: 1
//	    left:
//	      position: [0.1, 1.2, 0.3]
//	      rotation: [0, 0, 0, 1]
//	      joints: [[0, 0, 0, 1], ...]
type replayScript struct {
	TicksPerFrame int         `yaml:"ticks_per_frame"`
	Loop          bool        `yaml:"loop"`
	Frames        []wireFrame `yaml:"frames"`
}

// loadReplayScript reads a replay file and converts every frame up front so
// malformed input fails at startup instead of mid-session.
func loadReplayScript(path string) (replayScript, []*handik.Frame, error) {
	var script replayScript

	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return script, nil, fmt.Errorf("read replay file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&script); err != nil {
		return script, nil, fmt.Errorf("decode replay yaml: %w", err)
	}
	if len(script.Frames) == 0 {
		return script, nil, errors.New("replay file has no frames")
	}

	frames := make([]*handik.Frame, len(script.Frames))
	for i := range script.Frames {
		f, err := script.Frames[i].toFrame()
		if err != nil {
			return script, nil, fmt.Errorf("replay frame %d: %w", i, err)
		}
		if f.Seq == 0 {
			f.Seq = uint64(i + 1)
		}
		frames[i] = f
	}
	return script, frames, nil
}

// ReplaySource plays back recorded frames, one frame every ticksPerFrame
// polls. It implements FrameSource.
type ReplaySource struct {
	frames        []*handik.Frame
	ticksPerFrame int
	loop          bool

	next  int
	polls int
}

// NewReplaySource builds a source from loaded frames. ticksPerFrame < 1 is
// treated as 1.
func NewReplaySource(frames []*handik.Frame, ticksPerFrame int, loop bool) *ReplaySource {
	if ticksPerFrame < 1 {
		ticksPerFrame = 1
	}
	return &ReplaySource{frames: frames, ticksPerFrame: ticksPerFrame, loop: loop}
}

// OpenReplay loads path; a non-zero ticks_per_frame or loop in the file wins
// over the arguments.
func OpenReplay(path string, ticksPerFrame int, loop bool) (*ReplaySource, error) {
	script, frames, err := loadReplayScript(path)
	if err != nil {
		return nil, err
	}
	if script.TicksPerFrame > 0 {
		ticksPerFrame = script.TicksPerFrame
	}
	return NewReplaySource(frames, ticksPerFrame, loop || script.Loop), nil
}

// Poll returns the next frame on every ticksPerFrame-th call and nil otherwise.
func (r *ReplaySource) Poll() *handik.Frame {
	if r.Done() {
		return nil
	}
	r.polls++
	if r.polls < r.ticksPerFrame {
		return nil
	}
	r.polls = 0

	f := r.frames[r.next]
	r.next++
	if r.loop && r.next == len(r.frames) {
		r.next = 0
	}
	return f
}

// Done reports whether a non-looping replay has delivered every frame.
func (r *ReplaySource) Done() bool {
	return !r.loop && r.next >= len(r.frames)
}

// Len returns the number of frames in the script.
func (r *ReplaySource) Len() int { return len(r.frames) }

// driveReplay runs the reducer pipeline synchronously over a replay source
// with a fixed dt, writing through sink. Once the source is done it feeds
// tailTicks empty frames so fades can finish. It stops after maxTicks when
// maxTicks > 0. It returns the number of ticks run.
func driveReplay(state *DaemonState, src *ReplaySource, sink OutputSink, dt float64, tailTicks, maxTicks int, logger *slog.Logger) (int, error) {
	var failures []error
	onEvent := func(ev Event) {
		if f, ok := ev.(OutputApplyFailed); ok {
			failures = append(failures, f.Err)
		}
		Reduce(state, ev)
	}

	start := time.Now()
	ticks := 0
	tail := 0
	for maxTicks <= 0 || ticks < maxTicks {
		var frame *handik.Frame
		if src.Done() {
			if tail >= tailTicks {
				break
			}
			tail++
			// The sensor sees nothing after the recording ends.
			frame = &handik.Frame{}
		} else {
			frame = src.Poll()
		}
		ticks++
		now := start.Add(time.Duration(float64(ticks) * dt * float64(time.Second)))
		rr := Reduce(state, Tick{Now: now, Dt: dt, Frame: frame})
		for _, cmd := range rr.Commands {
			runEffect(sink, cmd, logger, onEvent)
		}
		if len(failures) > 0 {
			return ticks, fmt.Errorf("tick %d: %w", ticks, failures[0])
		}
	}
	return ticks, nil
}
