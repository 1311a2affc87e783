package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Action Types
// ============================================================================
// Actions represent operator intent from various sources (hotkeys, IPC).
// The central daemon loop consumes these actions and applies them to the engine.
// ============================================================================

// Action is a marker interface for operator commands.
//
// Actions also implement the reducer's Event marker so they can be reduced directly.
type Action interface {
	eventMarker()
}

// SetMirror sets output mirroring (left drives right and vice versa).
type SetMirror struct {
	Enabled bool `json:"enabled"`
}

func (SetMirror) eventMarker() {}

// SetSwap sets the sensor hand swap. Swap and mirror cancel each other.
type SetSwap struct {
	Enabled bool `json:"enabled"`
}

func (SetSwap) eventMarker() {}

// SetTracking is the master tracking switch; when off both hands fade out.
type SetTracking struct {
	Enabled bool `json:"enabled"`
}

func (SetTracking) eventMarker() {}

type ToggleMirror struct{}
type ToggleSwap struct{}
type ToggleTracking struct{}

func (ToggleMirror) eventMarker()   {}
func (ToggleSwap) eventMarker()     {}
func (ToggleTracking) eventMarker() {}

// Reinitialize re-binds the rig, resets all tracking state and skips the
// next SkipFrames ticks (0 uses the configured count).
type Reinitialize struct {
	SkipFrames int `json:"skip_frames,omitempty"`
}

func (Reinitialize) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "set_mirror":
		var a SetMirror
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetMirror: %w", err)
		}
		return a, nil

	case "set_swap":
		var a SetSwap
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetSwap: %w", err)
		}
		return a, nil

	case "set_tracking":
		var a SetTracking
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetTracking: %w", err)
		}
		return a, nil

	case "toggle_mirror":
		return ToggleMirror{}, nil
	case "toggle_swap":
		return ToggleSwap{}, nil
	case "toggle_tracking":
		return ToggleTracking{}, nil

	case "reinitialize":
		var a Reinitialize
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &a); err != nil {
				return nil, fmt.Errorf("unmarshal Reinitialize: %w", err)
			}
		}
		if a.SkipFrames < 0 {
			return nil, fmt.Errorf("reinitialize: skip_frames must be >= 0")
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// unmarshalData decodes a required payload.
func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, v)
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	withData := func(typ string, v any) error {
		env.Type = typ
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %T: %w", v, err)
		}
		env.Data = data
		return nil
	}

	var err error
	switch e := e.(type) {
	case SetMirror:
		err = withData("set_mirror", e)
	case SetSwap:
		err = withData("set_swap", e)
	case SetTracking:
		err = withData("set_tracking", e)
	case ToggleMirror:
		env.Type = "toggle_mirror"
	case ToggleSwap:
		env.Type = "toggle_swap"
	case ToggleTracking:
		env.Type = "toggle_tracking"
	case Reinitialize:
		err = withData("reinitialize", e)
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(env)
}
