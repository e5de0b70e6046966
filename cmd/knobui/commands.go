package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// IPC commands
// ============================================================================
// Commands are what external clients (knobui-ctl, scripts, a web bridge) may
// ask of the daemon. Input-shaped commands go through the same producer paths
// as real hardware, so a scripted knob is indistinguishable from a turned one.
// ============================================================================

// Command is a marker interface for IPC requests.
type Command interface {
	commandMarker()
}

// RotaryPulseCmd injects Count detents in Direction (+1 / -1).
type RotaryPulseCmd struct {
	Direction int `json:"direction"`
	Count     int `json:"count,omitempty"` // 0 means 1
}

func (RotaryPulseCmd) commandMarker() {}

// ButtonCmd injects a semantic button event, e.g. "single_click".
type ButtonCmd struct {
	Event string `json:"event"`
}

func (ButtonCmd) commandMarker() {}

// SetSelectionTimeoutCmd changes the SELECTION/EDIT auto-cancel timeout.
type SetSelectionTimeoutCmd struct {
	MS int `json:"ms"`
}

func (SetSelectionTimeoutCmd) commandMarker() {}

// SetDebugCmd toggles verbose state-machine logging.
type SetDebugCmd struct {
	Enabled bool `json:"enabled"`
}

func (SetDebugCmd) commandMarker() {}

// SetVolumeCmd writes the volume directly, like dragging the volume arc.
// The panel clamps it to 0..100.
type SetVolumeCmd struct {
	Value int `json:"value"`
}

func (SetVolumeCmd) commandMarker() {}

// SetSourceCmd selects a source by index; the panel wraps it into range.
type SetSourceCmd struct {
	Index int `json:"index"`
}

func (SetSourceCmd) commandMarker() {}

// SetFilterCmd selects a filter by index; the panel wraps it into range.
type SetFilterCmd struct {
	Index int `json:"index"`
}

func (SetFilterCmd) commandMarker() {}

// CycleSourceCmd advances to the next source, like tapping the source label.
type CycleSourceCmd struct{}

func (CycleSourceCmd) commandMarker() {}

// CycleFilterCmd advances to the next filter.
type CycleFilterCmd struct{}

func (CycleFilterCmd) commandMarker() {}

// StatusCmd requests a status snapshot.
type StatusCmd struct{}

func (StatusCmd) commandMarker() {}

// maxPulsesPerCommand bounds RotaryPulseCmd.Count.
const maxPulsesPerCommand = 1000

// CommandEnvelope wraps a command with a type discriminator for JSON.
type CommandEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalCommand decodes a JSON envelope into a Command.
func UnmarshalCommand(b []byte) (Command, error) {
	var env CommandEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "rotary_pulse":
		var c RotaryPulseCmd
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal RotaryPulseCmd: %w", err)
		}
		if c.Direction == 0 {
			return nil, fmt.Errorf("rotary_pulse: direction must be non-zero")
		}
		if c.Count < 0 || c.Count > maxPulsesPerCommand {
			return nil, fmt.Errorf("rotary_pulse: count must be between 0 and %d", maxPulsesPerCommand)
		}
		return c, nil

	case "button":
		var c ButtonCmd
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal ButtonCmd: %w", err)
		}
		if _, err := ParseButtonEvent(c.Event); err != nil {
			return nil, err
		}
		return c, nil

	case "set_selection_timeout":
		var c SetSelectionTimeoutCmd
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal SetSelectionTimeoutCmd: %w", err)
		}
		return c, nil

	case "set_debug":
		var c SetDebugCmd
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal SetDebugCmd: %w", err)
		}
		return c, nil

	case "set_volume":
		var c SetVolumeCmd
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal SetVolumeCmd: %w", err)
		}
		return c, nil

	case "set_source":
		var c SetSourceCmd
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal SetSourceCmd: %w", err)
		}
		return c, nil

	case "set_filter":
		var c SetFilterCmd
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal SetFilterCmd: %w", err)
		}
		return c, nil

	case "cycle_source":
		return CycleSourceCmd{}, nil

	case "cycle_filter":
		return CycleFilterCmd{}, nil

	case "status":
		return StatusCmd{}, nil

	default:
		return nil, fmt.Errorf("unknown command type: %q", env.Type)
	}
}
