package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// knobui-ctl - Command-line IPC Client
// ============================================================================
// Drives the knobui daemon over its Unix socket, as if the knob were turned.
//
// Usage:
//   knobui-ctl right [n]
//   knobui-ctl left [n]
//   knobui-ctl click
//   knobui-ctl button double_click
//   knobui-ctl timeout 3000
//   knobui-ctl debug on
//   knobui-ctl volume 40
//   knobui-ctl source next
//   knobui-ctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/knobui.sock)
// ============================================================================

// Command types (duplicated from the daemon for a standalone binary)
type Command interface{}

type RotaryPulse struct {
	Direction int `json:"direction"`
	Count     int `json:"count,omitempty"`
}

type Button struct {
	Event string `json:"event"`
}

type SetSelectionTimeout struct {
	MS int `json:"ms"`
}

type SetDebug struct {
	Enabled bool `json:"enabled"`
}

type SetVolume struct {
	Value int `json:"value"`
}

type SetSource struct {
	Index int `json:"index"`
}

type SetFilter struct {
	Index int `json:"index"`
}

type CycleSource struct{}

type CycleFilter struct{}

type Status struct{}

// CommandEnvelope wraps commands for JSON
type CommandEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func main() {
	socketPath := "/tmp/knobui.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}
	if cmd == nil {
		printUsage()
		return
	}

	data, err := sendCommand(socketPath, cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(data) == 0 {
		fmt.Println("ok")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(pretty.String())
}

// parseCommand maps CLI arguments to a command. A nil command means "help".
func parseCommand(args []string) (Command, error) {
	optInt := func(def int) (int, error) {
		if len(args) < 2 {
			return def, nil
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", args[1])
		}
		return n, nil
	}

	switch args[0] {
	case "right", "cw", "up":
		n, err := optInt(1)
		if err != nil {
			return nil, err
		}
		return RotaryPulse{Direction: 1, Count: n}, nil

	case "left", "ccw", "down":
		n, err := optInt(1)
		if err != nil {
			return nil, err
		}
		return RotaryPulse{Direction: -1, Count: n}, nil

	case "click":
		return Button{Event: "single_click"}, nil

	case "button":
		if len(args) < 2 {
			return nil, fmt.Errorf("button requires an event name (e.g. single_click)")
		}
		return Button{Event: args[1]}, nil

	case "timeout":
		if len(args) < 2 {
			return nil, fmt.Errorf("timeout requires a value in ms")
		}
		ms, err := optInt(0)
		if err != nil {
			return nil, err
		}
		return SetSelectionTimeout{MS: ms}, nil

	case "debug":
		if len(args) < 2 {
			return nil, fmt.Errorf("debug requires on|off")
		}
		switch args[1] {
		case "on", "true", "1":
			return SetDebug{Enabled: true}, nil
		case "off", "false", "0":
			return SetDebug{Enabled: false}, nil
		default:
			return nil, fmt.Errorf("debug requires on|off, got %q", args[1])
		}

	case "volume", "vol":
		if len(args) < 2 {
			return nil, fmt.Errorf("volume requires a value (0-100)")
		}
		v, err := optInt(0)
		if err != nil {
			return nil, err
		}
		return SetVolume{Value: v}, nil

	case "source", "filter":
		if len(args) < 2 {
			return nil, fmt.Errorf("%s requires an index or \"next\"", args[0])
		}
		if args[1] == "next" {
			if args[0] == "source" {
				return CycleSource{}, nil
			}
			return CycleFilter{}, nil
		}
		i, err := optInt(0)
		if err != nil {
			return nil, err
		}
		if args[0] == "source" {
			return SetSource{Index: i}, nil
		}
		return SetFilter{Index: i}, nil

	case "status":
		return Status{}, nil

	case "help", "-h", "--help":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func sendCommand(socketPath string, cmd Command) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := marshalCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return nil, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response.Data, nil
}

func marshalCommand(cmd Command) ([]byte, error) {
	var env CommandEnvelope

	withData := func(typ string, v any) error {
		env.Type = typ
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = data
		return nil
	}

	var err error
	switch c := cmd.(type) {
	case RotaryPulse:
		err = withData("rotary_pulse", c)
	case Button:
		err = withData("button", c)
	case SetSelectionTimeout:
		err = withData("set_selection_timeout", c)
	case SetDebug:
		err = withData("set_debug", c)
	case SetVolume:
		err = withData("set_volume", c)
	case SetSource:
		err = withData("set_source", c)
	case SetFilter:
		err = withData("set_filter", c)
	case CycleSource:
		env.Type = "cycle_source"
	case CycleFilter:
		env.Type = "cycle_filter"
	case Status:
		env.Type = "status"
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(env)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `knobui-ctl - Control the knobui daemon via IPC

Usage:
  knobui-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/knobui.sock)

Commands:
  right, cw [n]           Turn the knob n detents clockwise (default 1)
  left, ccw [n]           Turn the knob n detents counter-clockwise (default 1)
  click                   Single click
  button <event>          Send a button event (single_click, double_click, ...)
  timeout <ms>            Set the selection timeout (<=0 disables)
  debug on|off            Toggle state-machine debug logging
  volume <n>              Set the volume directly (clamped to 0-100)
  source <i>|next         Select a source by index, or the next one
  filter <i>|next         Select a filter by index, or the next one
  status                  Print the daemon status
  help, -h, --help        Show this help message

Examples:
  knobui-ctl click
  knobui-ctl right 3
  knobui-ctl -socket /run/knobui.sock status
`)
}
