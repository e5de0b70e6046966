package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server lets external clients drive the knob and query the UI state
// over a Unix domain socket. It is a task-context producer: button events use
// the bounded-wait send path.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "command_name", "data": {...}}
//   - Server responds: {"status": "ok", "data": {...}} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
	Data   any    `json:"data,omitempty"`  // command result, if any
}

// CommandHandler executes one decoded command and returns its result.
type CommandHandler interface {
	HandleCommand(cmd Command) (any, error)
}

// HandleCommand applies an IPC command to the pipeline.
func (p *Pipeline) HandleCommand(cmd Command) (any, error) {
	switch c := cmd.(type) {
	case RotaryPulseCmd:
		n := c.Count
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			p.RotaryPulse(c.Direction)
		}
		return nil, nil

	case ButtonCmd:
		ev, err := ParseButtonEvent(c.Event)
		if err != nil {
			return nil, err
		}
		p.ButtonFromTask(ev)
		return nil, nil

	case SetSelectionTimeoutCmd:
		p.SetSelectionTimeout(time.Duration(c.MS) * time.Millisecond)
		return nil, nil

	case SetDebugCmd:
		p.SetDebug(c.Enabled)
		return nil, nil

	case SetVolumeCmd:
		p.SetVolume(c.Value)
		return nil, nil

	case SetSourceCmd:
		p.SetSourceIndex(c.Index)
		return nil, nil

	case SetFilterCmd:
		p.SetFilterIndex(c.Index)
		return nil, nil

	case CycleSourceCmd:
		p.CycleSource()
		return nil, nil

	case CycleFilterCmd:
		p.CycleFilter()
		return nil, nil

	case StatusCmd:
		return p.Snapshot(time.Now()), nil

	default:
		return nil, fmt.Errorf("unsupported command: %T", cmd)
	}
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, handler CommandHandler, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, handler, logger)
	}
}

// handleIPCConnection processes a single IPC client connection
func handleIPCConnection(conn net.Conn, handler CommandHandler, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		var response IPCResponse

		cmd, err := UnmarshalCommand([]byte(line))
		if err != nil {
			response = IPCResponse{Status: "error", Error: fmt.Sprintf("parse command: %v", err)}
		} else if data, err := handler.HandleCommand(cmd); err != nil {
			response = IPCResponse{Status: "error", Error: err.Error()}
		} else {
			response = IPCResponse{Status: "ok", Data: data}
		}

		if encErr := encoder.Encode(response); encErr != nil {
			logger.Error("IPC failed to send response", "error", encErr)
			return
		}
	}

	logger.Debug("IPC connection closed")
}
