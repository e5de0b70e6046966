package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
// The timeval halves are kernel longs, so the wire size follows the word size:
// 24 bytes on 64-bit hosts, 16 on 32-bit ARM.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// Time returns the kernel timestamp of the event, or zero if unset.
func (ev inputEvent) Time() time.Time {
	if ev.Sec == 0 && ev.Usec == 0 {
		return time.Time{}
	}
	return time.Unix(ev.Sec, ev.Usec*int64(time.Microsecond))
}

// timevalWord is the size of one kernel long.
const timevalWord = strconv.IntSize / 8

// inputEventSize is sizeof(struct input_event) on this host.
const inputEventSize = 2*timevalWord + 8

// decodeInputEvent parses one native-endian input_event. b must hold at least
// inputEventSize bytes.
func decodeInputEvent(b []byte) (inputEvent, bool) {
	if len(b) < inputEventSize {
		return inputEvent{}, false
	}
	order := binary.NativeEndian
	var ev inputEvent
	if timevalWord == 8 {
		ev.Sec = int64(order.Uint64(b[0:8]))
		ev.Usec = int64(order.Uint64(b[8:16]))
	} else {
		ev.Sec = int64(int32(order.Uint32(b[0:4])))
		ev.Usec = int64(int32(order.Uint32(b[4:8])))
	}
	rest := b[2*timevalWord:]
	ev.Type = order.Uint16(rest[0:2])
	ev.Code = order.Uint16(rest[2:4])
	ev.Value = int32(order.Uint32(rest[4:8]))
	return ev, true
}

// readInputEvents reads input events from a single device and sends them to a channel.
// This runs in a dedicated goroutine and blocks on read operations.
func readInputEvents(f *os.File, events chan<- inputEvent, readErr chan<- error) {
	buf := make([]byte, inputEventSize)

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
			return
		}

		ev, ok := decodeInputEvent(buf)
		if !ok {
			continue
		}

		events <- ev
	}
}

// ============================================================================
// Event routing: evdev -> pipeline producers
// ============================================================================

// knobSink is the producer side of the pipeline as seen by input sources.
type knobSink interface {
	RotaryPulse(direction int)
	ButtonFromInterrupt(ev ButtonEvent)
}

// evdevCodes maps config names to EV_REL / EV_KEY codes.
var evdevCodes = map[string]uint16{
	"REL_X":      REL_X,
	"REL_DIAL":   REL_DIAL,
	"REL_WHEEL":  REL_WHEEL,
	"REL_MISC":   REL_MISC,
	"KEY_ENTER":  KEY_ENTER,
	"KEY_SELECT": KEY_SELECT,
	"KEY_OK":     KEY_OK,
	"BTN_0":      BTN_0,
	"BTN_LEFT":   BTN_LEFT,
}

// parseEvdevCodes resolves names like "REL_DIAL" to codes.
func parseEvdevCodes(names []string) (map[uint16]bool, error) {
	out := make(map[uint16]bool, len(names))
	for _, n := range names {
		code, ok := evdevCodes[strings.ToUpper(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown evdev code %q", n)
		}
		out[code] = true
	}
	return out, nil
}

// inputRouter translates raw input events into rotary pulses and button edges.
type inputRouter struct {
	sink   knobSink
	clicks *ClickDetector

	rotaryCodes map[uint16]bool
	buttonCodes map[uint16]bool

	logger *slog.Logger
	now    func() time.Time
}

func newInputRouter(sink knobSink, clicks *ClickDetector, rotaryCodes, buttonCodes map[uint16]bool, logger *slog.Logger) *inputRouter {
	return &inputRouter{
		sink:        sink,
		clicks:      clicks,
		rotaryCodes: rotaryCodes,
		buttonCodes: buttonCodes,
		logger:      logger,
		now:         time.Now,
	}
}

func (r *inputRouter) handle(ev inputEvent) {
	switch ev.Type {
	case EV_REL:
		if !r.rotaryCodes[ev.Code] {
			return
		}
		// The rotary-encoder driver reports one unit per detent, but relative
		// devices may batch several.
		dir, n := 1, int(ev.Value)
		if n < 0 {
			dir, n = -1, -n
		}
		for i := 0; i < n; i++ {
			r.sink.RotaryPulse(dir)
		}

	case EV_KEY:
		if !r.buttonCodes[ev.Code] || r.clicks == nil {
			return
		}
		at := ev.Time()
		if at.IsZero() {
			at = r.now()
		}
		switch ev.Value {
		case evValuePress:
			r.clicks.Press(at)
		case evValueRelease:
			r.clicks.Release(at)
		case evValueRepeat:
			// Autorepeat carries no information for click synthesis.
		}
	}
}

// runInputReader opens the evdev devices and routes their events until ctx is
// canceled or a device fails.
func runInputReader(ctx context.Context, devices []string, router *inputRouter, logger *slog.Logger) error {
	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	for _, dev := range devices {
		f, err := os.Open(dev)
		if err != nil {
			return fmt.Errorf("open input device %s: %w", dev, err)
		}
		files = append(files, f)
	}

	events := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	go readInputEventsMulti(ctx, files, events, readErr)

	logger.Info("input reader running", "devices", devices)

	for {
		select {
		case <-ctx.Done():
			logger.Info("input reader stopping (context canceled)")
			return nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("input reader stopped: %w", err)
		case ev := <-events:
			router.handle(ev)
		}
	}
}
