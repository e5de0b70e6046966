package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ============================================================================
// GPIO knob: quadrature decoding + push button on SBC pins (periph.io)
// ============================================================================
//
// Used when the encoder is wired straight to header pins rather than exposed
// through the kernel rotary-encoder / gpio-keys drivers.
//
// ============================================================================

// gpioEdgeWait bounds each WaitForEdge so cancellation is noticed.
const gpioEdgeWait = 200 * time.Millisecond

// quadratureTable maps (previous AB << 2 | current AB) to a quarter step.
// Invalid transitions (both lines changed) count as 0.
var quadratureTable = [16]int8{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// quadratureDecoder turns A/B levels into detent pulses.
type quadratureDecoder struct {
	state     uint8
	acc       int
	perDetent int
	reverse   bool
}

func newQuadratureDecoder(a, b bool, perDetent int, reverse bool) *quadratureDecoder {
	if perDetent <= 0 {
		perDetent = 4
	}
	return &quadratureDecoder{
		state:     abBits(a, b),
		perDetent: perDetent,
		reverse:   reverse,
	}
}

func abBits(a, b bool) uint8 {
	var s uint8
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}

// Update feeds the current line levels and returns +1, -1 or 0.
func (q *quadratureDecoder) Update(a, b bool) int {
	cur := abBits(a, b)
	if cur == q.state {
		return 0
	}
	q.acc += int(quadratureTable[q.state<<2|cur])
	q.state = cur

	dir := 0
	switch {
	case q.acc >= q.perDetent:
		dir = 1
	case q.acc <= -q.perDetent:
		dir = -1
	default:
		return 0
	}
	q.acc = 0
	if q.reverse {
		dir = -dir
	}
	return dir
}

// GPIOPins names the header pins (periph gpioreg names, e.g. "GPIO17").
type GPIOPins struct {
	A         string
	B         string
	Button    string
	PerDetent int
	Reverse   bool
	// ActiveLow is true when the button pulls the line to ground.
	ActiveLow bool
}

// runGPIOKnob decodes the encoder and button pins until ctx is canceled.
func runGPIOKnob(ctx context.Context, pins GPIOPins, sink knobSink, clicks *ClickDetector, logger *slog.Logger) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	a, b, btn, err := openKnobPins(pins)
	if err != nil {
		return err
	}
	defer a.Halt()
	defer b.Halt()
	if btn != nil {
		defer btn.Halt()
	}

	logger.Info("gpio knob running", "pin_a", pins.A, "pin_b", pins.B, "button", pins.Button)

	// Edges from either encoder line are collapsed into one wakeup; the decoder
	// always reads both levels, so a coalesced edge loses nothing.
	edges := make(chan struct{}, 1)

	var wg sync.WaitGroup
	for _, p := range []gpio.PinIO{a, b} {
		wg.Add(1)
		go func(p gpio.PinIO) {
			defer wg.Done()
			for ctx.Err() == nil {
				if !p.WaitForEdge(gpioEdgeWait) {
					continue
				}
				select {
				case edges <- struct{}{}:
				default:
				}
			}
		}(p)
	}

	if btn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchButtonPin(ctx, btn, pins.ActiveLow, clicks)
		}()
	}

	dec := newQuadratureDecoder(bool(a.Read()), bool(b.Read()), pins.PerDetent, pins.Reverse)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			logger.Info("gpio knob stopping (context canceled)")
			return nil
		case <-edges:
			if dir := dec.Update(bool(a.Read()), bool(b.Read())); dir != 0 {
				sink.RotaryPulse(dir)
			}
		}
	}
}

// pinByName resolves header pin names.
var pinByName = gpioreg.ByName

// openKnobPins opens the encoder lines and, if named, the button. On error
// every pin opened so far is halted.
func openKnobPins(pins GPIOPins) (a, b, btn gpio.PinIO, err error) {
	var opened []gpio.PinIO
	defer func() {
		if err != nil {
			for _, p := range opened {
				_ = p.Halt()
			}
		}
	}()

	open := func(name string) (gpio.PinIO, error) {
		p, err := openInputPin(name)
		if err != nil {
			return nil, err
		}
		opened = append(opened, p)
		return p, nil
	}

	if a, err = open(pins.A); err != nil {
		return nil, nil, nil, err
	}
	if b, err = open(pins.B); err != nil {
		return nil, nil, nil, err
	}
	if pins.Button != "" {
		if btn, err = open(pins.Button); err != nil {
			return nil, nil, nil, err
		}
	}
	return a, b, btn, nil
}

func openInputPin(name string) (gpio.PinIO, error) {
	p := pinByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure gpio pin %s: %w", name, err)
	}
	return p, nil
}

func watchButtonPin(ctx context.Context, p gpio.PinIO, activeLow bool, clicks *ClickDetector) {
	if clicks == nil {
		return
	}
	for ctx.Err() == nil {
		if !p.WaitForEdge(gpioEdgeWait) {
			continue
		}
		pressed := p.Read() == gpio.High
		if activeLow {
			pressed = !pressed
		}
		if pressed {
			clicks.Press(time.Now())
		} else {
			clicks.Release(time.Now())
		}
	}
}
