package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ============================================================================
// UI Pipeline - single-owner tick driver
// ============================================================================
//
// Producers (evdev reader, GPIO goroutines, IPC connections) only ever touch
// the rotary accumulator and the button channel. Everything else, including
// the control state machine and every display mutation, runs on the goroutine
// that calls Tick. That goroutine is the only consumer of both producer
// structures, so ControlState itself needs no lock.
//
// ============================================================================

// PipelineConfig tunes the tick driver.
type PipelineConfig struct {
	TickHz              int
	SelectionTimeout    time.Duration
	RotaryBurst         int
	ButtonsPerTick      int
	ButtonQueueCapacity int
	SendWait            time.Duration

	// RefreshDeadlineOnRotate re-arms the selection timeout when the cursor moves.
	RefreshDeadlineOnRotate bool

	// ButtonFilter selects which events producers forward. nil means single clicks only.
	ButtonFilter ButtonFilter

	Debug bool
}

// Pipeline owns the input-to-UI path for one knob.
type Pipeline struct {
	rotary  *rotaryAccumulator
	buttons *buttonChannel
	ctrl    *controller
	panel   Panel

	cfg     PipelineConfig
	filter  ButtonFilter
	timeout atomic.Int64 // time.Duration
	debug   atomic.Bool

	// Published after every tick for readers on other goroutines.
	status atomic.Pointer[PipelineStatus]

	logger *slog.Logger
}

// NewPipeline wires the accumulator, button channel and state machine around panel.
func NewPipeline(cfg PipelineConfig, panel Panel, logger *slog.Logger) *Pipeline {
	if cfg.TickHz <= 0 {
		cfg.TickHz = defaultTickHz
	}
	if cfg.RotaryBurst <= 0 {
		cfg.RotaryBurst = defaultRotaryBurst
	}
	if cfg.ButtonsPerTick <= 0 {
		cfg.ButtonsPerTick = defaultButtonsPerTick
	}
	filter := cfg.ButtonFilter
	if filter == nil {
		filter = clickOnlyFilter()
	}

	p := &Pipeline{
		rotary:  newRotaryAccumulator(),
		buttons: newButtonChannel(cfg.ButtonQueueCapacity, logger),
		panel:   panel,
		cfg:     cfg,
		filter:  filter,
		logger:  logger,
	}
	p.timeout.Store(int64(cfg.SelectionTimeout))
	p.debug.Store(cfg.Debug)

	p.ctrl = newController(panel, p.SelectionTimeout, cfg.RefreshDeadlineOnRotate, logger)
	p.ctrl.trace = p.trace
	p.publishStatus()
	return p
}

// trace logs state-machine detail at Info when UI debug is on, Debug otherwise.
func (p *Pipeline) trace(msg string, args ...any) {
	if p.debug.Load() {
		p.logger.Info(msg, args...)
		return
	}
	p.logger.Debug(msg, args...)
}

// ----------------------------------------------------------------------------
// Producer side (any goroutine)
// ----------------------------------------------------------------------------

// RotaryPulse feeds one encoder detent (+1 clockwise, -1 counter-clockwise).
func (p *Pipeline) RotaryPulse(direction int) {
	p.rotary.OnPulse(direction)
}

// KnobActive reports whether rotary work is pending.
func (p *Pipeline) KnobActive() bool {
	return p.rotary.HasPending()
}

// ButtonFromInterrupt is the producer path for callers that must never block
// (edge handlers, input readers).
func (p *Pipeline) ButtonFromInterrupt(ev ButtonEvent) {
	if !p.filter.Allows(ev) {
		p.trace("button event dropped by filter", "event", ev)
		return
	}
	p.trace("button event enqueue", "event", ev, "path", "nonblocking")
	p.buttons.OfferNonBlocking(ev)
}

// ButtonFromTask is the producer path for callers that may wait briefly (IPC).
func (p *Pipeline) ButtonFromTask(ev ButtonEvent) {
	if !p.filter.Allows(ev) {
		p.trace("button event dropped by filter", "event", ev)
		return
	}
	p.trace("button event enqueue", "event", ev, "path", "bounded_wait")
	p.buttons.OfferWait(ev, p.cfg.SendWait)
}

// ----------------------------------------------------------------------------
// Configuration entry points (any goroutine)
// ----------------------------------------------------------------------------

// SetSelectionTimeout changes the auto-cancel timeout. d <= 0 disables it.
// The new value applies from the next state-advancing click.
func (p *Pipeline) SetSelectionTimeout(d time.Duration) {
	p.timeout.Store(int64(d))
	p.trace("selection timeout set", "timeout", d)
}

// SelectionTimeout returns the current auto-cancel timeout.
func (p *Pipeline) SelectionTimeout() time.Duration {
	return time.Duration(p.timeout.Load())
}

// SetDebug toggles verbose state-machine logging.
func (p *Pipeline) SetDebug(enabled bool) {
	p.debug.Store(enabled)
	p.logger.Info("ui debug", "enabled", enabled)
}

// ----------------------------------------------------------------------------
// Direct value writes (any goroutine)
// ----------------------------------------------------------------------------
// These bypass the state machine, like the touch controls on the panel. The
// panel setters clamp the volume and wrap the indices.

// SetVolume writes the volume.
func (p *Pipeline) SetVolume(v int) {
	withPanel(p.panel, func() { p.panel.SetVolume(v) })
	p.trace("volume written", "value", v)
}

// SetSourceIndex selects a source by index.
func (p *Pipeline) SetSourceIndex(i int) {
	withPanel(p.panel, func() { p.panel.SetSourceIndex(i) })
	p.trace("source written", "index", i)
}

// SetFilterIndex selects a filter by index.
func (p *Pipeline) SetFilterIndex(i int) {
	withPanel(p.panel, func() { p.panel.SetFilterIndex(i) })
	p.trace("filter written", "index", i)
}

// CycleSource advances to the next source, wrapping after the last.
func (p *Pipeline) CycleSource() {
	withPanel(p.panel, func() { p.panel.SetSourceIndex(p.panel.SourceIndex() + 1) })
}

// CycleFilter advances to the next filter, wrapping after the last.
func (p *Pipeline) CycleFilter() {
	withPanel(p.panel, func() { p.panel.SetFilterIndex(p.panel.FilterIndex() + 1) })
}

// ----------------------------------------------------------------------------
// Consumer side (tick goroutine only)
// ----------------------------------------------------------------------------

// Tick runs one pass of the pipeline:
//  1. cancel SELECTION/EDIT if the deadline has passed
//  2. drain up to ButtonsPerTick button events, stopping after a state change
//  3. drain a rotary burst and dispatch each unit step by state
func (p *Pipeline) Tick(now time.Time) {
	p.ctrl.CheckExpiry(now)

	p.drainButtons(now)

	if p.rotary.HasPending() {
		burst := p.rotary.DrainBurst(p.cfg.RotaryBurst)
		if burst.Count > 0 {
			p.trace("rotary burst", "step", burst.Step, "count", burst.Count, "pending", burst.Pending, "state", p.ctrl.State())
		}
		for i := 0; i < burst.Count; i++ {
			p.ctrl.Rotate(burst.Step, now)
		}
	}

	p.publishStatus()
}

func (p *Pipeline) drainButtons(now time.Time) {
	for processed := 0; processed < p.cfg.ButtonsPerTick; processed++ {
		ev, ok := p.buttons.TryReceive()
		if !ok {
			return
		}
		p.trace("button event dequeued", "event", ev, "state", p.ctrl.State())

		switch ev {
		case ButtonSingleClick:
			if p.ctrl.Click(now) {
				// One transition per tick.
				return
			}
		default:
			p.trace("button event ignored", "event", ev)
		}
	}
}

// Run calls Tick at the configured cadence until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) {
	interval := time.Second / time.Duration(p.cfg.TickHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("ui pipeline running", "tick_interval", interval, "selection_timeout", p.SelectionTimeout())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("ui pipeline stopping (context canceled)")
			return
		case now := <-ticker.C:
			p.Tick(now)
		}
	}
}

// ----------------------------------------------------------------------------
// Status
// ----------------------------------------------------------------------------

// PipelineStatus is the control-side state observers may read.
type PipelineStatus struct {
	State            ControlState       `json:"-"`
	Addressed        ControlItem        `json:"-"`
	Deadline         time.Time          `json:"-"`
	KnobActive       bool               `json:"knob_active"`
	RotaryDelta      int64              `json:"rotary_delta"`
	Buttons          ButtonChannelStats `json:"buttons"`
	SelectionTimeout time.Duration      `json:"-"`
	Debug            bool               `json:"debug"`
}

func (p *Pipeline) publishStatus() {
	st := &PipelineStatus{
		State:            p.ctrl.State(),
		Addressed:        p.ctrl.Addressed(),
		Deadline:         p.ctrl.Deadline(),
		KnobActive:       p.rotary.HasPending(),
		RotaryDelta:      p.rotary.Outstanding(),
		Buttons:          p.buttons.Stats(),
		SelectionTimeout: p.SelectionTimeout(),
		Debug:            p.debug.Load(),
	}
	p.status.Store(st)
}

// Status returns the status published by the most recent tick.
func (p *Pipeline) Status() PipelineStatus {
	if st := p.status.Load(); st != nil {
		return *st
	}
	return PipelineStatus{}
}

// StatusSnapshot is the wire form of the pipeline status, answered to IPC
// "status" requests.
type StatusSnapshot struct {
	State              string             `json:"state"`
	Addressed          string             `json:"addressed"`
	Highlighted        string             `json:"highlighted"`
	DeadlineInMS       int64              `json:"deadline_in_ms,omitempty"`
	SelectionTimeoutMS int64              `json:"selection_timeout_ms"`
	KnobActive         bool               `json:"knob_active"`
	RotaryDelta        int64              `json:"rotary_delta"`
	Debug              bool               `json:"debug"`
	Buttons            ButtonChannelStats `json:"buttons"`
	Display            *DisplaySnapshot   `json:"display,omitempty"`
}

// displaySnapshotter is implemented by panels that can report their values.
type displaySnapshotter interface {
	Snapshot() DisplaySnapshot
}

// Snapshot combines the last published status with live producer counters
// and, if the panel supports it, the display values.
func (p *Pipeline) Snapshot(now time.Time) StatusSnapshot {
	st := p.Status()

	highlighted := NoControl
	if st.State != StateNormal {
		highlighted = st.Addressed
	}

	snap := StatusSnapshot{
		State:              st.State.String(),
		Addressed:          st.Addressed.String(),
		Highlighted:        highlighted.String(),
		SelectionTimeoutMS: p.SelectionTimeout().Milliseconds(),
		KnobActive:         p.rotary.HasPending(),
		RotaryDelta:        p.rotary.Outstanding(),
		Debug:              p.debug.Load(),
		Buttons:            p.buttons.Stats(),
	}
	if !st.Deadline.IsZero() && st.State != StateNormal {
		if left := st.Deadline.Sub(now); left > 0 {
			snap.DeadlineInMS = left.Milliseconds()
		}
	}
	if ds, ok := p.panel.(displaySnapshotter); ok {
		d := ds.Snapshot()
		snap.Display = &d
	}
	return snap
}
