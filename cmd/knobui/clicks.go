package main

import (
	"sync"
	"time"
)

// ============================================================================
// Click synthesis
// ============================================================================
//
// evdev keys and GPIO pins only report press and release. ClickDetector turns
// those edges into the semantic ButtonEvents the pipeline consumes:
//
//   press            -> press_down (press_repeat for the 2nd+ press of a burst)
//   release          -> press_up
//   short burst end  -> single_click | double_click | multiple_click, press_end
//   long hold        -> long_press_start, long_press_up, press_end (at release)
//
// A burst ends when no new press arrives within DoubleClick of the last
// release. With DoubleClick <= 0 every short press is a single click,
// reported at release.
//
// ============================================================================

// ClickConfig holds click timing.
type ClickConfig struct {
	DoubleClick time.Duration
	LongPress   time.Duration
}

// ClickDetector is safe for concurrent use.
type ClickDetector struct {
	mu  sync.Mutex
	cfg ClickConfig

	emit func(ButtonEvent)

	pressed     bool
	pressedAt   time.Time
	count       int
	lastRelease time.Time

	timer *time.Timer
	// gen invalidates timer callbacks from earlier bursts.
	gen uint64

	// schedule arms the end-of-burst timer. nil disables timers and leaves
	// burst completion to Poll.
	schedule func(d time.Duration, f func()) *time.Timer
}

// NewClickDetector emits synthesized events to emit.
func NewClickDetector(cfg ClickConfig, emit func(ButtonEvent)) *ClickDetector {
	return &ClickDetector{
		cfg:      cfg,
		emit:     emit,
		schedule: time.AfterFunc,
	}
}

// Press records a press edge at now. Repeated presses without a release are ignored.
func (c *ClickDetector) Press(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pressed {
		return
	}
	c.stopTimer()

	c.pressed = true
	c.pressedAt = now

	if c.count > 0 && now.Sub(c.lastRelease) <= c.cfg.DoubleClick {
		c.emit(ButtonPressRepeat)
		return
	}
	if c.count > 0 {
		c.finish()
	}
	c.emit(ButtonPressDown)
}

// Release records a release edge at now.
func (c *ClickDetector) Release(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pressed {
		return
	}
	c.pressed = false
	c.emit(ButtonPressUp)

	if c.cfg.LongPress > 0 && now.Sub(c.pressedAt) >= c.cfg.LongPress {
		// A long hold ends any pending burst without a click.
		c.count = 0
		c.emit(ButtonLongPressStart)
		c.emit(ButtonLongPressUp)
		c.emit(ButtonPressEnd)
		return
	}

	c.count++
	c.lastRelease = now

	if c.cfg.DoubleClick <= 0 {
		c.finish()
		return
	}
	if c.schedule != nil {
		gen := c.gen
		c.timer = c.schedule(c.cfg.DoubleClick, func() { c.expire(gen) })
	}
}

// expire completes the burst armed under gen. The timer runs on the monotonic
// clock, so the edge timestamps are not compared here.
func (c *ClickDetector) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.pressed || c.count == 0 {
		return
	}
	c.timer = nil
	c.finish()
}

// Poll completes a pending burst once the double-click window has elapsed.
func (c *ClickDetector) Poll(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pressed || c.count == 0 {
		return
	}
	if now.Sub(c.lastRelease) < c.cfg.DoubleClick {
		return
	}
	c.finish()
}

// Stop cancels any pending timer. Pending bursts are dropped.
func (c *ClickDetector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimer()
	c.count = 0
}

func (c *ClickDetector) stopTimer() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// finish reports the completed burst. Caller holds mu.
func (c *ClickDetector) finish() {
	switch c.count {
	case 0:
		return
	case 1:
		c.emit(ButtonSingleClick)
	case 2:
		c.emit(ButtonDoubleClick)
	default:
		c.emit(ButtonMultipleClick)
	}
	if c.count > 1 {
		c.emit(ButtonPressRepeatDone)
	}
	c.emit(ButtonPressEnd)
	c.count = 0
	c.timer = nil
}
