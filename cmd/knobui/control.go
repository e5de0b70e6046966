package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ControlState is the mode of the selection/edit state machine.
type ControlState int

const (
	StateNormal ControlState = iota
	StateSelection
	StateEdit
)

func (s ControlState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateSelection:
		return "selection"
	case StateEdit:
		return "edit"
	default:
		return fmt.Sprintf("control_state(%d)", int(s))
	}
}

// ControlItem identifies an addressable on-screen control.
type ControlItem int

// NoControl means "nothing highlighted".
const NoControl ControlItem = -1

const (
	ItemVolume ControlItem = iota
	ItemSource
	ItemFilter

	controlItemCount = 3
)

func (c ControlItem) String() string {
	switch c {
	case NoControl:
		return "none"
	case ItemVolume:
		return "volume"
	case ItemSource:
		return "source"
	case ItemFilter:
		return "filter"
	default:
		return fmt.Sprintf("control_item(%d)", int(c))
	}
}

// next returns the item step positions away, wrapping in both directions.
func (c ControlItem) next(step int) ControlItem {
	n := (int(c) + step) % controlItemCount
	if n < 0 {
		n += controlItemCount
	}
	return ControlItem(n)
}

const (
	// selectionStartItem is where the cursor lands when SELECTION is entered.
	selectionStartItem = ItemSource

	// normalRotaryItem receives rotary steps while in NORMAL.
	normalRotaryItem = ItemVolume
)

// controller is the NORMAL -> SELECTION -> EDIT state machine.
//
// It is owned by the tick goroutine and is not safe for concurrent use.
// Every call into the panel happens with the panel lock held.
type controller struct {
	state     ControlState
	addressed ControlItem
	deadline  time.Time // zero when disarmed

	panel   Panel
	timeout func() time.Duration

	// Re-arm the deadline when the cursor moves in SELECTION.
	refreshOnRotate bool

	logger *slog.Logger
	trace  func(msg string, args ...any)
}

func newController(panel Panel, timeout func() time.Duration, refreshOnRotate bool, logger *slog.Logger) *controller {
	c := &controller{
		state:           StateNormal,
		addressed:       ItemVolume,
		panel:           panel,
		timeout:         timeout,
		refreshOnRotate: refreshOnRotate,
		logger:          logger,
	}
	c.trace = logger.Debug
	return c
}

// withPanel runs fn with the panel lock held and releases it on every path.
func withPanel(l sync.Locker, fn func()) {
	l.Lock()
	defer l.Unlock()
	fn()
}

func (c *controller) State() ControlState    { return c.state }
func (c *controller) Addressed() ControlItem { return c.addressed }
func (c *controller) Deadline() time.Time    { return c.deadline }

func (c *controller) highlighted() ControlItem {
	if c.state == StateNormal {
		return NoControl
	}
	return c.addressed
}

func (c *controller) armDeadline(now time.Time) {
	d := c.timeout()
	if d <= 0 {
		c.deadline = time.Time{}
		return
	}
	c.deadline = now.Add(d)
	c.trace("selection deadline armed", "deadline", c.deadline, "timeout", d)
}

func (c *controller) render() {
	item, state := c.highlighted(), c.state
	withPanel(c.panel, func() {
		c.panel.Highlight(item, state)
	})
}

// Click handles a single click. It returns true if the state changed.
func (c *controller) Click(now time.Time) bool {
	switch c.state {
	case StateNormal:
		c.state = StateSelection
		c.addressed = selectionStartItem
		c.armDeadline(now)
		c.render()
		c.logger.Info("entered selection", "item", c.addressed)
		return true

	case StateSelection:
		c.state = StateEdit
		c.armDeadline(now)
		c.render()
		c.logger.Info("selection confirmed; editing", "item", c.addressed)
		return true

	case StateEdit:
		// Edits were applied live; confirming only leaves EDIT.
		c.state = StateNormal
		c.deadline = time.Time{}
		c.render()
		c.logger.Info("edit applied", "item", c.addressed)
		return true

	default:
		c.trace("click ignored", "state", c.state)
		return false
	}
}

// Cancel returns to NORMAL and clears the highlight. No-op in NORMAL.
func (c *controller) Cancel(reason string) {
	if c.state == StateNormal {
		return
	}
	prev := c.state
	c.state = StateNormal
	c.deadline = time.Time{}
	c.render()
	c.logger.Info("selection cancelled", "from", prev, "item", c.addressed, "reason", reason)
}

// CheckExpiry cancels SELECTION/EDIT once now reaches the deadline.
func (c *controller) CheckExpiry(now time.Time) bool {
	if c.state == StateNormal || c.deadline.IsZero() {
		return false
	}
	if now.Before(c.deadline) {
		return false
	}
	c.Cancel("timeout")
	return true
}

// Rotate applies one unit rotary step according to the current state.
func (c *controller) Rotate(step int, now time.Time) {
	if step == 0 {
		return
	}

	switch c.state {
	case StateSelection:
		c.addressed = c.addressed.next(step)
		if c.refreshOnRotate {
			c.armDeadline(now)
		}
		c.render()
		c.trace("selection moved", "item", c.addressed)

	case StateEdit:
		c.adjust(c.addressed, step)

	case StateNormal:
		c.adjust(normalRotaryItem, step)

	default:
		c.trace("rotary step ignored", "state", c.state, "step", step)
	}
}

// adjust nudges the value of item by step under the panel lock.
func (c *controller) adjust(item ControlItem, step int) {
	withPanel(c.panel, func() {
		switch item {
		case ItemVolume:
			cur := c.panel.Volume()
			next := clampVolume(cur + step)
			if next == cur {
				c.trace("volume unchanged", "state", c.state, "volume", cur)
				return
			}
			c.panel.SetVolume(next)
			c.trace("volume", "state", c.state, "from", cur, "to", next)

		case ItemSource:
			cur := c.panel.SourceIndex()
			c.panel.SetSourceIndex(cur + step)
			c.trace("source", "state", c.state, "from", cur, "to", c.panel.SourceIndex())

		case ItemFilter:
			cur := c.panel.FilterIndex()
			c.panel.SetFilterIndex(cur + step)
			c.trace("filter", "state", c.state, "from", cur, "to", c.panel.FilterIndex())

		default:
			c.trace("adjust ignored for unknown item", "item", item)
		}
	})
}
