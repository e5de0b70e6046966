package main

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ButtonEvent is a semantic push-button event.
type ButtonEvent int

const (
	ButtonPressDown ButtonEvent = iota
	ButtonPressUp
	ButtonPressRepeat
	ButtonPressRepeatDone
	ButtonSingleClick
	ButtonDoubleClick
	ButtonMultipleClick
	ButtonLongPressStart
	ButtonLongPressHold
	ButtonLongPressUp
	ButtonPressEnd
)

var buttonEventNames = [...]string{
	ButtonPressDown:       "press_down",
	ButtonPressUp:         "press_up",
	ButtonPressRepeat:     "press_repeat",
	ButtonPressRepeatDone: "press_repeat_done",
	ButtonSingleClick:     "single_click",
	ButtonDoubleClick:     "double_click",
	ButtonMultipleClick:   "multiple_click",
	ButtonLongPressStart:  "long_press_start",
	ButtonLongPressHold:   "long_press_hold",
	ButtonLongPressUp:     "long_press_up",
	ButtonPressEnd:        "press_end",
}

func (e ButtonEvent) String() string {
	if e < 0 || int(e) >= len(buttonEventNames) {
		return fmt.Sprintf("button_event(%d)", int(e))
	}
	return buttonEventNames[e]
}

// ParseButtonEvent maps a wire name (e.g. "single_click") to a ButtonEvent.
func ParseButtonEvent(s string) (ButtonEvent, error) {
	for i, name := range buttonEventNames {
		if name == s {
			return ButtonEvent(i), nil
		}
	}
	return 0, fmt.Errorf("unknown button event: %q", s)
}

// ButtonFilter decides at the producer which events may enter the channel.
// Anything the state machine ignores is dropped here so it cannot crowd out clicks.
type ButtonFilter map[ButtonEvent]bool

// clickOnlyFilter forwards single clicks only.
func clickOnlyFilter() ButtonFilter {
	return ButtonFilter{ButtonSingleClick: true}
}

// Allows reports whether ev passes the filter. A nil filter passes everything.
func (f ButtonFilter) Allows(ev ButtonEvent) bool {
	if f == nil {
		return true
	}
	return f[ev]
}

// buttonChannel is a bounded FIFO of button events with a single-slot lossy
// fallback for when the queue is full.
//
// Any goroutine may send. Only the tick goroutine receives.
type buttonChannel struct {
	queue chan ButtonEvent

	// Fallback slot: last event that did not fit in the queue.
	fbMu      sync.Mutex
	fbEvent   ButtonEvent
	fbPending bool

	accepted    atomic.Uint64
	fallbacks   atomic.Uint64
	overwritten atomic.Uint64

	logger *slog.Logger
}

func newButtonChannel(capacity int, logger *slog.Logger) *buttonChannel {
	if capacity <= 0 {
		capacity = defaultButtonQueueCapacity
	}
	return &buttonChannel{
		queue:  make(chan ButtonEvent, capacity),
		logger: logger,
	}
}

// TrySend enqueues ev without blocking. Returns false if the queue is full.
func (b *buttonChannel) TrySend(ev ButtonEvent) bool {
	select {
	case b.queue <- ev:
		b.accepted.Add(1)
		return true
	default:
		return false
	}
}

// SendWait tries a non-blocking send, then retries once for at most timeout.
func (b *buttonChannel) SendWait(ev ButtonEvent, timeout time.Duration) bool {
	if b.TrySend(ev) {
		return true
	}
	if timeout <= 0 {
		return false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case b.queue <- ev:
		b.accepted.Add(1)
		return true
	case <-t.C:
		return false
	}
}

// OfferNonBlocking is the interrupt-context producer path: TrySend, then the
// lossy fallback slot.
func (b *buttonChannel) OfferNonBlocking(ev ButtonEvent) {
	if b.TrySend(ev) {
		return
	}
	b.storeFallback(ev, "queue full (non-blocking)")
}

// OfferWait is the task-context producer path: SendWait, then the lossy
// fallback slot.
func (b *buttonChannel) OfferWait(ev ButtonEvent, timeout time.Duration) {
	if b.SendWait(ev, timeout) {
		return
	}
	b.storeFallback(ev, "queue full after bounded wait")
}

func (b *buttonChannel) storeFallback(ev ButtonEvent, reason string) {
	b.fbMu.Lock()
	overwrote := b.fbPending
	prev := b.fbEvent
	b.fbEvent = ev
	b.fbPending = true
	b.fbMu.Unlock()

	b.fallbacks.Add(1)
	if overwrote {
		b.overwritten.Add(1)
	}

	if b.logger != nil {
		args := []any{"event", ev, "reason", reason, "waiting", len(b.queue), "capacity", cap(b.queue)}
		if overwrote {
			args = append(args, "overwritten", prev)
		}
		b.logger.Warn("button queue full; using single-slot fallback", args...)
	}
}

// TryReceive pops the oldest queued event. Once the queue is empty the
// fallback slot, if set, is returned.
func (b *buttonChannel) TryReceive() (ButtonEvent, bool) {
	select {
	case ev := <-b.queue:
		return ev, true
	default:
	}

	b.fbMu.Lock()
	defer b.fbMu.Unlock()
	if !b.fbPending {
		return 0, false
	}
	b.fbPending = false
	return b.fbEvent, true
}

// Len returns the number of events waiting in the queue (fallback excluded).
func (b *buttonChannel) Len() int { return len(b.queue) }

// Cap returns the queue capacity.
func (b *buttonChannel) Cap() int { return cap(b.queue) }

// ButtonChannelStats is a point-in-time view of the channel counters.
type ButtonChannelStats struct {
	Waiting     int    `json:"waiting"`
	Capacity    int    `json:"capacity"`
	Accepted    uint64 `json:"accepted"`
	Fallbacks   uint64 `json:"fallbacks"`
	Overwritten uint64 `json:"overwritten"`
}

func (b *buttonChannel) Stats() ButtonChannelStats {
	return ButtonChannelStats{
		Waiting:     len(b.queue),
		Capacity:    cap(b.queue),
		Accepted:    b.accepted.Load(),
		Fallbacks:   b.fallbacks.Load(),
		Overwritten: b.overwritten.Load(),
	}
}
