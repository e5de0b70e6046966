package main

import "sync"

// rotaryAccumulator coalesces encoder detents into a signed delta.
//
// Producers (evdev reader, GPIO edge goroutine, IPC) call OnPulse concurrently.
// Only the tick goroutine calls DrainBurst. The mutex is held for a handful of
// instructions on either side, the closest Go analogue of an ISR spinlock.
type rotaryAccumulator struct {
	mu      sync.Mutex
	delta   int64
	pending bool
}

// RotaryBurst is the result of one DrainBurst call.
type RotaryBurst struct {
	Step    int  // -1 or +1 (0 when nothing was drained)
	Count   int  // number of unit steps to apply this tick
	Pending bool // true if delta remains in the accumulator
}

func newRotaryAccumulator() *rotaryAccumulator {
	return &rotaryAccumulator{}
}

// OnPulse records one encoder detent. Only the sign of direction matters.
func (r *rotaryAccumulator) OnPulse(direction int) {
	var d int64
	switch {
	case direction > 0:
		d = 1
	case direction < 0:
		d = -1
	default:
		return
	}

	r.mu.Lock()
	r.delta += d
	r.pending = true
	r.mu.Unlock()
}

// HasPending reports whether pulses arrived since the last full drain.
// A left/right pair that cancelled out still reads as pending until drained.
func (r *rotaryAccumulator) HasPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Outstanding returns the net delta not yet drained.
func (r *rotaryAccumulator) Outstanding() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delta
}

// DrainBurst takes at most maxSteps unit steps off the accumulator.
//
// The snapshot and reset happen in one critical section; the unconsumed
// remainder goes back in a second one, so pulses that land in between are
// simply added on top and nothing is lost.
func (r *rotaryAccumulator) DrainBurst(maxSteps int) RotaryBurst {
	if maxSteps < 1 {
		maxSteps = 1
	}

	r.mu.Lock()
	if !r.pending {
		r.mu.Unlock()
		return RotaryBurst{}
	}
	total := r.delta
	r.delta = 0
	r.mu.Unlock()

	if total == 0 {
		r.mu.Lock()
		r.pending = r.delta != 0
		pending := r.pending
		r.mu.Unlock()
		return RotaryBurst{Pending: pending}
	}

	step := int64(1)
	magnitude := total
	if total < 0 {
		step = -1
		magnitude = -total
	}

	count := int64(maxSteps)
	if magnitude < count {
		count = magnitude
	}
	remaining := total - count*step

	r.mu.Lock()
	r.delta += remaining
	r.pending = r.delta != 0
	pending := r.pending
	r.mu.Unlock()

	return RotaryBurst{
		Step:    int(step),
		Count:   int(count),
		Pending: pending,
	}
}
