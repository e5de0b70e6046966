package main

import (
	"testing"
	"time"
)

func TestButtonChannel_FIFO(t *testing.T) {
	b := newButtonChannel(4, discardLogger())

	in := []ButtonEvent{ButtonSingleClick, ButtonDoubleClick, ButtonPressDown}
	for _, ev := range in {
		if !b.TrySend(ev) {
			t.Fatalf("TrySend(%s) failed on non-full queue", ev)
		}
	}

	for i, want := range in {
		got, ok := b.TryReceive()
		if !ok || got != want {
			t.Fatalf("receive %d: got (%s, %v), want %s", i, got, ok, want)
		}
	}

	if _, ok := b.TryReceive(); ok {
		t.Fatalf("expected empty channel")
	}
}

func TestButtonChannel_TrySendFull(t *testing.T) {
	b := newButtonChannel(2, discardLogger())
	b.TrySend(ButtonSingleClick)
	b.TrySend(ButtonSingleClick)

	if b.TrySend(ButtonSingleClick) {
		t.Fatalf("TrySend on full queue should fail")
	}
	if b.Len() != 2 || b.Cap() != 2 {
		t.Fatalf("expected len=2 cap=2, got len=%d cap=%d", b.Len(), b.Cap())
	}
}

func TestButtonChannel_SendWaitTimesOut(t *testing.T) {
	b := newButtonChannel(1, discardLogger())
	b.TrySend(ButtonSingleClick)

	start := time.Now()
	if b.SendWait(ButtonSingleClick, 20*time.Millisecond) {
		t.Fatalf("SendWait on full queue with no consumer should fail")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("SendWait returned too early: %v", elapsed)
	}
}

func TestButtonChannel_SendWaitSucceedsWhenSpaceFrees(t *testing.T) {
	b := newButtonChannel(1, discardLogger())
	b.TrySend(ButtonPressDown)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.TryReceive()
	}()

	if !b.SendWait(ButtonSingleClick, time.Second) {
		t.Fatalf("SendWait should succeed once the consumer frees a slot")
	}
	got, ok := b.TryReceive()
	if !ok || got != ButtonSingleClick {
		t.Fatalf("expected single_click, got (%s, %v)", got, ok)
	}
}

func TestButtonChannel_FallbackSlot(t *testing.T) {
	b := newButtonChannel(1, discardLogger())

	b.OfferNonBlocking(ButtonPressDown)   // queued
	b.OfferNonBlocking(ButtonPressUp)     // fallback
	b.OfferNonBlocking(ButtonSingleClick) // overwrites fallback

	st := b.Stats()
	if st.Accepted != 1 || st.Fallbacks != 2 || st.Overwritten != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	// Queue drains first, then the fallback slot.
	got, ok := b.TryReceive()
	if !ok || got != ButtonPressDown {
		t.Fatalf("expected press_down from queue, got (%s, %v)", got, ok)
	}
	got, ok = b.TryReceive()
	if !ok || got != ButtonSingleClick {
		t.Fatalf("expected single_click from fallback, got (%s, %v)", got, ok)
	}
	if _, ok := b.TryReceive(); ok {
		t.Fatalf("fallback slot should be consumed once")
	}
}

func TestButtonChannel_OfferWaitUsesFallbackAfterTimeout(t *testing.T) {
	b := newButtonChannel(1, discardLogger())
	b.TrySend(ButtonPressDown)

	b.OfferWait(ButtonSingleClick, 5*time.Millisecond)

	if st := b.Stats(); st.Fallbacks != 1 {
		t.Fatalf("expected 1 fallback, got %+v", st)
	}
}

func TestButtonEvent_ParseAndString(t *testing.T) {
	for i := range buttonEventNames {
		ev := ButtonEvent(i)
		got, err := ParseButtonEvent(ev.String())
		if err != nil || got != ev {
			t.Fatalf("ParseButtonEvent(%q) = (%v, %v)", ev.String(), got, err)
		}
	}

	if _, err := ParseButtonEvent("triple_click"); err == nil {
		t.Fatalf("expected error for unknown event")
	}
	if s := ButtonEvent(99).String(); s != "button_event(99)" {
		t.Fatalf("unexpected String for unknown event: %q", s)
	}
}

func TestButtonFilter(t *testing.T) {
	var all ButtonFilter
	if !all.Allows(ButtonLongPressHold) {
		t.Fatalf("nil filter should allow everything")
	}

	f := clickOnlyFilter()
	if !f.Allows(ButtonSingleClick) {
		t.Fatalf("click filter should allow single_click")
	}
	if f.Allows(ButtonDoubleClick) || f.Allows(ButtonPressDown) {
		t.Fatalf("click filter should reject other events")
	}
}
