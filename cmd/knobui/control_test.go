package main

import (
	"testing"
	"time"
)

func newTestController(t *testing.T, p Panel, timeout time.Duration, refreshOnRotate bool) *controller {
	t.Helper()
	return newController(p, func() time.Duration { return timeout }, refreshOnRotate, discardLogger())
}

func TestController_SelectionEditFlow(t *testing.T) {
	p := newFakePanel()
	c := newTestController(t, p, 5*time.Second, false)
	t0 := time.Unix(1000, 0)

	if !c.Click(t0) {
		t.Fatalf("click in normal should transition")
	}
	if c.State() != StateSelection || c.Addressed() != ItemSource {
		t.Fatalf("expected selection on source, got %s on %s", c.State(), c.Addressed())
	}
	if h := p.lastHighlight(t); h != (highlightCall{ItemSource, StateSelection}) {
		t.Fatalf("unexpected highlight %+v", h)
	}

	c.Rotate(1, t0)
	if c.Addressed() != ItemFilter {
		t.Fatalf("expected cursor on filter, got %s", c.Addressed())
	}

	c.Click(t0)
	if c.State() != StateEdit {
		t.Fatalf("expected edit, got %s", c.State())
	}
	if h := p.lastHighlight(t); h != (highlightCall{ItemFilter, StateEdit}) {
		t.Fatalf("unexpected highlight %+v", h)
	}

	c.Rotate(1, t0)
	if p.filter != 1 {
		t.Fatalf("expected filter index 1, got %d", p.filter)
	}

	c.Click(t0)
	if c.State() != StateNormal {
		t.Fatalf("expected normal after confirm, got %s", c.State())
	}
	if h := p.lastHighlight(t); h.item != NoControl {
		t.Fatalf("expected highlight cleared, got %+v", h)
	}
	if !c.Deadline().IsZero() {
		t.Fatalf("expected deadline disarmed in normal")
	}

	p.assertBalanced(t)
}

func TestController_SelectionCursorWraps(t *testing.T) {
	p := newFakePanel()
	c := newTestController(t, p, 5*time.Second, false)
	now := time.Unix(1000, 0)

	c.Click(now) // source
	c.Rotate(-1, now)
	if c.Addressed() != ItemVolume {
		t.Fatalf("expected volume, got %s", c.Addressed())
	}
	c.Rotate(-1, now)
	if c.Addressed() != ItemFilter {
		t.Fatalf("expected wrap to filter, got %s", c.Addressed())
	}
	c.Rotate(1, now)
	if c.Addressed() != ItemVolume {
		t.Fatalf("expected wrap to volume, got %s", c.Addressed())
	}
	p.assertBalanced(t)
}

func TestController_TimeoutCancels(t *testing.T) {
	p := newFakePanel()
	c := newTestController(t, p, 5*time.Second, false)
	t0 := time.Unix(1000, 0)

	c.Click(t0)

	if c.CheckExpiry(t0.Add(4999 * time.Millisecond)) {
		t.Fatalf("expired too early")
	}
	if c.State() != StateSelection {
		t.Fatalf("expected still in selection")
	}

	if !c.CheckExpiry(t0.Add(5 * time.Second)) {
		t.Fatalf("expected expiry at deadline")
	}
	if c.State() != StateNormal {
		t.Fatalf("expected normal after expiry, got %s", c.State())
	}
	if h := p.lastHighlight(t); h.item != NoControl {
		t.Fatalf("expected highlight cleared, got %+v", h)
	}
	p.assertBalanced(t)
}

func TestController_EditTimesOutToo(t *testing.T) {
	p := newFakePanel()
	c := newTestController(t, p, time.Second, false)
	t0 := time.Unix(1000, 0)

	c.Click(t0)
	c.Click(t0.Add(500 * time.Millisecond)) // edit, deadline re-armed

	if c.CheckExpiry(t0.Add(1200 * time.Millisecond)) {
		t.Fatalf("click should have re-armed the deadline")
	}
	if !c.CheckExpiry(t0.Add(1500 * time.Millisecond)) {
		t.Fatalf("expected edit to expire")
	}
	if c.State() != StateNormal {
		t.Fatalf("expected normal, got %s", c.State())
	}
}

func TestController_RotateRefreshPolicy(t *testing.T) {
	t0 := time.Unix(1000, 0)

	t.Run("no refresh", func(t *testing.T) {
		c := newTestController(t, newFakePanel(), 5*time.Second, false)
		c.Click(t0)
		c.Rotate(1, t0.Add(3*time.Second))
		if !c.CheckExpiry(t0.Add(5 * time.Second)) {
			t.Fatalf("rotation must not extend the deadline")
		}
	})

	t.Run("refresh", func(t *testing.T) {
		c := newTestController(t, newFakePanel(), 5*time.Second, true)
		c.Click(t0)
		c.Rotate(1, t0.Add(3*time.Second))
		if c.CheckExpiry(t0.Add(5 * time.Second)) {
			t.Fatalf("rotation should have extended the deadline")
		}
		if !c.CheckExpiry(t0.Add(8 * time.Second)) {
			t.Fatalf("expected expiry 5s after the last rotation")
		}
	})
}

func TestController_ZeroTimeoutDisablesExpiry(t *testing.T) {
	c := newTestController(t, newFakePanel(), 0, false)
	t0 := time.Unix(1000, 0)

	c.Click(t0)
	if !c.Deadline().IsZero() {
		t.Fatalf("expected no deadline with zero timeout")
	}
	if c.CheckExpiry(t0.Add(time.Hour)) {
		t.Fatalf("zero timeout must never expire")
	}
	if c.State() != StateSelection {
		t.Fatalf("expected selection, got %s", c.State())
	}
}

func TestController_NormalRotationNudgesVolume(t *testing.T) {
	p := newFakePanel()
	c := newTestController(t, p, 5*time.Second, false)
	now := time.Unix(1000, 0)

	c.Rotate(1, now)
	c.Rotate(1, now)
	c.Rotate(-1, now)
	if p.volume != 51 {
		t.Fatalf("expected volume 51, got %d", p.volume)
	}
	if c.State() != StateNormal {
		t.Fatalf("rotation must not leave normal")
	}
	if len(p.highlights) != 0 {
		t.Fatalf("normal rotation must not highlight, got %+v", p.highlights)
	}
	p.assertBalanced(t)
}

func TestController_EditVolumeClamps(t *testing.T) {
	p := newFakePanel()
	p.volume = 99
	c := newTestController(t, p, 5*time.Second, false)
	now := time.Unix(1000, 0)

	c.Click(now)      // selection on source
	c.Rotate(-1, now) // volume
	c.Click(now)      // edit volume

	for i := 0; i < 5; i++ {
		c.Rotate(1, now)
	}
	if p.volume != 100 {
		t.Fatalf("expected volume clamped at 100, got %d", p.volume)
	}
	p.assertBalanced(t)
}

func TestController_EditSourceWraps(t *testing.T) {
	p := newFakePanel()
	c := newTestController(t, p, 5*time.Second, false)
	now := time.Unix(1000, 0)

	c.Click(now) // source
	c.Click(now) // edit source
	c.Rotate(-1, now)
	if p.source != len(defaultSources)-1 {
		t.Fatalf("expected source to wrap to %d, got %d", len(defaultSources)-1, p.source)
	}
}

func TestController_CancelInNormalIsNoop(t *testing.T) {
	p := newFakePanel()
	c := newTestController(t, p, 5*time.Second, false)

	c.Cancel("test")
	if c.State() != StateNormal || len(p.highlights) != 0 {
		t.Fatalf("cancel in normal should do nothing")
	}
	if c.CheckExpiry(time.Unix(1000, 0)) {
		t.Fatalf("no expiry in normal")
	}
}

func TestControlItem_Next(t *testing.T) {
	cases := []struct {
		from ControlItem
		step int
		want ControlItem
	}{
		{ItemVolume, 1, ItemSource},
		{ItemFilter, 1, ItemVolume},
		{ItemVolume, -1, ItemFilter},
		{ItemSource, 4, ItemFilter},
		{ItemSource, -4, ItemVolume},
	}
	for _, tc := range cases {
		if got := tc.from.next(tc.step); got != tc.want {
			t.Errorf("%s.next(%d) = %s, want %s", tc.from, tc.step, got, tc.want)
		}
	}
}
