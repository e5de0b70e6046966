package main

import (
	"encoding/binary"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu      sync.Mutex
	pulses  []int
	buttons []ButtonEvent
}

func (s *fakeSink) RotaryPulse(direction int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulses = append(s.pulses, direction)
}

func (s *fakeSink) ButtonFromInterrupt(ev ButtonEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons = append(s.buttons, ev)
}

func newTestRouter(t *testing.T, sink *fakeSink) *inputRouter {
	t.Helper()
	rotary, err := parseEvdevCodes([]string{"REL_X", "rel_dial"})
	if err != nil {
		t.Fatalf("parse rotary codes: %v", err)
	}
	buttons, err := parseEvdevCodes([]string{"KEY_ENTER"})
	if err != nil {
		t.Fatalf("parse button codes: %v", err)
	}
	clicks := NewClickDetector(ClickConfig{}, sink.ButtonFromInterrupt)
	clicks.schedule = nil
	return newInputRouter(sink, clicks, rotary, buttons, discardLogger())
}

func TestInputRouter_RelativeEventsBecomePulses(t *testing.T) {
	sink := &fakeSink{}
	r := newTestRouter(t, sink)

	r.handle(inputEvent{Type: EV_REL, Code: REL_X, Value: 1})
	r.handle(inputEvent{Type: EV_REL, Code: REL_DIAL, Value: -2})
	r.handle(inputEvent{Type: EV_REL, Code: REL_WHEEL, Value: 5}) // not configured
	r.handle(inputEvent{Type: EV_SYN})

	want := []int{1, -1, -1}
	if len(sink.pulses) != len(want) {
		t.Fatalf("got pulses %v, want %v", sink.pulses, want)
	}
	for i := range want {
		if sink.pulses[i] != want[i] {
			t.Fatalf("got pulses %v, want %v", sink.pulses, want)
		}
	}
}

func TestInputRouter_KeyEdgesBecomeClicks(t *testing.T) {
	sink := &fakeSink{}
	r := newTestRouter(t, sink)

	r.handle(inputEvent{Sec: 1000, Type: EV_KEY, Code: KEY_ENTER, Value: evValuePress})
	r.handle(inputEvent{Sec: 1000, Usec: 500, Type: EV_KEY, Code: KEY_ENTER, Value: evValueRepeat})
	r.handle(inputEvent{Sec: 1000, Usec: 90000, Type: EV_KEY, Code: KEY_ENTER, Value: evValueRelease})
	r.handle(inputEvent{Type: EV_KEY, Code: KEY_OK, Value: evValuePress}) // not configured

	var sawClick bool
	for _, ev := range sink.buttons {
		if ev == ButtonSingleClick {
			sawClick = true
		}
	}
	if !sawClick {
		t.Fatalf("expected a single click, got %v", sink.buttons)
	}
}

func TestParseEvdevCodes_Unknown(t *testing.T) {
	if _, err := parseEvdevCodes([]string{"REL_NOPE"}); err == nil {
		t.Fatalf("expected error for unknown code")
	}
}

func TestInputEvent_Time(t *testing.T) {
	if !(inputEvent{}).Time().IsZero() {
		t.Fatalf("unset timestamp should be zero")
	}
	got := inputEvent{Sec: 10, Usec: 250000}.Time()
	if !got.Equal(time.Unix(10, 250*int64(time.Millisecond))) {
		t.Fatalf("unexpected time %v", got)
	}
}

// encodeInputEvent builds the native input_event layout the kernel writes.
func encodeInputEvent(sec, usec int64, typ, code uint16, value int32) []byte {
	order := binary.NativeEndian
	w := strconv.IntSize / 8
	b := make([]byte, 2*w+8)
	if w == 8 {
		order.PutUint64(b[0:8], uint64(sec))
		order.PutUint64(b[8:16], uint64(usec))
	} else {
		order.PutUint32(b[0:4], uint32(sec))
		order.PutUint32(b[4:8], uint32(usec))
	}
	order.PutUint16(b[2*w:], typ)
	order.PutUint16(b[2*w+2:], code)
	order.PutUint32(b[2*w+4:], uint32(value))
	return b
}

func TestDecodeInputEvent_FollowsWordSize(t *testing.T) {
	want := 24
	if strconv.IntSize == 32 {
		want = 16
	}
	if inputEventSize != want {
		t.Fatalf("input_event size: got %d, want %d", inputEventSize, want)
	}

	b := encodeInputEvent(1700000000, 123456, EV_REL, REL_DIAL, -2)
	ev, ok := decodeInputEvent(b)
	if !ok {
		t.Fatalf("decode failed")
	}
	if ev.Sec != 1700000000 || ev.Usec != 123456 || ev.Type != EV_REL || ev.Code != REL_DIAL || ev.Value != -2 {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, ok := decodeInputEvent(b[:len(b)-1]); ok {
		t.Fatalf("short buffer should not decode")
	}
}
