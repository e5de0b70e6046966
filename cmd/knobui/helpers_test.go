package main

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

type highlightCall struct {
	item ControlItem
	mode ControlState
}

// fakePanel records calls and checks that every value access happens with the
// lock held.
type fakePanel struct {
	mu sync.Mutex // guards the fields below; not the Panel lock

	locked     bool
	locks      int
	unlocks    int
	violations []string

	highlights []highlightCall
	volume     int
	source     int
	filter     int
}

func newFakePanel() *fakePanel {
	return &fakePanel{volume: 50}
}

func (p *fakePanel) Lock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked {
		p.violations = append(p.violations, "nested Lock")
	}
	p.locked = true
	p.locks++
}

func (p *fakePanel) Unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.locked {
		p.violations = append(p.violations, "Unlock without Lock")
	}
	p.locked = false
	p.unlocks++
}

func (p *fakePanel) checkLocked(op string) {
	if !p.locked {
		p.violations = append(p.violations, op+" without lock")
	}
}

func (p *fakePanel) Highlight(item ControlItem, mode ControlState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkLocked("Highlight")
	p.highlights = append(p.highlights, highlightCall{item, mode})
}

func (p *fakePanel) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkLocked("Volume")
	return p.volume
}

func (p *fakePanel) SetVolume(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkLocked("SetVolume")
	p.volume = v
}

func (p *fakePanel) SourceIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkLocked("SourceIndex")
	return p.source
}

func (p *fakePanel) SetSourceIndex(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkLocked("SetSourceIndex")
	p.source = wrapIndex(i, len(defaultSources))
}

func (p *fakePanel) FilterIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkLocked("FilterIndex")
	return p.filter
}

func (p *fakePanel) SetFilterIndex(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkLocked("SetFilterIndex")
	p.filter = wrapIndex(i, len(defaultFilters))
}

func (p *fakePanel) lastHighlight(t *testing.T) highlightCall {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.highlights) == 0 {
		t.Fatalf("no highlight calls recorded")
	}
	return p.highlights[len(p.highlights)-1]
}

// assertBalanced fails if the lock is held or was misused.
func (p *fakePanel) assertBalanced(t *testing.T) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked {
		t.Errorf("panel lock still held")
	}
	if p.locks != p.unlocks {
		t.Errorf("lock/unlock mismatch: %d locks, %d unlocks", p.locks, p.unlocks)
	}
	for _, v := range p.violations {
		t.Errorf("lock discipline violation: %s", v)
	}
}
