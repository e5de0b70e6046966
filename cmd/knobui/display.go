package main

import (
	"log/slog"
	"sync"
	"time"
)

// Panel is the rendering collaborator the state machine drives.
//
// All methods except Lock/Unlock must be called with the lock held.
type Panel interface {
	sync.Locker

	// Highlight marks item as addressed in the given mode (NoControl clears).
	Highlight(item ControlItem, mode ControlState)

	Volume() int
	SetVolume(v int)

	SourceIndex() int
	SetSourceIndex(i int)

	FilterIndex() int
	SetFilterIndex(i int)
}

// clampVolume bounds a volume value to [0, 100].
func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// wrapIndex maps i onto [0, n) modulo n. n <= 0 yields 0.
func wrapIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Display is the in-process display model: the values and highlight the panel
// shows. Every effective change is published as a StateBroadcast.
type Display struct {
	mu sync.Mutex

	volume  int
	source  int
	filter  int
	sources []string
	filters []string

	hlItem  ControlItem
	hlMode  ControlState
	hlValid bool

	out    chan<- StateBroadcast
	logger *slog.Logger
	now    func() time.Time
}

// DisplayConfig holds the initial values and value lists for a Display.
type DisplayConfig struct {
	InitialVolume int
	Sources       []string
	Filters       []string
}

// NewDisplay creates a display model. out may be nil (no observers).
func NewDisplay(cfg DisplayConfig, out chan<- StateBroadcast, logger *slog.Logger) *Display {
	sources := cfg.Sources
	if len(sources) == 0 {
		sources = defaultSources
	}
	filters := cfg.Filters
	if len(filters) == 0 {
		filters = defaultFilters
	}
	return &Display{
		volume:  clampVolume(cfg.InitialVolume),
		sources: append([]string(nil), sources...),
		filters: append([]string(nil), filters...),
		hlItem:  NoControl,
		out:     out,
		logger:  logger,
		now:     time.Now,
	}
}

func (d *Display) Lock()   { d.mu.Lock() }
func (d *Display) Unlock() { d.mu.Unlock() }

// Highlight skips the update when (item, mode) is unchanged.
func (d *Display) Highlight(item ControlItem, mode ControlState) {
	if item == NoControl {
		mode = StateNormal
	}
	if d.hlValid && d.hlItem == item && d.hlMode == mode {
		return
	}
	d.hlItem = item
	d.hlMode = mode
	d.hlValid = true
	d.publish(BroadcastHighlightChanged{Item: item, Mode: mode, At: d.now()})
}

func (d *Display) Volume() int { return d.volume }

func (d *Display) SetVolume(v int) {
	v = clampVolume(v)
	if v == d.volume {
		return
	}
	d.volume = v
	d.publish(BroadcastVolumeChanged{Volume: v, At: d.now()})
}

func (d *Display) SourceIndex() int { return d.source }

// SetSourceIndex wraps i around the source list.
func (d *Display) SetSourceIndex(i int) {
	i = wrapIndex(i, len(d.sources))
	if i == d.source {
		return
	}
	d.source = i
	d.publish(BroadcastSourceChanged{Index: i, Label: d.sources[i], At: d.now()})
}

func (d *Display) FilterIndex() int { return d.filter }

// SetFilterIndex wraps i around the filter list.
func (d *Display) SetFilterIndex(i int) {
	i = wrapIndex(i, len(d.filters))
	if i == d.filter {
		return
	}
	d.filter = i
	d.publish(BroadcastFilterChanged{Index: i, Label: d.filters[i], At: d.now()})
}

func (d *Display) publish(b StateBroadcast) {
	if d.out == nil {
		return
	}
	select {
	case d.out <- b:
	default:
		if d.logger != nil {
			d.logger.Warn("display broadcast queue full, dropping update", "update", b.String())
		}
	}
}

// DisplaySnapshot is a coherent copy of the display values.
type DisplaySnapshot struct {
	Volume        int          `json:"volume"`
	SourceIndex   int          `json:"source_index"`
	Source        string       `json:"source"`
	FilterIndex   int          `json:"filter_index"`
	Filter        string       `json:"filter"`
	Highlight     ControlItem  `json:"-"`
	HighlightMode ControlState `json:"-"`
}

// Snapshot takes the lock itself; do not call it while holding the lock.
func (d *Display) Snapshot() DisplaySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DisplaySnapshot{
		Volume:        d.volume,
		SourceIndex:   d.source,
		Source:        d.sources[d.source],
		FilterIndex:   d.filter,
		Filter:        d.filters[d.filter],
		Highlight:     d.hlItem,
		HighlightMode: d.hlMode,
	}
}
