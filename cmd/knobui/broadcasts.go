package main

import (
	"fmt"
	"time"
)

// StateBroadcast is a display change published to external observers
// (WebSocket clients). Broadcasts describe what changed, never how.
type StateBroadcast interface {
	broadcastMarker()
	String() string
}

// BroadcastVolumeChanged reports a new volume (0-100).
type BroadcastVolumeChanged struct {
	Volume int
	At     time.Time
}

func (BroadcastVolumeChanged) broadcastMarker() {}
func (b BroadcastVolumeChanged) String() string {
	return fmt.Sprintf("BroadcastVolumeChanged(volume=%d)", b.Volume)
}

// BroadcastSourceChanged reports a new source selection.
type BroadcastSourceChanged struct {
	Index int
	Label string
	At    time.Time
}

func (BroadcastSourceChanged) broadcastMarker() {}
func (b BroadcastSourceChanged) String() string {
	return fmt.Sprintf("BroadcastSourceChanged(index=%d, label=%s)", b.Index, b.Label)
}

// BroadcastFilterChanged reports a new filter selection.
type BroadcastFilterChanged struct {
	Index int
	Label string
	At    time.Time
}

func (BroadcastFilterChanged) broadcastMarker() {}
func (b BroadcastFilterChanged) String() string {
	return fmt.Sprintf("BroadcastFilterChanged(index=%d, label=%s)", b.Index, b.Label)
}

// BroadcastHighlightChanged reports the highlighted control and its mode.
// Item is NoControl when the highlight is cleared.
type BroadcastHighlightChanged struct {
	Item ControlItem
	Mode ControlState
	At   time.Time
}

func (BroadcastHighlightChanged) broadcastMarker() {}
func (b BroadcastHighlightChanged) String() string {
	return fmt.Sprintf("BroadcastHighlightChanged(item=%s, mode=%s)", b.Item, b.Mode)
}
