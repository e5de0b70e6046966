package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02

	KEY_ENTER  = 28
	KEY_SELECT = 0x161
	KEY_OK     = 0x160
	BTN_0      = 0x100
	BTN_LEFT   = 0x110

	// Rotary encoder relative axis codes (rotary-encoder driver emits REL_X or REL_DIAL)
	REL_X     = 0x00
	REL_DIAL  = 0x07
	REL_WHEEL = 0x08
	REL_MISC  = 0x09
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Pipeline defaults
const (
	defaultTickHz              = 50   // UI tick frequency (Hz), 20 ms period
	defaultSelectionTimeoutMS  = 5000 // Auto-cancel SELECTION/EDIT after this long without a click
	defaultRotaryBurst         = 3    // Max rotary unit steps applied per tick
	defaultButtonsPerTick      = 2    // Max button events drained per tick
	defaultButtonQueueCapacity = 64   // Button FIFO capacity
	defaultSendWaitMS          = 2    // Task-context bounded retry before the lossy fallback
	defaultInitialVolume       = 100  // Percent

	// Click synthesis (evdev/GPIO only report press/release)
	defaultDoubleClickMS = 300
	defaultLongPressMS   = 1000

	// Display state broadcast queue
	defaultBroadcastBuf = 128
)

// Value lists shown by the SOURCE and FILTER controls.
var (
	defaultSources = []string{"AUTO", "USB", "COAX", "OPTIC"}
	defaultFilters = []string{"LIN", "MIX", "MIN", "SLO"}
)
