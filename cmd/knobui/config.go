package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the knobui daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. Layering: DefaultConfig -> file -> flag overrides -> Validate.
type Config struct {
	// Kernel input devices (rotary-encoder / gpio-keys drivers)
	Input InputConfig `yaml:"input"`

	// Encoder wired directly to header pins
	GPIO GPIOConfig `yaml:"gpio"`

	// Tick driver, state machine and display model
	UI UIConfig `yaml:"ui"`

	IPC IPCConfig `yaml:"ipc"`

	// State feed for remote observers
	WebSocket WebSocketConfig `yaml:"websocket"`

	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Devices     []string `yaml:"devices,omitempty"`
	RotaryCodes []string `yaml:"rotary_codes,omitempty"` // e.g. REL_X, REL_DIAL
	ButtonCodes []string `yaml:"button_codes,omitempty"` // e.g. KEY_ENTER, BTN_0

	// Click synthesis, shared with the GPIO button
	DoubleClickMS int `yaml:"double_click_ms"`
	LongPressMS   int `yaml:"long_press_ms"`
}

type GPIOConfig struct {
	Enabled         bool   `yaml:"enabled"`
	PinA            string `yaml:"pin_a"`
	PinB            string `yaml:"pin_b"`
	PinButton       string `yaml:"pin_button,omitempty"`
	StepsPerDetent  int    `yaml:"steps_per_detent"`
	Reverse         bool   `yaml:"reverse,omitempty"`
	ButtonActiveLow bool   `yaml:"button_active_low"`
}

type UIConfig struct {
	TickHz                  int  `yaml:"tick_hz"`
	SelectionTimeoutMS      int  `yaml:"selection_timeout_ms"` // <= 0 disables auto-cancel
	RotaryBurst             int  `yaml:"rotary_burst"`
	ButtonsPerTick          int  `yaml:"buttons_per_tick"`
	ButtonQueueCapacity     int  `yaml:"button_queue_capacity"`
	SendWaitMS              int  `yaml:"send_wait_ms"`
	RefreshDeadlineOnRotate bool `yaml:"refresh_deadline_on_rotate"`
	Debug                   bool `yaml:"debug"`

	// Events forwarded by producers; everything else is dropped at the source.
	ButtonEvents []string `yaml:"button_events,omitempty"`

	InitialVolume int      `yaml:"initial_volume"`
	Sources       []string `yaml:"sources,omitempty"`
	Filters       []string `yaml:"filters,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables IPC
}

type WebSocketConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Port         int    `yaml:"port"`
	Path         string `yaml:"path"`
	SendBuf      int    `yaml:"send_buf,omitempty"`
	BroadcastBuf int    `yaml:"broadcast_buf,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Enabled:       true,
			Devices:       []string{"/dev/input/by-path/platform-rotary@0-event", "/dev/input/by-path/platform-gpio-keys-event"},
			RotaryCodes:   []string{"REL_X", "REL_DIAL"},
			ButtonCodes:   []string{"KEY_ENTER", "KEY_OK", "BTN_0"},
			DoubleClickMS: defaultDoubleClickMS,
			LongPressMS:   defaultLongPressMS,
		},
		GPIO: GPIOConfig{
			Enabled:         false,
			StepsPerDetent:  4,
			ButtonActiveLow: true,
		},
		UI: UIConfig{
			TickHz:              defaultTickHz,
			SelectionTimeoutMS:  defaultSelectionTimeoutMS,
			RotaryBurst:         defaultRotaryBurst,
			ButtonsPerTick:      defaultButtonsPerTick,
			ButtonQueueCapacity: defaultButtonQueueCapacity,
			SendWaitMS:          defaultSendWaitMS,
			ButtonEvents:        []string{ButtonSingleClick.String()},
			InitialVolume:       defaultInitialVolume,
			Sources:             append([]string(nil), defaultSources...),
			Filters:             append([]string(nil), defaultFilters...),
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/knobui.sock",
		},
		WebSocket: WebSocketConfig{
			Enabled:      true,
			Port:         3001,
			Path:         "/ws/state",
			SendBuf:      32,
			BroadcastBuf: defaultBroadcastBuf,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds pointers set only for flags given on the command line.
// main.go decides which flags exist.
type FlagOverrides struct {
	InputDevices *string // comma-separated
	InputEnabled *bool

	GPIOEnabled   *bool
	GPIOPinA      *string
	GPIOPinB      *string
	GPIOPinButton *string

	TickHz             *int
	SelectionTimeoutMS *int
	RotaryBurst        *int
	ButtonsPerTick     *int
	RefreshOnRotate    *bool
	UIDebug            *bool

	IPCSocketPath *string

	WSEnabled *bool
	WSPort    *int

	LogLevel *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored; non-nil
// values are applied even when they are zero values.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.InputDevices != nil {
		cfg.Input.Devices = splitList(*o.InputDevices)
	}
	if o.InputEnabled != nil {
		cfg.Input.Enabled = *o.InputEnabled
	}

	if o.GPIOEnabled != nil {
		cfg.GPIO.Enabled = *o.GPIOEnabled
	}
	if o.GPIOPinA != nil {
		cfg.GPIO.PinA = *o.GPIOPinA
	}
	if o.GPIOPinB != nil {
		cfg.GPIO.PinB = *o.GPIOPinB
	}
	if o.GPIOPinButton != nil {
		cfg.GPIO.PinButton = *o.GPIOPinButton
	}

	if o.TickHz != nil {
		cfg.UI.TickHz = *o.TickHz
	}
	if o.SelectionTimeoutMS != nil {
		cfg.UI.SelectionTimeoutMS = *o.SelectionTimeoutMS
	}
	if o.RotaryBurst != nil {
		cfg.UI.RotaryBurst = *o.RotaryBurst
	}
	if o.ButtonsPerTick != nil {
		cfg.UI.ButtonsPerTick = *o.ButtonsPerTick
	}
	if o.RefreshOnRotate != nil {
		cfg.UI.RefreshDeadlineOnRotate = *o.RefreshOnRotate
	}
	if o.UIDebug != nil {
		cfg.UI.Debug = *o.UIDebug
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.WSEnabled != nil {
		cfg.WebSocket.Enabled = *o.WSEnabled
	}
	if o.WSPort != nil {
		cfg.WebSocket.Port = *o.WSPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Input
	if c.Input.Enabled {
		if len(c.Input.Devices) == 0 {
			return errors.New("input.devices must not be empty when input.enabled is true")
		}
		for i, dev := range c.Input.Devices {
			if dev == "" {
				return fmt.Errorf("input.devices[%d] is empty", i)
			}
		}
		if _, err := parseEvdevCodes(c.Input.RotaryCodes); err != nil {
			return fmt.Errorf("input.rotary_codes: %w", err)
		}
		if _, err := parseEvdevCodes(c.Input.ButtonCodes); err != nil {
			return fmt.Errorf("input.button_codes: %w", err)
		}
	}
	if c.Input.DoubleClickMS < 0 {
		return errors.New("input.double_click_ms must be >= 0")
	}
	if c.Input.LongPressMS < 0 {
		return errors.New("input.long_press_ms must be >= 0")
	}

	// GPIO
	if c.GPIO.Enabled {
		if c.GPIO.PinA == "" || c.GPIO.PinB == "" {
			return errors.New("gpio.pin_a and gpio.pin_b are required when gpio.enabled is true")
		}
		switch c.GPIO.StepsPerDetent {
		case 1, 2, 4:
		default:
			return errors.New("gpio.steps_per_detent must be 1, 2 or 4")
		}
	}

	// UI
	if c.UI.TickHz <= 0 || c.UI.TickHz > 1000 {
		return errors.New("ui.tick_hz must be between 1 and 1000")
	}
	if c.UI.RotaryBurst < 1 {
		return errors.New("ui.rotary_burst must be >= 1")
	}
	if c.UI.ButtonsPerTick < 1 {
		return errors.New("ui.buttons_per_tick must be >= 1")
	}
	if c.UI.ButtonQueueCapacity < 1 {
		return errors.New("ui.button_queue_capacity must be >= 1")
	}
	if c.UI.SendWaitMS < 0 {
		return errors.New("ui.send_wait_ms must be >= 0")
	}
	if c.UI.InitialVolume < 0 || c.UI.InitialVolume > 100 {
		return errors.New("ui.initial_volume must be between 0 and 100")
	}
	if err := validateLabels("ui.sources", c.UI.Sources); err != nil {
		return err
	}
	if err := validateLabels("ui.filters", c.UI.Filters); err != nil {
		return err
	}
	if _, err := c.ButtonFilter(); err != nil {
		return fmt.Errorf("ui.button_events: %w", err)
	}

	// WebSocket
	if c.WebSocket.Enabled {
		if c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535 {
			return errors.New("websocket.port must be between 1 and 65535")
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return errors.New("websocket.path must start with /")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func validateLabels(field string, labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("%s must not be empty", field)
	}
	for i, l := range labels {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("%s[%d] is empty", field, i)
		}
	}
	return nil
}

// ButtonFilter builds the producer filter from ui.button_events.
func (c *Config) ButtonFilter() (ButtonFilter, error) {
	if len(c.UI.ButtonEvents) == 0 {
		return clickOnlyFilter(), nil
	}
	f := make(ButtonFilter, len(c.UI.ButtonEvents))
	for _, name := range c.UI.ButtonEvents {
		ev, err := ParseButtonEvent(name)
		if err != nil {
			return nil, err
		}
		f[ev] = true
	}
	return f, nil
}

// ToPipelineConfig converts the ui section into the tick driver config.
func (c *Config) ToPipelineConfig() PipelineConfig {
	filter, _ := c.ButtonFilter()
	return PipelineConfig{
		TickHz:                  c.UI.TickHz,
		SelectionTimeout:        time.Duration(c.UI.SelectionTimeoutMS) * time.Millisecond,
		RotaryBurst:             c.UI.RotaryBurst,
		ButtonsPerTick:          c.UI.ButtonsPerTick,
		ButtonQueueCapacity:     c.UI.ButtonQueueCapacity,
		SendWait:                time.Duration(c.UI.SendWaitMS) * time.Millisecond,
		RefreshDeadlineOnRotate: c.UI.RefreshDeadlineOnRotate,
		ButtonFilter:            filter,
		Debug:                   c.UI.Debug,
	}
}

// ToDisplayConfig converts the ui section into the display model config.
func (c *Config) ToDisplayConfig() DisplayConfig {
	return DisplayConfig{
		InitialVolume: c.UI.InitialVolume,
		Sources:       c.UI.Sources,
		Filters:       c.UI.Filters,
	}
}

// ToClickConfig converts click timing from the input section.
func (c *Config) ToClickConfig() ClickConfig {
	return ClickConfig{
		DoubleClick: time.Duration(c.Input.DoubleClickMS) * time.Millisecond,
		LongPress:   time.Duration(c.Input.LongPressMS) * time.Millisecond,
	}
}

// ToGPIOPins converts the gpio section.
func (c *Config) ToGPIOPins() GPIOPins {
	return GPIOPins{
		A:         c.GPIO.PinA,
		B:         c.GPIO.PinB,
		Button:    c.GPIO.PinButton,
		PerDetent: c.GPIO.StepsPerDetent,
		Reverse:   c.GPIO.Reverse,
		ActiveLow: c.GPIO.ButtonActiveLow,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
