package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	cfg, err := parseConfig([]byte(`
ui:
  selection_timeout_ms: 2500
  refresh_deadline_on_rotate: true
  sources: [AUTO, USB]
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.UI.SelectionTimeoutMS != 2500 || !cfg.UI.RefreshDeadlineOnRotate {
		t.Fatalf("ui section not applied: %+v", cfg.UI)
	}
	if got := strings.Join(cfg.UI.Sources, ","); got != "AUTO,USB" {
		t.Fatalf("sources: got %s", got)
	}
	// Untouched keys keep their defaults.
	if cfg.UI.TickHz != defaultTickHz || cfg.WebSocket.Port != 3001 {
		t.Fatalf("defaults lost: tick=%d port=%d", cfg.UI.TickHz, cfg.WebSocket.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	pc := cfg.ToPipelineConfig()
	if pc.SelectionTimeout != 2500*time.Millisecond || !pc.RefreshDeadlineOnRotate {
		t.Fatalf("pipeline config: %+v", pc)
	}
}

func TestParseConfig_RejectsUnknownField(t *testing.T) {
	if _, err := parseConfig([]byte("ui:\n  tick_hertz: 10\n")); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestParseConfig_RejectsTrailingDocument(t *testing.T) {
	if _, err := parseConfig([]byte("ui:\n  tick_hz: 10\n---\n{}\n")); err == nil {
		t.Fatalf("expected error for trailing document")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knobui.yaml")
	if err := os.WriteFile(path, []byte("gpio:\n  enabled: true\n  pin_a: GPIO17\n  pin_b: GPIO27\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	pins := cfg.ToGPIOPins()
	if pins.A != "GPIO17" || pins.B != "GPIO27" || pins.PerDetent != 4 || !pins.ActiveLow {
		t.Fatalf("unexpected pins %+v", pins)
	}

	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	devices := " /dev/input/event3 , ,/dev/input/event4"
	timeout := 0
	wsOff := false
	level := "warn"

	FlagOverrides{
		InputDevices:       &devices,
		SelectionTimeoutMS: &timeout,
		WSEnabled:          &wsOff,
		LogLevel:           &level,
	}.Apply(&cfg)

	if got := strings.Join(cfg.Input.Devices, "|"); got != "/dev/input/event3|/dev/input/event4" {
		t.Fatalf("devices: got %q", got)
	}
	// Zero values given explicitly still apply.
	if cfg.UI.SelectionTimeoutMS != 0 {
		t.Fatalf("expected timeout override to 0, got %d", cfg.UI.SelectionTimeoutMS)
	}
	if cfg.WebSocket.Enabled {
		t.Fatalf("expected websocket disabled")
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level: got %s", cfg.Logging.Level)
	}
	if cfg.UI.TickHz != defaultTickHz {
		t.Fatalf("unset override changed tick rate")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no devices", func(c *Config) { c.Input.Devices = nil }, "input.devices"},
		{"bad rotary code", func(c *Config) { c.Input.RotaryCodes = []string{"REL_BOGUS"} }, "input.rotary_codes"},
		{"gpio pins", func(c *Config) { c.GPIO.Enabled = true }, "gpio.pin_a"},
		{"gpio steps", func(c *Config) {
			c.GPIO.Enabled, c.GPIO.PinA, c.GPIO.PinB, c.GPIO.StepsPerDetent = true, "A", "B", 3
		}, "steps_per_detent"},
		{"tick", func(c *Config) { c.UI.TickHz = 0 }, "ui.tick_hz"},
		{"burst", func(c *Config) { c.UI.RotaryBurst = 0 }, "ui.rotary_burst"},
		{"volume", func(c *Config) { c.UI.InitialVolume = 101 }, "ui.initial_volume"},
		{"empty sources", func(c *Config) { c.UI.Sources = nil }, "ui.sources"},
		{"blank filter", func(c *Config) { c.UI.Filters = []string{"LIN", " "} }, "ui.filters[1]"},
		{"button events", func(c *Config) { c.UI.ButtonEvents = []string{"triple_tap"} }, "ui.button_events"},
		{"ws path", func(c *Config) { c.WebSocket.Path = "ws" }, "websocket.path"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("got %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}

func TestConfig_ButtonFilter(t *testing.T) {
	cfg := DefaultConfig()
	f, err := cfg.ButtonFilter()
	if err != nil {
		t.Fatal(err)
	}
	if !f.Allows(ButtonSingleClick) || f.Allows(ButtonDoubleClick) {
		t.Fatalf("default filter should pass single clicks only")
	}

	cfg.UI.ButtonEvents = []string{"single_click", "long_press_up"}
	f, err = cfg.ButtonFilter()
	if err != nil {
		t.Fatal(err)
	}
	if !f.Allows(ButtonLongPressUp) || f.Allows(ButtonPressDown) {
		t.Fatalf("unexpected filter %v", f)
	}

	cfg.UI.ButtonEvents = nil
	if f, _ := cfg.ButtonFilter(); !f.Allows(ButtonSingleClick) || f.Allows(ButtonPressUp) {
		t.Fatalf("empty list should fall back to clicks only")
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"error": LogLevelError, " WARN ": LogLevelWarn, "warning": LogLevelWarn,
		"info": LogLevelInfo, "Debug": LogLevelDebug,
	} {
		got, err := parseLogLevel(in)
		if err != nil || got != want {
			t.Fatalf("parseLogLevel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := parseLogLevel("trace"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandPath("~/knobui.yaml"); got != filepath.Join(home, "knobui.yaml") {
		t.Fatalf("got %s", got)
	}
	if got := ExpandPath("/etc/knobui.yaml"); got != "/etc/knobui.yaml" {
		t.Fatalf("got %s", got)
	}
}
