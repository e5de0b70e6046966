package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("knobui v%s\n", version)
	fmt.Println("Rotary encoder + push button front-panel daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  knobui [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Turns knob detents and button clicks into panel state changes.")
	fmt.Println("  A single click enters SELECTION (cursor on SOURCE), rotation moves the")
	fmt.Println("  cursor, a second click edits the selected control, a third click leaves")
	fmt.Println("  EDIT. Without clicks, rotation adjusts the volume. SELECTION and EDIT")
	fmt.Println("  are cancelled after the selection timeout.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (flags below override it)")
	fmt.Println()
	fmt.Println("  -input-devices string")
	fmt.Println("        Comma-separated evdev devices for the knob and button")
	fmt.Println()
	fmt.Println("  -input-enabled")
	fmt.Println("        Read evdev input devices (default true)")
	fmt.Println()
	fmt.Println("  -gpio-enabled")
	fmt.Println("        Decode the encoder directly from GPIO pins (default false)")
	fmt.Println()
	fmt.Println("  -gpio-pin-a, -gpio-pin-b, -gpio-pin-button string")
	fmt.Println("        GPIO pin names, e.g. GPIO17")
	fmt.Println()
	fmt.Println("  -tick-hz int")
	fmt.Printf("        UI tick frequency in Hz (default %d)\n", defaultTickHz)
	fmt.Println()
	fmt.Println("  -selection-timeout-ms int")
	fmt.Printf("        Auto-cancel SELECTION/EDIT after this many ms; <=0 disables (default %d)\n", defaultSelectionTimeoutMS)
	fmt.Println()
	fmt.Println("  -rotary-burst int")
	fmt.Printf("        Max rotary steps applied per tick (default %d)\n", defaultRotaryBurst)
	fmt.Println()
	fmt.Println("  -buttons-per-tick int")
	fmt.Printf("        Max button events drained per tick (default %d)\n", defaultButtonsPerTick)
	fmt.Println()
	fmt.Println("  -refresh-deadline-on-rotate")
	fmt.Println("        Moving the cursor re-arms the selection timeout (default false)")
	fmt.Println()
	fmt.Println("  -ui-debug")
	fmt.Println("        Log state-machine detail at info level")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC, empty disables (default \"/tmp/knobui.sock\")")
	fmt.Println()
	fmt.Println("  -ws-enabled")
	fmt.Println("        Serve the WebSocket state feed (default true)")
	fmt.Println()
	fmt.Println("  -ws-port int")
	fmt.Println("        WebSocket HTTP listener port (default 3001)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Kernel rotary-encoder + gpio-keys devices")
	fmt.Println("  knobui -input-devices /dev/input/event1,/dev/input/event2")
	fmt.Println()
	fmt.Println("  # Encoder on header pins")
	fmt.Println("  knobui -input-enabled=false -gpio-enabled -gpio-pin-a GPIO17 -gpio-pin-b GPIO27 -gpio-pin-button GPIO22")
	fmt.Println()
	fmt.Println("  # Bench simulation, driven by knobui-ctl")
	fmt.Println("  knobui -input-enabled=false -ui-debug")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "YAML config file")

		inputDevices = flag.String("input-devices", "", "Comma-separated evdev devices")
		inputEnabled = flag.Bool("input-enabled", true, "Read evdev input devices")

		gpioEnabled   = flag.Bool("gpio-enabled", false, "Decode the encoder from GPIO pins")
		gpioPinA      = flag.String("gpio-pin-a", "", "Encoder A pin")
		gpioPinB      = flag.String("gpio-pin-b", "", "Encoder B pin")
		gpioPinButton = flag.String("gpio-pin-button", "", "Push button pin")

		tickHz             = flag.Int("tick-hz", defaultTickHz, "UI tick frequency in Hz")
		selectionTimeoutMS = flag.Int("selection-timeout-ms", defaultSelectionTimeoutMS, "SELECTION/EDIT auto-cancel in ms (<=0 disables)")
		rotaryBurst        = flag.Int("rotary-burst", defaultRotaryBurst, "Max rotary steps applied per tick")
		buttonsPerTick     = flag.Int("buttons-per-tick", defaultButtonsPerTick, "Max button events drained per tick")
		refreshOnRotate    = flag.Bool("refresh-deadline-on-rotate", false, "Cursor movement re-arms the selection timeout")
		uiDebug            = flag.Bool("ui-debug", false, "Log state-machine detail at info level")

		ipcSocketPath = flag.String("ipc-socket", "/tmp/knobui.sock", "Unix domain socket path for IPC")
		wsEnabled     = flag.Bool("ws-enabled", true, "Serve the WebSocket state feed")
		wsPort        = flag.Int("ws-port", 3001, "WebSocket HTTP listener port")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")

		_ = flag.Bool("version", false, "Print version and exit")
		_ = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given explicitly override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-devices":
			o.InputDevices = inputDevices
		case "input-enabled":
			o.InputEnabled = inputEnabled
		case "gpio-enabled":
			o.GPIOEnabled = gpioEnabled
		case "gpio-pin-a":
			o.GPIOPinA = gpioPinA
		case "gpio-pin-b":
			o.GPIOPinB = gpioPinB
		case "gpio-pin-button":
			o.GPIOPinButton = gpioPinButton
		case "tick-hz":
			o.TickHz = tickHz
		case "selection-timeout-ms":
			o.SelectionTimeoutMS = selectionTimeoutMS
		case "rotary-burst":
			o.RotaryBurst = rotaryBurst
		case "buttons-per-tick":
			o.ButtonsPerTick = buttonsPerTick
		case "refresh-deadline-on-rotate":
			o.RefreshOnRotate = refreshOnRotate
		case "ui-debug":
			o.UIDebug = uiDebug
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "ws-enabled":
			o.WSEnabled = wsEnabled
		case "ws-port":
			o.WSPort = wsPort
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel)

	logger.Debug("starting knobui", "version", version)
	logger.Debug("configuration",
		"input_enabled", cfg.Input.Enabled,
		"input_devices", cfg.Input.Devices,
		"gpio_enabled", cfg.GPIO.Enabled,
		"tick_hz", cfg.UI.TickHz,
		"selection_timeout_ms", cfg.UI.SelectionTimeoutMS,
		"rotary_burst", cfg.UI.RotaryBurst,
		"buttons_per_tick", cfg.UI.ButtonsPerTick,
		"refresh_deadline_on_rotate", cfg.UI.RefreshDeadlineOnRotate,
		"ipc_socket", cfg.IPC.SocketPath,
		"ws_enabled", cfg.WebSocket.Enabled,
		"ws_port", cfg.WebSocket.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("knobui stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

// run wires the pipeline to its producers and observers and blocks until ctx
// is canceled or a component fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	var broadcasts chan StateBroadcast
	if cfg.WebSocket.Enabled {
		broadcasts = make(chan StateBroadcast, cfg.WebSocket.BroadcastBuf)
	}

	display := NewDisplay(cfg.ToDisplayConfig(), broadcasts, logger)
	pipeline := NewPipeline(cfg.ToPipelineConfig(), display, logger)

	clicks := NewClickDetector(cfg.ToClickConfig(), pipeline.ButtonFromInterrupt)
	defer clicks.Stop()

	var router *inputRouter
	if cfg.Input.Enabled {
		rotaryCodes, err := parseEvdevCodes(cfg.Input.RotaryCodes)
		if err != nil {
			return fmt.Errorf("input.rotary_codes: %w", err)
		}
		buttonCodes, err := parseEvdevCodes(cfg.Input.ButtonCodes)
		if err != nil {
			return fmt.Errorf("input.button_codes: %w", err)
		}
		router = newInputRouter(pipeline, clicks, rotaryCodes, buttonCodes, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pipeline.Run(gctx)
		return nil
	})

	if router != nil {
		g.Go(func() error {
			return runInputReader(gctx, cfg.Input.Devices, router, logger)
		})
	}

	if cfg.GPIO.Enabled {
		g.Go(func() error {
			return runGPIOKnob(gctx, cfg.ToGPIOPins(), pipeline, clicks, logger)
		})
	}

	if cfg.IPC.SocketPath != "" {
		g.Go(func() error {
			return runIPCServer(gctx, cfg.IPC.SocketPath, pipeline, logger)
		})
	}

	if cfg.WebSocket.Enabled {
		srv := NewServer(logger, pipeline, ServerConfig{
			Hub: HubConfig{SendBuf: cfg.WebSocket.SendBuf, BroadcastBuf: cfg.WebSocket.BroadcastBuf},
		})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.WebSocket.Path)

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, srv.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, fmt.Sprintf(":%d", cfg.WebSocket.Port), mux, logger)
		})
	}

	logger.Info("listening",
		"input", cfg.Input.Enabled,
		"gpio", cfg.GPIO.Enabled,
		"ipc", cfg.IPC.SocketPath,
		"ws_port", cfg.WebSocket.Port,
		"ws_path", cfg.WebSocket.Path)

	return g.Wait()
}
