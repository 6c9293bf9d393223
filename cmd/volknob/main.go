package main

import (
	"context"
	"errors"
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
	fmt.Printf("volknob v%s\n", version)
	fmt.Println("Rotary encoder volume knob daemon for ALSA mixers")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  volknob [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Watches a quadrature rotary encoder and its push-button on GPIO and")
	fmt.Println("  drives an ALSA mixer control through amixer: turning steps the level,")
	fmt.Println("  pressing toggles mute. Local tools can send the same commands over a")
	fmt.Println("  Unix socket (see volknob-ctl).")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -gpio-driver string")
	fmt.Printf("        GPIO backend: %s|%s (default %q)\n", gpioDriverPeriph, gpioDriverSysfs, gpioDriverPeriph)
	fmt.Println()
	fmt.Println("  -pin-a int, -pin-b int")
	fmt.Printf("        Encoder channel pins, BCM numbering (default %d, %d)\n", defaultPinA, defaultPinB)
	fmt.Println()
	fmt.Println("  -pin-button int")
	fmt.Printf("        Push-button pin, -1 disables (default %d)\n", defaultPinButton)
	fmt.Println()
	fmt.Println("  -button-bounce-ms int")
	fmt.Printf("        Minimum interval between button presses in ms (default %d)\n", defaultButtonBounce.Milliseconds())
	fmt.Println()
	fmt.Println("  -control string")
	fmt.Printf("        ALSA simple mixer control (default %q)\n", defaultMixerControl)
	fmt.Println()
	fmt.Println("  -card string")
	fmt.Println("        ALSA card passed to amixer -c (default: amixer's default card)")
	fmt.Println()
	fmt.Println("  -min int, -max int")
	fmt.Printf("        Level clamp in percent (default %d, %d)\n", defaultLevelMin, defaultLevelMax)
	fmt.Println()
	fmt.Println("  -increment int")
	fmt.Printf("        Percent per encoder step (default %d)\n", defaultLevelIncrement)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -status-listen string")
	fmt.Println("        Serve the read-only state websocket on this address (disabled by default)")
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
	fmt.Println("  # Default wiring, Digital control on the default card")
	fmt.Println("  volknob")
	fmt.Println()
	fmt.Println("  # Headphone amp on card 1, button not fitted")
	fmt.Println("  volknob -card 1 -control Headphone -pin-button -1")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Needs access to the GPIO character device or /sys/class/gpio (gpio group or root)")
	fmt.Println("  - A failed amixer command is fatal: the daemon releases the pins and exits 1")
	fmt.Println()
}

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return 0
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return 0
		}
	}

	fs := flag.NewFlagSet("volknob", flag.ContinueOnError)
	fs.Usage = printUsage

	var (
		configPath     = fs.String("config", "", "Path to YAML config file")
		gpioDriver     = fs.String("gpio-driver", gpioDriverPeriph, "GPIO backend: periph|sysfs")
		pinA           = fs.Int("pin-a", defaultPinA, "Encoder channel A pin")
		pinB           = fs.Int("pin-b", defaultPinB, "Encoder channel B pin")
		pinButton      = fs.Int("pin-button", defaultPinButton, "Push-button pin, -1 disables")
		buttonBounceMS = fs.Int("button-bounce-ms", int(defaultButtonBounce.Milliseconds()), "Button debounce window in ms")
		control        = fs.String("control", defaultMixerControl, "ALSA simple mixer control")
		card           = fs.String("card", "", "ALSA card for amixer -c")
		levelMin       = fs.Int("min", defaultLevelMin, "Minimum level in percent")
		levelMax       = fs.Int("max", defaultLevelMax, "Maximum level in percent")
		increment      = fs.Int("increment", defaultLevelIncrement, "Percent per encoder step")
		ipcSocketPath  = fs.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		statusListen   = fs.String("status-listen", "", "Address for the state websocket")
		logLevelStr    = fs.String("log-level", "info", "Log level: error, warn, info, debug")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		fileCfg, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		cfg = fileCfg
	}

	// Only explicitly set flags override the file.
	var o FlagOverrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gpio-driver":
			o.GPIODriver = gpioDriver
		case "pin-a":
			o.PinA = pinA
		case "pin-b":
			o.PinB = pinB
		case "pin-button":
			o.PinButton = pinButton
		case "button-bounce-ms":
			o.ButtonBounceMS = buttonBounceMS
		case "control":
			o.MixerControl = control
		case "card":
			o.MixerCard = card
		case "min":
			o.LevelMin = levelMin
		case "max":
			o.LevelMax = levelMax
		case "increment":
			o.Increment = increment
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "status-listen":
			o.StatusListen = statusListen
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	logger, err := newLogger(os.Stderr, cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	logger.Debug("starting volknob", "version", version)
	logger.Debug("configuration",
		"gpio_driver", cfg.GPIO.Driver,
		"pin_a", cfg.GPIO.PinA,
		"pin_b", cfg.GPIO.PinB,
		"pin_button", cfg.GPIO.PinButton,
		"button_bounce_ms", cfg.GPIO.ButtonBounceMS,
		"control", cfg.Mixer.Control,
		"card", cfg.Mixer.Card,
		"min", cfg.Mixer.Min,
		"max", cfg.Mixer.Max,
		"increment", cfg.Mixer.Increment,
		"ipc_enabled", cfg.IPC.Enabled,
		"ipc_socket", cfg.IPC.SocketPath,
		"status_enabled", cfg.Status.Enabled,
		"status_listen", cfg.Status.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx, cfg, logger); err != nil {
		logger.Error("volknob stopped", "error", err)
		return 1
	}
	logger.Info("shutting down")
	return 0
}

// runDaemon wires the knob, dispatcher and optional surfaces together and
// blocks until ctx is canceled or one of them fails.
func runDaemon(ctx context.Context, cfg Config, logger *slog.Logger) error {
	driver, err := newPinDriver(cfg.GPIO)
	if err != nil {
		return fmt.Errorf("gpio: %w", err)
	}

	volume := NewVolume(NewAmixer(cfg.Mixer, logger), cfg.VolumeConfig(), logger)
	if err := volume.Sync(ctx); err != nil {
		return fmt.Errorf("read initial mixer state: %w", err)
	}
	logger.Info("mixer ready", "control", cfg.Mixer.Control, "level", volume.Level(), "muted", volume.IsMuted())

	queue := NewEventQueue()

	knob := NewKnob(driver, cfg.KnobConfig(), queue, logger)
	if err := knob.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := knob.Close(); err != nil {
			logger.Warn("failed to release pins", "error", err)
		}
	}()

	var broadcasts chan StateBroadcast
	if cfg.Status.Enabled {
		broadcasts = make(chan StateBroadcast, broadcastBuffer)
	}

	dispatcher := NewDispatcher(queue, volume, cfg.RotaryConfig(), broadcasts, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-knob.Errors():
			return fmt.Errorf("gpio watcher: %w", err)
		}
	})

	if cfg.IPC.Enabled {
		g.Go(func() error {
			return runIPCServer(gctx, ExpandPath(cfg.IPC.SocketPath), queue, logger)
		})
	}

	if cfg.Status.Enabled {
		status := NewStatusServer(logger, queue, HubConfig{})
		mux := http.NewServeMux()
		status.Register(mux, cfg.Status.Path)

		g.Go(func() error {
			status.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, status.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.Status.Listen, mux, logger)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
