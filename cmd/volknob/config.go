package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	gpioDriverPeriph = "periph"
	gpioDriverSysfs  = "sysfs"
)

// Config is the top-level YAML configuration for the volknob daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config. Values are fixed for the life of the process.
type Config struct {
	// Encoder wiring
	GPIO GPIOConfig `yaml:"gpio"`

	// Mixer control and level policy
	Mixer MixerConfig `yaml:"mixer"`

	// Optional fast-spin scaling
	Rotary RotaryFileConfig `yaml:"rotary"`

	// Local control socket
	IPC IPCConfig `yaml:"ipc"`

	// Read-only state websocket
	Status StatusConfig `yaml:"status"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type GPIOConfig struct {
	Driver         string `yaml:"driver"` // "periph" or "sysfs"
	PinA           int    `yaml:"pin_a"`
	PinB           int    `yaml:"pin_b"`
	PinButton      int    `yaml:"pin_button"`       // -1 disables the button
	ButtonBounceMS int    `yaml:"button_bounce_ms"` // minimum interval between presses
	SysfsBase      int    `yaml:"sysfs_base,omitempty"`
}

type MixerConfig struct {
	Control          string `yaml:"control"`
	Card             string `yaml:"card,omitempty"`
	AmixerPath       string `yaml:"amixer_path"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms"`
	Min              int    `yaml:"min"`
	Max              int    `yaml:"max"`
	Increment        int    `yaml:"increment"`
}

type RotaryFileConfig struct {
	VelocityWindowMS   int `yaml:"velocity_window_ms"`
	VelocityThreshold  int `yaml:"velocity_threshold"` // 0 disables
	VelocityMultiplier int `yaml:"velocity_multiplier"`
}

type IPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
}

type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		GPIO: GPIOConfig{
			Driver:         gpioDriverPeriph,
			PinA:           defaultPinA,
			PinB:           defaultPinB,
			PinButton:      defaultPinButton,
			ButtonBounceMS: int(defaultButtonBounce / time.Millisecond),
		},
		Mixer: MixerConfig{
			Control:          defaultMixerControl,
			AmixerPath:       defaultAmixerPath,
			CommandTimeoutMS: defaultCommandTimeoutMS,
			Min:              defaultLevelMin,
			Max:              defaultLevelMax,
			Increment:        defaultLevelIncrement,
		},
		Rotary: RotaryFileConfig{
			VelocityWindowMS:   defaultRotaryVelocityWindowMS,
			VelocityThreshold:  defaultRotaryVelocityThreshold,
			VelocityMultiplier: defaultRotaryVelocityMultiplier,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: defaultIPCSocketPath,
		},
		Status: StatusConfig{
			Enabled: false,
			Listen:  defaultStatusListen,
			Path:    defaultStatusPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
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
		if errors.Is(err, io.EOF) {
			// Empty file: defaults only.
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from explicitly set command-line flags.
// A nil pointer means the flag was not given.
type FlagOverrides struct {
	GPIODriver     *string
	PinA           *int
	PinB           *int
	PinButton      *int
	ButtonBounceMS *int

	MixerControl *string
	MixerCard    *string
	LevelMin     *int
	LevelMax     *int
	Increment    *int

	IPCSocketPath *string
	StatusListen  *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a “zero value”).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.GPIODriver != nil {
		cfg.GPIO.Driver = *o.GPIODriver
	}
	if o.PinA != nil {
		cfg.GPIO.PinA = *o.PinA
	}
	if o.PinB != nil {
		cfg.GPIO.PinB = *o.PinB
	}
	if o.PinButton != nil {
		cfg.GPIO.PinButton = *o.PinButton
	}
	if o.ButtonBounceMS != nil {
		cfg.GPIO.ButtonBounceMS = *o.ButtonBounceMS
	}

	if o.MixerControl != nil {
		cfg.Mixer.Control = *o.MixerControl
	}
	if o.MixerCard != nil {
		cfg.Mixer.Card = *o.MixerCard
	}
	if o.LevelMin != nil {
		cfg.Mixer.Min = *o.LevelMin
	}
	if o.LevelMax != nil {
		cfg.Mixer.Max = *o.LevelMax
	}
	if o.Increment != nil {
		cfg.Mixer.Increment = *o.Increment
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StatusListen != nil {
		// Giving a listen address is a request for the feed.
		cfg.Status.Listen = *o.StatusListen
		cfg.Status.Enabled = true
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// GPIO
	if c.GPIO.Driver != gpioDriverPeriph && c.GPIO.Driver != gpioDriverSysfs {
		return fmt.Errorf("gpio.driver must be %q or %q", gpioDriverPeriph, gpioDriverSysfs)
	}
	if c.GPIO.PinA < 0 || c.GPIO.PinB < 0 {
		return errors.New("gpio.pin_a and gpio.pin_b must be >= 0")
	}
	if c.GPIO.PinA == c.GPIO.PinB {
		return errors.New("gpio.pin_a and gpio.pin_b must differ")
	}
	if c.GPIO.PinButton < pinDisabled {
		return errors.New("gpio.pin_button must be >= 0, or -1 to disable the button")
	}
	if c.GPIO.PinButton != pinDisabled && (c.GPIO.PinButton == c.GPIO.PinA || c.GPIO.PinButton == c.GPIO.PinB) {
		return errors.New("gpio.pin_button must differ from gpio.pin_a and gpio.pin_b")
	}
	if c.GPIO.ButtonBounceMS < 0 {
		return errors.New("gpio.button_bounce_ms must be >= 0")
	}
	if c.GPIO.SysfsBase < 0 {
		return errors.New("gpio.sysfs_base must be >= 0")
	}

	// Mixer
	if c.Mixer.Control == "" {
		return errors.New("mixer.control must not be empty")
	}
	if c.Mixer.AmixerPath == "" {
		return errors.New("mixer.amixer_path must not be empty")
	}
	if c.Mixer.CommandTimeoutMS < 0 {
		return errors.New("mixer.command_timeout_ms must be >= 0")
	}
	if c.Mixer.Min < levelFloor || c.Mixer.Max > levelCeiling {
		return fmt.Errorf("mixer.min and mixer.max must be within %d..%d", levelFloor, levelCeiling)
	}
	if c.Mixer.Min > c.Mixer.Max {
		return errors.New("mixer.min must be <= mixer.max")
	}
	if c.Mixer.Increment <= 0 {
		return errors.New("mixer.increment must be > 0")
	}

	// Rotary
	if c.Rotary.VelocityWindowMS < 0 {
		return errors.New("rotary.velocity_window_ms must be >= 0")
	}
	if c.Rotary.VelocityThreshold < 0 {
		return errors.New("rotary.velocity_threshold must be >= 0")
	}
	if c.Rotary.VelocityMultiplier < 1 {
		return errors.New("rotary.velocity_multiplier must be >= 1")
	}

	// IPC
	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return errors.New("ipc.enabled is true but ipc.socket_path is empty")
	}

	// Status feed
	if c.Status.Enabled {
		if c.Status.Listen == "" {
			return errors.New("status.enabled is true but status.listen is empty")
		}
		if c.Status.Path == "" || c.Status.Path[0] != '/' {
			return errors.New("status.path must start with /")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// KnobConfig converts the GPIO section into the encoder wiring.
func (c *Config) KnobConfig() KnobConfig {
	return KnobConfig{
		PinA:         c.GPIO.PinA,
		PinB:         c.GPIO.PinB,
		PinButton:    c.GPIO.PinButton,
		ButtonBounce: time.Duration(c.GPIO.ButtonBounceMS) * time.Millisecond,
	}
}

// VolumeConfig converts the mixer section into the level policy.
func (c *Config) VolumeConfig() VolumeConfig {
	return VolumeConfig{
		Min:       c.Mixer.Min,
		Max:       c.Mixer.Max,
		Increment: c.Mixer.Increment,
	}
}

// RotaryConfig converts the rotary section into the velocity policy.
func (c *Config) RotaryConfig() RotaryConfig {
	return RotaryConfig{
		VelocityWindow:     time.Duration(c.Rotary.VelocityWindowMS) * time.Millisecond,
		VelocityThreshold:  c.Rotary.VelocityThreshold,
		VelocityMultiplier: c.Rotary.VelocityMultiplier,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
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
