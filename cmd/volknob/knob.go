package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// KnobConfig selects the encoder's pins.
type KnobConfig struct {
	PinA         int
	PinB         int
	PinButton    int // pinDisabled for no button
	ButtonBounce time.Duration
}

// Knob owns the encoder's GPIO registrations. Open claims the pins and starts
// one watcher goroutine per pin; Close stops the watchers and releases every
// pin. Callers must defer Close right after a successful Open so the pins are
// released on every exit path.
type Knob struct {
	driver    PinDriver
	cfg       KnobConfig
	decoder   *Decoder
	debouncer *Debouncer
	queue     *EventQueue
	logger    *slog.Logger

	pins   []InputPin
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errc   chan error

	closeOnce sync.Once
	closeErr  error
}

// NewKnob wires a decoder and debouncer to queue. Nothing is opened yet.
func NewKnob(driver PinDriver, cfg KnobConfig, queue *EventQueue, logger *slog.Logger) *Knob {
	return &Knob{
		driver:    driver,
		cfg:       cfg,
		decoder:   NewDecoder(),
		debouncer: NewDebouncer(cfg.ButtonBounce),
		queue:     queue,
		logger:    logger,
		errc:      make(chan error, 3),
	}
}

// Open configures the pins and starts watching them. If any pin fails to
// open, the pins opened so far are released before returning.
func (k *Knob) Open(ctx context.Context) error {
	type watch struct {
		number  int
		edge    Edge
		onLevel func(Level, time.Time)
	}
	watches := []watch{
		{k.cfg.PinA, BothEdges, func(l Level, _ time.Time) { k.onRotary(PinA, l) }},
		{k.cfg.PinB, BothEdges, func(l Level, _ time.Time) { k.onRotary(PinB, l) }},
	}
	if k.cfg.PinButton != pinDisabled {
		watches = append(watches, watch{k.cfg.PinButton, FallingEdge, k.onButton})
	}

	opened := make([]InputPin, 0, len(watches))
	for _, w := range watches {
		p, err := k.driver.Open(w.number, w.edge)
		if err != nil {
			for _, o := range opened {
				if cerr := o.Close(); cerr != nil {
					k.logger.Warn("failed to release pin", "pin", o.String(), "error", cerr)
				}
			}
			return fmt.Errorf("open pin %d: %w", w.number, err)
		}
		opened = append(opened, p)
	}
	k.pins = opened

	ctx, k.cancel = context.WithCancel(ctx)
	for i, w := range watches {
		pin, onLevel := opened[i], w.onLevel
		k.wg.Add(1)
		go func() {
			defer k.wg.Done()
			if err := watchPin(ctx, pin, onLevel); err != nil {
				k.errc <- err
			}
		}()
	}

	k.logger.Info("watching encoder",
		"driver", k.driver.Name(),
		"pin_a", k.cfg.PinA,
		"pin_b", k.cfg.PinB,
		"pin_button", k.cfg.PinButton)
	return nil
}

// Errors delivers watcher failures (a pin that can no longer be read).
func (k *Knob) Errors() <-chan error { return k.errc }

// Close stops the watchers and releases the pins. Release is best-effort:
// every pin is attempted and the errors are joined. Safe to call repeatedly.
func (k *Knob) Close() error {
	k.closeOnce.Do(func() {
		if k.cancel != nil {
			k.cancel()
		}
		for _, p := range k.pins {
			if err := p.Halt(); err != nil {
				k.logger.Warn("failed to halt pin", "pin", p.String(), "error", err)
			}
		}
		k.wg.Wait()

		var errs []error
		for _, p := range k.pins {
			if err := p.Close(); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", p, err))
			}
		}
		k.pins = nil
		k.closeErr = errors.Join(errs...)
	})
	return k.closeErr
}

// onRotary runs on a pin watcher goroutine.
func (k *Knob) onRotary(pin Pin, level Level) {
	if pulse, ok := k.decoder.OnPinChange(pin, level); ok {
		k.queue.Publish(RotaryTurn{Steps: int(pulse)})
	}
}

// onButton runs on the button watcher goroutine.
func (k *Knob) onButton(level Level, at time.Time) {
	if press, ok := k.debouncer.OnButtonEdge(level, at); ok {
		k.queue.Publish(press)
	}
}
