package main

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphDriver opens pins through periph.io's host drivers (memory-mapped
// registers on the Raspberry Pi, gpiochip elsewhere).
type periphDriver struct{}

func newPeriphDriver() (*periphDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &periphDriver{}, nil
}

func (*periphDriver) Name() string { return gpioDriverPeriph }

func (*periphDriver) Open(number int, edge Edge) (InputPin, error) {
	name := fmt.Sprintf("GPIO%d", number)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%s: no such pin", name)
	}

	e := gpio.BothEdges
	if edge == FallingEdge {
		e = gpio.FallingEdge
	}
	if err := p.In(gpio.PullUp, e); err != nil {
		return nil, fmt.Errorf("%s: configure input: %w", name, err)
	}
	return &periphPin{pin: p}, nil
}

type periphPin struct {
	pin gpio.PinIO
}

func (p *periphPin) String() string { return p.pin.Name() }

func (p *periphPin) WaitForEdge(timeout time.Duration) (bool, error) {
	return p.pin.WaitForEdge(timeout), nil
}

func (p *periphPin) Read() (Level, error) {
	if p.pin.Read() == gpio.High {
		return High, nil
	}
	return Low, nil
}

func (p *periphPin) Halt() error {
	return p.pin.Halt()
}

func (p *periphPin) Close() error {
	return p.pin.In(gpio.PullNoChange, gpio.NoEdge)
}
