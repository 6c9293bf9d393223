//go:build !linux

package main

import "errors"

type sysfsDriver struct{}

func newSysfsDriver(int) *sysfsDriver { return &sysfsDriver{} }

func (*sysfsDriver) Name() string { return gpioDriverSysfs }

func (*sysfsDriver) Open(int, Edge) (InputPin, error) {
	return nil, errors.New("sysfs gpio is only available on linux")
}
