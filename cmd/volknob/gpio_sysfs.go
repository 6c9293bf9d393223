//go:build linux

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Legacy sysfs GPIO driver (/sys/class/gpio)
// ============================================================================
// A pin is exported, switched to input with the requested edge, and its value
// file is polled for POLLPRI. sysfs cannot set pull-ups; they have to come
// from the device tree (e.g. a gpio=23,24,12=ip,pu line in config.txt).
// ============================================================================

const (
	sysfsRoot = "/sys/class/gpio"

	// Non-root processes depend on udev to hand the exported attributes to
	// the gpio group, which happens some time after the export write.
	sysfsPermissionWait = 2 * time.Second
	sysfsPermissionPoll = 10 * time.Millisecond
)

type sysfsDriver struct {
	root string
	// base is added to BCM numbers (gpiochip base, 512 on newer kernels).
	base         int
	waitWritable bool
}

func newSysfsDriver(base int) *sysfsDriver {
	return &sysfsDriver{root: sysfsRoot, base: base, waitWritable: os.Geteuid() != 0}
}

func (*sysfsDriver) Name() string { return gpioDriverSysfs }

func (d *sysfsDriver) attr(n int, name string) string {
	return filepath.Join(d.root, "gpio"+strconv.Itoa(n), name)
}

// set writes value to a sysfs attribute in a single write.
func (d *sysfsDriver) set(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (d *sysfsDriver) unexport(n int) error {
	return d.set(filepath.Join(d.root, "unexport"), strconv.Itoa(n))
}

// ensureExported exports gpio n unless its attributes are already usable.
func (d *sysfsDriver) ensureExported(n int) error {
	edge := d.attr(n, "edge")
	if unix.Access(edge, unix.W_OK) == nil {
		return nil
	}
	if err := d.set(filepath.Join(d.root, "export"), strconv.Itoa(n)); err != nil {
		return err
	}
	if !d.waitWritable {
		return nil
	}

	deadline := time.Now().Add(sysfsPermissionWait)
	for unix.Access(edge, unix.W_OK) != nil {
		if time.Now().After(deadline) {
			return fmt.Errorf("%s not writable after %v", edge, sysfsPermissionWait)
		}
		time.Sleep(sysfsPermissionPoll)
	}
	return nil
}

func (d *sysfsDriver) Open(number int, edge Edge) (InputPin, error) {
	n := number + d.base

	if err := d.ensureExported(n); err != nil {
		return nil, fmt.Errorf("gpio%d: export: %w", n, err)
	}

	for _, a := range []struct{ name, value string }{
		{"direction", "in"},
		{"edge", edge.String()},
	} {
		if err := d.set(d.attr(n, a.name), a.value); err != nil {
			_ = d.unexport(n)
			return nil, fmt.Errorf("gpio%d: %s: %w", n, a.name, err)
		}
	}

	f, err := os.Open(d.attr(n, "value"))
	if err != nil {
		_ = d.unexport(n)
		return nil, fmt.Errorf("gpio%d: %w", n, err)
	}

	p := &sysfsPin{driver: d, number: n, value: f}
	// Reading once consumes the event pending since export.
	if _, err := p.Read(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

type sysfsPin struct {
	driver *sysfsDriver
	number int
	value  *os.File
	halted atomic.Bool
}

func (p *sysfsPin) String() string { return "gpio" + strconv.Itoa(p.number) }

func (p *sysfsPin) WaitForEdge(timeout time.Duration) (bool, error) {
	if p.halted.Load() {
		return false, nil
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	fds := []unix.PollFd{{Fd: int32(p.value.Fd()), Events: unix.POLLPRI}}
	n, err := unix.Poll(fds, ms)
	switch {
	case errors.Is(err, unix.EINTR):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%s: poll: %w", p, err)
	}
	return n > 0 && fds[0].Revents&unix.POLLPRI != 0 && !p.halted.Load(), nil
}

func (p *sysfsPin) Read() (Level, error) {
	var b [1]byte
	if _, err := p.value.ReadAt(b[:], 0); err != nil {
		return Low, fmt.Errorf("%s: read: %w", p, err)
	}
	switch b[0] {
	case '0':
		return Low, nil
	case '1':
		return High, nil
	}
	return Low, fmt.Errorf("%s: unexpected value %q", p, b[0])
}

func (p *sysfsPin) Halt() error {
	p.halted.Store(true)
	return nil
}

// Close disables edge reporting and unexports the pin.
func (p *sysfsPin) Close() error {
	p.halted.Store(true)
	_ = p.driver.set(p.driver.attr(p.number, "edge"), "none")

	var errs []error
	if err := p.value.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.driver.unexport(p.number); err != nil {
		errs = append(errs, fmt.Errorf("%s: unexport: %w", p, err))
	}
	return errors.Join(errs...)
}
