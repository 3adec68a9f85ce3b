package cmsisdap

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
)

// LineDriver is a lines.Driver backed by DAP_SWJ_Pins. Line operations
// cannot return errors, so the first failure is latched and reported by
// Err. Pin directions are managed by the probe firmware; SetOutput only
// records the request.
type LineDriver struct {
	dev    *Device
	output [lines.NumPins]bool
	err    error
}

// NewLineDriver returns a line driver on dev.
func NewLineDriver(dev *Device) *LineDriver {
	return &LineDriver{dev: dev}
}

// Err returns the first command failure.
func (l *LineDriver) Err() error { return l.err }

func (l *LineDriver) latch(err error) {
	if err != nil && l.err == nil {
		log.WithError(err).Warn("line command failed")
		l.err = err
	}
}

func (l *LineDriver) Enable() {}

// Disable releases the debug port.
func (l *LineDriver) Disable() {
	l.latch(l.dev.Disconnect())
}

func (l *LineDriver) Set(p lines.Pin, level bool) {
	bit := lines.SWJBit(p)
	if bit == 0 {
		return
	}
	var v byte
	if level {
		v = bit
	}
	_, err := l.dev.Pins(v, bit, 0)
	l.latch(err)
}

func (l *LineDriver) Get(p lines.Pin) bool {
	bit := lines.SWJBit(p)
	if bit == 0 {
		return true
	}
	v, err := l.dev.Pins(0, 0, 0)
	if err != nil {
		l.latch(err)
		return true
	}
	return v&bit != 0
}

func (l *LineDriver) SetOutput(p lines.Pin, output bool) {
	if p.Valid() {
		l.output[p] = output
	}
}

// IsOutput reports the last direction requested for p.
func (l *LineDriver) IsOutput(p lines.Pin) bool {
	return p.Valid() && l.output[p]
}
