package cmsisdap

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/swd"
)

var errNotConfigured = errors.New("cmsisdap: accelerator not configured")

// Accelerator runs shift bursts on a remote probe. A burst is one sequence
// command, so the 64-bit burst limit matches the probe's sequence limit.
// Each burst completes within Start; Ready is always true.
type Accelerator struct {
	seq.Ownership

	dev    *Device
	wiring seq.Wiring
	port   byte
	// output tracks the SWDIO direction; released cycles become input
	// sequences so the probe never drives against the target.
	output bool
	in     []byte
}

// NewAccelerator returns an accelerator on dev.
func NewAccelerator(dev *Device) *Accelerator {
	return &Accelerator{dev: dev}
}

// Release gives up ownership and disconnects the probe's debug port.
func (a *Accelerator) Release(o seq.Owner) {
	if a.Owner() != o || o == seq.OwnerNone {
		return
	}
	if err := a.dev.Disconnect(); err != nil {
		log.WithError(err).Warn("disconnect on release")
	}
	a.port = PortDefault
	a.Ownership.Release(o)
}

// Configure connects the probe in JTAG mode for wirings with a mode-select
// line and in SWD mode otherwise, then sets the clock.
func (a *Accelerator) Configure(w seq.Wiring, t seq.ClockTiming) error {
	port := byte(PortJTAG)
	if w.ModeSelect == lines.PinNone {
		port = PortSWD
	}
	if a.dev.Connected() != port {
		if err := a.dev.Connect(port); err != nil {
			return fmt.Errorf("cmsisdap: connect: %w", err)
		}
	}
	if err := a.dev.SetClock(t.RequestedHz); err != nil {
		return fmt.Errorf("cmsisdap: clock %d Hz: %w", t.RequestedHz, err)
	}
	a.wiring, a.port, a.output = w, port, true
	return nil
}

func (a *Accelerator) Start(b *seq.Burst) error {
	if b.Bits <= 0 || b.Bits > seq.MaxHardwareBurst {
		return fmt.Errorf("cmsisdap: burst of %d bits", b.Bits)
	}
	a.in = a.in[:0]
	switch a.port {
	case PortJTAG:
		s := []JTAGSequence{{Info: jtag.NewSequenceInfo(b.Bits, b.ModeSelect, b.Capture), TDI: b.Out}}
		tdo, err := a.dev.JTAGSequence(s)
		if err != nil {
			return err
		}
		if b.Capture {
			a.in = append(a.in, tdo[0]...)
		}
	case PortSWD:
		input := b.Capture || !a.output
		s := []SWDSequence{{Info: swd.NewSequenceInfo(b.Bits, input), Data: b.Out}}
		data, err := a.dev.SWDSequence(s)
		if err != nil {
			return err
		}
		if b.Capture {
			a.in = append(a.in, data[0]...)
		}
	default:
		return errNotConfigured
	}
	return nil
}

func (a *Accelerator) Ready() bool { return true }

func (a *Accelerator) Finish(b *seq.Burst) error {
	if b.Capture {
		copy(b.In, a.in)
	}
	return nil
}

// SetDataLevel drives the data-out line through DAP_SWJ_Pins.
func (a *Accelerator) SetDataLevel(level bool) error {
	if a.port == PortDefault {
		return errNotConfigured
	}
	bit := lines.SWJBit(a.wiring.DataOut)
	var v byte
	if level {
		v = bit
	}
	_, err := a.dev.Pins(v, bit, 0)
	return err
}

// SetDataDirection records the SWDIO direction. The probe switches SWDIO
// itself at the start of every sequence.
func (a *Accelerator) SetDataDirection(output bool) error {
	a.output = output
	return nil
}
