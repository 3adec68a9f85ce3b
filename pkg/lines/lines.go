// Package lines exposes the debug connector signals as independently
// settable, readable and direction-switchable bits.
package lines

import "fmt"

// Pin identifies one debug connector signal.
type Pin uint8

const (
	PinTCK Pin = iota
	PinTMS
	PinTDI
	PinTDO
	PinNTRST
	PinNReset

	// PinNone marks an unused wiring slot.
	PinNone Pin = 0xFF
)

// SWD shares the clock and mode-select wires with JTAG.
const (
	PinSWCLK = PinTCK
	PinSWDIO = PinTMS
)

// NumPins is the number of addressable signals.
const NumPins = int(PinNReset) + 1

var pinNames = [NumPins]string{
	PinTCK:    "SWCLK/TCK",
	PinTMS:    "SWDIO/TMS",
	PinTDI:    "TDI",
	PinTDO:    "TDO",
	PinNTRST:  "nTRST",
	PinNReset: "nRESET",
}

func (p Pin) String() string {
	if p == PinNone {
		return "none"
	}
	if int(p) < NumPins {
		return pinNames[p]
	}
	return fmt.Sprintf("Pin(%d)", p)
}

// Valid reports whether p addresses a real signal.
func (p Pin) Valid() bool {
	return int(p) < NumPins
}

// Driver is the leaf hardware abstraction. Implementations must not fail:
// the transport engine treats every line operation as infallible. Drivers
// talking to remote hardware latch their first error for later inspection.
type Driver interface {
	// Enable powers the line buffers (level shifter output enable).
	Enable()
	// Disable releases every line to high impedance.
	Disable()
	// Set drives the output latch of p.
	Set(p Pin, level bool)
	// Get samples the current level of p.
	Get(p Pin) bool
	// SetOutput switches p between driven output and high-impedance input.
	SetOutput(p Pin, output bool)
}

// ConfigureJTAG puts the lines in their JTAG idle configuration: TCK, TMS,
// TDI and nTRST driven high, TDO sampled. nRESET is open-drain and left
// released to its pull-up.
func ConfigureJTAG(d Driver) {
	d.Enable()
	for _, p := range []Pin{PinTCK, PinTMS, PinTDI, PinNTRST} {
		d.Set(p, true)
		d.SetOutput(p, true)
	}
	d.SetOutput(PinTDO, false)
	NewPins(d).NResetOut(true)
}

// ConfigureSWD puts the lines in their SWD idle configuration: SWCLK and
// SWDIO driven high, the JTAG-only data lines and nRESET released.
func ConfigureSWD(d Driver) {
	d.Enable()
	for _, p := range []Pin{PinSWCLK, PinSWDIO} {
		d.Set(p, true)
		d.SetOutput(p, true)
	}
	d.SetOutput(PinTDI, false)
	d.SetOutput(PinTDO, false)
	d.SetOutput(PinNTRST, false)
	NewPins(d).NResetOut(true)
}

// Release returns every line to high impedance and disables the buffers.
// It only touches directions and levels, so it is always safe to call.
func Release(d Driver) {
	for p := Pin(0); int(p) < NumPins; p++ {
		d.SetOutput(p, false)
	}
	d.Disable()
}
