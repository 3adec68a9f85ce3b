// Package seq implements the clocked shift primitive shared by the JTAG and
// SWD engines. Requests of any length are split into backend bursts and the
// sampled bits are reassembled in order.
package seq

import (
	"errors"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
)

// MaxHardwareBurst is the largest burst a hardware shift engine accepts.
const MaxHardwareBurst = 64

var (
	// ErrBusy indicates the shift engine is owned by another transport.
	ErrBusy = errors.New("seq: shift engine busy")
	// ErrNotReady indicates a hardware burst did not complete within the poll limit.
	ErrNotReady = errors.New("seq: shift engine not ready")
	// ErrShortBuffer indicates a data buffer holds fewer bits than requested.
	ErrShortBuffer = errors.New("seq: buffer too short")
)

// Burst is one backend call. Out and In are packed LSB-first, byte 0 first.
type Burst struct {
	Bits       int
	ModeSelect bool
	Capture    bool
	Out        []byte
	In         []byte
}

// Backend executes bursts on the wire.
type Backend interface {
	// MaxBurst returns the largest burst accepted, or 0 for no limit.
	MaxBurst() int
	// Shift clocks b.Bits cycles, driving b.Out and sampling into b.In when
	// b.Capture is set.
	Shift(b *Burst) error
	// SetDataLevel drives the data-out line without clocking.
	SetDataLevel(level bool) error
	// SetDataDirection switches the data-out line between driven and released.
	SetDataDirection(output bool) error
}

// Continuation is the level an idle bus holds between calls.
type Continuation struct {
	LastBit        bool
	LastModeSelect bool
}

// Reset returns the continuation to its power-on state (both lines high).
func (c *Continuation) Reset() {
	c.LastBit = true
	c.LastModeSelect = true
}

// Wiring names the lines a backend clocks. ModeSelect is lines.PinNone for
// transports without a held mode-select line.
type Wiring struct {
	Clock      lines.Pin
	DataOut    lines.Pin
	DataIn     lines.Pin
	ModeSelect lines.Pin
}

var (
	// JTAGWiring clocks TCK, drives TDI, samples TDO and holds TMS.
	JTAGWiring = Wiring{
		Clock:      lines.PinTCK,
		DataOut:    lines.PinTDI,
		DataIn:     lines.PinTDO,
		ModeSelect: lines.PinTMS,
	}
	// SWDWiring clocks SWCLK and uses SWDIO in both directions.
	SWDWiring = Wiring{
		Clock:      lines.PinSWCLK,
		DataOut:    lines.PinSWDIO,
		DataIn:     lines.PinSWDIO,
		ModeSelect: lines.PinNone,
	}
)
