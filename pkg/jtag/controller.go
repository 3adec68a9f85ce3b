// Package jtag implements the JTAG side of the debug transport: raw TCK
// sequences, IR and DR scans with daisy-chain bypass, IDCODE readout and
// Arm debug port register access.
package jtag

import (
	"fmt"
	"math/bits"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

// Config is the state the command processor shares with the controller.
// It is read on every call, so the caller may change it between calls.
type Config struct {
	Chain      Chain
	IdleCycles int
	// Timestamp samples the probe timer when a transfer asks for it.
	Timestamp func() uint32
}

// Controller runs JTAG operations on a sequence engine. All operations
// except Sequence and TMSSequence start and end in Run-Test/Idle.
type Controller struct {
	eng *seq.Engine
	cfg *Config
	tap *tap.Machine
	ts  uint32
}

// NewController returns a controller on eng. The TAP is assumed to be in
// Test-Logic-Reset until a TMS sequence says otherwise.
func NewController(eng *seq.Engine, cfg *Config) *Controller {
	if cfg == nil {
		cfg = &Config{Chain: DefaultChain}
	}
	return &Controller{eng: eng, cfg: cfg, tap: tap.NewMachine()}
}

// State returns the TAP state implied by the cycles clocked so far.
func (c *Controller) State() tap.State { return c.tap.State() }

// Timestamp returns the timer value captured by the last transfer that
// requested one.
func (c *Controller) Timestamp() uint32 { return c.ts }

func (c *Controller) clock(n int, tms, capture bool, out, in []byte) error {
	if n <= 0 {
		return nil
	}
	if err := c.eng.Clock(n, tms, capture, out, in); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		c.tap.Clock(tms)
	}
	return nil
}

// cycles clocks n cycles at a fixed TMS level without new TDI data.
func (c *Controller) cycles(n int, tms bool) error {
	return c.clock(n, tms, false, nil, nil)
}

// walk clocks a TMS pattern, one level per cycle.
func (c *Controller) walk(pattern ...bool) error {
	for _, v := range pattern {
		if err := c.cycles(1, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) chain() (Chain, error) {
	ch := c.cfg.Chain
	if ch.Count() == 0 {
		ch = DefaultChain
	}
	return ch, ch.Validate()
}

// Sequence runs one DAP_JTAG_Sequence entry. tdo may be nil when the info
// byte does not request capture.
func (c *Controller) Sequence(info SequenceInfo, tdi, tdo []byte) error {
	return c.clock(info.Count(), info.TMS(), info.CaptureTDO(), tdi, tdo)
}

// TMSSequence clocks count cycles with TMS taken LSB-first from data, TDI
// holding its last level. Runs of equal TMS go out as single sequences.
func (c *Controller) TMSSequence(count int, data []byte) error {
	if len(data)*8 < count {
		return fmt.Errorf("tms sequence of %d bits: %w", count, seq.ErrShortBuffer)
	}
	for i := 0; i < count; {
		level := seq.GetBit(data, i)
		run := 1
		for i+run < count && seq.GetBit(data, i+run) == level {
			run++
		}
		if err := c.cycles(run, level); err != nil {
			return err
		}
		i += run
	}
	return nil
}

// GoTo moves the TAP to target along the shortest path.
func (c *Controller) GoTo(target tap.State) error {
	p, err := tap.PathTo(c.tap.State(), target)
	if err != nil {
		return err
	}
	return c.walk(p.TMS...)
}

// Reset forces Test-Logic-Reset with five TMS-high cycles and settles in
// Run-Test/Idle.
func (c *Controller) Reset() error {
	if err := c.cycles(tap.ResetCycles, true); err != nil {
		return err
	}
	return c.cycles(1, false)
}

// ReadIDCode reads the IDCODE of the addressed device. Devices between it
// and TDO must be in BYPASS.
func (c *Controller) ReadIDCode() (uint32, error) {
	ch, err := c.chain()
	if err != nil {
		return 0, err
	}
	// Select-DR-Scan, then Capture-DR, Shift-DR and one bit per bypassed device.
	if err := c.cycles(1, true); err != nil {
		return 0, err
	}
	if err := c.cycles(2+ch.DRBefore(), false); err != nil {
		return 0, err
	}
	var in [4]byte
	if err := c.clock(31, false, true, nil, in[:]); err != nil {
		return 0, err
	}
	var last [1]byte
	if err := c.clock(1, true, true, nil, last[:]); err != nil { // Exit1-DR
		return 0, err
	}
	if err := c.walk(true, false); err != nil { // Update-DR, Run-Test/Idle
		return 0, err
	}
	id := uint32(seq.Uint(in[:], 31))
	if seq.GetBit(last[:], 0) {
		id |= 1 << 31
	}
	return id, nil
}

// IR loads a new instruction into the addressed device and BYPASS into all
// others. It returns the bits the device captured into its instruction
// register.
func (c *Controller) IR(ir uint32) (uint32, error) {
	ch, err := c.chain()
	if err != nil {
		return 0, err
	}
	n := ch.IRLength[ch.Index]
	before, after := ch.IRBefore(), ch.IRAfter()

	// Select-DR-Scan, Select-IR-Scan, Capture-IR, Shift-IR.
	if err := c.walk(true, true, false, false); err != nil {
		return 0, err
	}
	if err := c.eng.Drive(true); err != nil {
		return 0, err
	}
	if err := c.cycles(before, false); err != nil {
		return 0, err
	}

	var out, in [4]byte
	seq.PutUint(out[:], uint64(ir), n)
	if err := c.clock(n-1, false, true, out[:], in[:]); err != nil {
		return 0, err
	}
	var lastOut, lastIn [1]byte
	seq.SetBit(lastOut[:], 0, seq.GetBit(out[:], n-1))
	if after > 0 {
		if err := c.clock(1, false, true, lastOut[:], lastIn[:]); err != nil {
			return 0, err
		}
		if err := c.eng.Drive(true); err != nil {
			return 0, err
		}
		if err := c.cycles(after-1, false); err != nil {
			return 0, err
		}
		if err := c.cycles(1, true); err != nil { // Exit1-IR
			return 0, err
		}
	} else {
		if err := c.clock(1, true, true, lastOut[:], lastIn[:]); err != nil { // Exit1-IR
			return 0, err
		}
		if err := c.eng.Drive(true); err != nil {
			return 0, err
		}
	}
	if err := c.walk(true, false); err != nil { // Update-IR, Run-Test/Idle
		return 0, err
	}
	if err := c.eng.Drive(true); err != nil {
		return 0, err
	}

	seq.SetBit(in[:], n-1, seq.GetBit(lastIn[:], 0))
	return uint32(seq.Uint(in[:], n)), nil
}

// ShiftDR scans count bits through the addressed device's data register
// and returns what it shifted out. data holds count bits MSB-first within
// each byte, and the result uses the same order.
func (c *Controller) ShiftDR(count int, data []byte) ([]byte, error) {
	if count <= 0 {
		return nil, nil
	}
	if len(data) < seq.ByteLen(count) {
		return nil, fmt.Errorf("dr scan of %d bits: %w", count, seq.ErrShortBuffer)
	}
	if count == 16 {
		v, err := c.shiftDR16(uint16(data[0]) | uint16(data[1])<<8)
		if err != nil {
			return nil, err
		}
		return []byte{byte(v), byte(v >> 8)}, nil
	}

	out := make([]byte, seq.ByteLen(count))
	copy(out, data)
	seq.ReverseBitsInPlace(out)
	in := make([]byte, len(out))
	if err := c.scanDR(count, out, in); err != nil {
		return nil, err
	}
	seq.ReverseBitsInPlace(in)
	return in, nil
}

// shiftDR16 is the 16-bit register path. v carries two bytes, each
// MSB-first.
func (c *Controller) shiftDR16(v uint16) (uint16, error) {
	wire := uint16(bits.Reverse8(uint8(v))) | uint16(bits.Reverse8(uint8(v>>8)))<<8
	out := [2]byte{byte(wire), byte(wire >> 8)}
	var in [2]byte
	if err := c.scanDR(16, out[:], in[:]); err != nil {
		return 0, err
	}
	return uint16(bits.Reverse8(in[0])) | uint16(bits.Reverse8(in[1]))<<8, nil
}

// scanDR shifts count wire-order bits through the addressed device.
func (c *Controller) scanDR(count int, out, in []byte) error {
	ch, err := c.chain()
	if err != nil {
		return err
	}
	if err := c.cycles(1, true); err != nil {
		return err
	}
	if err := c.cycles(2+ch.DRBefore(), false); err != nil {
		return err
	}
	if err := c.clock(count-1, false, true, out, in); err != nil {
		return err
	}
	var lastOut, lastIn [1]byte
	seq.SetBit(lastOut[:], 0, seq.GetBit(out, count-1))
	if err := c.lastBit(ch, true, lastOut[:], lastIn[:]); err != nil {
		return err
	}
	seq.SetBit(in, count-1, seq.GetBit(lastIn[:], 0))
	if err := c.walk(true, false); err != nil {
		return err
	}
	return c.eng.Drive(true)
}

// lastBit shifts the final data bit and the trailing bypass bits, leaving
// the TAP in Exit1-DR.
func (c *Controller) lastBit(ch Chain, capture bool, out, in []byte) error {
	after := ch.DRAfter()
	if after == 0 {
		return c.clock(1, true, capture, out, in)
	}
	if err := c.clock(1, false, capture, out, in); err != nil {
		return err
	}
	if err := c.cycles(after-1, false); err != nil {
		return err
	}
	return c.cycles(1, true)
}

// Transfer performs one DPACC or APACC access. For reads *data receives
// the 32 bits scanned out; for writes *data is scanned in. A non-OK
// acknowledge with checkAck set ends the scan early and is returned as is.
func (c *Controller) Transfer(req dp.Request, data *uint32, checkAck bool) (dp.Ack, error) {
	ack, err := c.access(req.Header()>>1, req.IsRead(), data, checkAck)
	if err != nil {
		return ack, err
	}
	if req&dp.Timestamp != 0 && c.cfg.Timestamp != nil {
		c.ts = c.cfg.Timestamp()
	}
	if err := c.cycles(c.cfg.IdleCycles, false); err != nil {
		return ack, err
	}
	return ack, nil
}

// WriteAbort writes value to the ABORT register. The ABORT instruction must
// already be loaded.
func (c *Controller) WriteAbort(value uint32) error {
	_, err := c.access(0, false, &value, false)
	return err
}

// access runs the DR scan of a register access: three request bits (RnW,
// A2, A3) clocked against the acknowledge, then 32 data bits.
func (c *Controller) access(reqBits uint8, read bool, data *uint32, checkAck bool) (dp.Ack, error) {
	ch, err := c.chain()
	if err != nil {
		return 0, err
	}
	if err := c.cycles(1, true); err != nil {
		return 0, err
	}
	if err := c.cycles(2+ch.DRBefore(), false); err != nil {
		return 0, err
	}

	out := [1]byte{reqBits & 7}
	var wire [1]byte
	if err := c.clock(3, false, true, out[:], wire[:]); err != nil {
		return 0, err
	}
	ack := RemapAck(wire[0])

	if checkAck && ack != dp.AckOK {
		if err := c.cycles(1, true); err != nil { // Exit1-DR
			return ack, err
		}
	} else if read {
		var in [4]byte
		if err := c.clock(31, false, true, nil, in[:]); err != nil {
			return ack, err
		}
		var last [1]byte
		if err := c.lastBit(ch, true, nil, last[:]); err != nil {
			return ack, err
		}
		v := uint32(seq.Uint(in[:], 31))
		if seq.GetBit(last[:], 0) {
			v |= 1 << 31
		}
		*data = v
	} else {
		var buf [4]byte
		seq.PutUint(buf[:], uint64(*data), 32)
		if err := c.clock(31, false, false, buf[:], nil); err != nil {
			return ack, err
		}
		last := [1]byte{buf[3] >> 7}
		if err := c.lastBit(ch, false, last[:], nil); err != nil {
			return ack, err
		}
	}

	if err := c.walk(true, false); err != nil { // Update-DR, Run-Test/Idle
		return ack, err
	}
	return ack, c.eng.Drive(true)
}
