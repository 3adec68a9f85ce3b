package sim

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

// Arm JTAG-DP instructions.
const (
	IRAbort  = 0x8
	IRDPACC  = 0xA
	IRAPACC  = 0xB
	IRIDCode = 0xE
	IRBypass = 0xF
)

// Acknowledge patterns captured into bits [2:0] of DPACC/APACC.
const (
	wireOKFault = 0b010
	wireWait    = 0b001
)

// JTAGDevice is one TAP on a simulated chain.
type JTAGDevice struct {
	IDCode   uint32
	IRLength int
	// IDCodeIR is the instruction selected by Test-Logic-Reset.
	IDCodeIR uint32
	// DAP is nil for devices without an Arm debug port.
	DAP *Registers
	// Waits is the number of upcoming accesses answered with WAIT.
	Waits int

	IR uint32
	// Updates counts Update-DR events while an access register was selected.
	Updates int

	shift    uint64
	shiftLen int
	waited   bool
	result   uint32
}

// NewJTAGDP returns an Arm JTAG-DP with a 4-bit instruction register.
func NewJTAGDP(id uint32) *JTAGDevice {
	d := &JTAGDevice{IDCode: id, IRLength: 4, IDCodeIR: IRIDCode, DAP: NewRegisters(id)}
	d.Reset()
	return d
}

// NewJTAGDevice returns a plain TAP with IDCODE and BYPASS only.
func NewJTAGDevice(id uint32, irLength int, idcodeIR uint32) *JTAGDevice {
	d := &JTAGDevice{IDCode: id, IRLength: irLength, IDCodeIR: idcodeIR}
	d.Reset()
	return d
}

// Reset puts the device in its Test-Logic-Reset configuration.
func (d *JTAGDevice) Reset() {
	d.IR = d.IDCodeIR
}

func (d *JTAGDevice) irMask() uint32 {
	return uint32(1)<<uint(d.IRLength) - 1
}

func (d *JTAGDevice) isAccess() bool {
	return d.DAP != nil && (d.IR == IRDPACC || d.IR == IRAPACC || d.IR == IRAbort)
}

func (d *JTAGDevice) captureIR() {
	// The current instruction is captured so a host can read it back.
	d.shift = uint64(d.IR)
	d.shiftLen = d.IRLength
}

func (d *JTAGDevice) captureDR() {
	switch {
	case d.IR == d.IDCodeIR:
		d.shift, d.shiftLen = uint64(d.IDCode), 32
	case d.isAccess():
		ack := uint64(wireOKFault)
		d.waited = false
		if d.Waits > 0 && d.IR != IRAbort {
			d.Waits--
			d.waited = true
			ack = wireWait
		}
		d.shift, d.shiftLen = uint64(d.result)<<3|ack, 35
	default:
		d.shift, d.shiftLen = 0, 1
	}
}

// shiftBit moves one bit in at the TDI end and returns the bit leaving at
// the TDO end.
func (d *JTAGDevice) shiftBit(in bool) bool {
	out := d.shift&1 != 0
	d.shift >>= 1
	if in {
		d.shift |= 1 << uint(d.shiftLen-1)
	}
	return out
}

func (d *JTAGDevice) updateIR() {
	d.IR = uint32(d.shift) & d.irMask()
}

func (d *JTAGDevice) updateDR() {
	if !d.isAccess() || d.waited {
		return
	}
	d.Updates++
	data := uint32(d.shift >> 3)
	if d.IR == IRAbort {
		d.DAP.Abort = data
		return
	}
	req := dp.Request(uint8(d.shift&7) << 1)
	if d.IR == IRAPACC {
		req |= dp.APnDP
	}
	if req.IsRead() {
		d.result = d.DAP.Read(req)
		return
	}
	d.DAP.Write(req, data)
}

// JTAGChain is a scan chain. Devices[0] is nearest TDO.
type JTAGChain struct {
	Devices []*JTAGDevice
	tap     *tap.Machine
}

// NewJTAGChain returns a chain of devices, all in Test-Logic-Reset.
func NewJTAGChain(devices ...*JTAGDevice) *JTAGChain {
	return &JTAGChain{Devices: devices, tap: tap.NewMachine()}
}

// State returns the TAP state shared by the chain.
func (c *JTAGChain) State() tap.State { return c.tap.State() }

// ClockEdge implements lines.EdgeListener. TMS and TDI are sampled on the
// rising edge; TDO changes on the falling edge.
func (c *JTAGChain) ClockEdge(d *lines.SimDriver, rising bool) {
	if !rising {
		if c.tap.State().IsShift() && len(c.Devices) > 0 {
			d.Drive(lines.PinTDO, c.Devices[0].shift&1 != 0)
		} else {
			d.Float(lines.PinTDO)
		}
		return
	}

	tms := d.Get(lines.PinTMS)
	tdi := d.Get(lines.PinTDI)
	switch c.tap.State() {
	case tap.CaptureDR:
		for _, dev := range c.Devices {
			dev.captureDR()
		}
	case tap.CaptureIR:
		for _, dev := range c.Devices {
			dev.captureIR()
		}
	case tap.ShiftDR, tap.ShiftIR:
		bit := tdi
		for i := len(c.Devices) - 1; i >= 0; i-- {
			bit = c.Devices[i].shiftBit(bit)
		}
	}

	switch c.tap.Clock(tms) {
	case tap.UpdateDR:
		for _, dev := range c.Devices {
			dev.updateDR()
		}
	case tap.UpdateIR:
		for _, dev := range c.Devices {
			dev.updateIR()
		}
	case tap.TestLogicReset:
		for _, dev := range c.Devices {
			dev.Reset()
		}
	}
}
