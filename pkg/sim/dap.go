// Package sim provides wire-level target models that attach to a
// lines.SimDriver: a JTAG scan chain of TAP devices and an SWD target, both
// backed by a small Arm debug port register file. It also provides a
// simulated hardware shift engine.
package sim

import "github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"

// Debug port register addresses.
const (
	RegIDR      = 0x0 // read; ABORT on write
	RegCtrlStat = 0x4
	RegSelect   = 0x8
	RegRdBuff   = 0xC
)

// Registers is a debug port with loopback access ports. AP registers are
// plain storage indexed by the SELECT bank and the register address.
type Registers struct {
	IDR      uint32
	CtrlStat uint32
	Select   uint32
	Abort    uint32
	AP       map[uint32]uint32

	lastAP uint32
	// Writes counts register writes, Reads counts register reads.
	Writes, Reads int
}

// NewRegisters returns a register file reporting idr from its ID register.
func NewRegisters(idr uint32) *Registers {
	return &Registers{IDR: idr, AP: make(map[uint32]uint32)}
}

func (r *Registers) apKey(addr uint8) uint32 {
	return r.Select&0xFF0000F0 | uint32(addr&0x0C)
}

// Read returns the value of a DP or AP register.
func (r *Registers) Read(req dp.Request) uint32 {
	r.Reads++
	if req.IsAP() {
		r.lastAP = r.AP[r.apKey(req.Addr())]
		return r.lastAP
	}
	switch req.Addr() {
	case RegIDR:
		return r.IDR
	case RegCtrlStat:
		return r.CtrlStat
	case RegSelect:
		return r.Select
	default:
		return r.lastAP
	}
}

// Write stores v into a DP or AP register.
func (r *Registers) Write(req dp.Request, v uint32) {
	r.Writes++
	if req.IsAP() {
		r.AP[r.apKey(req.Addr())] = v
		return
	}
	switch req.Addr() {
	case RegIDR:
		r.Abort = v
	case RegCtrlStat:
		// Power-up requests are acknowledged immediately.
		r.CtrlStat = v | (v&0x50000000)<<1
	case RegSelect:
		r.Select = v
	}
}
