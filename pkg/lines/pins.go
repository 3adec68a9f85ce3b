package lines

// Pins offers the pin-level accessors the command processor uses for slow
// control operations such as target reset. They bypass the sequence engine.
type Pins struct {
	d Driver
}

// NewPins wraps a driver with the accessor set.
func NewPins(d Driver) Pins {
	return Pins{d: d}
}

// SWCLKTCKSet drives SWCLK/TCK high.
func (p Pins) SWCLKTCKSet() { p.d.Set(PinSWCLK, true) }

// SWCLKTCKClr drives SWCLK/TCK low.
func (p Pins) SWCLKTCKClr() { p.d.Set(PinSWCLK, false) }

// SWCLKTCKIn samples SWCLK/TCK.
func (p Pins) SWCLKTCKIn() bool { return p.d.Get(PinSWCLK) }

// SWDIOTMSSet drives SWDIO/TMS high.
func (p Pins) SWDIOTMSSet() { p.d.Set(PinSWDIO, true) }

// SWDIOTMSClr drives SWDIO/TMS low.
func (p Pins) SWDIOTMSClr() { p.d.Set(PinSWDIO, false) }

// SWDIOTMSIn samples SWDIO/TMS.
func (p Pins) SWDIOTMSIn() bool { return p.d.Get(PinSWDIO) }

// SWDIOOut drives SWDIO to bit.
func (p Pins) SWDIOOut(bit bool) { p.d.Set(PinSWDIO, bit) }

// SWDIOIn samples SWDIO.
func (p Pins) SWDIOIn() bool { return p.d.Get(PinSWDIO) }

// SWDIOOutEnable turns the SWDIO driver on.
func (p Pins) SWDIOOutEnable() { p.d.SetOutput(PinSWDIO, true) }

// SWDIOOutDisable releases SWDIO so the target can drive it.
func (p Pins) SWDIOOutDisable() { p.d.SetOutput(PinSWDIO, false) }

// TDIOut drives TDI to bit.
func (p Pins) TDIOut(bit bool) { p.d.Set(PinTDI, bit) }

// TDIIn samples TDI.
func (p Pins) TDIIn() bool { return p.d.Get(PinTDI) }

// TDOIn samples TDO.
func (p Pins) TDOIn() bool { return p.d.Get(PinTDO) }

// NTRSTOut drives nTRST to bit.
func (p Pins) NTRSTOut(bit bool) { p.d.Set(PinNTRST, bit) }

// NTRSTIn samples nTRST.
func (p Pins) NTRSTIn() bool { return p.d.Get(PinNTRST) }

// NResetOut drives nRESET open-drain style: low is actively driven, high
// releases the line to its pull-up.
func (p Pins) NResetOut(bit bool) {
	if bit {
		p.d.SetOutput(PinNReset, false)
		return
	}
	p.d.Set(PinNReset, false)
	p.d.SetOutput(PinNReset, true)
}

// NResetIn samples nRESET.
func (p Pins) NResetIn() bool { return p.d.Get(PinNReset) }

// Snapshot packs the current line levels in the DAP_SWJ_Pins bit layout:
// bit 0 SWCLK/TCK, 1 SWDIO/TMS, 2 TDI, 3 TDO, 5 nTRST, 7 nRESET.
func (p Pins) Snapshot() uint8 {
	var v uint8
	for _, m := range swjPinBits {
		if p.d.Get(m.pin) {
			v |= m.bit
		}
	}
	return v
}

type swjPinBit struct {
	pin Pin
	bit uint8
}

var swjPinBits = []swjPinBit{
	{PinTCK, 1 << 0},
	{PinTMS, 1 << 1},
	{PinTDI, 1 << 2},
	{PinTDO, 1 << 3},
	{PinNTRST, 1 << 5},
	{PinNReset, 1 << 7},
}

// SWJBit returns the DAP_SWJ_Pins bit for pin, or zero if it has none.
func SWJBit(pin Pin) uint8 {
	for _, m := range swjPinBits {
		if m.pin == pin {
			return m.bit
		}
	}
	return 0
}
