package jtag

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
)

// SequenceInfo is the DAP_JTAG_Sequence info byte.
type SequenceInfo uint8

const (
	SeqCountMask SequenceInfo = 0x3F // bits [5:0], 0 means 64
	SeqTMS       SequenceInfo = 0x40
	SeqTDO       SequenceInfo = 0x80
)

// NewSequenceInfo encodes a sequence of 1 to 64 cycles.
func NewSequenceInfo(count int, tms, captureTDO bool) SequenceInfo {
	info := SequenceInfo(count) & SeqCountMask
	if tms {
		info |= SeqTMS
	}
	if captureTDO {
		info |= SeqTDO
	}
	return info
}

// Count returns the number of TCK cycles.
func (i SequenceInfo) Count() int {
	if n := int(i & SeqCountMask); n != 0 {
		return n
	}
	return 64
}

// TMS returns the TMS level held for the sequence.
func (i SequenceInfo) TMS() bool { return i&SeqTMS != 0 }

// CaptureTDO reports whether TDO is sampled.
func (i SequenceInfo) CaptureTDO() bool { return i&SeqTDO != 0 }

// RemapAck converts the three acknowledge bits sampled LSB-first during a
// register access scan into a dp.Ack: ((w&2)>>1)|((w&1)<<2)|(w&^3).
// A wire pattern of 0b010 is OK.
func RemapAck(wire uint8) dp.Ack {
	wire &= 7
	return dp.Ack(((wire & 2) >> 1) | ((wire & 1) << 2) | (wire &^ 3))
}

// DecodeIDCode parses a value returned by ReadIDCode.
func DecodeIDCode(raw uint32) idcode.IDCode {
	return idcode.Parse(raw)
}
