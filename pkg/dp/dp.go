// Package dp holds the debug-port request and acknowledge vocabulary shared
// by the JTAG and SWD transports.
package dp

import (
	"fmt"
	"strings"
)

// Request is a transfer request byte in the DAP_Transfer layout.
type Request uint8

const (
	APnDP      Request = 1 << 0
	RnW        Request = 1 << 1
	A2         Request = 1 << 2
	A3         Request = 1 << 3
	MatchValue Request = 1 << 4
	MatchMask  Request = 1 << 5
	Timestamp  Request = 1 << 7
)

// NewRequest builds a request for register addr (0x0, 0x4, 0x8 or 0xC) of
// the DP or an AP.
func NewRequest(ap, read bool, addr uint8) Request {
	r := Request(addr & 0x0C)
	if ap {
		r |= APnDP
	}
	if read {
		r |= RnW
	}
	return r
}

// IsAP reports whether the request targets an access port.
func (r Request) IsAP() bool { return r&APnDP != 0 }

// IsRead reports whether the request reads.
func (r Request) IsRead() bool { return r&RnW != 0 }

// Addr returns the register address bits A[3:2].
func (r Request) Addr() uint8 { return uint8(r) & 0x0C }

// Header returns the four bits that travel on the wire: APnDP, RnW, A2, A3.
func (r Request) Header() uint8 { return uint8(r) & 0x0F }

func (r Request) String() string {
	port := "DP"
	if r.IsAP() {
		port = "AP"
	}
	op := "write"
	if r.IsRead() {
		op = "read"
	}
	s := fmt.Sprintf("%s %s 0x%X", port, op, r.Addr())
	if r&Timestamp != 0 {
		s += " +ts"
	}
	return s
}

// Ack is a transfer outcome. The low three bits carry the wire acknowledge;
// the higher bits are probe-side conditions.
type Ack uint8

const (
	AckOK       Ack = 1 << 0
	AckWait     Ack = 1 << 1
	AckFault    Ack = 1 << 2
	AckError    Ack = 1 << 3 // read data parity mismatch
	AckMismatch Ack = 1 << 4
)

// OK reports whether the transfer succeeded.
func (a Ack) OK() bool { return a == AckOK }

// ProtocolError reports whether the wire acknowledge was malformed.
func (a Ack) ProtocolError() bool {
	switch a {
	case AckOK, AckWait, AckFault, AckError, AckMismatch:
		return false
	}
	return true
}

func (a Ack) String() string {
	switch a {
	case AckOK:
		return "OK"
	case AckWait:
		return "WAIT"
	case AckFault:
		return "FAULT"
	case AckError:
		return "PARITY"
	case AckMismatch:
		return "MISMATCH"
	}
	var parts []string
	if a&AckError != 0 {
		parts = append(parts, "PARITY")
	}
	return strings.Join(append(parts, fmt.Sprintf("PROTOCOL(0b%03b)", uint8(a)&7)), "|")
}
