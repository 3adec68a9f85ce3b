package cmsisdap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/swd"
)

// Command IDs
const (
	CmdInfo          = 0x00
	CmdHostStatus    = 0x01
	CmdConnect       = 0x02
	CmdDisconnect    = 0x03
	CmdResetTarget   = 0x0A
	CmdSWJPins       = 0x10
	CmdSWJClock      = 0x11
	CmdSWJSequence   = 0x12
	CmdSWDConfigure  = 0x13
	CmdJTAGSequence  = 0x14
	CmdJTAGConfigure = 0x15
	CmdJTAGIDCode    = 0x16
	CmdSWDSequence   = 0x1D
)

// DAP_Info IDs
const (
	InfoVendor       = 0x01
	InfoProduct      = 0x02
	InfoSerial       = 0x03
	InfoFirmware     = 0x04
	InfoCapabilities = 0xF0
	InfoPacketCount  = 0xFE
	InfoPacketSize   = 0xFF
)

// Capability bits reported by InfoCapabilities.
const (
	CapSWD  = 1 << 0
	CapJTAG = 1 << 1
)

// Connect ports
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

var (
	// ErrStatus indicates the probe answered a command with DAP_ERROR.
	ErrStatus = errors.New("cmsisdap: command failed")
	// ErrResponse indicates a response that does not match its command.
	ErrResponse = errors.New("cmsisdap: malformed response")
)

// Protocol encodes commands and decodes responses.
type Protocol struct {
	PacketSize int
}

// NewProtocol returns a codec for packets of packetSize bytes.
func NewProtocol(packetSize int) *Protocol {
	return &Protocol{PacketSize: packetSize}
}

func header(resp []byte, cmd byte, n int) error {
	if len(resp) < n {
		return fmt.Errorf("%w: command 0x%02X: %d bytes, want %d", ErrResponse, cmd, len(resp), n)
	}
	if resp[0] != cmd {
		return fmt.Errorf("%w: command 0x%02X answered by 0x%02X", ErrResponse, cmd, resp[0])
	}
	return nil
}

// pad returns the first n bytes of b, zero-extended when b is shorter.
func pad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// status checks the common two byte [command, status] response.
func status(resp []byte, cmd byte) error {
	if err := header(resp, cmd, 2); err != nil {
		return err
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("%w: command 0x%02X status 0x%02X", ErrStatus, cmd, resp[1])
	}
	return nil
}

func (p *Protocol) EncodeInfo(id byte) []byte {
	return []byte{CmdInfo, id}
}

// DecodeInfo returns the raw info payload.
func (p *Protocol) DecodeInfo(resp []byte) ([]byte, error) {
	if err := header(resp, CmdInfo, 2); err != nil {
		return nil, err
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return nil, fmt.Errorf("%w: info payload of %d bytes truncated", ErrResponse, n)
	}
	return resp[2 : 2+n], nil
}

// DecodeInfoString returns a string info item without its NUL terminator.
func (p *Protocol) DecodeInfoString(resp []byte) (string, error) {
	b, err := p.DecodeInfo(resp)
	if err != nil {
		return "", err
	}
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

// DecodeInfoUint returns a 1, 2 or 4 byte little-endian info item.
func (p *Protocol) DecodeInfoUint(resp []byte) (uint32, error) {
	b, err := p.DecodeInfo(resp)
	if err != nil {
		return 0, err
	}
	switch len(b) {
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return binary.LittleEndian.Uint32(b), nil
	}
	return 0, fmt.Errorf("%w: numeric info of %d bytes", ErrResponse, len(b))
}

func (p *Protocol) EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect returns the port the probe connected.
func (p *Protocol) DecodeConnect(resp []byte) (byte, error) {
	if err := header(resp, CmdConnect, 2); err != nil {
		return 0, err
	}
	if resp[1] == PortDefault {
		return 0, fmt.Errorf("%w: connect refused", ErrStatus)
	}
	return resp[1], nil
}

func (p *Protocol) EncodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

func (p *Protocol) DecodeDisconnect(resp []byte) error {
	return status(resp, CmdDisconnect)
}

func (p *Protocol) EncodeResetTarget() []byte {
	return []byte{CmdResetTarget}
}

// DecodeResetTarget reports whether the probe ran a device-specific reset
// sequence.
func (p *Protocol) DecodeResetTarget(resp []byte) (bool, error) {
	if err := status(resp, CmdResetTarget); err != nil {
		return false, err
	}
	return len(resp) > 2 && resp[2] != 0, nil
}

// EncodeSWJPins drives the pins selected in sel to value, then waits up to
// waitUS microseconds for them to settle.
func (p *Protocol) EncodeSWJPins(value, sel byte, waitUS uint32) []byte {
	cmd := []byte{CmdSWJPins, value, sel, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(cmd[3:], waitUS)
	return cmd
}

// DecodeSWJPins returns the pin input levels.
func (p *Protocol) DecodeSWJPins(resp []byte) (byte, error) {
	if err := header(resp, CmdSWJPins, 2); err != nil {
		return 0, err
	}
	return resp[1], nil
}

func (p *Protocol) EncodeSWJClock(hz uint32) []byte {
	cmd := []byte{CmdSWJClock, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

func (p *Protocol) DecodeSWJClock(resp []byte) error {
	return status(resp, CmdSWJClock)
}

// EncodeSWJSequence drives count (1 to 256) bits of data on SWDIO/TMS.
func (p *Protocol) EncodeSWJSequence(count int, data []byte) []byte {
	n := seq.ByteLen(count)
	cmd := make([]byte, 2+n)
	cmd[0] = CmdSWJSequence
	cmd[1] = byte(count) // 256 encodes as 0
	copy(cmd[2:], data)
	return cmd
}

func (p *Protocol) DecodeSWJSequence(resp []byte) error {
	return status(resp, CmdSWJSequence)
}

// EncodeSWDConfigure sets the turnaround period (1 to 4) and the data phase
// on WAIT/FAULT for probe-side transfers.
func (p *Protocol) EncodeSWDConfigure(turnaround int, dataPhase bool) []byte {
	cfg := byte(turnaround-1) & 3
	if dataPhase {
		cfg |= 1 << 2
	}
	return []byte{CmdSWDConfigure, cfg}
}

func (p *Protocol) DecodeSWDConfigure(resp []byte) error {
	return status(resp, CmdSWDConfigure)
}

// EncodeJTAGConfigure describes the scan chain, one IR length per device.
func (p *Protocol) EncodeJTAGConfigure(irLengths []int) []byte {
	cmd := make([]byte, 2+len(irLengths))
	cmd[0] = CmdJTAGConfigure
	cmd[1] = byte(len(irLengths))
	for i, n := range irLengths {
		cmd[2+i] = byte(n)
	}
	return cmd
}

func (p *Protocol) DecodeJTAGConfigure(resp []byte) error {
	return status(resp, CmdJTAGConfigure)
}

func (p *Protocol) EncodeJTAGIDCode(index byte) []byte {
	return []byte{CmdJTAGIDCode, index}
}

func (p *Protocol) DecodeJTAGIDCode(resp []byte) (uint32, error) {
	if err := status(resp, CmdJTAGIDCode); err != nil {
		return 0, err
	}
	if len(resp) < 6 {
		return 0, fmt.Errorf("%w: IDCODE truncated", ErrResponse)
	}
	return binary.LittleEndian.Uint32(resp[2:6]), nil
}

// JTAGSequence is one entry of DAP_JTAG_Sequence.
type JTAGSequence struct {
	Info jtag.SequenceInfo
	TDI  []byte
}

func (p *Protocol) EncodeJTAGSequence(seqs []JTAGSequence) []byte {
	cmd := []byte{CmdJTAGSequence, byte(len(seqs))}
	for _, s := range seqs {
		n := seq.ByteLen(s.Info.Count())
		cmd = append(cmd, byte(s.Info))
		cmd = append(cmd, pad(s.TDI, n)...)
	}
	return cmd
}

// DecodeJTAGSequence returns the TDO bits of every capturing entry, in
// order.
func (p *Protocol) DecodeJTAGSequence(resp []byte, seqs []JTAGSequence) ([][]byte, error) {
	if err := status(resp, CmdJTAGSequence); err != nil {
		return nil, err
	}
	var tdo [][]byte
	off := 2
	for _, s := range seqs {
		if !s.Info.CaptureTDO() {
			continue
		}
		n := seq.ByteLen(s.Info.Count())
		if off+n > len(resp) {
			return nil, fmt.Errorf("%w: TDO data truncated", ErrResponse)
		}
		tdo = append(tdo, resp[off:off+n])
		off += n
	}
	return tdo, nil
}

// SWDSequence is one entry of DAP_SWD_Sequence. Data is sent for output
// entries only.
type SWDSequence struct {
	Info swd.SequenceInfo
	Data []byte
}

func (p *Protocol) EncodeSWDSequence(seqs []SWDSequence) []byte {
	cmd := []byte{CmdSWDSequence, byte(len(seqs))}
	for _, s := range seqs {
		cmd = append(cmd, byte(s.Info))
		if !s.Info.Input() {
			cmd = append(cmd, pad(s.Data, seq.ByteLen(s.Info.Count()))...)
		}
	}
	return cmd
}

// DecodeSWDSequence returns the SWDIO bits of every input entry, in order.
func (p *Protocol) DecodeSWDSequence(resp []byte, seqs []SWDSequence) ([][]byte, error) {
	if err := status(resp, CmdSWDSequence); err != nil {
		return nil, err
	}
	var in [][]byte
	off := 2
	for _, s := range seqs {
		if !s.Info.Input() {
			continue
		}
		n := seq.ByteLen(s.Info.Count())
		if off+n > len(resp) {
			return nil, fmt.Errorf("%w: SWDIO data truncated", ErrResponse)
		}
		in = append(in, resp[off:off+n])
		off += n
	}
	return in, nil
}
