package cmsisdap

import (
	"encoding/binary"
	"errors"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/swd"
)

// fakeProbe answers CMSIS-DAP commands the way probe firmware does,
// clocking a SimDriver so simulated targets can be attached to it.
type fakeProbe struct {
	d      *lines.SimDriver
	port   byte
	clock  uint32
	idcode uint32
	chain  []int
	cmds   []byte
	closed bool

	// fail makes the given command answer DAP_ERROR.
	fail byte
	// unplugged makes every command fail in the transport.
	unplugged bool
}

var errUnplugged = errors.New("usb: device gone")

func newFakeProbe() *fakeProbe {
	return &fakeProbe{d: lines.NewSimDriver(), fail: 0xFF}
}

func (f *fakeProbe) PacketSize() int { return 512 }

func (f *fakeProbe) Close() error {
	f.closed = true
	return nil
}

func (f *fakeProbe) count(cmd byte) int {
	n := 0
	for _, c := range f.cmds {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeProbe) shift(w seq.Wiring, bits int, tms, capture bool, out []byte) []byte {
	b := seq.NewSoftwareBackend(f.d, w, seq.NewClockTiming(0, 0))
	burst := &seq.Burst{Bits: bits, ModeSelect: tms, Capture: capture, Out: out}
	if capture {
		burst.In = make([]byte, seq.ByteLen(bits))
	}
	_ = b.Shift(burst)
	return burst.In
}

var swjWiring = seq.Wiring{
	Clock:      lines.PinTCK,
	DataOut:    lines.PinTMS,
	DataIn:     lines.PinTDO,
	ModeSelect: lines.PinNone,
}

func (f *fakeProbe) WriteRead(cmd []byte) ([]byte, error) {
	if f.unplugged {
		return nil, errUnplugged
	}
	f.cmds = append(f.cmds, cmd[0])
	if cmd[0] == f.fail {
		return []byte{cmd[0], StatusError}, nil
	}
	switch cmd[0] {
	case CmdInfo:
		return f.info(cmd[1]), nil

	case CmdConnect:
		f.port = cmd[1]
		if f.port == PortDefault {
			f.port = PortSWD
		}
		if f.port == PortJTAG {
			lines.ConfigureJTAG(f.d)
		} else {
			lines.ConfigureSWD(f.d)
		}
		return []byte{CmdConnect, f.port}, nil

	case CmdDisconnect:
		f.port = PortDefault
		lines.Release(f.d)
		return []byte{CmdDisconnect, StatusOK}, nil

	case CmdSWJClock:
		f.clock = binary.LittleEndian.Uint32(cmd[1:])
		return []byte{CmdSWJClock, StatusOK}, nil

	case CmdSWJPins:
		value, sel := cmd[1], cmd[2]
		for p := lines.Pin(0); int(p) < lines.NumPins; p++ {
			bit := lines.SWJBit(p)
			switch {
			case sel&bit == 0:
			case p == lines.PinNReset:
				lines.NewPins(f.d).NResetOut(value&bit != 0)
			default:
				f.d.Set(p, value&bit != 0)
			}
		}
		return []byte{CmdSWJPins, lines.NewPins(f.d).Snapshot()}, nil

	case CmdSWJSequence:
		n := int(cmd[1])
		if n == 0 {
			n = 256
		}
		f.shift(swjWiring, n, false, false, cmd[2:])
		return []byte{CmdSWJSequence, StatusOK}, nil

	case CmdJTAGSequence:
		resp := []byte{CmdJTAGSequence, StatusOK}
		off := 2
		for i := 0; i < int(cmd[1]); i++ {
			info := jtag.SequenceInfo(cmd[off])
			n := seq.ByteLen(info.Count())
			tdo := f.shift(seq.JTAGWiring, info.Count(), info.TMS(), info.CaptureTDO(), cmd[off+1:off+1+n])
			resp = append(resp, tdo...)
			off += 1 + n
		}
		return resp, nil

	case CmdSWDSequence:
		resp := []byte{CmdSWDSequence, StatusOK}
		off := 2
		for i := 0; i < int(cmd[1]); i++ {
			info := swd.SequenceInfo(cmd[off])
			off++
			if info.Input() {
				f.d.SetOutput(lines.PinSWDIO, false)
				resp = append(resp, f.shift(seq.SWDWiring, info.Count(), false, true, nil)...)
				continue
			}
			n := seq.ByteLen(info.Count())
			f.d.SetOutput(lines.PinSWDIO, true)
			f.shift(seq.SWDWiring, info.Count(), false, false, cmd[off:off+n])
			off += n
		}
		f.d.SetOutput(lines.PinSWDIO, true)
		return resp, nil

	case CmdJTAGConfigure:
		f.chain = f.chain[:0]
		for _, n := range cmd[2 : 2+int(cmd[1])] {
			f.chain = append(f.chain, int(n))
		}
		return []byte{CmdJTAGConfigure, StatusOK}, nil

	case CmdJTAGIDCode:
		resp := []byte{CmdJTAGIDCode, StatusOK, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(resp[2:], f.idcode)
		return resp, nil

	case CmdResetTarget:
		return []byte{CmdResetTarget, StatusOK, 0}, nil
	}
	return []byte{cmd[0], StatusError}, nil
}

func infoString(id byte, s string) []byte {
	return append([]byte{CmdInfo, byte(len(s) + 1)}, append([]byte(s), 0)...)
}

func (f *fakeProbe) info(id byte) []byte {
	switch id {
	case InfoVendor:
		return infoString(id, "OpenTraceLab")
	case InfoProduct:
		return infoString(id, "Sim Probe")
	case InfoSerial:
		return infoString(id, "E6614103")
	case InfoFirmware:
		return infoString(id, "2.1.0")
	case InfoCapabilities:
		return []byte{CmdInfo, 1, CapSWD | CapJTAG}
	case InfoPacketSize:
		return []byte{CmdInfo, 2, 0x40, 0x00}
	case InfoPacketCount:
		return []byte{CmdInfo, 1, 4}
	}
	return []byte{CmdInfo, 0}
}
