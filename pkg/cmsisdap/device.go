// Package cmsisdap drives a remote CMSIS-DAP probe as the shift engine and
// line driver of a probe.Port. JTAG and SWD bursts travel as
// DAP_JTAG_Sequence and DAP_SWD_Sequence commands, line levels as
// DAP_SWJ_Pins.
package cmsisdap

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
)

var log = logrus.WithField("prefix", "cmsisdap")

// Info is what the probe reports about itself.
type Info struct {
	Vendor       string
	Product      string
	Serial       string
	Firmware     string
	Capabilities uint8
	PacketSize   int
	PacketCount  int
}

// SupportsJTAG reports the JTAG capability bit.
func (i Info) SupportsJTAG() bool { return i.Capabilities&CapJTAG != 0 }

// SupportsSWD reports the SWD capability bit.
func (i Info) SupportsSWD() bool { return i.Capabilities&CapSWD != 0 }

// Device is an open probe. Commands are serialized.
type Device struct {
	t     Transport
	proto *Protocol
	info  Info

	mu   sync.Mutex
	port byte
}

// Open queries the probe on t. String items the probe does not report are
// left empty.
func Open(t Transport) (*Device, error) {
	d := &Device{t: t, proto: NewProtocol(t.PacketSize())}
	if err := d.queryInfo(); err != nil {
		return nil, fmt.Errorf("query probe info: %w", err)
	}
	log.WithFields(logrus.Fields{
		"product":  d.info.Product,
		"firmware": d.info.Firmware,
		"packet":   d.info.PacketSize,
	}).Debug("probe opened")
	return d, nil
}

// OpenUSB opens the probe at vid:pid.
func OpenUSB(vid, pid uint16) (*Device, error) {
	t, err := NewUSBTransport(vid, pid)
	if err != nil {
		return nil, err
	}
	d, err := Open(t)
	if err != nil {
		t.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) queryInfo() error {
	caps, err := d.infoUint(InfoCapabilities)
	if err != nil {
		return err
	}
	d.info.Capabilities = uint8(caps)
	d.info.PacketSize = d.t.PacketSize()
	if n, err := d.infoUint(InfoPacketSize); err == nil && n > 0 && int(n) < d.info.PacketSize {
		d.info.PacketSize = int(n)
	}
	if n, err := d.infoUint(InfoPacketCount); err == nil {
		d.info.PacketCount = int(n)
	}
	d.info.Vendor = d.infoString(InfoVendor)
	d.info.Product = d.infoString(InfoProduct)
	d.info.Serial = d.infoString(InfoSerial)
	d.info.Firmware = d.infoString(InfoFirmware)
	d.proto.PacketSize = d.info.PacketSize
	return nil
}

func (d *Device) infoUint(id byte) (uint32, error) {
	resp, err := d.command(d.proto.EncodeInfo(id))
	if err != nil {
		return 0, err
	}
	return d.proto.DecodeInfoUint(resp)
}

func (d *Device) infoString(id byte) string {
	resp, err := d.command(d.proto.EncodeInfo(id))
	if err != nil {
		return ""
	}
	s, _ := d.proto.DecodeInfoString(resp)
	return s
}

// Info returns the probe description read at Open.
func (d *Device) Info() Info { return d.info }

func (d *Device) command(cmd []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t.WriteRead(cmd)
}

// Connect selects the debug port mode.
func (d *Device) Connect(port byte) error {
	resp, err := d.command(d.proto.EncodeConnect(port))
	if err != nil {
		return err
	}
	got, err := d.proto.DecodeConnect(resp)
	if err != nil {
		return err
	}
	if port != PortDefault && got != port {
		return fmt.Errorf("%w: connected port %d, want %d", ErrStatus, got, port)
	}
	d.port = got
	return nil
}

// Connected returns the connected port, or PortDefault when disconnected.
func (d *Device) Connected() byte { return d.port }

// Disconnect releases the debug port. It is a no-op when not connected.
func (d *Device) Disconnect() error {
	if d.port == PortDefault {
		return nil
	}
	resp, err := d.command(d.proto.EncodeDisconnect())
	if err != nil {
		return err
	}
	d.port = PortDefault
	return d.proto.DecodeDisconnect(resp)
}

// SetClock sets the SWCLK/TCK rate.
func (d *Device) SetClock(hz uint32) error {
	resp, err := d.command(d.proto.EncodeSWJClock(hz))
	if err != nil {
		return err
	}
	return d.proto.DecodeSWJClock(resp)
}

// Pins drives the pins selected in sel to value and returns the levels of
// all pins.
func (d *Device) Pins(value, sel byte, waitUS uint32) (byte, error) {
	resp, err := d.command(d.proto.EncodeSWJPins(value, sel, waitUS))
	if err != nil {
		return 0, err
	}
	return d.proto.DecodeSWJPins(resp)
}

// SWJSequence drives count bits on SWDIO/TMS in commands of up to 256 bits.
func (d *Device) SWJSequence(count int, data []byte) error {
	if len(data)*8 < count {
		return fmt.Errorf("swj sequence of %d bits: %w", count, seq.ErrShortBuffer)
	}
	for done := 0; done < count; {
		n := count - done
		if n > 256 {
			n = 256
		}
		chunk := make([]byte, seq.ByteLen(n))
		seq.CopyBits(chunk, 0, data, done, n)
		resp, err := d.command(d.proto.EncodeSWJSequence(n, chunk))
		if err != nil {
			return err
		}
		if err := d.proto.DecodeSWJSequence(resp); err != nil {
			return err
		}
		done += n
	}
	return nil
}

// JTAGSequence runs sequences and returns the TDO data of capturing ones.
func (d *Device) JTAGSequence(seqs []JTAGSequence) ([][]byte, error) {
	resp, err := d.command(d.proto.EncodeJTAGSequence(seqs))
	if err != nil {
		return nil, err
	}
	return d.proto.DecodeJTAGSequence(resp, seqs)
}

// SWDSequence runs sequences and returns the data of input ones.
func (d *Device) SWDSequence(seqs []SWDSequence) ([][]byte, error) {
	resp, err := d.command(d.proto.EncodeSWDSequence(seqs))
	if err != nil {
		return nil, err
	}
	return d.proto.DecodeSWDSequence(resp, seqs)
}

// ConfigureChain tells the probe the IR length of every device on the scan
// chain, as needed by its own IDCODE readout.
func (d *Device) ConfigureChain(irLengths []int) error {
	resp, err := d.command(d.proto.EncodeJTAGConfigure(irLengths))
	if err != nil {
		return err
	}
	return d.proto.DecodeJTAGConfigure(resp)
}

// ReadIDCode has the probe read the IDCODE of device index.
func (d *Device) ReadIDCode(index int) (uint32, error) {
	resp, err := d.command(d.proto.EncodeJTAGIDCode(byte(index)))
	if err != nil {
		return 0, err
	}
	return d.proto.DecodeJTAGIDCode(resp)
}

// ResetTarget runs the probe's target reset sequence.
func (d *Device) ResetTarget() (bool, error) {
	resp, err := d.command(d.proto.EncodeResetTarget())
	if err != nil {
		return false, err
	}
	return d.proto.DecodeResetTarget(resp)
}

// Close disconnects and closes the transport.
func (d *Device) Close() error {
	if err := d.Disconnect(); err != nil {
		log.WithError(err).Debug("disconnect on close")
	}
	return d.t.Close()
}
