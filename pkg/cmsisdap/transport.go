package cmsisdap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	VendorIDRaspberryPi = 0x2E8A
	ProductIDDebugProbe = 0x000C

	// DefaultPacketSize is the CMSIS-DAP v1 packet size, used until the
	// endpoint descriptor says otherwise.
	DefaultPacketSize = 64
	DefaultTimeout    = 5 * time.Second
)

// Transport carries one command packet to the probe and returns its
// response.
type Transport interface {
	WriteRead(cmd []byte) ([]byte, error)
	PacketSize() int
	Close() error
}

// USBTransport talks to a CMSIS-DAP v2 probe over its vendor bulk
// interface.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
}

// NewUSBTransport opens the first probe matching vid:pid.
func NewUSBTransport(vid, pid uint16) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open %04X:%04X: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("probe %04X:%04X not found", vid, pid)
	}
	// Detaching the kernel driver is not supported everywhere.
	_ = dev.SetAutoDetach(true)

	t := &USBTransport{
		ctx:        ctx,
		dev:        dev,
		packetSize: DefaultPacketSize,
		timeout:    DefaultTimeout,
	}
	if err := t.claim(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// claim opens the vendor-class interface carrying the bulk endpoints.
func (t *USBTransport) claim() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("usb config: %w", err)
	}
	t.cfg = cfg

	num := 0
	for _, desc := range cfg.Desc.Interfaces {
		if len(desc.AltSettings) > 0 && desc.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = desc.Number
			break
		}
	}
	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("claim interface %d: %w", num, err)
	}
	t.intf = intf

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outNum == 0:
			outNum = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inNum == 0:
			inNum = ep.Number
			t.packetSize = ep.MaxPacketSize
		}
	}
	if outNum == 0 || inNum == 0 {
		return fmt.Errorf("interface %d has no bulk endpoint pair", num)
	}

	if t.epOut, err = intf.OutEndpoint(outNum); err != nil {
		return fmt.Errorf("open OUT endpoint: %w", err)
	}
	if t.epIn, err = intf.InEndpoint(inNum); err != nil {
		return fmt.Errorf("open IN endpoint: %w", err)
	}
	return nil
}

// WriteRead sends cmd padded to a full packet and waits for the response.
func (t *USBTransport) WriteRead(cmd []byte) ([]byte, error) {
	if len(cmd) > t.packetSize {
		return nil, fmt.Errorf("command of %d bytes exceeds packet size %d", len(cmd), t.packetSize)
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	packet := make([]byte, t.packetSize)
	copy(packet, cmd)
	if _, err := t.epOut.WriteContext(ctx, packet); err != nil {
		return nil, fmt.Errorf("usb write: %w", err)
	}
	resp := make([]byte, t.packetSize)
	n, err := t.epIn.ReadContext(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("usb read: %w", err)
	}
	return resp[:n], nil
}

func (t *USBTransport) PacketSize() int { return t.packetSize }

// SetTimeout bounds each WriteRead.
func (t *USBTransport) SetTimeout(d time.Duration) { t.timeout = d }

func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
