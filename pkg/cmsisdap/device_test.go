package cmsisdap

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/sim"
)

const (
	testDPIDR  = 0x2BA01477
	testIDCODE = 0x4BA00477
)

func openFake(t *testing.T) (*Device, *fakeProbe) {
	t.Helper()
	f := newFakeProbe()
	dev, err := Open(f)
	if err != nil {
		t.Fatal(err)
	}
	return dev, f
}

func newFakePort(t *testing.T) (*probe.Port, *Device, *fakeProbe) {
	t.Helper()
	dev, f := openFake(t)
	hw := probe.Hardware{Lines: NewLineDriver(dev), Accelerator: NewAccelerator(dev)}
	return probe.NewPort(hw, nil), dev, f
}

func TestOpenQueriesInfo(t *testing.T) {
	dev, _ := openFake(t)
	info := dev.Info()

	if info.Vendor != "OpenTraceLab" || info.Product != "Sim Probe" || info.Serial != "E6614103" || info.Firmware != "2.1.0" {
		t.Fatalf("strings = %+v", info)
	}
	if !info.SupportsJTAG() || !info.SupportsSWD() {
		t.Fatalf("capabilities = %#x", info.Capabilities)
	}
	if info.PacketSize != 64 || info.PacketCount != 4 {
		t.Fatalf("packets = %d x %d", info.PacketCount, info.PacketSize)
	}
}

func TestOpenRequiresCapabilities(t *testing.T) {
	f := newFakeProbe()
	f.fail = CmdInfo
	if _, err := Open(f); !errors.Is(err, ErrResponse) {
		t.Fatalf("Open = %v, want ErrResponse", err)
	}
}

func TestSWJSequenceChunks(t *testing.T) {
	dev, f := openFake(t)
	if err := dev.Connect(PortSWD); err != nil {
		t.Fatal(err)
	}
	f.d.ResetCounters()

	if err := dev.SWJSequence(300, make([]byte, 38)); err != nil {
		t.Fatal(err)
	}
	if n := f.count(CmdSWJSequence); n != 2 {
		t.Fatalf("%d SWJ commands, want 2", n)
	}
	if got := f.d.Cycles(); got != 300 {
		t.Fatalf("clocked %d cycles, want 300", got)
	}
	if err := dev.SWJSequence(17, []byte{0xFF, 0xFF}); !errors.Is(err, seq.ErrShortBuffer) {
		t.Fatalf("short buffer: %v", err)
	}
}

func TestPortSWDOverProbe(t *testing.T) {
	p, dev, f := newFakePort(t)
	target := sim.NewSWDTarget(testDPIDR)
	f.d.Attach(target)

	if err := p.SWDSetup(); err != nil {
		t.Fatal(err)
	}
	if dev.Connected() != PortSWD {
		t.Fatalf("connected port %d", dev.Connected())
	}
	if err := p.SWJSequence(swdLineReset, resetBits); err != nil {
		t.Fatal(err)
	}

	var v uint32
	ack, err := p.SWDTransfer(dp.NewRequest(false, true, 0), &v)
	if err != nil {
		t.Fatal(err)
	}
	if ack != dp.AckOK || v != testDPIDR {
		t.Fatalf("read DPIDR = %#x (%s)", v, ack)
	}

	ack, err = p.SWDTransfer(dp.NewRequest(false, false, sim.RegSelect), ptr(0xF0))
	if err != nil || ack != dp.AckOK {
		t.Fatalf("write SELECT: %s, %v", ack, err)
	}
	if target.DAP.Select != 0xF0 {
		t.Fatalf("SELECT = %#x", target.DAP.Select)
	}
	if f.clock != seq.DefaultClockHz {
		t.Fatalf("probe clock %d", f.clock)
	}

	p.Off()
	if dev.Connected() != PortDefault || f.port != PortDefault {
		t.Fatal("probe still connected after Off")
	}
}

func TestPortJTAGOverProbe(t *testing.T) {
	p, dev, f := newFakePort(t)
	chain := sim.NewJTAGChain(sim.NewJTAGDP(testIDCODE))
	f.d.Attach(chain)

	if err := p.JTAGSetup(); err != nil {
		t.Fatal(err)
	}
	if dev.Connected() != PortJTAG {
		t.Fatalf("connected port %d", dev.Connected())
	}
	if err := p.SWJSequence(6, []byte{0x1F}); err != nil {
		t.Fatal(err)
	}
	id, err := p.JTAGReadIDCode()
	if err != nil {
		t.Fatal(err)
	}
	if id != testIDCODE {
		t.Fatalf("IDCODE = %#08x, want %#08x", id, testIDCODE)
	}
	if f.count(CmdJTAGSequence) == 0 {
		t.Fatal("no JTAG sequence commands sent")
	}
}

func TestPortSetupFailsWhenConnectRefused(t *testing.T) {
	p, _, f := newFakePort(t)
	f.fail = CmdConnect

	err := p.SWDSetup()
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("SWDSetup = %v, want ErrStatus", err)
	}
	if p.Mode() != probe.ModeDisabled {
		t.Fatalf("mode %s after failed setup", p.Mode())
	}
}

func TestLineDriverLatchesFirstError(t *testing.T) {
	dev, f := openFake(t)
	ld := NewLineDriver(dev)
	if err := dev.Connect(PortSWD); err != nil {
		t.Fatal(err)
	}

	ld.Set(lines.PinNReset, false)
	if ld.Err() != nil || f.d.Get(lines.PinNReset) {
		t.Fatalf("nRESET not driven low: %v", ld.Err())
	}
	if ld.Get(lines.PinNReset) {
		t.Fatal("Get(nRESET) = true")
	}

	f.unplugged = true
	ld.Set(lines.PinTDI, true)
	ld.Set(lines.PinTCK, false)
	if !errors.Is(ld.Err(), errUnplugged) {
		t.Fatalf("Err = %v, want errUnplugged", ld.Err())
	}
	if !ld.Get(lines.PinTDI) {
		t.Fatal("failed Get should read high")
	}

	ld.SetOutput(lines.PinTDI, true)
	if !ld.IsOutput(lines.PinTDI) || ld.IsOutput(lines.PinNone) {
		t.Fatal("direction not recorded")
	}
}

const swdLineReset = 51 + 2

var resetBits = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x07}

func ptr(v uint32) *uint32 { return &v }
