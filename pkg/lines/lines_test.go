package lines

import "testing"

type edgeRecorder struct {
	edges []bool
}

func (r *edgeRecorder) ClockEdge(d *SimDriver, rising bool) {
	r.edges = append(r.edges, rising)
}

func TestPinString(t *testing.T) {
	tests := []struct {
		pin  Pin
		want string
	}{
		{PinTCK, "SWCLK/TCK"},
		{PinSWDIO, "SWDIO/TMS"},
		{PinNReset, "nRESET"},
		{PinNone, "none"},
		{Pin(42), "Pin(42)"},
	}
	for _, tt := range tests {
		if got := tt.pin.String(); got != tt.want {
			t.Errorf("Pin(%d).String() = %q, want %q", tt.pin, got, tt.want)
		}
	}
	if PinNone.Valid() {
		t.Fatal("PinNone should not be valid")
	}
}

func TestSimDriverPullUp(t *testing.T) {
	d := NewSimDriver()
	if !d.Get(PinTDO) {
		t.Fatal("undriven TDO should read high")
	}
	d.Drive(PinTDO, false)
	if d.Get(PinTDO) {
		t.Fatal("target-driven TDO should read low")
	}
	d.Float(PinTDO)
	if !d.Get(PinTDO) {
		t.Fatal("released TDO should read high again")
	}

	d.Set(PinTDI, false)
	if !d.Get(PinTDI) {
		t.Fatal("latch must not show while TDI is an input")
	}
	d.SetOutput(PinTDI, true)
	if d.Get(PinTDI) {
		t.Fatal("driven TDI should read the latch")
	}
}

func TestSimDriverEdges(t *testing.T) {
	d := NewSimDriver()
	rec := &edgeRecorder{}
	d.Attach(rec)

	ConfigureJTAG(d)
	for i := 0; i < 3; i++ {
		d.Set(PinTCK, false)
		d.Set(PinTCK, true)
	}
	if d.Cycles() != 3 || d.FallingEdges() != 3 {
		t.Fatalf("cycles=%d falling=%d, want 3/3", d.Cycles(), d.FallingEdges())
	}
	if len(rec.edges) != 6 || rec.edges[0] || !rec.edges[1] {
		t.Fatalf("unexpected edge log %v", rec.edges)
	}

	// Writing the same level twice is not an edge.
	d.Set(PinTCK, true)
	if d.Cycles() != 3 {
		t.Fatalf("cycles=%d after repeated high, want 3", d.Cycles())
	}
}

func TestConfigureAndRelease(t *testing.T) {
	d := NewSimDriver()
	ConfigureSWD(d)
	if !d.Enabled() || !d.IsOutput(PinSWDIO) || !d.IsOutput(PinSWCLK) {
		t.Fatal("SWD configuration should drive SWCLK and SWDIO")
	}
	if d.IsOutput(PinTDI) || d.IsOutput(PinNTRST) {
		t.Fatal("SWD configuration should release TDI and nTRST")
	}
	if d.IsOutput(PinNReset) || !d.Get(PinNReset) {
		t.Fatal("SWD configuration should leave nRESET released high")
	}
	ConfigureJTAG(d)
	if !d.IsOutput(PinNTRST) || d.IsOutput(PinNReset) || !d.Get(PinNReset) {
		t.Fatal("JTAG configuration should drive nTRST and release nRESET")
	}

	Release(d)
	once := d.Snapshot()
	Release(d)
	if twice := d.Snapshot(); once != twice {
		t.Fatalf("second release changed line state:\n%+v\n%+v", once, twice)
	}
	for p := Pin(0); int(p) < NumPins; p++ {
		if d.IsOutput(p) {
			t.Errorf("%s still driven after release", p)
		}
	}
}

func TestPinsAccessors(t *testing.T) {
	d := NewSimDriver()
	ConfigureJTAG(d)
	pins := NewPins(d)

	pins.SWCLKTCKClr()
	pins.TDIOut(false)
	pins.NResetOut(false)
	if pins.SWCLKTCKIn() || pins.TDIIn() || pins.NResetIn() {
		t.Fatal("accessors should drive lines low")
	}
	pins.NResetOut(true)
	if d.IsOutput(PinNReset) || !pins.NResetIn() {
		t.Fatal("nRESET high should release the line")
	}

	d.Drive(PinTDO, false)
	pins.SWCLKTCKSet()
	// TCK=1, TMS=1, TDI=0, TDO=0, nTRST=1, nRESET=1
	if got, want := pins.Snapshot(), uint8(0x01|0x02|0x20|0x80); got != want {
		t.Fatalf("Snapshot() = %#02x, want %#02x", got, want)
	}
	if SWJBit(PinTDO) != 0x08 || SWJBit(PinNone) != 0 {
		t.Fatal("SWJBit mapping is wrong")
	}
}
