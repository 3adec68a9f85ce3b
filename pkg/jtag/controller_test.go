package jtag

import (
	"bytes"
	"errors"
	"math/bits"
	"testing"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/sim"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

const testDPID = 0x4BA00477

type bench struct {
	ctl   *Controller
	chain *sim.JTAGChain
	d     *lines.SimDriver
	cfg   *Config
}

func newBench(t *testing.T, ch Chain, devs ...*sim.JTAGDevice) *bench {
	t.Helper()
	d := lines.NewSimDriver()
	lines.ConfigureJTAG(d)
	chain := sim.NewJTAGChain(devs...)
	d.Attach(chain)

	cfg := &Config{Chain: ch}
	eng := seq.NewEngine(seq.NewSoftwareBackend(d, seq.JTAGWiring, seq.NewClockTiming(0, 0)), nil)
	ctl := NewController(eng, cfg)
	if err := ctl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if chain.State() != tap.RunTestIdle {
		t.Fatalf("chain in %s after reset", chain.State())
	}
	return &bench{ctl: ctl, chain: chain, d: d, cfg: cfg}
}

func TestReadIDCodeSingleDevice(t *testing.T) {
	b := newBench(t, Chain{IRLength: []int{4}}, sim.NewJTAGDP(testDPID))

	id, err := b.ctl.ReadIDCode()
	if err != nil {
		t.Fatal(err)
	}
	if id != testDPID {
		t.Fatalf("ReadIDCode() = %#08x, want %#08x", id, testDPID)
	}
	if b.chain.State() != tap.RunTestIdle || b.ctl.State() != tap.RunTestIdle {
		t.Fatalf("TAP in %s (tracked %s), want Run-Test/Idle", b.chain.State(), b.ctl.State())
	}
	if info := DecodeIDCode(id); info.ManufacturerCode != 0x23B {
		t.Fatalf("manufacturer %#x", info.ManufacturerCode)
	}
}

func threeDeviceChain(index int) (Chain, []*sim.JTAGDevice) {
	devs := []*sim.JTAGDevice{
		sim.NewJTAGDevice(0x06413041, 5, 0x01),
		sim.NewJTAGDP(testDPID),
		sim.NewJTAGDevice(0x13631093, 8, 0x09),
	}
	return Chain{Index: index, IRLength: []int{5, 4, 8}}, devs
}

func TestIRSelectsTargetAndBypassesOthers(t *testing.T) {
	ch, devs := threeDeviceChain(1)
	b := newBench(t, ch, devs...)

	old, err := b.ctl.IR(sim.IRDPACC)
	if err != nil {
		t.Fatal(err)
	}
	if old != sim.IRIDCode {
		t.Fatalf("IR returned %#x, want the previous instruction %#x", old, sim.IRIDCode)
	}
	if devs[1].IR != sim.IRDPACC {
		t.Fatalf("target IR = %#x, want %#x", devs[1].IR, sim.IRDPACC)
	}
	if devs[0].IR != 0x1F || devs[2].IR != 0xFF {
		t.Fatalf("bypass IRs = %#x/%#x, want all ones", devs[0].IR, devs[2].IR)
	}

	if _, err := b.ctl.IR(sim.IRIDCode); err != nil {
		t.Fatal(err)
	}
	id, err := b.ctl.ReadIDCode()
	if err != nil {
		t.Fatal(err)
	}
	if id != testDPID {
		t.Fatalf("ReadIDCode() through bypass = %#08x", id)
	}
	if !b.d.Get(lines.PinTDI) {
		t.Fatal("TDI should idle high")
	}
}

// wireRecorder logs the TMS and TDI level of every cycle.
type wireRecorder struct {
	tms, tdi []bool
	level    bool
}

func (w *wireRecorder) MaxBurst() int { return 0 }

func (w *wireRecorder) Shift(b *seq.Burst) error {
	for i := 0; i < b.Bits; i++ {
		w.tms = append(w.tms, b.ModeSelect)
		w.tdi = append(w.tdi, seq.GetBit(b.Out, i))
	}
	return nil
}

func (w *wireRecorder) SetDataLevel(level bool) error { w.level = level; return nil }
func (w *wireRecorder) SetDataDirection(bool) error   { return nil }

func TestIRBypassArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		index  int
		before int
		after  int
	}{
		{"middle", 1, 5, 8},
		{"last", 2, 9, 0},
		{"first", 0, 0, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, _ := threeDeviceChain(tt.index)
			if ch.IRBefore() != tt.before || ch.IRAfter() != tt.after {
				t.Fatalf("IRBefore/After = %d/%d, want %d/%d", ch.IRBefore(), ch.IRAfter(), tt.before, tt.after)
			}

			rec := &wireRecorder{}
			ctl := NewController(seq.NewEngine(rec, nil), &Config{Chain: ch})
			ctl.tap.Walk(false) // start in Run-Test/Idle
			const instr = 0x2A
			if _, err := ctl.IR(instr); err != nil {
				t.Fatal(err)
			}

			n := ch.IRLength[tt.index]
			want := 4 + tt.before + n + tt.after + 2
			if tt.after == 0 {
				want = 4 + tt.before + n + 2
			}
			if len(rec.tms) != want {
				t.Fatalf("IR scan took %d cycles, want %d", len(rec.tms), want)
			}

			pos := 0
			expectTMS := func(v bool, count int, what string) {
				for i := 0; i < count; i++ {
					if rec.tms[pos] != v {
						t.Fatalf("%s: cycle %d TMS=%v, want %v", what, pos, rec.tms[pos], v)
					}
					pos++
				}
			}
			expectTMS(true, 2, "select")
			expectTMS(false, 2, "capture/shift")
			for i := 0; i < tt.before; i++ {
				if !rec.tdi[pos+i] {
					t.Fatalf("filler bit %d before instruction is low", i)
				}
			}
			expectTMS(false, tt.before, "bypass before")
			for i := 0; i < n; i++ {
				if rec.tdi[pos+i] != (instr>>uint(i)&1 == 1) {
					t.Fatalf("instruction bit %d wrong", i)
				}
			}
			expectTMS(false, n-1, "instruction")
			if tt.after == 0 {
				expectTMS(true, 1, "last instruction bit exits")
			} else {
				expectTMS(false, 1, "last instruction bit")
				for i := 0; i < tt.after; i++ {
					if !rec.tdi[pos+i] {
						t.Fatalf("filler bit %d after instruction is low", i)
					}
				}
				expectTMS(false, tt.after-1, "bypass after")
				expectTMS(true, 1, "exit")
			}
			expectTMS(true, 1, "update")
			expectTMS(false, 1, "idle")
			if !rec.level || ctl.State() != tap.RunTestIdle {
				t.Fatalf("TDI level %v, state %s after IR", rec.level, ctl.State())
			}
		})
	}
}

func TestTransferReadWrite(t *testing.T) {
	ch, devs := threeDeviceChain(1)
	b := newBench(t, ch, devs...)
	dap := devs[1].DAP

	if _, err := b.ctl.IR(sim.IRDPACC); err != nil {
		t.Fatal(err)
	}
	var data uint32 = 0x01000000
	ack, err := b.ctl.Transfer(dp.NewRequest(false, false, sim.RegSelect), &data, true)
	if err != nil || ack != dp.AckOK {
		t.Fatalf("write SELECT: ack=%s err=%v", ack, err)
	}
	if dap.Select != 0x01000000 {
		t.Fatalf("SELECT = %#x", dap.Select)
	}

	// Reads are posted: the value arrives with the next scan.
	if _, err := b.ctl.Transfer(dp.NewRequest(false, true, sim.RegIDR), &data, true); err != nil {
		t.Fatal(err)
	}
	ack, err = b.ctl.Transfer(dp.NewRequest(false, true, sim.RegRdBuff), &data, true)
	if err != nil || ack != dp.AckOK {
		t.Fatalf("read RDBUFF: ack=%s err=%v", ack, err)
	}
	if data != testDPID {
		t.Fatalf("posted IDR read = %#08x, want %#08x", data, testDPID)
	}

	if _, err := b.ctl.IR(sim.IRAPACC); err != nil {
		t.Fatal(err)
	}
	data = 0xCAFEF00D
	if _, err := b.ctl.Transfer(dp.NewRequest(true, false, 0x4), &data, true); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ctl.Transfer(dp.NewRequest(true, true, 0x4), &data, true); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ctl.Transfer(dp.NewRequest(true, true, 0x4), &data, true); err != nil {
		t.Fatal(err)
	}
	if data != 0xCAFEF00D {
		t.Fatalf("AP loopback = %#08x", data)
	}
	if b.chain.State() != tap.RunTestIdle {
		t.Fatalf("TAP in %s after transfers", b.chain.State())
	}
}

func TestTransferWaitEndsEarly(t *testing.T) {
	dev := sim.NewJTAGDP(testDPID)
	b := newBench(t, Chain{IRLength: []int{4}}, dev)
	if _, err := b.ctl.IR(sim.IRDPACC); err != nil {
		t.Fatal(err)
	}
	dev.Waits = 1
	updates := dev.Updates

	start := b.d.Cycles()
	data := uint32(0x12345678)
	ack, err := b.ctl.Transfer(dp.NewRequest(false, false, sim.RegSelect), &data, true)
	if err != nil {
		t.Fatal(err)
	}
	if ack == dp.AckOK || ack != RemapAck(0b001) {
		t.Fatalf("WAIT scan returned %s, want %s", ack, RemapAck(0b001))
	}
	// Select, Capture, Shift, 3 ack bits, Exit1, Update, Idle.
	if got := b.d.Cycles() - start; got != 9 {
		t.Fatalf("early exit took %d cycles, want 9", got)
	}
	if dev.Updates != updates || dev.DAP.Select != 0 {
		t.Fatal("a WAITed access must not reach the register")
	}
	if b.chain.State() != tap.RunTestIdle || data != 0x12345678 {
		t.Fatalf("state %s data %#x after WAIT", b.chain.State(), data)
	}

	// Without the ack check the data phase runs anyway.
	dev.Waits = 1
	start = b.d.Cycles()
	if _, err := b.ctl.Transfer(dp.NewRequest(false, false, sim.RegSelect), &data, false); err != nil {
		t.Fatal(err)
	}
	if got := b.d.Cycles() - start; got != 3+3+32+2 {
		t.Fatalf("unchecked access took %d cycles, want 40", got)
	}
}

func TestRemapAck(t *testing.T) {
	if RemapAck(0b010) != dp.AckOK {
		t.Fatalf("0b010 -> %s, want OK", RemapAck(0b010))
	}
	if RemapAck(0b001) == dp.AckOK {
		t.Fatal("0b001 must not decode as OK")
	}
	for w := uint8(0); w < 8; w++ {
		want := dp.Ack(((w & 2) >> 1) | ((w & 1) << 2) | (w &^ 3))
		if got := RemapAck(w); got != want {
			t.Fatalf("RemapAck(%03b) = %d, want %d", w, got, want)
		}
	}
}

func TestWriteAbort(t *testing.T) {
	dev := sim.NewJTAGDP(testDPID)
	b := newBench(t, Chain{IRLength: []int{4}}, dev)
	if _, err := b.ctl.IR(sim.IRAbort); err != nil {
		t.Fatal(err)
	}
	if err := b.ctl.WriteAbort(0x1E); err != nil {
		t.Fatal(err)
	}
	if dev.DAP.Abort != 0x1E {
		t.Fatalf("ABORT = %#x, want 0x1e", dev.DAP.Abort)
	}
}

func TestTimestampAndIdleCycles(t *testing.T) {
	dev := sim.NewJTAGDP(testDPID)
	b := newBench(t, Chain{IRLength: []int{4}}, dev)
	b.cfg.Timestamp = func() uint32 { return 1234 }
	if _, err := b.ctl.IR(sim.IRDPACC); err != nil {
		t.Fatal(err)
	}

	var data uint32
	start := b.d.Cycles()
	if _, err := b.ctl.Transfer(dp.NewRequest(false, true, sim.RegIDR), &data, true); err != nil {
		t.Fatal(err)
	}
	base := b.d.Cycles() - start
	if b.ctl.Timestamp() != 0 {
		t.Fatal("timestamp captured without request")
	}

	b.cfg.IdleCycles = 5
	start = b.d.Cycles()
	if _, err := b.ctl.Transfer(dp.NewRequest(false, true, sim.RegIDR)|dp.Timestamp, &data, true); err != nil {
		t.Fatal(err)
	}
	if got := b.d.Cycles() - start; got != base+5 {
		t.Fatalf("transfer with idle cycles took %d, want %d", got, base+5)
	}
	if b.ctl.Timestamp() != 1234 {
		t.Fatalf("Timestamp() = %d", b.ctl.Timestamp())
	}
}

func TestShiftDR(t *testing.T) {
	b := newBench(t, Chain{IRLength: []int{4}}, sim.NewJTAGDP(testDPID))

	got, err := b.ctl.ShiftDR(32, make([]byte, 4))
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, 4)
	for i := range want {
		want[i] = bits.Reverse8(byte(uint32(testDPID) >> (8 * uint(i))))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ShiftDR(32) = %x, want %x", got, want)
	}

	fast, err := b.ctl.ShiftDR(16, []byte{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fast, want[:2]) {
		t.Fatalf("ShiftDR(16) = %x, want %x", fast, want[:2])
	}
	if b.chain.State() != tap.RunTestIdle {
		t.Fatalf("TAP in %s", b.chain.State())
	}
	if _, err := b.ctl.ShiftDR(24, []byte{0}); !errors.Is(err, seq.ErrShortBuffer) {
		t.Fatalf("short data: %v", err)
	}
}

func TestTMSSequenceAndGoTo(t *testing.T) {
	rec := &wireRecorder{}
	ctl := NewController(seq.NewEngine(rec, nil), nil)
	// 1,1,1,1,1,0 -> Test-Logic-Reset then Run-Test/Idle.
	if err := ctl.TMSSequence(6, []byte{0x1F}); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != tap.RunTestIdle || len(rec.tms) != 6 {
		t.Fatalf("state %s after %d cycles", ctl.State(), len(rec.tms))
	}
	if err := ctl.GoTo(tap.ShiftIR); err != nil {
		t.Fatal(err)
	}
	if ctl.State() != tap.ShiftIR {
		t.Fatalf("GoTo ended in %s", ctl.State())
	}
	if err := ctl.TMSSequence(9, []byte{0xFF}); !errors.Is(err, seq.ErrShortBuffer) {
		t.Fatalf("short TMS data: %v", err)
	}
}

func TestSequence(t *testing.T) {
	b := newBench(t, Chain{IRLength: []int{4}}, sim.NewJTAGDP(testDPID))
	// Run-Test/Idle -> Shift-DR, then 32 cycles capturing TDO.
	if err := b.ctl.Sequence(NewSequenceInfo(1, true, false), []byte{0xFF}, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.ctl.Sequence(NewSequenceInfo(2, false, false), []byte{0xFF}, nil); err != nil {
		t.Fatal(err)
	}
	tdo := make([]byte, 4)
	if err := b.ctl.Sequence(NewSequenceInfo(32, false, true), []byte{0xFF, 0xFF, 0xFF, 0xFF}, tdo); err != nil {
		t.Fatal(err)
	}
	if got := uint32(seq.Uint(tdo, 32)); got != testDPID {
		t.Fatalf("raw sequence captured %#08x", got)
	}
}

func TestSequenceInfo(t *testing.T) {
	info := NewSequenceInfo(64, true, true)
	if info != 0xC0 || info.Count() != 64 || !info.TMS() || !info.CaptureTDO() {
		t.Fatalf("NewSequenceInfo(64) = %#02x", uint8(info))
	}
	if info := SequenceInfo(0x05); info.Count() != 5 || info.TMS() || info.CaptureTDO() {
		t.Fatalf("decode of 0x05 wrong")
	}
}

func TestChainValidate(t *testing.T) {
	bad := []Chain{
		{},
		{Index: 1, IRLength: []int{4}},
		{Index: -1, IRLength: []int{4}},
		{IRLength: []int{0}},
		{IRLength: []int{33}},
	}
	for _, ch := range bad {
		if err := ch.Validate(); !errors.Is(err, ErrChain) {
			t.Fatalf("Validate(%+v) = %v, want ErrChain", ch, err)
		}
	}
	if DefaultChain.Validate() != nil {
		t.Fatal("default chain should be valid")
	}
	ctl := NewController(seq.NewEngine(&wireRecorder{}, nil), &Config{Chain: Chain{Index: 3, IRLength: []int{4}}})
	if _, err := ctl.ReadIDCode(); !errors.Is(err, ErrChain) {
		t.Fatalf("ReadIDCode on bad chain: %v", err)
	}
}
