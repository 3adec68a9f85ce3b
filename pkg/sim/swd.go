package sim

import (
	"math/bits"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
)

// lineResetBits is the number of consecutive high bits that reset the SWD
// interface.
const lineResetBits = 50

type slotKind uint8

const (
	slotRelease slotKind = iota // target floats the line
	slotDrive                   // target drives level
	slotReceive                 // host drives, target samples
)

type slot struct {
	kind  slotKind
	level bool
}

// SWDTarget is an SWD debug port. It samples SWDIO on rising SWCLK edges
// and changes its own output right after them.
type SWDTarget struct {
	DAP *Registers
	// Turnaround is the number of turnaround cycles the target expects.
	Turnaround int
	// Ack, when non-zero, replaces the acknowledge of every request.
	Ack dp.Ack
	// Waits is the number of upcoming requests answered with WAIT.
	Waits int
	// CorruptParity inverts the parity bit of read data.
	CorruptParity bool

	// Requests logs every valid request header received.
	Requests []dp.Request
	// LineResets counts line resets seen.
	LineResets int

	ones   int
	header []bool
	plan   []slot
	pos    int
	req    dp.Request
	recv   []bool
}

// NewSWDTarget returns a target whose ID register reads idr.
func NewSWDTarget(idr uint32) *SWDTarget {
	return &SWDTarget{DAP: NewRegisters(idr), Turnaround: 1}
}

// Busy reports whether a packet is in progress.
func (t *SWDTarget) Busy() bool { return t.plan != nil }

// ClockEdge implements lines.EdgeListener.
func (t *SWDTarget) ClockEdge(d *lines.SimDriver, rising bool) {
	if !rising {
		return
	}
	hostDriving := d.IsOutput(lines.PinSWDIO)
	level := d.Get(lines.PinSWDIO)

	if t.plan != nil {
		if t.plan[t.pos].kind == slotReceive {
			t.recv = append(t.recv, level)
		}
		t.pos++
		if t.pos == len(t.plan) {
			t.complete()
			d.Float(lines.PinSWDIO)
			return
		}
		t.present(d, t.plan[t.pos])
		return
	}

	if !hostDriving {
		t.header = t.header[:0]
		return
	}
	if level {
		t.ones++
		if t.ones >= lineResetBits {
			if t.ones == lineResetBits {
				t.LineResets++
			}
			t.header = t.header[:0]
			return
		}
	} else {
		t.ones = 0
	}
	if len(t.header) == 0 && !level {
		return
	}
	t.header = append(t.header, level)
	if len(t.header) < 8 {
		return
	}
	req, ok := parseHeader(t.header)
	t.header = t.header[:0]
	if !ok {
		return
	}
	t.begin(req)
	t.present(d, t.plan[0])
}

func (t *SWDTarget) present(d *lines.SimDriver, s slot) {
	if s.kind == slotDrive {
		d.Drive(lines.PinSWDIO, s.level)
		return
	}
	d.Float(lines.PinSWDIO)
}

// parseHeader checks start, parity, stop and park and extracts the request.
func parseHeader(h []bool) (dp.Request, bool) {
	if !h[0] || h[6] || !h[7] {
		return 0, false
	}
	var req dp.Request
	for i := 0; i < 4; i++ {
		if h[1+i] {
			req |= 1 << uint(i)
		}
	}
	parity := bits.OnesCount8(uint8(req))&1 == 1
	if parity != h[5] {
		return 0, false
	}
	return req, true
}

func (t *SWDTarget) ack() dp.Ack {
	if t.Waits > 0 {
		t.Waits--
		return dp.AckWait
	}
	if t.Ack != 0 {
		return t.Ack
	}
	return dp.AckOK
}

func (t *SWDTarget) begin(req dp.Request) {
	t.req = req
	t.Requests = append(t.Requests, req)
	t.recv = t.recv[:0]
	t.pos = 0
	trn := t.Turnaround
	if trn < 1 {
		trn = 1
	}

	var plan []slot
	release := func(n int) {
		for i := 0; i < n; i++ {
			plan = append(plan, slot{kind: slotRelease})
		}
	}
	drive := func(v uint64, n int) {
		for i := 0; i < n; i++ {
			plan = append(plan, slot{kind: slotDrive, level: v&(1<<uint(i)) != 0})
		}
	}

	ack := t.ack()
	release(trn)
	drive(uint64(ack), 3)
	switch {
	case ack == dp.AckOK && req.IsRead():
		v := t.DAP.Read(req)
		parity := uint64(bits.OnesCount32(v) & 1)
		if t.CorruptParity {
			parity ^= 1
		}
		drive(uint64(v)|parity<<32, 33)
		release(trn)
	case ack == dp.AckOK:
		release(trn)
		for i := 0; i < 33; i++ {
			plan = append(plan, slot{kind: slotReceive})
		}
	default:
		release(trn)
	}
	t.plan = plan
}

func (t *SWDTarget) complete() {
	if len(t.recv) == 33 {
		var v uint32
		for i := 0; i < 32; i++ {
			if t.recv[i] {
				v |= 1 << uint(i)
			}
		}
		if (bits.OnesCount32(v)&1 == 1) == t.recv[32] {
			t.DAP.Write(t.req, v)
		}
	}
	t.plan = nil
	t.pos = 0
	t.ones = 0
}
