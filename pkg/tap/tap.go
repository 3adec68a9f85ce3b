// Package tap models the IEEE 1149.1 TAP controller. It performs no I/O; it
// tracks state and produces the TMS patterns that move a TAP between states.
package tap

import (
	"fmt"
	"strings"
)

// State is one of the 16 TAP controller states.
type State uint8

const (
	TestLogicReset State = iota
	RunTestIdle
	SelectDRScan
	CaptureDR
	ShiftDR
	Exit1DR
	PauseDR
	Exit2DR
	UpdateDR
	SelectIRScan
	CaptureIR
	ShiftIR
	Exit1IR
	PauseIR
	Exit2IR
	UpdateIR

	numStates
)

var stateNames = [numStates]string{
	"Test-Logic-Reset", "Run-Test/Idle",
	"Select-DR-Scan", "Capture-DR", "Shift-DR", "Exit1-DR", "Pause-DR", "Exit2-DR", "Update-DR",
	"Select-IR-Scan", "Capture-IR", "Shift-IR", "Exit1-IR", "Pause-IR", "Exit2-IR", "Update-IR",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Valid reports whether s is a TAP state.
func (s State) Valid() bool { return s < numStates }

// IsShift reports whether the data path between TDI and TDO is open.
func (s State) IsShift() bool { return s == ShiftDR || s == ShiftIR }

// ParseState accepts the canonical names as well as compact forms such as
// "idle", "shiftdr" or "reset", ignoring case and punctuation.
func ParseState(name string) (State, error) {
	key := compact(name)
	switch key {
	case "reset", "tlr":
		return TestLogicReset, nil
	case "idle", "rti":
		return RunTestIdle, nil
	}
	for s := State(0); s < numStates; s++ {
		if compact(stateNames[s]) == key {
			return s, nil
		}
	}
	return 0, fmt.Errorf("tap: unknown state %q", name)
}

func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// next[s][tms] is the state entered on a rising TCK edge.
var next = [numStates][2]State{
	TestLogicReset: {RunTestIdle, TestLogicReset},
	RunTestIdle:    {RunTestIdle, SelectDRScan},
	SelectDRScan:   {CaptureDR, SelectIRScan},
	CaptureDR:      {ShiftDR, Exit1DR},
	ShiftDR:        {ShiftDR, Exit1DR},
	Exit1DR:        {PauseDR, UpdateDR},
	PauseDR:        {PauseDR, Exit2DR},
	Exit2DR:        {ShiftDR, UpdateDR},
	UpdateDR:       {RunTestIdle, SelectDRScan},
	SelectIRScan:   {CaptureIR, TestLogicReset},
	CaptureIR:      {ShiftIR, Exit1IR},
	ShiftIR:        {ShiftIR, Exit1IR},
	Exit1IR:        {PauseIR, UpdateIR},
	PauseIR:        {PauseIR, Exit2IR},
	Exit2IR:        {ShiftIR, UpdateIR},
	UpdateIR:       {RunTestIdle, SelectDRScan},
}

// NextState returns the state after one TCK cycle with the given TMS level.
// Invalid states fall into Test-Logic-Reset, as five TMS-high cycles would.
func NextState(s State, tms bool) State {
	if !s.Valid() {
		return TestLogicReset
	}
	if tms {
		return next[s][1]
	}
	return next[s][0]
}

// ResetCycles is the number of TMS-high cycles that reach Test-Logic-Reset
// from any state.
const ResetCycles = 5

// Path is a TMS pattern and the states it visits, starting state first.
type Path struct {
	TMS    []bool
	States []State
}

// Len returns the number of clock cycles in the path.
func (p Path) Len() int { return len(p.TMS) }

// Packed returns the TMS pattern packed LSB-first, first cycle in bit 0.
func (p Path) Packed() []byte {
	buf := make([]byte, (len(p.TMS)+7)/8)
	for i, v := range p.TMS {
		if v {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	return buf
}

// End returns the final state of the path.
func (p Path) End() State {
	return p.States[len(p.States)-1]
}

// PathTo returns the shortest TMS pattern from one state to another.
func PathTo(from, to State) (Path, error) {
	if !from.Valid() || !to.Valid() {
		return Path{}, fmt.Errorf("tap: invalid move %s -> %s", from, to)
	}
	if from == to {
		return Path{States: []State{from}}, nil
	}

	// Breadth-first search over the 16 states; prev records how each state
	// was first reached.
	var prev [numStates]pathStep
	prev[from].seen = true
	queue := []State{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, tms := range []bool{false, true} {
			n := NextState(cur, tms)
			if prev[n].seen {
				continue
			}
			prev[n] = pathStep{from: cur, tms: tms, seen: true}
			if n == to {
				return unwind(prev[:], from, to), nil
			}
			queue = append(queue, n)
		}
	}
	return Path{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}

type pathStep struct {
	from State
	tms  bool
	seen bool
}

func unwind(prev []pathStep, from, to State) Path {
	var p Path
	for s := to; s != from; s = prev[s].from {
		p.TMS = append(p.TMS, prev[s].tms)
		p.States = append(p.States, s)
	}
	p.States = append(p.States, from)
	for i, j := 0, len(p.TMS)-1; i < j; i, j = i+1, j-1 {
		p.TMS[i], p.TMS[j] = p.TMS[j], p.TMS[i]
	}
	for i, j := 0, len(p.States)-1; i < j; i, j = i+1, j-1 {
		p.States[i], p.States[j] = p.States[j], p.States[i]
	}
	return p
}

// Machine tracks a TAP controller as TMS cycles are applied.
type Machine struct {
	state State
}

// NewMachine returns a machine in Test-Logic-Reset.
func NewMachine() *Machine {
	return &Machine{state: TestLogicReset}
}

// State returns the tracked state.
func (m *Machine) State() State { return m.state }

// Clock applies one TMS cycle.
func (m *Machine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// Walk applies a TMS pattern and returns the final state.
func (m *Machine) Walk(tms ...bool) State {
	for _, v := range tms {
		m.Clock(v)
	}
	return m.state
}

// Reset clocks TMS high ResetCycles times.
func (m *Machine) Reset() Path {
	p := Path{TMS: make([]bool, ResetCycles), States: []State{m.state}}
	for i := range p.TMS {
		p.TMS[i] = true
		p.States = append(p.States, m.Clock(true))
	}
	return p
}

// GoTo returns the path to target and moves the machine there.
func (m *Machine) GoTo(target State) (Path, error) {
	p, err := PathTo(m.state, target)
	if err != nil {
		return Path{}, err
	}
	m.state = target
	return p, nil
}
