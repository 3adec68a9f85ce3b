package lines

// EdgeListener is attached to a SimDriver to model the target side of the
// connector. It is called on every clock transition while the clock line is
// driven.
type EdgeListener interface {
	ClockEdge(d *SimDriver, rising bool)
}

// State is a comparable snapshot of every line.
type State struct {
	Enabled bool
	Latch   [NumPins]bool
	Output  [NumPins]bool
	Level   [NumPins]bool
}

// SimDriver is an in-memory line driver. Undriven lines read high, the way
// the pull-ups on a debug connector behave. A target model drives lines with
// Drive and releases them with Float.
type SimDriver struct {
	enabled  bool
	latch    [NumPins]bool
	output   [NumPins]bool
	extDrive [NumPins]bool
	extLevel [NumPins]bool

	listeners []EdgeListener

	rising  int
	falling int
	// Contention counts cycles where host and target drove the same line.
	Contention int
}

// NewSimDriver returns a driver with every line released.
func NewSimDriver() *SimDriver {
	return &SimDriver{}
}

// Attach registers a target model.
func (s *SimDriver) Attach(l EdgeListener) {
	s.listeners = append(s.listeners, l)
}

func (s *SimDriver) Enable()  { s.enabled = true }
func (s *SimDriver) Disable() { s.enabled = false }

// Enabled reports whether the line buffers are on.
func (s *SimDriver) Enabled() bool { return s.enabled }

func (s *SimDriver) Set(p Pin, level bool) {
	if !p.Valid() {
		return
	}
	before := s.Get(PinTCK)
	s.latch[p] = level
	if p == PinTCK {
		s.clockChanged(before)
	}
}

func (s *SimDriver) Get(p Pin) bool {
	if !p.Valid() {
		return true
	}
	switch {
	case s.output[p]:
		return s.latch[p]
	case s.extDrive[p]:
		return s.extLevel[p]
	default:
		return true
	}
}

func (s *SimDriver) SetOutput(p Pin, output bool) {
	if !p.Valid() {
		return
	}
	before := s.Get(PinTCK)
	s.output[p] = output
	if p == PinTCK {
		s.clockChanged(before)
	}
}

// IsOutput reports whether the host drives p.
func (s *SimDriver) IsOutput(p Pin) bool {
	return p.Valid() && s.output[p]
}

// Drive makes the target side drive p.
func (s *SimDriver) Drive(p Pin, level bool) {
	if !p.Valid() {
		return
	}
	s.extDrive[p] = true
	s.extLevel[p] = level
	if s.output[p] {
		s.Contention++
	}
}

// Float releases the target side of p.
func (s *SimDriver) Float(p Pin) {
	if p.Valid() {
		s.extDrive[p] = false
	}
}

// Cycles returns the number of rising clock edges seen.
func (s *SimDriver) Cycles() int { return s.rising }

// FallingEdges returns the number of falling clock edges seen.
func (s *SimDriver) FallingEdges() int { return s.falling }

// ResetCounters clears the edge and contention counters.
func (s *SimDriver) ResetCounters() {
	s.rising, s.falling, s.Contention = 0, 0, 0
}

// Snapshot returns the current line state.
func (s *SimDriver) Snapshot() State {
	st := State{Enabled: s.enabled, Latch: s.latch, Output: s.output}
	for p := Pin(0); int(p) < NumPins; p++ {
		st.Level[p] = s.Get(p)
	}
	return st
}

func (s *SimDriver) clockChanged(before bool) {
	after := s.Get(PinTCK)
	if before == after || !s.output[PinTCK] {
		return
	}
	if after {
		s.rising++
	} else {
		s.falling++
	}
	for _, l := range s.listeners {
		l.ClockEdge(s, after)
	}
}
