package seq

const (
	// DefaultClockHz is the clock used until the host requests another.
	DefaultClockHz = 1000000
	// FallbackClockHz replaces a requested clock of 0 Hz. Some debugger
	// hosts send zero before they have negotiated a speed.
	FallbackClockHz = DefaultClockHz

	// ioPortWriteCycles is the cost of one line write, in CPU cycles.
	ioPortWriteCycles = 2
	// delaySlowCycles is the cost of one busy-wait iteration, in CPU cycles.
	delaySlowCycles = 3
)

// ClockTiming is the delay derived from a requested clock rate.
type ClockTiming struct {
	RequestedHz uint32
	CPUHz       uint32

	// DelayTicks is the busy-wait count per half clock period.
	DelayTicks uint32
	// Fast selects the undelayed path when the rate exceeds what a delay
	// loop can resolve.
	Fast bool
}

// NewClockTiming derives the per-half-period delay for hz on a CPU running
// at cpuHz.
func NewClockTiming(hz, cpuHz uint32) ClockTiming {
	if hz == 0 {
		hz = FallbackClockHz
	}
	t := ClockTiming{RequestedHz: hz, CPUHz: cpuHz}
	if hz >= maxClock(cpuHz, 0) {
		t.Fast = true
		t.DelayTicks = 1
		return t
	}
	delay := (cpuHz/2 + (hz - 1)) / hz
	if delay > ioPortWriteCycles {
		delay -= ioPortWriteCycles
		delay = (delay + (delaySlowCycles - 1)) / delaySlowCycles
	} else {
		delay = 1
	}
	t.DelayTicks = delay
	return t
}

func maxClock(cpuHz, delayCycles uint32) uint32 {
	return (cpuHz / 2) / (ioPortWriteCycles + delayCycles)
}

// Divisor returns the clock divider a hardware shift engine needs to run at
// the requested rate when one bit takes cyclesPerBit engine cycles. The
// result is 16.8 fixed point, never below 1.0.
func (t ClockTiming) Divisor(cyclesPerBit uint32) (whole uint16, frac uint8) {
	if t.RequestedHz == 0 || cyclesPerBit == 0 {
		return 1, 0
	}
	div := uint64(t.CPUHz) * 256 / (uint64(t.RequestedHz) * uint64(cyclesPerBit))
	if div < 256 {
		return 1, 0
	}
	if div > 0xFFFF*256 {
		return 0xFFFF, 0
	}
	return uint16(div >> 8), uint8(div)
}
