package seq

import "fmt"

// Owner identifies which transport holds the hardware shift engine.
type Owner uint8

const (
	OwnerNone Owner = iota
	OwnerJTAG
	OwnerSWD
	OwnerTrace
)

func (o Owner) String() string {
	switch o {
	case OwnerNone:
		return "none"
	case OwnerJTAG:
		return "jtag"
	case OwnerSWD:
		return "swd"
	case OwnerTrace:
		return "trace"
	default:
		return fmt.Sprintf("Owner(%d)", uint8(o))
	}
}

// Accelerator is a clocked shift engine that runs bursts of at most
// MaxHardwareBurst bits without CPU involvement per bit.
type Accelerator interface {
	// Claim takes exclusive ownership. It returns ErrBusy when another
	// owner holds the engine.
	Claim(o Owner) error
	// Release gives up ownership held by o. Releasing an engine o does not
	// own is a no-op.
	Release(o Owner)
	// Configure routes the engine to the given lines at the given rate.
	Configure(w Wiring, t ClockTiming) error
	// Start queues a burst.
	Start(b *Burst) error
	// Ready reports whether the queued burst has completed.
	Ready() bool
	// Finish collects the sampled bits of a completed burst into b.In.
	Finish(b *Burst) error
	SetDataLevel(level bool) error
	SetDataDirection(output bool) error
}

// Ownership is the claim bookkeeping shared by accelerator implementations.
type Ownership struct {
	owner Owner
}

// Claim takes ownership for o.
func (s *Ownership) Claim(o Owner) error {
	if s.owner != OwnerNone && s.owner != o {
		return fmt.Errorf("claim for %s, held by %s: %w", o, s.owner, ErrBusy)
	}
	s.owner = o
	return nil
}

// Release gives up ownership held by o.
func (s *Ownership) Release(o Owner) {
	if s.owner == o {
		s.owner = OwnerNone
	}
}

// Owner returns the current owner.
func (s *Ownership) Owner() Owner { return s.owner }

// HardwareBackend runs bursts on an Accelerator, waiting for each to
// complete with a bounded poll.
type HardwareBackend struct {
	acc       Accelerator
	pollLimit int
}

// NewHardwareBackend wraps an accelerator that is already claimed and
// configured.
func NewHardwareBackend(acc Accelerator, pollLimit int) *HardwareBackend {
	if pollLimit <= 0 {
		pollLimit = DefaultPollLimit
	}
	return &HardwareBackend{acc: acc, pollLimit: pollLimit}
}

func (h *HardwareBackend) MaxBurst() int { return MaxHardwareBurst }

func (h *HardwareBackend) Shift(b *Burst) error {
	if b.Bits > MaxHardwareBurst {
		return fmt.Errorf("burst of %d bits exceeds %d", b.Bits, MaxHardwareBurst)
	}
	if err := h.acc.Start(b); err != nil {
		return err
	}
	if !Poll(h.acc.Ready, h.pollLimit) {
		return ErrNotReady
	}
	return h.acc.Finish(b)
}

func (h *HardwareBackend) SetDataLevel(level bool) error {
	return h.acc.SetDataLevel(level)
}

func (h *HardwareBackend) SetDataDirection(output bool) error {
	return h.acc.SetDataDirection(output)
}
