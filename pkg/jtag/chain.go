package jtag

import (
	"errors"
	"fmt"
)

// ErrChain indicates an unusable scan chain description.
var ErrChain = errors.New("jtag: invalid chain")

// MaxIRLength is the longest instruction register an IR shift can address.
const MaxIRLength = 32

// Chain describes the scan path and the device being addressed. Device 0 is
// the one nearest TDO.
type Chain struct {
	Index    int   `json:"index"`
	IRLength []int `json:"ir_length"`
}

// DefaultChain is a single Arm JTAG-DP.
var DefaultChain = Chain{IRLength: []int{4}}

// Count returns the number of devices on the chain.
func (c Chain) Count() int { return len(c.IRLength) }

// Validate checks that the target index and every IR length are usable.
func (c Chain) Validate() error {
	if c.Count() == 0 {
		return fmt.Errorf("%w: no devices", ErrChain)
	}
	if c.Index < 0 || c.Index >= c.Count() {
		return fmt.Errorf("%w: index %d outside %d devices", ErrChain, c.Index, c.Count())
	}
	for i, n := range c.IRLength {
		if n < 1 || n > MaxIRLength {
			return fmt.Errorf("%w: device %d IR length %d", ErrChain, i, n)
		}
	}
	return nil
}

// IRBefore is the number of instruction bits held by devices between the
// target and TDO.
func (c Chain) IRBefore() int {
	n := 0
	for _, l := range c.IRLength[:c.Index] {
		n += l
	}
	return n
}

// IRAfter is the number of instruction bits held by devices between TDI
// and the target.
func (c Chain) IRAfter() int {
	n := 0
	for _, l := range c.IRLength[c.Index+1:] {
		n += l
	}
	return n
}

// DRBefore is the number of bypass bits between the target and TDO.
func (c Chain) DRBefore() int { return c.Index }

// DRAfter is the number of bypass bits between TDI and the target.
func (c Chain) DRAfter() int { return c.Count() - c.Index - 1 }
