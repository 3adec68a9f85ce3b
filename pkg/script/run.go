// Package script runs text probe scripts against a probe.Port. A script is
// a list of statements such as
//
//	port swd
//	swj 51 0x7FFFFFFFFFFFF
//	swd read dp 0x0 expect 0x2BA01477
//	port jtag
//	jtag reset
//	jtag idcode
//
// Reads print their result; an expect clause turns a mismatch into an
// error.
package script

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"math/bits"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

var log = logrus.WithField("prefix", "script")

var (
	// ErrExpect indicates a read that returned something other than its
	// expect clause.
	ErrExpect = errors.New("script: unexpected result")
	// ErrMissingValue indicates a write without a value.
	ErrMissingValue = errors.New("script: write needs a value")
)

// Arm JTAG-DP instructions selected before register accesses, and the DP
// register that returns posted read results.
const (
	irAbort = 0x8
	irDPACC = 0xA
	irAPACC = 0xB

	regRdBuff = 0xC
)

// Runner executes scripts on a port and prints results to Out.
type Runner struct {
	Port *probe.Port
	Out  io.Writer
}

// Run executes s on p, stopping at the first failing statement.
func Run(p *probe.Port, s *Script, out io.Writer) error {
	r := &Runner{Port: p, Out: out}
	return r.Run(s)
}

func (r *Runner) Run(s *Script) error {
	for _, st := range s.Stmts {
		if err := r.exec(st); err != nil {
			log.WithError(err).WithField("line", st.Pos.Line).Debug("statement failed")
			return fmt.Errorf("%s: %w", st.Pos, err)
		}
	}
	return nil
}

func (r *Runner) exec(st *Stmt) error {
	p := r.Port
	switch {
	case st.Port != nil:
		switch strings.ToLower(st.Port.Mode) {
		case "jtag":
			return p.JTAGSetup()
		case "swd":
			return p.SWDSetup()
		}
		p.Off()
		return nil

	case st.SWJ != nil:
		n := int(st.SWJ.Count)
		return p.SWJSequence(n, st.SWJ.Data.Fit(n))

	case st.JTAG != nil:
		return r.jtag(st.JTAG)

	case st.SWD != nil:
		if st.SWD.LineReset {
			return p.SWDLineReset()
		}
		return r.access("swd", st.SWD.Access, p.SWDTransfer)

	case st.Set != nil:
		return r.set(st.Set)

	case st.Chain != nil:
		ch := jtag.Chain{Index: int(st.Chain.Index)}
		for _, n := range st.Chain.IRLengths {
			ch.IRLength = append(ch.IRLength, int(n))
		}
		if err := ch.Validate(); err != nil {
			return err
		}
		p.Settings.Chain = ch
		return nil
	}
	return fmt.Errorf("empty statement")
}

func (r *Runner) jtag(st *JTAGStmt) error {
	p := r.Port
	switch {
	case st.Reset:
		return p.JTAGReset()

	case st.IDCode != nil:
		raw, err := p.JTAGReadIDCode()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "jtag idcode %s\n", idcode.Parse(raw))
		if e := st.IDCode.Expect; e != nil && uint32(*e) != raw {
			return fmt.Errorf("%w: idcode 0x%08X, want 0x%08X", ErrExpect, raw, uint32(*e))
		}
		return nil

	case st.IR != nil:
		old, err := p.JTAGIR(uint32(*st.IR))
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "jtag ir 0x%X (captured 0x%X)\n", uint32(*st.IR), old)
		return nil

	case st.DR != nil:
		n := int(st.DR.Count)
		data := st.DR.Data.Fit(n)
		reverseEach(data)
		in, err := p.JTAGShiftDR(n, data)
		if err != nil {
			return err
		}
		reverseEach(in)
		fmt.Fprintf(r.Out, "jtag dr %d %s\n", n, hexBits(in, n))
		return nil

	case st.Goto != "":
		s, err := tap.ParseState(st.Goto)
		if err != nil {
			return err
		}
		return p.JTAGGoTo(s)

	case st.Abort != nil:
		if _, err := p.JTAGIR(irAbort); err != nil {
			return err
		}
		return p.JTAGWriteAbort(uint32(*st.Abort))

	case st.Access != nil:
		ir := uint32(irDPACC)
		if strings.EqualFold(st.Access.Port, "ap") {
			ir = irAPACC
		}
		if _, err := p.JTAGIR(ir); err != nil {
			return err
		}
		transfer := p.JTAGTransfer
		if st.Access.IsRead() {
			// JTAG-DP reads are posted: the value arrives with the next scan.
			transfer = func(req dp.Request, v *uint32) (dp.Ack, error) {
				if ack, err := p.JTAGTransfer(req, v); err != nil || !ack.OK() {
					return ack, err
				}
				if _, err := p.JTAGIR(irDPACC); err != nil {
					return 0, err
				}
				return p.JTAGTransfer(dp.NewRequest(false, true, regRdBuff), v)
			}
		}
		return r.access("jtag", st.Access, transfer)
	}
	return fmt.Errorf("empty jtag statement")
}

func (r *Runner) access(transport string, a *Access, transfer func(dp.Request, *uint32) (dp.Ack, error)) error {
	port := strings.ToLower(a.Port)
	req := dp.NewRequest(port == "ap", a.IsRead(), uint8(a.Addr))
	var v uint32
	if !a.IsRead() {
		if a.Value == nil {
			return ErrMissingValue
		}
		v = uint32(*a.Value)
	}

	ack, err := transfer(req, &v)
	if err != nil {
		return err
	}
	if a.IsRead() {
		fmt.Fprintf(r.Out, "%s read %s 0x%X = 0x%08X %s\n", transport, port, uint8(a.Addr), v, ack)
	} else {
		fmt.Fprintf(r.Out, "%s write %s 0x%X 0x%08X %s\n", transport, port, uint8(a.Addr), v, ack)
	}

	if a.Expect != nil {
		if !ack.OK() {
			return fmt.Errorf("%w: ack %s", ErrExpect, ack)
		}
		if a.IsRead() && v != uint32(*a.Expect) {
			return fmt.Errorf("%w: read 0x%08X, want 0x%08X", ErrExpect, v, uint32(*a.Expect))
		}
	}
	return nil
}

func (r *Runner) set(st *SetStmt) error {
	s := r.Port.Settings
	old := *s
	switch strings.ToLower(st.Key) {
	case "turnaround":
		s.Turnaround = int(st.Value)
	case "idle":
		s.IdleCycles = int(st.Value)
	case "dataphase":
		s.DataPhase = st.Value != 0
	case "clock":
		return r.Port.SetClock(uint32(st.Value))
	}
	if err := s.Validate(); err != nil {
		*s = old
		return err
	}
	return nil
}

// reverseEach flips the bit order of every byte, converting between LSB-first
// values and the MSB-first byte layout of DR scans.
func reverseEach(b []byte) {
	for i, c := range b {
		b[i] = bits.Reverse8(c)
	}
}

// hexBits formats the low count bits of an LSB-first buffer.
func hexBits(b []byte, count int) string {
	be := make([]byte, len(b))
	for i, c := range b {
		be[len(b)-1-i] = c
	}
	v := new(big.Int).SetBytes(be)
	mask := new(big.Int).Lsh(big.NewInt(1), uint(count))
	v.And(v, mask.Sub(mask, big.NewInt(1)))
	return fmt.Sprintf("%#x", v)
}
