package seq

import "fmt"

// Engine splits shift requests into backend bursts and tracks the level the
// bus holds between them.
type Engine struct {
	backend Backend
	cont    *Continuation

	out []byte
	in  []byte
}

// NewEngine binds a backend to the continuation state owned by the caller.
func NewEngine(b Backend, cont *Continuation) *Engine {
	if cont == nil {
		cont = &Continuation{}
		cont.Reset()
	}
	return &Engine{backend: b, cont: cont}
}

// Backend returns the backend the engine drives.
func (e *Engine) Backend() Backend { return e.backend }

// Continuation returns the shared continuation state.
func (e *Engine) Continuation() *Continuation { return e.cont }

// Clock generates count clock cycles with the mode-select line held at
// modeSelect. Bits are taken LSB-first from out, or repeat the last driven
// bit when out is nil. When capture is set the data-in line is sampled into
// in using the same bit order.
func (e *Engine) Clock(count int, modeSelect, capture bool, out, in []byte) error {
	if count <= 0 {
		return nil
	}
	if out != nil && len(out)*8 < count {
		return fmt.Errorf("clock %d bits from %d byte output: %w", count, len(out), ErrShortBuffer)
	}
	if capture && len(in)*8 < count {
		return fmt.Errorf("clock %d bits into %d byte input: %w", count, len(in), ErrShortBuffer)
	}

	chunk := e.backend.MaxBurst()
	if chunk <= 0 || chunk > count {
		chunk = count
	}
	e.grow(chunk)

	for done := 0; done < count; {
		n := count - done
		if n > chunk {
			n = chunk
		}
		b := Burst{
			Bits:       n,
			ModeSelect: modeSelect,
			Capture:    capture,
			Out:        e.out[:ByteLen(n)],
		}
		if out != nil {
			CopyBits(b.Out, 0, out, done, n)
		} else {
			Fill(b.Out, n, e.cont.LastBit)
		}
		if capture {
			b.In = e.in[:ByteLen(n)]
			clear(b.In)
		}
		if err := e.backend.Shift(&b); err != nil {
			return fmt.Errorf("shift %d bits at offset %d: %w", n, done, err)
		}
		if capture {
			CopyBits(in, done, b.In, 0, n)
		}
		e.cont.LastBit = GetBit(b.Out, n-1)
		e.cont.LastModeSelect = modeSelect
		done += n
	}
	return nil
}

// Drive sets the data-out line to level without clocking. A following call
// without output data repeats level.
func (e *Engine) Drive(level bool) error {
	e.cont.LastBit = level
	return e.backend.SetDataLevel(level)
}

// Release switches the data line to input so the target can drive it.
func (e *Engine) Release() error {
	return e.backend.SetDataDirection(false)
}

// Reclaim switches the data line back to output.
func (e *Engine) Reclaim() error {
	return e.backend.SetDataDirection(true)
}

func (e *Engine) grow(bits int) {
	n := ByteLen(bits)
	if cap(e.out) < n {
		e.out = make([]byte, n)
		e.in = make([]byte, n)
	}
	e.out = e.out[:cap(e.out)]
	e.in = e.in[:cap(e.in)]
}
