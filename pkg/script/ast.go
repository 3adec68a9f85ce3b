package script

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// Script is a parsed probe script.
type Script struct {
	Stmts []*Stmt `@@*`
}

// Stmt is one script statement.
// Example: swd read dp 0x0 expect 0x2BA01477
type Stmt struct {
	Pos lexer.Position

	Port  *PortStmt  `  "port" @@`
	SWJ   *SWJStmt   `| "swj" @@`
	JTAG  *JTAGStmt  `| "jtag" @@`
	SWD   *SWDStmt   `| "swd" @@`
	Set   *SetStmt   `| "set" @@`
	Chain *ChainStmt `| "chain" @@`
}

// PortStmt selects the transport.
// Example: port swd
type PortStmt struct {
	Mode string `@( "jtag" | "swd" | "off" )`
}

// SWJStmt clocks raw bits on SWDIO/TMS, LSB first.
// Example: swj 16 0xE79E
type SWJStmt struct {
	Count Number `@Number`
	Data  Bits   `@Number`
}

// JTAGStmt is one JTAG operation.
type JTAGStmt struct {
	Reset  bool        `  @"reset"`
	IDCode *IDCodeStmt `| @@`
	IR     *Number     `| "ir" @Number`
	DR     *DRStmt     `| "dr" @@`
	Goto   string      `| "goto" @Ident`
	Abort  *Number     `| "abort" @Number`
	Access *Access     `| @@`
}

// IDCodeStmt reads the addressed device's IDCODE.
// Example: jtag idcode expect 0x4BA00477
type IDCodeStmt struct {
	Keyword bool    `@"idcode"`
	Expect  *Number `( "expect" @Number )?`
}

// DRStmt scans a data register.
// Example: jtag dr 35 0x0
type DRStmt struct {
	Count Number `@Number`
	Data  Bits   `@Number`
}

// SWDStmt is one SWD operation.
type SWDStmt struct {
	LineReset bool    `  @"linereset"`
	Access    *Access `| @@`
}

// Access is a debug or access port register access.
// Example: write ap 0x4 0x20000000
type Access struct {
	Op     string  `@( "read" | "write" )`
	Port   string  `@( "dp" | "ap" )`
	Addr   Number  `@Number`
	Value  *Number `@Number?`
	Expect *Number `( "expect" @Number )?`
}

// IsRead reports a read access.
func (a *Access) IsRead() bool { return strings.EqualFold(a.Op, "read") }

// SetStmt changes a transfer setting.
// Example: set turnaround 2
type SetStmt struct {
	Key   string `@( "turnaround" | "idle" | "dataphase" | "clock" )`
	Value Number `@Number`
}

// ChainStmt describes the scan chain: the addressed device index followed
// by the IR length of every device, nearest TDO first.
// Example: chain 1 4 5
type ChainStmt struct {
	Index     Number   `@Number`
	IRLengths []Number `@Number+`
}

// Number is an unsigned integer literal of at most 64 bits.
type Number uint64

func (n *Number) Capture(values []string) error {
	v, err := strconv.ParseUint(values[0], 0, 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", values[0], err)
	}
	*n = Number(v)
	return nil
}

// Bits is an integer literal of any width, packed LSB-first.
type Bits []byte

func (b *Bits) Capture(values []string) error {
	v, ok := new(big.Int).SetString(values[0], 0)
	if !ok {
		return fmt.Errorf("bit string %q", values[0])
	}
	be := v.Bytes()
	out := make([]byte, len(be))
	for i, c := range be {
		out[len(be)-1-i] = c
	}
	*b = out
	return nil
}

// Fit returns the bits zero-extended to hold count bits.
func (b Bits) Fit(count int) []byte {
	out := make([]byte, (count+7)/8)
	copy(out, b)
	return out
}
