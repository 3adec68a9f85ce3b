package script

import (
	"bytes"
	"testing"
)

func mustParse(t *testing.T, input string) *Script {
	t.Helper()
	parser, err := NewParser()
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}
	s, err := parser.ParseString(input)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	return s
}

func TestParseStatements(t *testing.T) {
	input := `
	# bring up SWD
	port swd
	swj 51 0x7FFFFFFFFFFFF
	SWD READ DP 0x0 expect 0x2BA01477
	swd write ap 0x4 0x2000_0000
	swd linereset
	set turnaround 2
	chain 1 4 5
	jtag goto Run-Test-Idle
	jtag dr 35 0b101
	jtag abort 0x1E
	`
	s := mustParse(t, input)

	if len(s.Stmts) != 10 {
		t.Fatalf("Expected 10 statements, got %d", len(s.Stmts))
	}
	if s.Stmts[0].Port == nil || s.Stmts[0].Port.Mode != "swd" {
		t.Errorf("statement 0 = %+v", s.Stmts[0])
	}

	swj := s.Stmts[1].SWJ
	if swj == nil || swj.Count != 51 {
		t.Fatalf("statement 1 = %+v", s.Stmts[1])
	}
	if want := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x07}; !bytes.Equal(swj.Data.Fit(51), want) {
		t.Errorf("swj data = % X, want % X", swj.Data.Fit(51), want)
	}

	read := s.Stmts[2].SWD.Access
	if !read.IsRead() || read.Addr != 0 || read.Value != nil || read.Expect == nil || *read.Expect != 0x2BA01477 {
		t.Errorf("read = %+v", read)
	}
	write := s.Stmts[3].SWD.Access
	if write.IsRead() || write.Port != "ap" || write.Value == nil || *write.Value != 0x20000000 {
		t.Errorf("write = %+v", write)
	}
	if !s.Stmts[4].SWD.LineReset {
		t.Error("statement 4 is not a line reset")
	}
	if set := s.Stmts[5].Set; set.Key != "turnaround" || set.Value != 2 {
		t.Errorf("set = %+v", set)
	}
	if ch := s.Stmts[6].Chain; ch.Index != 1 || len(ch.IRLengths) != 2 || ch.IRLengths[1] != 5 {
		t.Errorf("chain = %+v", ch)
	}
	if g := s.Stmts[7].JTAG.Goto; g != "Run-Test-Idle" {
		t.Errorf("goto = %q", g)
	}
	if dr := s.Stmts[8].JTAG.DR; dr.Count != 35 || !bytes.Equal(dr.Data, []byte{0x05}) {
		t.Errorf("dr = %+v", dr)
	}
	if s.Stmts[9].JTAG.Abort == nil || *s.Stmts[9].JTAG.Abort != 0x1E {
		t.Errorf("abort = %+v", s.Stmts[9].JTAG)
	}
	if s.Stmts[9].Pos.Line != 12 {
		t.Errorf("abort on line %d, want 12", s.Stmts[9].Pos.Line)
	}
}

func TestParseWideBits(t *testing.T) {
	s := mustParse(t, "swj 128 0x19BC0EA2E3DDAFE986852D956209F392")

	data := s.Stmts[0].SWJ.Data
	if len(data) != 16 {
		t.Fatalf("Expected 16 bytes, got %d", len(data))
	}
	if data[0] != 0x92 || data[15] != 0x19 {
		t.Errorf("data = % X", data)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown transport", "port usb"},
		{"unknown register bank", "swd read xp 0"},
		{"missing address", "swd read dp"},
		{"unknown setting", "set speed 4"},
		{"chain without lengths", "chain 0"},
		{"number too wide", "set idle 0x1_0000_0000_0000_0000"},
		{"unknown statement", "flash erase"},
	}

	parser, err := NewParser()
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parser.ParseString(tt.input); err == nil {
				t.Errorf("ParseString(%q) succeeded", tt.input)
			}
		})
	}
}
