package protocol

import (
	"bytes"
	"errors"
	"testing"
)

const (
	pgmEnableText = "1 0 1 0 1 1 0 0  0 1 0 1 0 0 1 1  x x x x x x x x  x x x x x x x x"
	readLoText    = "0 0 1 0 0 0 0 0  0 0 a13 a12 a11 a10 a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o"
	loadPageText  = "0 1 0 0 0 0 0 0  0 0 0 x x x x x  x x a5 a4 a3 a2 a1 a0  i i i i i i i i"
	eepromWrText  = "1 1 0 0 0 0 0 0  0 0 0 x x x a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  i i i i i i i i"
	lfuseReadText = "0 1 0 1 0 0 0 0  0 0 0 0 0 0 0 0  x x x x x x x x  o o o o o o o o"
)

// extractAddr rebuilds the address bits a template placed into cmd.
func extractAddr(op *Opcode, cmd [4]byte) (addr, mask uint32) {
	for i, b := range op.Bits {
		if b.Kind != BitAddress {
			continue
		}
		mask |= 1 << b.Index
		if getBit(cmd, i) {
			addr |= 1 << b.Index
		}
	}
	return addr, mask
}

func TestParseOpcode(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
		errMsg  string
	}{
		{name: "program enable", text: pgmEnableText},
		{name: "read with address and output", text: readLoText},
		{name: "explicit input index", text: "1 1 0 0 0 0 0 0  x x x x x x x x  x x x x x x x x  i7 i6 i5 i4 i3 i2 i1 i0"},
		{name: "too few bits", text: "1 0 1 0", wantErr: true, errMsg: "32 bits"},
		{name: "bad token", text: "1 0 1 0 1 1 0 0  0 1 0 1 0 0 1 1  x x x x x x x x  x x x x x x x q", wantErr: true, errMsg: "invalid token"},
		{name: "address index too large", text: "a32 0 1 0 1 1 0 0  0 1 0 1 0 0 1 1  x x x x x x x x  x x x x x x x x", wantErr: true, errMsg: "out of range"},
		{name: "input index too large", text: "i8 0 1 0 1 1 0 0  0 1 0 1 0 0 1 1  x x x x x x x x  x x x x x x x x", wantErr: true, errMsg: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := ParseOpcode(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !bytes.Contains([]byte(err.Error()), []byte(tt.errMsg)) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			again, err := ParseOpcode(op.String())
			if err != nil {
				t.Fatalf("reparse %q: %v", op.String(), err)
			}
			if *again != *op {
				t.Errorf("String() does not round trip: %q", op.String())
			}
		})
	}
}

func TestParseOpcodeBareInputUsesBitPosition(t *testing.T) {
	op := MustParseOpcode(loadPageText)

	for i := 24; i < 32; i++ {
		b := op.Bits[i]
		if b.Kind != BitInput {
			t.Fatalf("bit %d kind = %v, want input", i, b.Kind)
		}
		if want := uint8(31 - i); b.Index != want {
			t.Errorf("bit %d index = %d, want %d", i, b.Index, want)
		}
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		addr    uint32
		want    [4]byte
		wantErr error
	}{
		{
			name: "program enable",
			text: pgmEnableText,
			want: [4]byte{0xAC, 0x53, 0x00, 0x00},
		},
		{
			name: "flash read low word 0x1234",
			text: readLoText,
			addr: 0x1234,
			want: [4]byte{0x20, 0x12, 0x34, 0x00},
		},
		{
			name: "address bits beyond template are dropped",
			text: readLoText,
			addr: 0xFFFF,
			want: [4]byte{0x20, 0x3F, 0xFF, 0x00},
		},
		{
			name:    "input template without input",
			text:    loadPageText,
			wantErr: ErrMissingInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Encode(MustParseOpcode(tt.text), tt.addr)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd != tt.want {
				t.Errorf("cmd = % X, want % X", cmd, tt.want)
			}
		})
	}
}

func TestEncodeNilTemplate(t *testing.T) {
	if _, err := Encode(nil, 0); !errors.Is(err, ErrNoInstruction) {
		t.Errorf("Encode(nil) error = %v, want ErrNoInstruction", err)
	}
	if _, err := EncodeInput(nil, 0, 0xFF); !errors.Is(err, ErrNoInstruction) {
		t.Errorf("EncodeInput(nil) error = %v, want ErrNoInstruction", err)
	}
}

func TestEncodeInput(t *testing.T) {
	op := MustParseOpcode(eepromWrText)

	cmd, err := EncodeInput(op, 0x2A5, 0x5A)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [4]byte{0xC0, 0x02, 0xA5, 0x5A}
	if cmd != want {
		t.Errorf("cmd = % X, want % X", cmd, want)
	}
}

func TestEncodeAddressRoundTrip(t *testing.T) {
	templates := []string{readLoText, loadPageText, eepromWrText, pgmEnableText}
	addrs := []uint32{0, 1, 0x55, 0xAA, 0x3FFF, 0x1234, 0xFFFFFFFF, 0x80000000, 0xDEADBEEF}

	for _, text := range templates {
		op := MustParseOpcode(text)
		for _, addr := range addrs {
			cmd, err := EncodeInput(op, addr, 0)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, mask := extractAddr(op, cmd)
			if got != addr&mask {
				t.Errorf("%q addr 0x%08X: decoded 0x%08X, want 0x%08X", text, addr, got, addr&mask)
			}
		}
	}
}

func TestSetInputDoesNotTouchOtherBits(t *testing.T) {
	op := MustParseOpcode(loadPageText)

	var cmd [4]byte
	SetBits(op, &cmd)
	SetAddr(op, &cmd, 0x3F)
	before := cmd

	SetInput(op, &cmd, 0xFF)
	if cmd[0] != before[0] || cmd[1] != before[1] || cmd[2] != before[2] {
		t.Errorf("SetInput changed non-input bytes: % X -> % X", before, cmd)
	}
	if cmd[3] != 0xFF {
		t.Errorf("input byte = 0x%02X, want 0xFF", cmd[3])
	}
}

func BenchmarkEncodeInput(b *testing.B) {
	op := MustParseOpcode(loadPageText)
	for i := 0; i < b.N; i++ {
		_, _ = EncodeInput(op, uint32(i), byte(i))
	}
}
