package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// BitKind describes how one bit of a 32-bit serial programming
// instruction is produced or consumed.
type BitKind uint8

const (
	// BitIgnore is left 0 on output and ignored on input
	BitIgnore BitKind = iota

	// BitValue is a fixed 0 or 1
	BitValue

	// BitAddress is taken from the address
	BitAddress

	// BitInput is taken from the data byte being written
	BitInput

	// BitOutput carries a bit of the byte the device returns
	BitOutput
)

func (k BitKind) String() string {
	switch k {
	case BitIgnore:
		return "ignore"
	case BitValue:
		return "value"
	case BitAddress:
		return "address"
	case BitInput:
		return "input"
	case BitOutput:
		return "output"
	default:
		return fmt.Sprintf("BitKind(%d)", uint8(k))
	}
}

// CmdBit is the specification of a single instruction bit.
type CmdBit struct {
	// Kind selects where the bit comes from
	Kind BitKind

	// Index is the bit of the address, input or output byte this bit maps to.
	// Only meaningful for BitAddress, BitInput and BitOutput.
	Index uint8

	// Value is the fixed bit for BitValue (0 or 1)
	Value uint8
}

// Opcode is an instruction template of exactly 32 bit specifications.
// Bits[0] is the most significant bit of command byte 0 and Bits[31]
// the least significant bit of command byte 3.
type Opcode struct {
	Bits [32]CmdBit
}

// HasKind reports whether any bit of the template is of kind k.
func (op *Opcode) HasKind(k BitKind) bool {
	if op == nil {
		return false
	}
	for _, b := range op.Bits {
		if b.Kind == k {
			return true
		}
	}
	return false
}

// String renders the template in the notation accepted by ParseOpcode.
func (op *Opcode) String() string {
	if op == nil {
		return "<nil>"
	}
	var sb strings.Builder
	for i, b := range op.Bits {
		if i > 0 {
			if i%8 == 0 {
				sb.WriteString("  ")
			} else {
				sb.WriteByte(' ')
			}
		}
		switch b.Kind {
		case BitIgnore:
			sb.WriteByte('x')
		case BitValue:
			sb.WriteByte('0' + b.Value)
		case BitAddress:
			sb.WriteString("a" + strconv.Itoa(int(b.Index)))
		case BitInput:
			sb.WriteString("i" + strconv.Itoa(int(b.Index)))
		case BitOutput:
			sb.WriteString("o" + strconv.Itoa(int(b.Index)))
		}
	}
	return sb.String()
}

// ParseOpcode builds an Opcode from 32 whitespace separated tokens,
// most significant bit first:
//
//	0, 1   fixed value
//	x      ignored
//	aN     address bit N
//	i, iN  input bit (bare "i" uses the bit position within its byte)
//	o, oN  output bit (bare "o" uses the bit position within its byte)
//
// Example:
//
//	op, err := protocol.ParseOpcode(
//	    "1 0 1 0 1 1 0 0  0 1 0 1 0 0 1 1  x x x x x x x x  x x x x x x x x")
func ParseOpcode(text string) (*Opcode, error) {
	fields := strings.Fields(text)
	if len(fields) != 32 {
		return nil, fmt.Errorf("opcode must have 32 bits, got %d", len(fields))
	}

	op := &Opcode{}
	for i, f := range fields {
		pos := uint8(7 - i%8)
		switch {
		case f == "0" || f == "1":
			op.Bits[i] = CmdBit{Kind: BitValue, Value: f[0] - '0'}
		case f == "x":
			op.Bits[i] = CmdBit{Kind: BitIgnore}
		case f == "i":
			op.Bits[i] = CmdBit{Kind: BitInput, Index: pos}
		case f == "o":
			op.Bits[i] = CmdBit{Kind: BitOutput, Index: pos}
		case len(f) > 1 && (f[0] == 'a' || f[0] == 'i' || f[0] == 'o'):
			n, err := strconv.ParseUint(f[1:], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("bit %d: invalid token %q", i, f)
			}
			kind := BitAddress
			limit := uint64(31)
			if f[0] != 'a' {
				limit = 7
				kind = BitInput
				if f[0] == 'o' {
					kind = BitOutput
				}
			}
			if n > limit {
				return nil, fmt.Errorf("bit %d: index %d out of range in %q", i, n, f)
			}
			op.Bits[i] = CmdBit{Kind: kind, Index: uint8(n)}
		default:
			return nil, fmt.Errorf("bit %d: invalid token %q", i, f)
		}
	}

	return op, nil
}

// MustParseOpcode is like ParseOpcode but panics on error.
// It is intended for static instruction tables.
func MustParseOpcode(text string) *Opcode {
	op, err := ParseOpcode(text)
	if err != nil {
		panic(err)
	}
	return op
}
