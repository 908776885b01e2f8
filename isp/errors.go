package isp

import (
	"fmt"
)

// SignatureMismatchError indicates that the device signature does not match the part.
type SignatureMismatchError struct {
	Part     string
	Expected [3]byte
	Actual   [3]byte
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("device signature mismatch: %s expects %02X %02X %02X, device has %02X %02X %02X",
		e.Part, e.Expected[0], e.Expected[1], e.Expected[2], e.Actual[0], e.Actual[1], e.Actual[2])
}

// MemoryNotFoundError indicates that the part has no memory of the given name.
type MemoryNotFoundError struct {
	Part   string
	Memory string
}

func (e *MemoryNotFoundError) Error() string {
	return fmt.Sprintf("part %s has no %q memory", e.Part, e.Memory)
}

// OutOfRangeError indicates data that does not fit into a memory.
type OutOfRangeError struct {
	Memory string
	Size   int
	Length int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%d bytes do not fit into %s: size is %d",
		e.Length, e.Memory, e.Size)
}

// VerificationError indicates that memory contents differ from the expected data.
type VerificationError struct {
	Memory   string
	Addr     int
	Expected byte
	Actual   byte
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification of %s failed at 0x%04X: expected 0x%02X, got 0x%02X",
		e.Memory, e.Addr, e.Expected, e.Actual)
}
