package avr

import (
	"time"

	"github.com/facchinm/avrdude/protocol"
)

// Well-known memory names.
const (
	MemFlash     = "flash"
	MemEEPROM    = "eeprom"
	MemFuse      = "fuse"
	MemLFuse     = "lfuse"
	MemHFuse     = "hfuse"
	MemEFuse     = "efuse"
	MemLock      = "lock"
	MemSignature = "signature"
)

// Memory describes one memory region of a part and holds the in-tool copy
// of its contents.
type Memory struct {
	// Desc is the memory name ("flash", "eeprom", "lfuse", ...)
	Desc string

	// Paged is true for page addressed memories (e.g. ATmega flash)
	Paged bool

	// Size is the total size in bytes
	Size int

	// PageSize is the page size in bytes, 0 if not paged
	PageSize int

	// NumPages is the number of pages, 0 if not paged
	NumPages int

	MinWriteDelay time.Duration
	MaxWriteDelay time.Duration

	// PowerOffAfterWrite means the device must be power cycled after this
	// memory is written
	PowerOffAfterWrite bool

	// Readback holds the values a polled read returns while a write is in
	// progress; writing one of these values cannot be polled
	Readback [2]byte

	// Buf is the back-buffer, Size bytes long
	Buf []byte

	// Ops holds the instruction templates; nil entries are not supported
	Ops [protocol.NumInstructions]*protocol.Opcode
}

// Op returns the template for inst, or nil if the memory does not define it.
func (m *Memory) Op(inst protocol.Instruction) *protocol.Opcode {
	if m == nil || inst < 0 || inst >= protocol.NumInstructions {
		return nil
	}
	return m.Ops[inst]
}

// IsFlash reports whether m is the program memory. Program memory is word
// addressed by the serial instructions.
func (m *Memory) IsFlash() bool {
	return m != nil && m.Desc == MemFlash
}

// clone returns a copy of m with its own back-buffer. Templates are shared,
// they are never modified.
func (m *Memory) clone() *Memory {
	c := *m
	c.Buf = make([]byte, m.Size)
	copy(c.Buf, m.Buf)
	return &c
}
