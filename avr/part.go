package avr

import (
	"fmt"
	"time"

	"github.com/facchinm/avrdude/protocol"
)

// ResetDisposition tells whether the reset pin may double as an I/O pin.
type ResetDisposition int

const (
	ResetDedicated ResetDisposition = iota
	ResetIO
)

// RetryPin selects the pin pulsed between program enable attempts.
type RetryPin int

const (
	// RetrySCK pulses the clock line, shifting the device one bit
	RetrySCK RetryPin = iota

	// RetryReset pulses the reset line, restarting the device
	RetryReset
)

// LegacyNoEchoPart is the part that does not echo program enable. It gets a
// single attempt and no synchronisation retries.
const LegacyNoEchoPart = "AT90S1200"

// Part describes a target microcontroller. A Part is read-only for the
// protocol engine except for the memory back-buffers.
type Part struct {
	// Desc is the long part name, e.g. "ATmega328P"
	Desc string

	// ID is the short part name, e.g. "m328p"
	ID string

	// Signature is the expected 3-byte device signature
	Signature [3]byte

	// STK500DevCode is the device code used by STK500 class programmers
	STK500DevCode byte

	// AVR910DevCode is the device code used by AVR910 programmers
	AVR910DevCode byte

	// ChipEraseDelay is how long a chip erase takes
	ChipEraseDelay time.Duration

	ResetDisposition ResetDisposition
	RetryPulse       RetryPin

	// Ops holds the part-level templates (chip erase, program enable)
	Ops [protocol.NumInstructions]*protocol.Opcode

	// Mems lists the memories of the part
	Mems []*Memory
}

// Mem returns the named memory, or nil if the part has none.
func (p *Part) Mem(name string) *Memory {
	for _, m := range p.Mems {
		if m.Desc == name {
			return m
		}
	}
	return nil
}

// Op returns the part-level template for inst, or nil.
func (p *Part) Op(inst protocol.Instruction) *protocol.Opcode {
	if inst < 0 || inst >= protocol.NumInstructions {
		return nil
	}
	return p.Ops[inst]
}

// NeedsSyncEcho reports whether program enable is confirmed by an echo.
func (p *Part) NeedsSyncEcho() bool {
	return p.Desc != LegacyNoEchoPart
}

// Clone returns a copy of p with fresh back-buffers, ready for one
// programming session.
func (p *Part) Clone() *Part {
	c := *p
	c.Mems = make([]*Memory, len(p.Mems))
	for i, m := range p.Mems {
		c.Mems[i] = m.clone()
	}
	return &c
}

// String returns the part name.
func (p *Part) String() string {
	return fmt.Sprintf("%s (%s)", p.Desc, p.ID)
}
