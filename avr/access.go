package avr

import (
	"fmt"
	"time"

	"github.com/facchinm/avrdude/protocol"
)

// Commander sends one 4-byte serial programming instruction and returns the
// 4 bytes the device clocked back.
type Commander interface {
	Cmd(cmd [4]byte) ([4]byte, error)
}

// sleep is replaced in tests.
var sleep = time.Sleep

// minPollInterval separates polled reads of memories without a minimum
// write delay.
const minPollInterval = 100 * time.Microsecond

// WriteVerifyError indicates that a polled byte write never read back the
// written value within the memory's maximum write delay.
type WriteVerifyError struct {
	Memory string
	Addr   uint32
	Wrote  byte
	Read   byte
}

func (e *WriteVerifyError) Error() string {
	return fmt.Sprintf("write %s at 0x%04X: wrote 0x%02X, read back 0x%02X",
		e.Memory, e.Addr, e.Wrote, e.Read)
}

// ProgramEnable sends the part's program enable instruction. A device
// that does not echo the second command byte is out of sync and yields a
// *protocol.EchoMismatchError.
func ProgramEnable(c Commander, p *Part) error {
	op := p.Op(protocol.InstProgramEnable)
	if op == nil {
		return &protocol.InstructionError{Instruction: protocol.InstProgramEnable, Part: p.Desc}
	}

	cmd, err := protocol.Encode(op, 0)
	if err != nil {
		return err
	}
	res, err := c.Cmd(cmd)
	if err != nil {
		return err
	}

	if !protocol.EchoMatches(cmd, res) {
		return &protocol.EchoMismatchError{
			Expected: cmd[protocol.ProgramEnableEchoIndex-1],
			Actual:   res[protocol.ProgramEnableEchoIndex],
		}
	}
	return nil
}

// ReadByte reads one byte of m at byte address addr using the memory's read
// templates. Word addressed memories use the low/high read pair.
func ReadByte(c Commander, p *Part, m *Memory, addr uint32) (byte, error) {
	inst, a := readOp(m, addr)
	op := m.Op(inst)
	if op == nil {
		return 0, &protocol.InstructionError{Instruction: inst, Part: p.Desc, Memory: m.Desc}
	}

	cmd, err := protocol.Encode(op, a)
	if err != nil {
		return 0, err
	}
	res, err := c.Cmd(cmd)
	if err != nil {
		return 0, fmt.Errorf("read %s at 0x%04X: %w", m.Desc, addr, err)
	}

	return protocol.DecodeOutput(op, res), nil
}

// WriteByte writes one byte of m at byte address addr.
//
// For paged memories the byte only goes into the device page buffer and
// the caller must commit the page with WritePage. Other memories are
// written directly and the call returns once the write has completed,
// either by polling the value back or by waiting the maximum write delay
// when polling is not possible.
func WriteByte(c Commander, p *Part, m *Memory, addr uint32, value byte) error {
	inst, a := writeOp(m, addr)
	op := m.Op(inst)
	if op == nil {
		return &protocol.InstructionError{Instruction: inst, Part: p.Desc, Memory: m.Desc}
	}

	cmd, err := protocol.EncodeInput(op, a, value)
	if err != nil {
		return err
	}
	if _, err := c.Cmd(cmd); err != nil {
		return fmt.Errorf("write %s at 0x%04X: %w", m.Desc, addr, err)
	}

	if m.Paged && (inst == protocol.InstLoadPageLo || inst == protocol.InstLoadPageHi) {
		return nil
	}

	if m.PowerOffAfterWrite || value == m.Readback[0] || value == m.Readback[1] {
		sleep(m.MaxWriteDelay)
		return nil
	}

	// poll every MinWriteDelay until MaxWriteDelay has been spent
	interval := m.MinWriteDelay
	if interval <= 0 {
		interval = minPollInterval
	}
	var waited time.Duration
	for {
		sleep(interval)
		waited += interval

		got, err := ReadByte(c, p, m, addr)
		if err != nil {
			return err
		}
		if got == value {
			return nil
		}
		if waited >= m.MaxWriteDelay {
			return &WriteVerifyError{Memory: m.Desc, Addr: addr, Wrote: value, Read: got}
		}
	}
}

// WritePage commits the device page buffer holding byte address addr.
func WritePage(c Commander, p *Part, m *Memory, addr uint32) error {
	op := m.Op(protocol.InstWritePage)
	if op == nil {
		return &protocol.InstructionError{Instruction: protocol.InstWritePage, Part: p.Desc, Memory: m.Desc}
	}

	a := addr
	if m.IsFlash() {
		a = addr / 2
	}
	cmd, err := protocol.Encode(op, a)
	if err != nil {
		return err
	}
	if _, err := c.Cmd(cmd); err != nil {
		return fmt.Errorf("write page %s at 0x%04X: %w", m.Desc, addr, err)
	}

	sleep(m.MaxWriteDelay)
	return nil
}

func readOp(m *Memory, addr uint32) (protocol.Instruction, uint32) {
	if m.Op(protocol.InstReadLo) != nil {
		if addr&1 == 1 {
			return protocol.InstReadHi, addr / 2
		}
		return protocol.InstReadLo, addr / 2
	}
	return protocol.InstRead, addr
}

func writeOp(m *Memory, addr uint32) (protocol.Instruction, uint32) {
	if m.Paged && m.Op(protocol.InstLoadPageLo) != nil {
		if addr&1 == 1 {
			return protocol.InstLoadPageHi, addr / 2
		}
		return protocol.InstLoadPageLo, addr / 2
	}
	if m.Paged && m.Op(protocol.InstWrite) == nil && m.Op(protocol.InstWriteLo) == nil {
		// paged memory addressed bytewise, e.g. eeprom with a page buffer
		return protocol.InstLoadPageLo, addr
	}
	if m.Op(protocol.InstWriteLo) != nil {
		if addr&1 == 1 {
			return protocol.InstWriteHi, addr / 2
		}
		return protocol.InstWriteLo, addr / 2
	}
	return protocol.InstWrite, addr
}
