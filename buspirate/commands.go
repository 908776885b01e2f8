package buspirate

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/isp"
	"github.com/facchinm/avrdude/protocol"
)

// Cmd sends one 4-byte instruction over SPI and returns the 4 bytes read
// back.
func (b *Programmer) Cmd(cmd [4]byte) ([4]byte, error) {
	var res [4]byte
	if b.failed {
		return res, ErrAborted
	}

	if b.mode == ModeBinary {
		if err := b.expectAck(cmdBulk4, "bulk transfer"); err != nil {
			return res, err
		}
		if err := b.send(cmd[:]); err != nil {
			return res, err
		}
		got, err := b.recv(4)
		if err != nil {
			if protocol.IsNotResponding(err) {
				return res, &protocol.ShortResponseError{Operation: "SPI", Got: len(got), Want: 4}
			}
			return res, err
		}
		copy(res[:], got)
		return res, nil
	}

	return b.cmdASCII(cmd)
}

func (b *Programmer) cmdASCII(cmd [4]byte) ([4]byte, error) {
	var res [4]byte
	line := fmt.Sprintf("0x%02x 0x%02x 0x%02x 0x%02x\n", cmd[0], cmd[1], cmd[2], cmd[3])
	if err := b.sendLine(line); err != nil {
		return res, err
	}

	n := 0
	for n < 4 {
		rcvd, err := b.mustReadLine("SPI")
		if err != nil {
			return res, err
		}
		if v, ok := parseTransfer(rcvd); ok {
			res[n] = v
			n++
		}
		if isPrompt(rcvd) {
			break
		}
	}
	if n != 4 {
		return res, &protocol.ShortResponseError{Operation: "SPI", Got: n, Want: 4}
	}

	// wait for the prompt
	for {
		c, ok, err := b.getc()
		if err != nil {
			return res, err
		}
		if !ok {
			return res, &protocol.NotRespondingError{Operation: "SPI prompt", Timeout: b.config.RecvTimeout}
		}
		if c == '>' {
			return res, nil
		}
	}
}

// parseTransfer extracts the read byte of a "WRITE: 0xAC READ: 0x04" line.
func parseTransfer(line string) (byte, bool) {
	if !strings.HasPrefix(line, "WRITE: 0x") {
		return 0, false
	}
	_, read, found := strings.Cut(line, "READ: 0x")
	if !found {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(read), 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// PowerUp switches on the target supply. In binary mode power is switched
// on while negotiating, so this does nothing.
func (b *Programmer) PowerUp() error {
	if b.failed {
		return ErrAborted
	}
	if b.mode == ModeBinary {
		return nil
	}

	ok, err := b.expectLine("W\n", "Power supplies ON", true)
	if err != nil {
		return err
	}
	if !ok {
		b.logError("no response to power up, trying to continue anyway")
		return nil
	}

	if b.config.CPUFreq != 0 {
		pwm, err := b.startPWM()
		if err != nil {
			return err
		}
		if !pwm {
			b.logError("no response to start PWM command")
		}
	}
	return nil
}

func (b *Programmer) startPWM() (bool, error) {
	for _, step := range []struct{ send, want string }{
		{"g\n", "Frequency in KHz"},
		{strconv.Itoa(b.config.CPUFreq) + "\n", "Duty cycle in %"},
		{"50\n", "PWM active"},
	} {
		ok, err := b.expectLine(step.send, step.want, true)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// PowerDown switches off the target supply and the reset lines.
func (b *Programmer) PowerDown() error {
	if b.mode == ModeBinary {
		_, ok, err := b.expectByte(cmdPeripheral, ack)
		if err != nil {
			return err
		}
		if !ok {
			b.logError("no response to power down")
		}
		return nil
	}

	if b.config.CPUFreq != 0 {
		ok, err := b.expectLine("g\n", "PWM disabled", true)
		if err != nil {
			return err
		}
		if !ok {
			b.logError("no response to stop PWM command")
		}
	}
	ok, err := b.expectLine("w\n", "Power supplies OFF", true)
	if err != nil {
		return err
	}
	if !ok {
		b.logError("no response to power down")
	}
	return nil
}

// ProgramEnable asserts reset and sends the program enable instruction.
func (b *Programmer) ProgramEnable(p *avr.Part) error {
	if b.failed {
		return ErrAborted
	}

	if b.mode == ModeBinary {
		b.periph &^= byte(b.config.Reset)
		if err := b.expectAck(b.periph, "assert reset"); err != nil {
			return err
		}
	} else {
		ok, err := b.expectLine("{\n", "CS ENABLED", true)
		if err != nil {
			return err
		}
		if !ok {
			b.logError("no response to CS enable")
		}
	}

	return avr.ProgramEnable(b, p)
}

// Initialize powers the target and enters programming mode.
func (b *Programmer) Initialize(p *avr.Part) error {
	if err := b.PowerUp(); err != nil {
		return fmt.Errorf("power up: %w", err)
	}
	return b.ProgramEnable(p)
}

// ChipErase erases the device and re-initializes it.
func (b *Programmer) ChipErase(p *avr.Part) error {
	op := p.Op(protocol.InstChipErase)
	if op == nil {
		return &protocol.InstructionError{Instruction: protocol.InstChipErase, Part: p.Desc}
	}

	b.config.Indicator.Programming(true)
	defer b.config.Indicator.Programming(false)

	cmd, err := protocol.Encode(op, 0)
	if err != nil {
		return err
	}
	if _, err := b.Cmd(cmd); err != nil {
		return err
	}
	b.config.Sleep(p.ChipEraseDelay)

	return b.Initialize(p)
}

// ReadMemByte reads one byte using the part's read instructions.
func (b *Programmer) ReadMemByte(p *avr.Part, m *avr.Memory, addr uint32) (byte, error) {
	return avr.ReadByte(b, p, m, addr)
}

// WriteMemByte writes one byte using the part's write instructions.
func (b *Programmer) WriteMemByte(p *avr.Part, m *avr.Memory, addr uint32, value byte) error {
	return avr.WriteByte(b, p, m, addr, value)
}

// PagedLoad reads n bytes of flash starting at byte address addr into
// m.Buf with the AVR extended read command.
func (b *Programmer) PagedLoad(p *avr.Part, m *avr.Memory, pageSize int, addr uint32, n int) (int, error) {
	if b.failed {
		return 0, ErrAborted
	}
	if !b.Capabilities().PagedLoad {
		return 0, &protocol.UnsupportedError{Operation: "paged load", Reason: "AVR extended commands not available"}
	}
	if !m.IsFlash() {
		return 0, &protocol.UnsupportedError{Operation: "paged load", Reason: "only flash can be read paged"}
	}
	if int(addr)+n > len(m.Buf) {
		return 0, fmt.Errorf("paged load: %d bytes at 0x%X exceed %s buffer", n, addr, m.Desc)
	}

	cmd := make([]byte, 10)
	cmd[0], cmd[1] = cmdAVRExt, 0x02
	binary.BigEndian.PutUint32(cmd[2:], addr>>1)
	binary.BigEndian.PutUint32(cmd[6:], uint32(n))
	if err := b.send(cmd); err != nil {
		return 0, err
	}

	// ack of the extended command, then the read status
	res, err := b.recv(2)
	if err != nil {
		return 0, err
	}
	if res[1] != ack {
		return 0, &protocol.ProtocolError{Operation: "paged load", StatusCode: res[1]}
	}

	data, err := b.recv(n)
	if err != nil {
		return 0, &protocol.PartialTransferError{Operation: "paged load", Offset: int(addr) + len(data), Err: err}
	}
	copy(m.Buf[addr:], data)
	return n, nil
}

// PagedWrite loads n bytes of m.Buf starting at byte address addr into
// the device a page at a time with write-then-read, committing each page
// with the part's write page instruction. A failed page aborts the
// session.
func (b *Programmer) PagedWrite(p *avr.Part, m *avr.Memory, pageSize int, addr uint32, n int) (int, error) {
	if b.failed {
		return 0, ErrAborted
	}
	if !b.Capabilities().PagedWrite {
		return 0, &protocol.UnsupportedError{Operation: "paged write", Reason: "needs binary SPI mode and firmware 5.10 or later"}
	}
	if pageSize <= 0 || pageSize > maxPagedWrite {
		return 0, &protocol.UnsupportedError{Operation: "paged write", Reason: fmt.Sprintf("page size %d", pageSize)}
	}
	if !m.IsFlash() {
		return 0, &protocol.UnsupportedError{Operation: "paged write", Reason: "only flash can be written paged"}
	}
	lo, hi := m.Op(protocol.InstLoadPageLo), m.Op(protocol.InstLoadPageHi)
	if lo == nil {
		return 0, &protocol.InstructionError{Instruction: protocol.InstLoadPageLo, Part: p.Desc, Memory: m.Desc}
	}
	if hi == nil {
		return 0, &protocol.InstructionError{Instruction: protocol.InstLoadPageHi, Part: p.Desc, Memory: m.Desc}
	}
	if int(addr)+n > len(m.Buf) {
		return 0, fmt.Errorf("paged write: %d bytes at 0x%X exceed %s buffer", n, addr, m.Desc)
	}

	b.config.Indicator.Error(false)

	for done := 0; done < n; done += pageSize {
		size := min(pageSize, n-done)
		start := int(addr) + done

		buf := make([]byte, 0, 4*size)
		for i := 0; i < size; i++ {
			a := start + i
			op := lo
			if i%2 == 1 {
				op = hi
			}
			cmd, err := protocol.EncodeInput(op, uint32(a/2), m.Buf[a])
			if err != nil {
				return done, err
			}
			buf = append(buf, cmd[:]...)
		}

		header := []byte{cmdWriteRead, byte(len(buf) >> 8), byte(len(buf)), 0, 0}

		b.config.Indicator.Programming(true)
		err := b.send(append(header, buf...))
		var status []byte
		if err == nil {
			status, err = b.recv(1)
		}
		if err == nil && status[0] != ack {
			err = &protocol.ProtocolError{Operation: "write then read", StatusCode: status[0]}
		}
		if err != nil {
			b.config.Indicator.Programming(false)
			b.config.Indicator.Error(true)
			b.failed = true
			b.logError("paged write failed, session aborted", "offset", start, "error", err)
			return done, &protocol.PartialTransferError{Operation: "paged write", Offset: start, Err: err}
		}
		b.config.Indicator.Programming(false)

		if err := avr.WritePage(b, p, m, uint32(start+size-1)); err != nil {
			return done, err
		}
	}
	return n, nil
}

var _ isp.Backend = (*Programmer)(nil)
