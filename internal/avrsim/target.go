// Package avrsim simulates an AVR target on the serial programming
// interface, driven pin by pin like real hardware.
//
// The target decodes every 4-byte instruction against the templates of
// its part descriptor, so anything the part table describes can be
// exercised without a device.
package avrsim

import (
	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/protocol"
)

// Wiring tells the target which pin numbers carry which signal.
type Wiring struct {
	Reset int
	SCK   int
	MOSI  int
	MISO  int
}

const pinMask = 0x7F

// Target is a simulated AVR. It implements the pin interface of a bitbang
// programmer and a power switch.
type Target struct {
	wiring Wiring
	part   *avr.Part
	levels map[int]bool

	// RejectEnables is the number of program enable instructions answered
	// without the echo, as an unsynchronised device would
	RejectEnables int

	// NoEcho makes the target never echo program enable
	NoEcho bool

	// Enables counts program enable instructions received
	Enables int

	// Pulses counts high pulses per pin
	Pulses map[int]int

	// Commands logs every complete instruction received
	Commands [][4]byte

	// Mem holds the device memory contents by memory name
	Mem map[string][]byte

	Powered     bool
	Programming bool

	pageBuf map[string]map[int]byte

	in     byte
	out    byte
	bits   int
	cmd    [4]byte
	nbytes int
}

// New creates a target for part with erased memories and the part's
// signature.
func New(part *avr.Part, w Wiring) *Target {
	t := &Target{
		wiring:  w,
		part:    part,
		levels:  map[int]bool{},
		Pulses:  map[int]int{},
		Mem:     map[string][]byte{},
		pageBuf: map[string]map[int]byte{},
	}
	for _, m := range part.Mems {
		buf := make([]byte, m.Size)
		for i := range buf {
			buf[i] = 0xFF
		}
		t.Mem[m.Desc] = buf
	}
	if sig, ok := t.Mem[avr.MemSignature]; ok {
		copy(sig, part.Signature[:])
	}
	return t
}

// SetPin drives a line. A rising SCK samples MOSI, a falling SCK shifts
// the next response bit out on MISO.
func (t *Target) SetPin(pin int, high bool) error {
	if pin&0x80 != 0 {
		high = !high
	}
	pin &= pinMask

	prev := t.levels[pin]
	t.levels[pin] = high

	switch pin {
	case t.wiring.Reset & pinMask:
		if high && !prev {
			t.reset()
		}
	case t.wiring.SCK & pinMask:
		if high && !prev {
			t.sample()
		} else if !high && prev {
			t.shift()
		}
	}
	return nil
}

// GetPin returns the level of a line; MISO is driven by the target.
func (t *Target) GetPin(pin int) (bool, error) {
	inv := pin&0x80 != 0
	pin &= pinMask

	v := t.levels[pin]
	if pin == t.wiring.MISO&pinMask {
		v = t.out&0x80 != 0
	}
	return v != inv, nil
}

// HighPulsePin pulses a line. A pulse on SCK between instructions realigns
// the shift register, which is what the retry pulse achieves on silicon.
func (t *Target) HighPulsePin(pin int) error {
	t.Pulses[pin&pinMask]++
	if pin&pinMask == t.wiring.SCK&pinMask {
		t.resync()
		return nil
	}
	if err := t.SetPin(pin, true); err != nil {
		return err
	}
	return t.SetPin(pin, false)
}

// PowerUp switches target power on.
func (t *Target) PowerUp() error {
	t.Powered = true
	return nil
}

// PowerDown switches target power off and leaves programming mode.
func (t *Target) PowerDown() error {
	t.Powered = false
	t.Programming = false
	return nil
}

func (t *Target) reset() {
	t.Programming = false
	t.resync()
}

func (t *Target) resync() {
	t.in, t.out, t.bits, t.nbytes = 0, 0, 0, 0
	t.cmd = [4]byte{}
}

func (t *Target) sample() {
	t.in <<= 1
	if t.levels[t.wiring.MOSI&pinMask] {
		t.in |= 1
	}
}

func (t *Target) shift() {
	t.out <<= 1
	t.bits++
	if t.bits < 8 {
		return
	}

	t.cmd[t.nbytes] = t.in
	t.nbytes++
	t.bits, t.in = 0, 0

	switch t.nbytes {
	case 1:
		t.out = t.cmd[0]
	case 2:
		t.out = t.cmd[1]
		if t.isProgramEnable() && (t.NoEcho || t.RejectEnables > 0) {
			t.out = 0xFF
		}
	case 3:
		t.out = t.output()
	case 4:
		t.execute()
		t.nbytes = 0
		t.out = 0
	}
}

func (t *Target) isProgramEnable() bool {
	op := t.part.Op(protocol.InstProgramEnable)
	return op != nil && matches(op, t.cmd, 2)
}

// output computes the last response byte of a read instruction.
func (t *Target) output() byte {
	mem, inst, op := t.decode(3)
	if op == nil || !t.Programming {
		return 0
	}

	var v byte
	switch inst {
	case protocol.InstRead, protocol.InstReadLo, protocol.InstReadHi:
		buf := t.Mem[mem.Desc]
		if a := byteAddr(mem, inst, extract(op, t.cmd, protocol.BitAddress)); a < len(buf) {
			v = buf[a]
		}
	default:
		return 0
	}

	var res [4]byte
	for i, b := range op.Bits {
		if b.Kind == protocol.BitOutput && i >= 24 && v>>b.Index&1 == 1 {
			res[i/8] |= 0x80 >> (i % 8)
		}
	}
	return res[3]
}

func (t *Target) execute() {
	t.Commands = append(t.Commands, t.cmd)

	if op := t.part.Op(protocol.InstProgramEnable); op != nil && matches(op, t.cmd, 4) {
		t.Enables++
		if t.RejectEnables > 0 {
			t.RejectEnables--
			return
		}
		t.Programming = true
		return
	}
	if !t.Programming {
		return
	}
	if op := t.part.Op(protocol.InstChipErase); op != nil && matches(op, t.cmd, 4) {
		t.erase()
		return
	}

	mem, inst, op := t.decode(4)
	if op == nil {
		return
	}

	addr := extract(op, t.cmd, protocol.BitAddress)
	in := byte(extract(op, t.cmd, protocol.BitInput))
	buf := t.Mem[mem.Desc]

	switch inst {
	case protocol.InstWrite, protocol.InstWriteLo, protocol.InstWriteHi:
		if a := byteAddr(mem, inst, addr); a < len(buf) {
			buf[a] = in
		}
	case protocol.InstLoadPageLo, protocol.InstLoadPageHi:
		off := byteAddr(mem, inst, addr)
		if mem.PageSize > 0 {
			off %= mem.PageSize
		}
		if t.pageBuf[mem.Desc] == nil {
			t.pageBuf[mem.Desc] = map[int]byte{}
		}
		t.pageBuf[mem.Desc][off] = in
	case protocol.InstWritePage:
		base := byteAddr(mem, inst, addr)
		if mem.PageSize > 0 {
			base -= base % mem.PageSize
		}
		for off, v := range t.pageBuf[mem.Desc] {
			if base+off < len(buf) {
				buf[base+off] = v
			}
		}
		delete(t.pageBuf, mem.Desc)
	}
}

func (t *Target) erase() {
	for _, name := range []string{avr.MemFlash, avr.MemEEPROM} {
		for i := range t.Mem[name] {
			t.Mem[name][i] = 0xFF
		}
	}
}

// decode finds the memory instruction whose fixed bits match the first n
// bytes of the current command.
func (t *Target) decode(n int) (*avr.Memory, protocol.Instruction, *protocol.Opcode) {
	for _, m := range t.part.Mems {
		for inst := protocol.Instruction(0); inst < protocol.NumInstructions; inst++ {
			op := m.Op(inst)
			if op != nil && matches(op, t.cmd, n) {
				return m, inst, op
			}
		}
	}
	return nil, 0, nil
}

func matches(op *protocol.Opcode, cmd [4]byte, n int) bool {
	for i, b := range op.Bits[:n*8] {
		if b.Kind != protocol.BitValue {
			continue
		}
		bit := cmd[i/8]&(0x80>>(i%8)) != 0
		if bit != (b.Value == 1) {
			return false
		}
	}
	return true
}

func extract(op *protocol.Opcode, cmd [4]byte, kind protocol.BitKind) uint32 {
	var v uint32
	for i, b := range op.Bits {
		if b.Kind == kind && cmd[i/8]&(0x80>>(i%8)) != 0 {
			v |= 1 << b.Index
		}
	}
	return v
}

func byteAddr(m *avr.Memory, inst protocol.Instruction, addr uint32) int {
	if !m.IsFlash() {
		return int(addr)
	}
	a := int(addr) * 2
	switch inst {
	case protocol.InstReadHi, protocol.InstWriteHi, protocol.InstLoadPageHi:
		a++
	}
	return a
}
