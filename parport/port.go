package parport

import (
	"fmt"
	"time"

	"github.com/facchinm/avrdude/bitbang"
)

// Register selects one of the three parallel port registers.
type Register int

const (
	Data Register = iota
	Control
	Status
)

func (r Register) String() string {
	switch r {
	case Data:
		return "data"
	case Control:
		return "control"
	case Status:
		return "status"
	default:
		return fmt.Sprintf("Register(%d)", int(r))
	}
}

// Registers gives byte access to the port registers.
type Registers interface {
	Read(r Register) (byte, error)
	Write(r Register, v byte) error
	Close() error
}

// pinDef locates a connector pin in the register set. Inverted pins are
// inverted by the port hardware itself.
type pinDef struct {
	reg      Register
	bit      byte
	inverted bool
}

// pins maps connector pins 1 to 17, indexed by pin-1.
var pins = [17]pinDef{
	{Control, 0x01, true},  // 1 strobe
	{Data, 0x01, false},
	{Data, 0x02, false},
	{Data, 0x04, false},
	{Data, 0x08, false},
	{Data, 0x10, false},
	{Data, 0x20, false},
	{Data, 0x40, false},
	{Data, 0x80, false},    // 9
	{Status, 0x40, false},  // 10 ack
	{Status, 0x80, true},   // 11 busy
	{Status, 0x20, false},  // 12 paper out
	{Status, 0x10, false},  // 13 select
	{Control, 0x02, true},  // 14 autofeed
	{Status, 0x08, false},  // 15 error
	{Control, 0x04, false}, // 16 init
	{Control, 0x08, true},  // 17 select in
}

// powerSettle is the wait after switching on target power.
const powerSettle = 100 * time.Millisecond

// Port drives an AVR through the pins of a parallel port.
type Port struct {
	regs   Registers
	pm     bitbang.PinMap
	config Config

	savedData byte
	savedCtrl byte
}

// Open wraps regs as a bitbang pin set. The data and control registers
// are saved and restored by Close.
func Open(regs Registers, pm bitbang.PinMap, opts ...Option) (*Port, error) {
	if regs == nil {
		panic("registers cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Port{regs: regs, pm: pm, config: cfg}

	var err error
	if p.savedData, err = regs.Read(Data); err != nil {
		return nil, fmt.Errorf("read data register: %w", err)
	}
	if p.savedCtrl, err = regs.Read(Control); err != nil {
		return nil, fmt.Errorf("read control register: %w", err)
	}

	p.logDebug("port opened",
		"data", fmt.Sprintf("0x%02X", p.savedData),
		"control", fmt.Sprintf("0x%02X", p.savedCtrl),
	)
	return p, nil
}

func lookup(pin int) (pinDef, bool, error) {
	inverted := pin&bitbang.PinInverse != 0
	n := pin & bitbang.PinMask
	if n < 1 || n > len(pins) {
		return pinDef{}, false, fmt.Errorf("parallel port pin %d out of range", n)
	}
	def := pins[n-1]
	return def, inverted != def.inverted, nil
}

// SetPin drives a connector pin to a logical level.
func (p *Port) SetPin(pin int, high bool) error {
	def, inverted, err := lookup(pin)
	if err != nil {
		return err
	}
	if inverted {
		high = !high
	}
	if err := p.update(def, high); err != nil {
		return err
	}
	p.delay()
	return nil
}

// GetPin samples a connector pin.
func (p *Port) GetPin(pin int) (bool, error) {
	def, inverted, err := lookup(pin)
	if err != nil {
		return false, err
	}
	v, err := p.regs.Read(def.reg)
	if err != nil {
		return false, err
	}
	return (v&def.bit != 0) != inverted, nil
}

// HighPulsePin pulses a pin to its active level and back.
func (p *Port) HighPulsePin(pin int) error {
	def, inverted, err := lookup(pin)
	if err != nil {
		return err
	}
	for _, set := range []bool{!inverted, inverted} {
		if err := p.update(def, set); err != nil {
			return err
		}
		p.delay()
	}
	return nil
}

func (p *Port) update(def pinDef, set bool) error {
	v, err := p.regs.Read(def.reg)
	if err != nil {
		return err
	}
	if set {
		v |= def.bit
	} else {
		v &^= def.bit
	}
	return p.regs.Write(def.reg, v)
}

func (p *Port) delay() {
	if p.config.ISPDelay > time.Microsecond {
		p.config.Sleep(p.config.ISPDelay)
	}
}

func (p *Port) setMany(list []int, high bool) error {
	for _, pin := range list {
		if err := p.SetPin(pin, high); err != nil {
			return err
		}
	}
	return nil
}

// PowerUp drives the VCC pins high and waits for the supply to settle.
func (p *Port) PowerUp() error {
	if err := p.setMany(p.pm.VCC, true); err != nil {
		return err
	}
	p.config.Sleep(powerSettle)
	return nil
}

// PowerDown drives the VCC pins low.
func (p *Port) PowerDown() error {
	return p.setMany(p.pm.VCC, false)
}

// Enable holds the target in reset, then enables the line buffer. The
// buffer enable is active low.
func (p *Port) Enable() error {
	if err := p.SetPin(p.pm.Reset, false); err != nil {
		return err
	}
	p.config.Sleep(time.Microsecond)
	return p.setMany(p.pm.Buff, false)
}

// Disable turns the line buffer off.
func (p *Port) Disable() error {
	return p.setMany(p.pm.Buff, true)
}

// Close restores the registers saved at Open, turns the buffer off,
// applies the exit specification and releases the port.
func (p *Port) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	keep(p.regs.Write(Data, p.savedData))
	keep(p.regs.Write(Control, p.savedCtrl))
	keep(p.setMany(p.pm.Buff, true))

	exit := p.config.Exit
	switch exit.Reset {
	case ExitEnabled:
		keep(p.SetPin(p.pm.Reset, false))
	case ExitDisabled:
		keep(p.SetPin(p.pm.Reset, true))
	}
	switch exit.Data {
	case ExitEnabled:
		keep(p.regs.Write(Data, 0xFF))
	case ExitDisabled:
		keep(p.regs.Write(Data, 0x00))
	}
	switch exit.VCC {
	case ExitEnabled:
		keep(p.setMany(p.pm.VCC, true))
	case ExitDisabled:
		keep(p.setMany(p.pm.VCC, false))
	}

	keep(p.regs.Close())
	if first != nil {
		p.logError("close failed", "error", first)
	}
	return first
}

var (
	_ bitbang.Pins         = (*Port)(nil)
	_ bitbang.PowerSwitch  = (*Port)(nil)
	_ bitbang.BufferSwitch = (*Port)(nil)
)

func (p *Port) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (p *Port) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}
