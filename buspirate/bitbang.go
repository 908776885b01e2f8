package buspirate

import (
	"fmt"

	"github.com/facchinm/avrdude/bitbang"
)

// Bitbang pin numbers: CS, MISO, CLK, MOSI, AUX, pull-ups, power.
const (
	PinCS    = 1
	PinMISO  = 2
	PinCLK   = 3
	PinMOSI  = 4
	PinAUX   = 5
	PinPower = 7
)

// BitbangPinMap is the usual wiring of a Bus Pirate to an AVR.
var BitbangPinMap = bitbang.PinMap{
	Reset: PinCS,
	SCK:   PinCLK,
	MOSI:  PinMOSI,
	MISO:  PinMISO,
}

// BitbangPins drives the Bus Pirate pins one by one from binary bitbang
// mode. Pin changes are not confirmed individually; their status bytes
// are read back the next time a pin is sampled.
type BitbangPins struct {
	bp *Programmer

	dir     byte
	val     byte
	pending int
}

// NewBitbang creates bitbang pins on an open serial link.
//
// Example:
//
//	pins := buspirate.NewBitbang(link)
//	bb, err := bitbang.New(pins, buspirate.BitbangPinMap)
func NewBitbang(link Link, opts ...Option) *BitbangPins {
	return &BitbangPins{bp: New(link, opts...)}
}

// Enable enters binary bitbang mode with AUX and MISO as inputs and all
// outputs high.
func (p *BitbangPins) Enable() error {
	if err := p.bp.link.SetReadTimeout(p.bp.config.RecvTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}

	p.bp.logInfo("attempting to initiate bitbang binary mode")
	ok, err := p.bp.enterBBIO()
	if err != nil {
		return err
	}
	if !ok {
		if err := p.bp.resetFromBinary(); err != nil {
			return err
		}
		return fmt.Errorf("buspirate: binary mode not confirmed")
	}
	p.bp.submode = SubmodeBitbang
	p.bp.enabled = true
	p.pending = 0

	// AUX and MISO in, everything else out
	p.dir = 0x12
	if _, err := p.exchange(0x40 | p.dir); err != nil {
		return err
	}

	// pull-ups, AUX, MOSI, CLK, MISO, CS high
	p.val = 0x3F
	if _, err := p.exchange(0x80 | p.val); err != nil {
		return err
	}
	return nil
}

func (p *BitbangPins) exchange(cmd byte) (byte, error) {
	if err := p.bp.send([]byte{cmd}); err != nil {
		return 0, err
	}
	res, err := p.bp.recv(1)
	if err != nil {
		return 0, err
	}
	return res[0], nil
}

// SetPin sets an output pin. Pins 1 to 5 and 7 (power) are outputs.
func (p *BitbangPins) SetPin(pin int, high bool) error {
	if pin&bitbang.PinInverse != 0 {
		high = !high
	}
	pin &= bitbang.PinMask
	if (pin < 1 || pin > 5) && pin != PinPower {
		return fmt.Errorf("buspirate: invalid bitbang pin %d", pin)
	}

	mask := byte(1) << (pin - 1)
	if high {
		p.val |= mask
	} else {
		p.val &^= mask
	}

	if err := p.bp.send([]byte{0x80 | p.val}); err != nil {
		return err
	}
	// the status byte is read on the next GetPin
	p.pending++
	return nil
}

// GetPin samples a pin. The status bytes of previous pin changes are
// consumed first.
func (p *BitbangPins) GetPin(pin int) (bool, error) {
	inverted := pin&bitbang.PinInverse != 0
	pin &= bitbang.PinMask
	if pin < 1 || pin > 5 {
		return false, fmt.Errorf("buspirate: invalid bitbang pin %d", pin)
	}

	if err := p.bp.send([]byte{0x40 | p.dir}); err != nil {
		return false, err
	}
	if p.pending > 0 {
		if _, err := p.bp.recv(p.pending); err != nil {
			return false, err
		}
		p.pending = 0
	}
	res, err := p.bp.recv(1)
	if err != nil {
		return false, err
	}

	return (res[0]&(1<<(pin-1)) != 0) != inverted, nil
}

// HighPulsePin drives a pin high, then low.
func (p *BitbangPins) HighPulsePin(pin int) error {
	if err := p.SetPin(pin, true); err != nil {
		return err
	}
	return p.SetPin(pin, false)
}

// PowerUp switches on the power supplies.
func (p *BitbangPins) PowerUp() error {
	return p.SetPin(PinPower, true)
}

// PowerDown switches off the power supplies.
func (p *BitbangPins) PowerDown() error {
	return p.SetPin(PinPower, false)
}

// Disable leaves binary mode.
func (p *BitbangPins) Disable() error {
	if !p.bp.enabled {
		return nil
	}
	p.bp.enabled = false
	p.pending = 0
	return p.bp.resetFromBinary()
}

// Close leaves binary mode and closes the link.
func (p *BitbangPins) Close() error {
	if err := p.Disable(); err != nil {
		return err
	}
	return p.bp.Close()
}

var (
	_ bitbang.Pins         = (*BitbangPins)(nil)
	_ bitbang.PowerSwitch  = (*BitbangPins)(nil)
	_ bitbang.BufferSwitch = (*BitbangPins)(nil)
)
