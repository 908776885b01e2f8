package bitbang

import (
	"fmt"
	"io"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/isp"
	"github.com/facchinm/avrdude/protocol"
)

// Programmer clocks serial programming instructions over individual pins.
// It works with any Pins implementation: a parallel port, host GPIO lines
// or a Bus Pirate in bitbang mode.
type Programmer struct {
	pins   Pins
	pm     PinMap
	config Config
	ind    isp.Indicator
}

// New creates a bitbang programmer on pins wired as described by pm.
//
// Example:
//
//	port, _ := parport.OpenDevice("/dev/parport0", pm)
//	bb, err := bitbang.New(port, pm)
func New(pins Pins, pm PinMap, opts ...Option) (*Programmer, error) {
	if pins == nil {
		panic("pins cannot be nil")
	}
	if err := pm.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Programmer{pins: pins, pm: pm, config: cfg}
	b.ind = cfg.Indicator
	if b.ind == nil {
		b.ind = ledIndicator{b}
	}
	return b, nil
}

// Name returns "bitbang".
func (b *Programmer) Name() string { return "bitbang" }

// LEDs returns the indicator driving the status LEDs of the pin map, or
// the indicator given WithIndicator.
func (b *Programmer) LEDs() isp.Indicator { return b.ind }

// Enable turns on the output buffer, if the pins have one.
func (b *Programmer) Enable() error {
	if bs, ok := b.pins.(BufferSwitch); ok {
		return bs.Enable()
	}
	return nil
}

// Disable turns off the output buffer, if the pins have one.
func (b *Programmer) Disable() error {
	if bs, ok := b.pins.(BufferSwitch); ok {
		return bs.Disable()
	}
	return nil
}

// PowerUp applies target power.
func (b *Programmer) PowerUp() error {
	if ps, ok := b.pins.(PowerSwitch); ok {
		return ps.PowerUp()
	}
	return b.setMany(b.pm.VCC, true)
}

// PowerDown removes target power.
func (b *Programmer) PowerDown() error {
	if ps, ok := b.pins.(PowerSwitch); ok {
		return ps.PowerDown()
	}
	return b.setMany(b.pm.VCC, false)
}

func (b *Programmer) setMany(pins []int, high bool) error {
	for _, pin := range pins {
		if err := b.pins.SetPin(pin, high); err != nil {
			return err
		}
	}
	return nil
}

// TransceiveByte shifts out one byte on MOSI, most significant bit first,
// and returns the byte sampled on MISO. Each bit is set up before SCK
// rises and sampled while SCK is high.
func (b *Programmer) TransceiveByte(out byte) (byte, error) {
	var in byte
	for i := 7; i >= 0; i-- {
		if err := b.pins.SetPin(b.pm.MOSI, out>>i&1 == 1); err != nil {
			return 0, err
		}
		if err := b.pins.SetPin(b.pm.SCK, true); err != nil {
			return 0, err
		}
		bit, err := b.pins.GetPin(b.pm.MISO)
		if err != nil {
			return 0, err
		}
		if err := b.pins.SetPin(b.pm.SCK, false); err != nil {
			return 0, err
		}
		if bit {
			in |= 1 << i
		}
	}
	return in, nil
}

// Cmd sends a 4-byte instruction and returns the 4 response bytes.
func (b *Programmer) Cmd(cmd [4]byte) ([4]byte, error) {
	var res [4]byte
	for i, c := range cmd {
		r, err := b.TransceiveByte(c)
		if err != nil {
			return res, fmt.Errorf("spi transfer: %w", err)
		}
		res[i] = r
	}

	b.logDebug("cmd", "cmd", fmt.Sprintf("% X", cmd), "res", fmt.Sprintf("% X", res))
	return res, nil
}

// ProgramEnable sends the program enable instruction. A device that does
// not echo the second command byte is out of sync and yields an
// *EchoMismatchError.
func (b *Programmer) ProgramEnable(p *avr.Part) error {
	return avr.ProgramEnable(b, p)
}

// ChipErase erases the device and re-initializes it. The programming
// indicator is on for the duration.
func (b *Programmer) ChipErase(p *avr.Part) error {
	op := p.Op(protocol.InstChipErase)
	if op == nil {
		return &protocol.InstructionError{Instruction: protocol.InstChipErase, Part: p.Desc}
	}

	b.ind.Programming(true)
	defer b.ind.Programming(false)

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

// Initialize powers the target, pulses reset and enters programming mode.
// Parts that echo program enable get up to protocol.SyncAttempts tries,
// with the part's retry pin pulsed between tries to regain bit sync.
func (b *Programmer) Initialize(p *avr.Part) error {
	if err := b.PowerUp(); err != nil {
		return fmt.Errorf("power up: %w", err)
	}
	b.config.Sleep(b.config.SettleDelay)

	if err := b.pins.SetPin(b.pm.SCK, false); err != nil {
		return err
	}
	if err := b.pins.SetPin(b.pm.Reset, false); err != nil {
		return err
	}
	b.config.Sleep(b.config.SettleDelay)

	if err := b.pins.HighPulsePin(b.pm.Reset); err != nil {
		return err
	}
	b.config.Sleep(b.config.SettleDelay)

	if !p.NeedsSyncEcho() {
		// no echo to check: issue the command once and hope
		err := b.ProgramEnable(p)
		if err != nil && !protocol.IsEchoMismatch(err) {
			return err
		}
		return nil
	}

	retry := b.pm.SCK
	if p.RetryPulse == avr.RetryReset {
		retry = b.pm.Reset
	}

	for attempt := 1; attempt <= protocol.SyncAttempts; attempt++ {
		err := b.ProgramEnable(p)
		if err == nil {
			b.logDebug("in sync", "attempts", attempt)
			return nil
		}
		if !protocol.IsEchoMismatch(err) {
			return err
		}
		if err := b.pins.HighPulsePin(retry); err != nil {
			return err
		}
	}

	b.logError("device not responding", "attempts", protocol.SyncAttempts)
	return &protocol.NotRespondingError{Operation: "initialize", Attempts: protocol.SyncAttempts}
}

// ReadMemByte reads one byte using the part's read instructions.
func (b *Programmer) ReadMemByte(p *avr.Part, m *avr.Memory, addr uint32) (byte, error) {
	return avr.ReadByte(b, p, m, addr)
}

// WriteMemByte writes one byte using the part's write instructions.
func (b *Programmer) WriteMemByte(p *avr.Part, m *avr.Memory, addr uint32, value byte) error {
	return avr.WriteByte(b, p, m, addr, value)
}

// PagedLoad is not supported; memories are read byte by byte.
func (b *Programmer) PagedLoad(p *avr.Part, m *avr.Memory, pageSize int, addr uint32, n int) (int, error) {
	return 0, &protocol.UnsupportedError{Operation: "paged load", Reason: "bitbang programmer"}
}

// PagedWrite is not supported; memories are written byte by byte.
func (b *Programmer) PagedWrite(p *avr.Part, m *avr.Memory, pageSize int, addr uint32, n int) (int, error) {
	return 0, &protocol.UnsupportedError{Operation: "paged write", Reason: "bitbang programmer"}
}

// Capabilities reports no bulk operations.
func (b *Programmer) Capabilities() isp.Capabilities {
	return isp.Capabilities{}
}

// Close releases the pins if they need closing.
func (b *Programmer) Close() error {
	if c, ok := b.pins.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ledIndicator drives the LED pins, active low. Unassigned LEDs are skipped.
type ledIndicator struct {
	b *Programmer
}

func (l ledIndicator) Ready(on bool)       { l.set(l.b.pm.RdyLED, on) }
func (l ledIndicator) Error(on bool)       { l.set(l.b.pm.ErrLED, on) }
func (l ledIndicator) Programming(on bool) { l.set(l.b.pm.PgmLED, on) }
func (l ledIndicator) Verify(on bool)      { l.set(l.b.pm.VfyLED, on) }

func (l ledIndicator) set(pin int, on bool) {
	if pin&PinMask == 0 {
		return
	}
	if err := l.b.pins.SetPin(pin, !on); err != nil {
		l.b.logDebug("led", "pin", pin, "error", err)
	}
}

var _ isp.Backend = (*Programmer)(nil)

// logDebug logs a debug message if a logger is configured.
func (b *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (b *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if b.config.Logger != nil {
		b.config.Logger.Error(msg, keysAndValues...)
	}
}
