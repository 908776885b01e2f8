package buspirate

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/facchinm/avrdude/isp"
	"github.com/facchinm/avrdude/protocol"
)

// Mode is the Bus Pirate user interface in use.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeASCII
	ModeBinary
)

func (m Mode) String() string {
	switch m {
	case ModeASCII:
		return "ascii"
	case ModeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Submode is the binary protocol mode entered from BBIO.
type Submode int

const (
	SubmodeNone Submode = iota
	SubmodeSPI
	SubmodeRawWire
	SubmodeBitbang
)

func (s Submode) String() string {
	switch s {
	case SubmodeSPI:
		return "spi"
	case SubmodeRawWire:
		return "raw-wire"
	case SubmodeBitbang:
		return "bitbang"
	default:
		return "none"
	}
}

// Binary mode commands.
const (
	cmdReset      = 0x00
	cmdSPI        = 0x01
	cmdWriteRead  = 0x05 // also raw-wire enter in BBIO
	cmdAVRExt     = 0x06
	cmdExit       = 0x0F
	cmdBulk4      = 0x13
	cmdPeripheral = 0x40
	cmdSpeed      = 0x60
	cmdConfigSPI  = 0x8A
	cmdConfigRaw  = 0x8C

	ack = 0x01

	// peripheral byte: power on
	periphPower = 0x08

	maxPagedWrite = 1024
)

// ErrAborted is returned for every operation after a failed paged write.
var ErrAborted = errors.New("buspirate: session aborted after failed paged write")

// Programmer drives an AVR through a Bus Pirate, in binary mode when the
// firmware supports it and through the text interface otherwise.
type Programmer struct {
	link   Link
	config Config

	mode    Mode
	submode Submode
	enabled bool
	failed  bool

	binVersion int
	subVersion int
	extVersion int

	// pagedWrite and pagedRead are the firmware probe results
	pagedWrite bool
	pagedRead  bool

	periph byte
}

// New creates a Bus Pirate programmer on an open serial link.
//
// Example:
//
//	link, _ := serialport.Open("/dev/ttyUSB0", 115200)
//	bp := buspirate.New(link, buspirate.WithSPIFreq(3))
func New(link Link, opts ...Option) *Programmer {
	if link == nil {
		panic("link cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Programmer{link: link, config: cfg}
}

// Name returns "buspirate".
func (b *Programmer) Name() string { return "buspirate" }

// Mode returns the interface mode negotiated by Enable.
func (b *Programmer) Mode() Mode { return b.mode }

// Submode returns the binary submode in use.
func (b *Programmer) Submode() Submode { return b.submode }

// Versions returns the binary mode, submode and AVR extended command
// versions reported by the firmware, 0 when unknown.
func (b *Programmer) Versions() (bin, sub, ext int) {
	return b.binVersion, b.subVersion, b.extVersion
}

// Capabilities reports the bulk operations available in the negotiated
// mode. Raw-wire and ASCII never offer paged transfers.
func (b *Programmer) Capabilities() isp.Capabilities {
	binSPI := b.mode == ModeBinary && b.submode == SubmodeSPI && !b.failed
	return isp.Capabilities{
		PagedLoad:  binSPI && b.pagedRead && !b.config.NoPagedRead,
		PagedWrite: binSPI && b.pagedWrite && !b.config.NoPagedWrite,
	}
}

// Enable negotiates binary mode, falling back to the text interface when
// the firmware does not answer.
func (b *Programmer) Enable() error {
	if err := b.config.verify(); err != nil {
		return err
	}
	if err := b.link.SetReadTimeout(b.config.RecvTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}

	if !b.config.ForceASCII {
		b.logInfo("attempting to initiate binary mode")

		ok, err := b.startBinary()
		if err != nil {
			return err
		}
		if ok {
			b.enabled = true
			return nil
		}
		b.logInfo("failed to start binary mode, falling back to ASCII")
	}

	if err := b.startASCII(); err != nil {
		return err
	}
	b.enabled = true
	return nil
}

// enterBBIO switches to the binary I/O base mode. ok is false when the
// firmware answered anything but BBIOx.
func (b *Programmer) enterBBIO() (bool, error) {
	// get out of any text menu first
	if err := b.send([]byte("\n\n")); err != nil {
		return false, err
	}
	if err := b.drain(); err != nil {
		return false, err
	}

	if err := b.send(make([]byte, 20)); err != nil {
		return false, err
	}
	res, err := b.recv(5)
	if err != nil && !protocol.IsNotResponding(err) {
		return false, err
	}
	v, ok := parseVersion(res, "BBIO")
	if !ok {
		b.logError("binary mode not confirmed", "response", fmt.Sprintf("%q", res))
		return false, nil
	}
	b.binVersion = v
	b.mode = ModeBinary
	b.logDebug("binary mode", "version", v)
	return true, nil
}

// startBinary runs the binary negotiation. ok is false when the firmware
// has no binary mode, which is not an error.
func (b *Programmer) startBinary() (bool, error) {
	ok, err := b.enterBBIO()
	if err != nil {
		return false, err
	}
	if !ok {
		if err := b.resetFromBinary(); err != nil {
			return false, err
		}
		return false, nil
	}

	enter, prefix, sub, config := byte(cmdSPI), "SPI", SubmodeSPI, byte(cmdConfigSPI)
	if b.config.rawWire() {
		enter, prefix, sub, config = cmdWriteRead, "RAW", SubmodeRawWire, cmdConfigRaw
	}

	if err := b.send([]byte{enter}); err != nil {
		return false, err
	}
	res, err := b.recv(4)
	if err != nil && !protocol.IsNotResponding(err) {
		return false, err
	}
	v, ok := parseVersion(res, prefix)
	if !ok {
		stage := fmt.Sprintf("%s submode", sub)
		b.logError(stage+" not confirmed", "response", fmt.Sprintf("%q", res))
		if err := b.resetFromBinary(); err != nil {
			return false, err
		}
		return false, &protocol.NegotiationError{Stage: stage, Response: res}
	}
	b.submode = sub
	b.subVersion = v
	b.logDebug("submode entered", "submode", sub, "version", v)

	if sub == SubmodeSPI && !b.config.NoPagedWrite {
		if err := b.probePagedWrite(); err != nil {
			return false, err
		}
	}

	b.periph = cmdPeripheral | periphPower | byte(b.config.Reset)
	if err := b.expectAck(b.periph, "configure peripherals"); err != nil {
		return false, err
	}
	b.config.Sleep(50 * time.Millisecond)

	if err := b.expectAck(cmdSpeed|byte(b.config.speed()), "set speed"); err != nil {
		return false, err
	}
	if err := b.expectAck(config, "configure submode"); err != nil {
		return false, err
	}

	if sub == SubmodeSPI && !b.config.NoPagedRead {
		if err := b.probePagedRead(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// probePagedWrite checks for the write-then-read command of firmware 5.10
// and later.
func (b *Programmer) probePagedWrite() error {
	if err := b.send([]byte{cmdWriteRead, 0, 0, 0, 0}); err != nil {
		return err
	}
	res, err := b.recv(1)
	if err != nil && !protocol.IsNotResponding(err) {
		return err
	}
	if len(res) == 1 && res[0] == ack {
		b.pagedWrite = true
		b.logDebug("paged flash write enabled")
		return nil
	}

	// the zeros dropped older firmware back to BBIO
	b.logInfo("disabling paged flash write (needs firmware 5.10 or later)")
	if err := b.send([]byte{cmdSPI}); err != nil {
		return err
	}
	return b.drain()
}

// probePagedRead checks for the AVR extended command set.
func (b *Programmer) probePagedRead() error {
	_, ok, err := b.expectByte(cmdAVRExt, ack)
	if err != nil && !protocol.IsNotResponding(err) {
		return err
	}
	if !ok {
		b.logInfo("AVR extended commands not found, paged read disabled")
		return nil
	}

	if err := b.send([]byte{0x01}); err != nil {
		return err
	}
	res, err := b.recv(3)
	if err != nil {
		return err
	}
	b.extVersion = int(res[1])<<8 | int(res[2])
	b.pagedRead = true
	b.logDebug("AVR extended commands", "version", b.extVersion)
	return nil
}

func (b *Programmer) expectAck(cmd byte, op string) error {
	got, ok, err := b.expectByte(cmd, ack)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return &protocol.ProtocolError{Operation: op, StatusCode: got}
	}
	return nil
}

// resetFromBinary returns the firmware to its text interface.
func (b *Programmer) resetFromBinary() error {
	if err := b.send([]byte{cmdReset, cmdExit}); err != nil {
		return err
	}

	var text strings.Builder
	buf := make([]byte, 16)
	for {
		n, err := b.link.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		text.Write(buf[:n])
		if isPrompt(text.String()) {
			b.mode = ModeASCII
			b.submode = SubmodeNone
			b.logDebug("back in text mode")
			return nil
		}
	}

	if b.mode != ModeBinary {
		// never got into binary mode, nothing to leave
		return nil
	}
	return fmt.Errorf("buspirate: reset failed, you may need to power cycle it: %w",
		&protocol.NotRespondingError{Operation: "reset", Timeout: b.config.RecvTimeout})
}

// startASCII resets the text interface and selects the SPI menu.
func (b *Programmer) startASCII() error {
	b.logInfo("attempting to initiate ASCII mode")

	// raw: the firmware may still be in binary mode
	if err := b.send([]byte("#\n")); err != nil {
		return err
	}

	banner := false
	for {
		line, err := b.mustReadLine("reset")
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, "Are you sure?") {
			if err := b.send([]byte("y\n")); err != nil {
				return err
			}
		}
		if strings.HasPrefix(line, "RESET") {
			banner = true
			continue
		}
		if isPrompt(line) {
			break
		}
		if banner {
			b.logInfo("banner", "line", line)
		}
	}

	b.mode = ModeASCII
	b.submode = SubmodeNone
	b.logInfo("using ASCII mode")

	if err := b.startSPIASCII(); err != nil {
		return fmt.Errorf("start ASCII SPI mode: %w", err)
	}
	b.submode = SubmodeSPI
	return nil
}

func (b *Programmer) startSPIASCII() error {
	if err := b.sendLine("m\n"); err != nil {
		return err
	}

	spi := -1
	for {
		line, err := b.mustReadLine("mode menu")
		if err != nil {
			return err
		}
		if spi == -1 {
			if n, name, ok := menuEntry(line); ok && name == "SPI" {
				spi = n
			}
		}
		if isPrompt(line) {
			break
		}
	}
	if spi == -1 {
		return &protocol.NegotiationError{Stage: "SPI menu entry"}
	}

	if err := b.sendLine(strconv.Itoa(spi) + "\n"); err != nil {
		return err
	}

	answer := ""
	for {
		line, err := b.mustReadLine("SPI setup")
		if err != nil {
			return err
		}
		if strings.Contains(line, "Normal (H=3.3V, L=GND)") {
			if n, _, ok := menuEntry(line); ok {
				answer = strconv.Itoa(n) + "\n"
			}
		}
		if !isPrompt(line) {
			continue
		}
		if strings.HasPrefix(line, "SPI>") {
			b.logDebug("configured for SPI")
			return nil
		}
		next := "\n"
		if answer != "" {
			next, answer = answer, ""
		}
		if err := b.sendLine(next); err != nil {
			return err
		}
	}
}

// menuEntry parses a menu line such as " 5. SPI".
func menuEntry(line string) (int, string, bool) {
	num, rest, found := strings.Cut(strings.TrimSpace(line), ".")
	if !found {
		return 0, "", false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return n, "", true
	}
	return n, fields[0], true
}

// sendLine sends a text command and reads until the firmware echoes it.
func (b *Programmer) sendLine(s string) error {
	b.logDebug("send", "line", strings.TrimSuffix(s, "\n"))
	if err := b.send([]byte(s)); err != nil {
		return err
	}
	want := strings.TrimSuffix(s, "\n")
	for {
		line, err := b.mustReadLine("echo")
		if err != nil {
			return err
		}
		if line == want {
			return nil
		}
	}
}

// expectLine sends a text command and looks for a reply line starting
// with want. With waitPrompt the rest of the output up to the prompt is
// consumed, otherwise pending input is discarded once want is seen.
func (b *Programmer) expectLine(send, want string, waitPrompt bool) (bool, error) {
	if err := b.sendLine(send); err != nil {
		return false, err
	}

	got := false
	for {
		line, err := b.mustReadLine(strings.TrimSpace(send))
		if err != nil {
			return got, err
		}
		if strings.HasPrefix(line, want) {
			if !waitPrompt {
				return true, b.drain()
			}
			got = true
		}
		if isPrompt(line) {
			return got, nil
		}
	}
}

// Disable leaves binary mode, or resets the text interface.
func (b *Programmer) Disable() error {
	if !b.enabled {
		return nil
	}
	b.enabled = false

	if b.mode == ModeBinary {
		return b.resetFromBinary()
	}
	_, err := b.expectLine("#\n", "RESET", true)
	return err
}

// Close disables the programmer and closes the link when it can be
// closed.
func (b *Programmer) Close() error {
	var errs []error
	if err := b.Disable(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := b.link.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// parseVersion matches prefix followed by a decimal version.
func parseVersion(res []byte, prefix string) (int, bool) {
	s := string(res)
	if !strings.HasPrefix(s, prefix) {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimRight(s[len(prefix):], "\x00"))
	if err != nil {
		return 0, false
	}
	return v, true
}

func (b *Programmer) logTrace(msg string, data []byte) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, "data", fmt.Sprintf("% X", data))
	}
}

func (b *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (b *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if b.config.Logger != nil {
		b.config.Logger.Info(msg, keysAndValues...)
	}
}

func (b *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if b.config.Logger != nil {
		b.config.Logger.Error(msg, keysAndValues...)
	}
}
