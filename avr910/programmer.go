// Package avr910 drives the serial programmers of Atmel application note
// AVR910 and compatible AVR109 bootloaders.
//
// These programmers speak a one-letter command protocol and run the
// serial programming instructions themselves, so raw 4-byte instructions
// and paged transfers are not available; those operations return a
// protocol.UnsupportedError and the isp session falls back to byte access.
package avr910

import (
	"fmt"
	"io"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/isp"
	"github.com/facchinm/avrdude/protocol"
)

// DefaultBaud is the line speed of AVR910 programmers.
const DefaultBaud = 19200

// Link is the serial connection. A Read returning no data and no error
// means the read timeout expired.
type Link interface {
	io.ReadWriter
}

// Info describes the programmer found by Initialize.
type Info struct {
	ID       string
	Software string
	Hardware string

	// Type is 'S' for serial programmers
	Type byte

	// Devices lists the supported AVR910 device codes
	Devices []byte
}

// Programmer is an AVR910 programmer.
type Programmer struct {
	link   Link
	config Config
	info   Info

	progMode bool

	// flash reads return a word; the high byte is kept for the next
	// address
	cached bool
	caddr  uint32
	cvalue byte

	sig      [3]byte
	sigValid bool
}

// New creates an AVR910 programmer on an open serial link.
//
// Example:
//
//	port, _ := serialport.Open("/dev/ttyS0", avr910.DefaultBaud)
//	prog := isp.New(avr910.New(port), part)
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

// Name returns "avr910".
func (a *Programmer) Name() string { return "avr910" }

// Info returns what the programmer reported during Initialize.
func (a *Programmer) Info() Info { return a.info }

// Capabilities reports no bulk operations.
func (a *Programmer) Capabilities() isp.Capabilities { return isp.Capabilities{} }

// Enable discards any input left over from before the port was opened.
func (a *Programmer) Enable() error {
	if d, ok := a.link.(interface{ Drain() error }); ok {
		return d.Drain()
	}
	buf := make([]byte, 32)
	for {
		n, err := a.link.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// Disable does nothing.
func (a *Programmer) Disable() error { return nil }

// PowerUp does nothing; the programmer powers the target itself.
func (a *Programmer) PowerUp() error { return nil }

// PowerDown does nothing.
func (a *Programmer) PowerDown() error { return nil }

// Initialize identifies the programmer, checks that it supports the part,
// selects it and enters programming mode.
func (a *Programmer) Initialize(p *avr.Part) error {
	id, err := a.query('S', 7)
	if err != nil {
		return fmt.Errorf("read programmer id: %w", err)
	}
	sw, err := a.query('V', 2)
	if err != nil {
		return fmt.Errorf("read software version: %w", err)
	}
	hw, err := a.query('v', 2)
	if err != nil {
		return fmt.Errorf("read hardware version: %w", err)
	}
	typ, err := a.query('p', 1)
	if err != nil {
		return fmt.Errorf("read programmer type: %w", err)
	}

	a.info = Info{
		ID:       string(id),
		Software: fmt.Sprintf("%c.%c", sw[0], sw[1]),
		Hardware: fmt.Sprintf("%c.%c", hw[0], hw[1]),
		Type:     typ[0],
	}
	a.logInfo("found programmer",
		"id", a.info.ID,
		"type", string(rune(a.info.Type)),
		"software", a.info.Software,
		"hardware", a.info.Hardware,
	)

	devices, err := a.deviceList()
	if err != nil {
		return err
	}
	a.info.Devices = devices

	supported := false
	for _, c := range devices {
		if c == p.AVR910DevCode && c != 0 {
			supported = true
		}
	}
	if !supported {
		return &protocol.UnsupportedError{
			Operation: "select device",
			Reason:    fmt.Sprintf("%s (device code 0x%02X) not supported by programmer", p.Desc, p.AVR910DevCode),
		}
	}

	if err := a.command("select device", 'T', p.AVR910DevCode); err != nil {
		return err
	}
	return a.ProgramEnable(p)
}

func (a *Programmer) deviceList() ([]byte, error) {
	if err := a.send('t'); err != nil {
		return nil, err
	}
	var devices []byte
	for {
		c, err := a.recv("device list", 1)
		if err != nil {
			return nil, err
		}
		if c[0] == 0 {
			break
		}
		a.logDebug("supported device", "code", fmt.Sprintf("0x%02X", c[0]))
		devices = append(devices, c[0])
	}
	return devices, nil
}

// ProgramEnable enters programming mode.
func (a *Programmer) ProgramEnable(p *avr.Part) error {
	if err := a.command("enter programming mode", 'P'); err != nil {
		return err
	}
	a.progMode = true
	return nil
}

// ChipErase erases flash and EEPROM.
func (a *Programmer) ChipErase(p *avr.Part) error {
	if err := a.command("chip erase", 'e'); err != nil {
		return err
	}
	a.cached = false
	a.config.Sleep(p.ChipEraseDelay)
	return nil
}

// Cmd is not available: the programmer does not pass raw instructions.
func (a *Programmer) Cmd(cmd [4]byte) ([4]byte, error) {
	return [4]byte{}, &protocol.UnsupportedError{Operation: "cmd", Reason: "avr910 programmers do not pass raw instructions"}
}

// ReadMemByte reads a flash, EEPROM or signature byte.
func (a *Programmer) ReadMemByte(p *avr.Part, m *avr.Memory, addr uint32) (byte, error) {
	switch m.Desc {
	case avr.MemFlash:
		return a.readFlash(addr)
	case avr.MemEEPROM:
		if err := a.setAddr(addr); err != nil {
			return 0, err
		}
		if err := a.send('d'); err != nil {
			return 0, err
		}
		v, err := a.recv("read eeprom", 1)
		if err != nil {
			return 0, err
		}
		return v[0], nil
	case avr.MemSignature:
		if addr > 2 {
			return 0, fmt.Errorf("signature address %d out of range", addr)
		}
		if !a.sigValid {
			sig, err := a.ReadSignature()
			if err != nil {
				return 0, err
			}
			a.sig = sig
		}
		return a.sig[addr], nil
	}
	return 0, &protocol.UnsupportedError{Operation: "read " + m.Desc}
}

// readFlash reads the word holding addr. The word comes back high byte
// first; the high byte of an even address is cached for the odd one.
func (a *Programmer) readFlash(addr uint32) (byte, error) {
	if a.cached && a.caddr+1 == addr {
		a.cached = false
		return a.cvalue, nil
	}

	if err := a.setAddr(addr >> 1); err != nil {
		return 0, err
	}
	if err := a.send('R'); err != nil {
		return 0, err
	}
	word, err := a.recv("read flash", 2)
	if err != nil {
		return 0, err
	}

	if addr&1 == 0 {
		a.cached, a.caddr, a.cvalue = true, addr, word[0]
		return word[1], nil
	}
	return word[0], nil
}

// ReadSignature reads the three signature bytes.
func (a *Programmer) ReadSignature() ([3]byte, error) {
	var sig [3]byte
	if err := a.send('s'); err != nil {
		return sig, err
	}
	res, err := a.recv("read signature", 3)
	if err != nil {
		return sig, err
	}
	// sent last byte first
	sig[0], sig[1], sig[2] = res[2], res[1], res[0]
	a.sigValid = true
	return sig, nil
}

// WriteMemByte writes a flash or EEPROM byte. Flash bytes go to the
// device page buffer of paged parts until CommitPage.
func (a *Programmer) WriteMemByte(p *avr.Part, m *avr.Memory, addr uint32, value byte) error {
	var cmd byte
	switch m.Desc {
	case avr.MemFlash:
		cmd = 'c'
		if addr&1 == 1 {
			cmd = 'C'
		}
		addr >>= 1
	case avr.MemEEPROM:
		cmd = 'D'
	default:
		return &protocol.UnsupportedError{Operation: "write " + m.Desc}
	}

	a.cached = false
	if err := a.setAddr(addr); err != nil {
		return err
	}
	return a.command("write byte", cmd, value)
}

// CommitPage writes the device page buffer holding byte address addr.
func (a *Programmer) CommitPage(p *avr.Part, m *avr.Memory, addr uint32) error {
	if !m.IsFlash() {
		return nil
	}
	if err := a.setAddr(addr >> 1); err != nil {
		return err
	}
	return a.command("write page", 'm')
}

// PagedLoad is not available.
func (a *Programmer) PagedLoad(p *avr.Part, m *avr.Memory, pageSize int, addr uint32, n int) (int, error) {
	return 0, &protocol.UnsupportedError{Operation: "paged load"}
}

// PagedWrite is not available.
func (a *Programmer) PagedWrite(p *avr.Part, m *avr.Memory, pageSize int, addr uint32, n int) (int, error) {
	return 0, &protocol.UnsupportedError{Operation: "paged write"}
}

// Close leaves programming mode and closes the link when it can be
// closed.
func (a *Programmer) Close() error {
	var err error
	if a.progMode {
		err = a.command("leave programming mode", 'L')
		a.progMode = false
	}
	if c, ok := a.link.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (a *Programmer) setAddr(addr uint32) error {
	return a.command("set address", 'A', byte(addr>>8), byte(addr))
}

// command sends a command and expects the carriage return acknowledge.
func (a *Programmer) command(op string, data ...byte) error {
	if err := a.send(data...); err != nil {
		return err
	}
	res, err := a.recv(op, 1)
	if err != nil {
		return err
	}
	if res[0] != '\r' {
		a.logError("programmer did not acknowledge", "command", op, "response", fmt.Sprintf("0x%02X", res[0]))
		return &protocol.ProtocolError{Operation: op, StatusCode: res[0]}
	}
	return nil
}

func (a *Programmer) query(cmd byte, n int) ([]byte, error) {
	if err := a.send(cmd); err != nil {
		return nil, err
	}
	return a.recv(string(rune(cmd)), n)
}

func (a *Programmer) send(data ...byte) error {
	for len(data) > 0 {
		n, err := a.link.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (a *Programmer) recv(op string, n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := a.link.Read(buf[got:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			return nil, &protocol.NotRespondingError{Operation: op}
		}
		got += m
	}
	return buf, nil
}

func (a *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if a.config.Logger != nil {
		a.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (a *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if a.config.Logger != nil {
		a.config.Logger.Info(msg, keysAndValues...)
	}
}

func (a *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if a.config.Logger != nil {
		a.config.Logger.Error(msg, keysAndValues...)
	}
}

var (
	_ isp.Backend       = (*Programmer)(nil)
	_ isp.PageCommitter = (*Programmer)(nil)
)
