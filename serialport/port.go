// Package serialport provides the byte link to serial programmers such as
// the Bus Pirate and AVR910 devices.
//
// A Port reads with a timeout: a Read that returns no data and no error
// means the timeout expired, which is what the programmer protocols use to
// detect a silent device.
package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout is used until SetReadTimeout is called.
const DefaultReadTimeout = 100 * time.Millisecond

// NoResponseError is returned by ReadFor when nothing arrived in time.
type NoResponseError time.Duration

func (e NoResponseError) Error() string {
	return fmt.Sprintf("read from serial port: no response after %v", time.Duration(e))
}

// rawPort is the part of serial.Port a Port needs.
type rawPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// Port is an open serial port.
type Port struct {
	name    string
	port    rawPort
	timeout time.Duration
}

// Open opens a serial port at baud, 8N1.
//
// Example:
//
//	port, err := serialport.Open("/dev/ttyUSB0", 115200)
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return newPort(name, p)
}

func newPort(name string, p rawPort) (*Port, error) {
	port := &Port{name: name, port: p}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		p.Close()
		return nil, err
	}
	return port, nil
}

// Name returns the device name the port was opened with.
func (p *Port) Name() string { return p.name }

// SetReadTimeout sets how long a Read waits for the first byte.
func (p *Port) SetReadTimeout(t time.Duration) error {
	if err := p.port.SetReadTimeout(t); err != nil {
		return fmt.Errorf("set read timeout on %s: %w", p.name, err)
	}
	p.timeout = t
	return nil
}

// Read reads up to len(b) bytes. It returns 0, nil when the read timeout
// expires.
func (p *Port) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		// EINTR comes from goroutine preemption; nothing was read
		if isRetryable(err) && n == 0 {
			continue
		}
		return n, err
	}
}

// Write writes all of b.
func (p *Port) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := p.port.Write(b[written:])
		written += n
		if isRetryable(err) {
			continue
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, fmt.Errorf("write to %s consumed 0 bytes", p.name)
		}
	}
	return written, nil
}

// ReadFor reads one byte, waiting at most timeout. The port's read timeout
// is restored afterwards.
func (p *Port) ReadFor(timeout time.Duration) (byte, error) {
	prev := p.timeout
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	defer p.port.SetReadTimeout(prev)

	var b [1]byte
	n, err := p.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, NoResponseError(timeout)
	}
	return b[0], nil
}

// Drain discards pending input.
func (p *Port) Drain() error {
	return p.port.ResetInputBuffer()
}

// Close closes the port.
func (p *Port) Close() error {
	if p.port == nil {
		return fmt.Errorf("close %s: port not open", p.name)
	}
	err := p.port.Close()
	p.port = nil
	return err
}

// List returns the names of the serial ports present on the system.
func List() ([]string, error) {
	return serial.GetPortsList()
}
