package buspirate

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/internal/avrsim"
)

type fwMode int

const (
	fwText fwMode = iota
	fwBBIO
	fwSPI
	fwRaw
)

// fakePirate emulates Bus Pirate firmware with an AVR on its SPI pins.
type fakePirate struct {
	target *avrsim.Target

	// firmware features
	binary        bool
	writeThenRead bool
	avrExt        bool
	rejectSPI     bool
	askSure       bool
	shortSPI      bool
	failWrite     bool

	// failOn fails the write-then-read transfer with this number, from 1
	failOn int

	mode    fwMode
	zeros   int
	textBuf bytes.Buffer
	menu    string
	pwm     bool
	powered bool

	// collecting a multi-byte binary command
	need    int
	collect []byte
	done    func([]byte)

	rx       bytes.Buffer
	written  int
	timeout  time.Duration
	timeouts []time.Duration
	closed   bool

	periph    byte
	speed     byte
	config    byte
	pages     int
	transfers []int
	probes    int
	extCalls  int
	bbVal     byte
}

func newFakePirate(part *avr.Part) *fakePirate {
	return &fakePirate{
		target: avrsim.New(part, avrsim.Wiring{Reset: PinCS, SCK: PinCLK, MOSI: PinMOSI, MISO: PinMISO}),
		binary: true,
	}
}

func (f *fakePirate) SetReadTimeout(t time.Duration) error {
	f.timeout = t
	f.timeouts = append(f.timeouts, t)
	return nil
}

func (f *fakePirate) Read(p []byte) (int, error) {
	if f.rx.Len() == 0 {
		return 0, nil
	}
	return f.rx.Read(p)
}

func (f *fakePirate) Write(p []byte) (int, error) {
	f.written += len(p)
	for _, c := range p {
		f.input(c)
	}
	return len(p), nil
}

func (f *fakePirate) Close() error {
	f.closed = true
	return nil
}

func (f *fakePirate) out(data ...byte) { f.rx.Write(data) }

func (f *fakePirate) print(lines ...string) {
	for _, l := range lines {
		f.rx.WriteString(l + "\r\n")
	}
}

func (f *fakePirate) await(n int, done func([]byte)) {
	f.need, f.collect, f.done = n, nil, done
}

func (f *fakePirate) input(c byte) {
	if f.need > 0 {
		f.collect = append(f.collect, c)
		if len(f.collect) == f.need {
			f.need = 0
			f.done(f.collect)
		}
		return
	}

	switch f.mode {
	case fwText:
		f.text(c)
	case fwBBIO:
		f.bbio(c)
	case fwSPI:
		f.spi(c)
	case fwRaw:
		f.raw(c)
	}
}

func (f *fakePirate) spiByte(out byte) byte {
	var in byte
	for bit := 7; bit >= 0; bit-- {
		_ = f.target.SetPin(PinMOSI, out>>bit&1 == 1)
		_ = f.target.SetPin(PinCLK, true)
		v, _ := f.target.GetPin(PinMISO)
		_ = f.target.SetPin(PinCLK, false)
		if v {
			in |= 1 << bit
		}
	}
	return in
}

func (f *fakePirate) setPeripherals(v byte) {
	f.periph = v
	_ = f.target.SetPin(PinCS, v&ResetCS != 0)
	if v&periphPower != 0 {
		_ = f.target.PowerUp()
	} else {
		_ = f.target.PowerDown()
	}
}

func (f *fakePirate) reset() {
	f.mode = fwText
	f.zeros = 0
	f.out(ack)
	f.rx.WriteString("Bus Pirate v3.5\r\nFirmware v5.10\r\nHiZ>")
}

func (f *fakePirate) bbio(c byte) {
	switch {
	case c == 0x00:
		f.rx.WriteString("BBIO1")
	case c == 0x01:
		if f.rejectSPI {
			f.rx.WriteString("ERR!")
			return
		}
		f.mode = fwSPI
		f.rx.WriteString("SPI1")
	case c == 0x05:
		f.mode = fwRaw
		f.rx.WriteString("RAW1")
	case c == 0x0F:
		f.reset()
	case c&0xE0 == 0x40:
		f.out(f.pinStatus())
	case c&0x80 != 0:
		f.setBitbang(c & 0x7F)
		f.out(f.pinStatus())
	default:
		f.out(0x00)
	}
}

func (f *fakePirate) setBitbang(v byte) {
	f.bbVal = v
	_ = f.target.SetPin(PinMOSI, v&0x08 != 0)
	_ = f.target.SetPin(PinCS, v&0x01 != 0)
	_ = f.target.SetPin(PinCLK, v&0x04 != 0)
	if v&0x40 != 0 {
		_ = f.target.PowerUp()
	} else {
		_ = f.target.PowerDown()
	}
}

func (f *fakePirate) pinStatus() byte {
	s := f.bbVal &^ 0x02
	if miso, _ := f.target.GetPin(PinMISO); miso {
		s |= 0x02
	}
	return s
}

func (f *fakePirate) spi(c byte) {
	switch {
	case c == 0x00:
		f.mode = fwBBIO
		f.rx.WriteString("BBIO1")
	case c == 0x01:
		f.rx.WriteString("SPI1")
	case c == 0x13:
		f.out(ack)
		f.await(4, func(cmd []byte) {
			for _, b := range cmd {
				f.out(f.spiByte(b))
			}
		})
	case c == 0x05 && f.writeThenRead:
		f.await(4, func(hdr []byte) {
			n := int(binary.BigEndian.Uint16(hdr))
			if n == 0 {
				f.probes++
				f.out(ack)
				return
			}
			f.transfers = append(f.transfers, n)
			f.await(n, func(data []byte) {
				f.pages++
				if f.failWrite || f.pages == f.failOn {
					f.out(0x00)
					return
				}
				for _, b := range data {
					f.spiByte(b)
				}
				f.out(ack)
			})
		})
	case c == 0x06 && f.avrExt:
		f.out(ack)
		f.await(1, func(sub []byte) {
			f.extCalls++
			switch sub[0] {
			case 0x01:
				f.out(ack, 0x00, 0x01)
			case 0x02:
				f.await(8, func(args []byte) {
					addr := int(binary.BigEndian.Uint32(args)) * 2
					n := int(binary.BigEndian.Uint32(args[4:]))
					f.out(ack)
					f.out(f.target.Mem[avr.MemFlash][addr : addr+n]...)
				})
			}
		})
	case c&0xF0 == 0x40:
		f.setPeripherals(c)
		f.out(ack)
	case c&0xF8 == 0x60:
		f.speed = c
		f.out(ack)
	case c&0xF0 == 0x80:
		f.config = c
		f.out(ack)
	default:
		f.out(0x00)
	}
}

func (f *fakePirate) raw(c byte) {
	switch {
	case c == 0x00:
		f.mode = fwBBIO
		f.rx.WriteString("BBIO1")
	case c&0xF0 == 0x40:
		f.setPeripherals(c)
		f.out(ack)
	case c&0xF8 == 0x60:
		f.speed = c
		f.out(ack)
	case c&0xF0 == 0x80:
		f.config = c
		f.out(ack)
	default:
		f.out(0x00)
	}
}

func (f *fakePirate) text(c byte) {
	if c == 0x00 {
		if !f.binary {
			return
		}
		f.zeros++
		if f.zeros == 20 {
			f.mode = fwBBIO
			f.rx.WriteString("BBIO1")
		}
		return
	}
	if c < 0x20 && c != '\n' {
		return
	}
	if c != '\n' {
		f.textBuf.WriteByte(c)
		return
	}

	line := f.textBuf.String()
	f.textBuf.Reset()
	f.print(line) // echo
	f.command(line)
}

func (f *fakePirate) prompt() {
	switch f.menu {
	case "spi":
		f.rx.WriteString("SPI>")
	case "":
		f.rx.WriteString("HiZ>")
	default:
		f.rx.WriteString("(1)>")
	}
}

func (f *fakePirate) command(line string) {
	switch f.menu {
	case "sure":
		f.menu = ""
		if line == "y" {
			f.banner()
		}
		return
	case "modes":
		if line == "5" {
			f.menu = "speed"
			f.print("Set speed:", " 1. 30KHz", " 2. 125KHz")
		}
		f.prompt()
		return
	case "speed":
		f.menu = "output"
		f.print("Select output type:", " 1. Open drain (H=Hi-Z, L=GND)", " 2. Normal (H=3.3V, L=GND)")
		f.prompt()
		return
	case "output":
		if line == "2" {
			f.menu = "spi"
			f.print("Ready")
		}
		f.prompt()
		return
	case "freq":
		f.menu = "duty"
		f.print("Duty cycle in % (1-99)")
		f.rx.WriteString("(50)>")
		return
	case "duty":
		f.menu = "spi"
		f.pwm = true
		f.print("PWM active")
		f.prompt()
		return
	}

	switch {
	case line == "#":
		if f.askSure {
			f.menu = "sure"
			f.rx.WriteString("Are you sure? ")
			return
		}
		f.menu = ""
		f.banner()
	case line == "m":
		f.menu = "modes"
		f.print("1. HiZ", "2. 1-WIRE", "3. UART", "4. I2C", "5. SPI", "6. 2WIRE")
		f.prompt()
	case line == "W":
		f.powered = true
		_ = f.target.PowerUp()
		f.print("Power supplies ON")
		f.prompt()
	case line == "w":
		f.powered = false
		_ = f.target.PowerDown()
		f.print("Power supplies OFF")
		f.prompt()
	case line == "{":
		_ = f.target.SetPin(PinCS, false)
		f.print("CS ENABLED")
		f.prompt()
	case line == "g" && f.pwm:
		f.pwm = false
		f.print("PWM disabled")
		f.prompt()
	case line == "g":
		f.menu = "freq"
		f.print("1KHz-4,000KHz PWM/frequency generator", "Frequency in KHz")
		f.rx.WriteString("(50)>")
	case strings.HasPrefix(line, "0x") && f.menu == "spi":
		fields := strings.Fields(line)
		for i, field := range fields {
			if f.shortSPI && i >= 2 {
				break
			}
			v, _ := strconv.ParseUint(strings.TrimPrefix(field, "0x"), 16, 8)
			f.print(fmt.Sprintf("WRITE: 0x%02X READ: 0x%02X", v, f.spiByte(byte(v))))
		}
		f.prompt()
	default:
		f.prompt()
	}
}

func (f *fakePirate) banner() {
	f.mode = fwText
	f.print("RESET", "", "Bus Pirate v3.5", "Firmware v5.10")
	f.rx.WriteString("HiZ>")
}
