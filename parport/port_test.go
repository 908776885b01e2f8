package parport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/bitbang"
)

type write struct {
	reg Register
	v   byte
}

// fakeRegisters is an in-memory register set recording writes.
type fakeRegisters struct {
	regs    [3]byte
	writes  []write
	closed  bool
	readErr error
}

func (f *fakeRegisters) Read(r Register) (byte, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.regs[r], nil
}

func (f *fakeRegisters) Write(r Register, v byte) error {
	f.regs[r] = v
	f.writes = append(f.writes, write{r, v})
	return nil
}

func (f *fakeRegisters) Close() error {
	f.closed = true
	return nil
}

var pm = bitbang.PinMap{
	Reset: 9,
	SCK:   7,
	MOSI:  8,
	MISO:  10,
	VCC:   []int{2, 3},
	Buff:  []int{4},
}

type sleeps struct {
	calls []time.Duration
}

func (s *sleeps) sleep(d time.Duration) { s.calls = append(s.calls, d) }

func openPort(t *testing.T, regs *fakeRegisters, opts ...Option) (*Port, *sleeps) {
	t.Helper()
	s := &sleeps{}
	port, err := Open(regs, pm, append([]Option{WithSleep(s.sleep)}, opts...)...)
	require.NoError(t, err)
	return port, s
}

func TestOpenSavesRegisters(t *testing.T) {
	regs := &fakeRegisters{regs: [3]byte{0x5A, 0x0C, 0x00}}
	port, _ := openPort(t, regs)

	assert.Equal(t, byte(0x5A), port.savedData)
	assert.Equal(t, byte(0x0C), port.savedCtrl)
	assert.Empty(t, regs.writes)
}

func TestOpenReadError(t *testing.T) {
	regs := &fakeRegisters{readErr: errors.New("bad port")}
	_, err := Open(regs, pm)
	assert.ErrorIs(t, err, regs.readErr)
}

func TestOpenNilPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = Open(nil, pm)
	})
}

func TestSetPinDataLines(t *testing.T) {
	regs := &fakeRegisters{}
	port, _ := openPort(t, regs)

	for pin := 2; pin <= 9; pin++ {
		require.NoError(t, port.SetPin(pin, true))
	}
	assert.Equal(t, byte(0xFF), regs.regs[Data])

	require.NoError(t, port.SetPin(5, false))
	assert.Equal(t, byte(0xF7), regs.regs[Data])
}

func TestSetPinHardwareInversion(t *testing.T) {
	tests := []struct {
		pin  int
		high bool
		want byte
	}{
		{1, true, 0x00},  // strobe is inverted
		{1, false, 0x01},
		{14, true, 0x00}, // autofeed is inverted
		{16, true, 0x04}, // init is not
		{17, false, 0x08},
		{1 | bitbang.PinInverse, true, 0x01}, // double inversion
	}

	for _, tt := range tests {
		regs := &fakeRegisters{}
		port, _ := openPort(t, regs)
		require.NoError(t, port.SetPin(tt.pin, tt.high))
		assert.Equal(t, tt.want, regs.regs[Control], "pin %s high=%v", bitbang.FormatPin(tt.pin), tt.high)
	}
}

func TestSetPinOutOfRange(t *testing.T) {
	port, _ := openPort(t, &fakeRegisters{})

	assert.Error(t, port.SetPin(0, true))
	assert.Error(t, port.SetPin(18, true))
	_, err := port.GetPin(18)
	assert.Error(t, err)
	assert.Error(t, port.HighPulsePin(0))
}

func TestGetPin(t *testing.T) {
	regs := &fakeRegisters{}
	port, _ := openPort(t, regs)

	regs.regs[Status] = 0x40
	v, err := port.GetPin(10)
	require.NoError(t, err)
	assert.True(t, v)

	// busy is inverted by the hardware
	regs.regs[Status] = 0x80
	v, err = port.GetPin(11)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = port.GetPin(11 | bitbang.PinInverse)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestHighPulsePin(t *testing.T) {
	regs := &fakeRegisters{}
	port, _ := openPort(t, regs)

	require.NoError(t, port.HighPulsePin(9))
	assert.Equal(t, []write{{Data, 0x80}, {Data, 0x00}}, regs.writes)

	regs.writes = nil
	regs.regs[Control] = 0x01
	require.NoError(t, port.HighPulsePin(1))
	// inverted: clear then set
	assert.Equal(t, []write{{Control, 0x00}, {Control, 0x01}}, regs.writes)
}

func TestISPDelay(t *testing.T) {
	port, s := openPort(t, &fakeRegisters{}, WithISPDelay(5*time.Microsecond))
	require.NoError(t, port.SetPin(2, true))
	require.NoError(t, port.HighPulsePin(2))
	assert.Equal(t, []time.Duration{5 * time.Microsecond, 5 * time.Microsecond, 5 * time.Microsecond}, s.calls)

	port, s = openPort(t, &fakeRegisters{}, WithISPDelay(time.Microsecond))
	require.NoError(t, port.SetPin(2, true))
	assert.Empty(t, s.calls)
}

func TestPower(t *testing.T) {
	regs := &fakeRegisters{}
	port, s := openPort(t, regs)

	require.NoError(t, port.PowerUp())
	assert.Equal(t, byte(0x03), regs.regs[Data])
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, s.calls)

	require.NoError(t, port.PowerDown())
	assert.Equal(t, byte(0x00), regs.regs[Data])
}

func TestEnableDisable(t *testing.T) {
	regs := &fakeRegisters{regs: [3]byte{0xFF, 0, 0}}
	port, _ := openPort(t, regs)

	require.NoError(t, port.Enable())
	// reset (pin 9) low first, then buff (pin 4) low
	assert.Equal(t, []write{{Data, 0x7F}, {Data, 0x7B}}, regs.writes)

	regs.writes = nil
	require.NoError(t, port.Disable())
	assert.Equal(t, []write{{Data, 0x7F}}, regs.writes)
}

func TestCloseRestoresAndAppliesExitSpec(t *testing.T) {
	tests := []struct {
		name     string
		exit     string
		wantData byte
	}{
		{"unspecified", "", 0xA4},
		{"reset held", "reset", 0x24},
		{"reset released with vcc", "noreset,vcc", 0xA7},
		{"data high", "d_high", 0xFF},
		{"data low then vcc", "d_low,vcc", 0x03},
		{"novcc", "novcc", 0xA4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, err := ParseExitSpecs(tt.exit)
			require.NoError(t, err)

			regs := &fakeRegisters{regs: [3]byte{0xA0, 0x0C, 0}}
			port, _ := openPort(t, regs, WithExitSpec(exit))

			require.NoError(t, port.SetPin(2, true))
			require.NoError(t, port.SetPin(16, false))

			require.NoError(t, port.Close())
			// buffer pin 4 is turned off (high) after the restore
			assert.Equal(t, tt.wantData, regs.regs[Data])
			assert.Equal(t, byte(0x0C), regs.regs[Control])
			assert.True(t, regs.closed)
		})
	}
}

func TestParseExitSpecs(t *testing.T) {
	e, err := ParseExitSpecs("reset, novcc,d_high")
	require.NoError(t, err)
	assert.Equal(t, ExitSpec{Reset: ExitEnabled, Data: ExitEnabled, VCC: ExitDisabled}, e)

	e, err = ParseExitSpecs("")
	require.NoError(t, err)
	assert.Equal(t, ExitSpec{}, e)

	_, err = ParseExitSpecs("reset,bogus")
	assert.EqualError(t, err, `invalid exit spec "bogus"`)
}

func TestRegisterString(t *testing.T) {
	assert.Equal(t, "data", Data.String())
	assert.Equal(t, "status", Status.String())
	assert.Equal(t, "Register(7)", Register(7).String())
}

// pinLoop feeds MOSI (pin 8) back to MISO (pin 10) like a jumper on the
// connector.
type pinLoop struct {
	fakeRegisters
}

func (l *pinLoop) Read(r Register) (byte, error) {
	if r == Status {
		var s byte
		if l.regs[Data]&0x40 != 0 {
			s |= 0x40
		}
		return s, nil
	}
	return l.fakeRegisters.Read(r)
}

func TestBitbangOverPort(t *testing.T) {
	regs := &pinLoop{}
	port, err := Open(regs, pm, WithSleep(func(time.Duration) {}))
	require.NoError(t, err)

	bb, err := bitbang.New(port, pm, bitbang.WithSleep(func(time.Duration) {}))
	require.NoError(t, err)

	for _, v := range []byte{0x00, 0xAC, 0x53, 0xFF} {
		got, err := bb.TransceiveByte(v)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	// a loopback returns every byte in place, so program enable never
	// sees its echo
	p, ok := avr.LookupPart("t13")
	require.True(t, ok)
	assert.Error(t, bb.Initialize(p))
}
