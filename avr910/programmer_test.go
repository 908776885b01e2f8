package avr910

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/isp"
	"github.com/facchinm/avrdude/protocol"
)

func noSleep(time.Duration) {}

// fakeAVR910 answers the AVR910 command set from in-memory flash and
// EEPROM. Word writes land in a page buffer until 'm'.
type fakeAVR910 struct {
	devices []byte
	sig     [3]byte
	flash   []byte
	eeprom  []byte
	pageBuf map[uint32]byte
	addr    uint32

	// nack makes the listed commands answer '?'
	nack map[byte]bool

	cmd      []byte
	rx       bytes.Buffer
	log      []byte
	drained  int
	closed   bool
	selected byte
	progMode bool
}

func newFake(p *avr.Part) *fakeAVR910 {
	f := &fakeAVR910{
		devices: []byte{0x13, p.AVR910DevCode},
		sig:     p.Signature,
		flash:   bytes.Repeat([]byte{0xFF}, p.Mem(avr.MemFlash).Size),
		eeprom:  bytes.Repeat([]byte{0xFF}, p.Mem(avr.MemEEPROM).Size),
		pageBuf: map[uint32]byte{},
		nack:    map[byte]bool{},
	}
	return f
}

var argCount = map[byte]int{'A': 2, 'T': 1, 'c': 1, 'C': 1, 'D': 1}

func (f *fakeAVR910) Read(p []byte) (int, error) {
	if f.rx.Len() == 0 {
		return 0, nil
	}
	return f.rx.Read(p)
}

func (f *fakeAVR910) Write(p []byte) (int, error) {
	for _, c := range p {
		f.cmd = append(f.cmd, c)
		if len(f.cmd) > argCount[f.cmd[0]] {
			f.execute(f.cmd)
			f.cmd = nil
		}
	}
	return len(p), nil
}

func (f *fakeAVR910) Drain() error {
	f.drained++
	f.rx.Reset()
	return nil
}

func (f *fakeAVR910) Close() error {
	f.closed = true
	return nil
}

func (f *fakeAVR910) ack(c byte) {
	if f.nack[c] {
		f.rx.WriteByte('?')
		return
	}
	f.rx.WriteByte('\r')
}

func (f *fakeAVR910) execute(cmd []byte) {
	f.log = append(f.log, cmd[0])
	switch cmd[0] {
	case 'S':
		f.rx.WriteString("AVR ISP")
	case 'V':
		f.rx.WriteString("38")
	case 'v':
		f.rx.WriteString("10")
	case 'p':
		f.rx.WriteByte('S')
	case 't':
		f.rx.Write(f.devices)
		f.rx.WriteByte(0)
	case 'T':
		f.selected = cmd[1]
		f.ack('T')
	case 'P':
		f.progMode = true
		f.ack('P')
	case 'L':
		f.progMode = false
		f.ack('L')
	case 'e':
		for i := range f.flash {
			f.flash[i] = 0xFF
		}
		for i := range f.eeprom {
			f.eeprom[i] = 0xFF
		}
		f.ack('e')
	case 'A':
		f.addr = uint32(cmd[1])<<8 | uint32(cmd[2])
		f.ack('A')
	case 'R':
		f.rx.WriteByte(f.flash[2*f.addr+1])
		f.rx.WriteByte(f.flash[2*f.addr])
	case 'd':
		f.rx.WriteByte(f.eeprom[f.addr])
	case 'c':
		f.pageBuf[2*f.addr] = cmd[1]
		f.ack('c')
	case 'C':
		f.pageBuf[2*f.addr+1] = cmd[1]
		f.ack('C')
	case 'm':
		for a, v := range f.pageBuf {
			f.flash[a] = v
		}
		f.pageBuf = map[uint32]byte{}
		f.ack('m')
	case 'D':
		f.eeprom[f.addr] = cmd[1]
		f.ack('D')
	case 's':
		f.rx.Write([]byte{f.sig[2], f.sig[1], f.sig[0]})
	default:
		f.rx.WriteByte('?')
	}
}

func lookup(t *testing.T, id string) *avr.Part {
	t.Helper()
	p, ok := avr.LookupPart(id)
	require.True(t, ok)
	return p
}

func TestNewNilLinkPanics(t *testing.T) {
	assert.Panics(t, func() {
		New(nil)
	})
}

func TestEnableDrains(t *testing.T) {
	f := newFake(lookup(t, "m8"))
	f.rx.WriteString("junk")
	a := New(f)

	require.NoError(t, a.Enable())
	assert.Equal(t, 1, f.drained)
	assert.Zero(t, f.rx.Len())
}

func TestInitialize(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	a := New(f)
	require.NoError(t, a.Enable())

	require.NoError(t, a.Initialize(p))

	info := a.Info()
	assert.Equal(t, "AVR ISP", info.ID)
	assert.Equal(t, "3.8", info.Software)
	assert.Equal(t, "1.0", info.Hardware)
	assert.Equal(t, byte('S'), info.Type)
	assert.Equal(t, []byte{0x13, 0x76}, info.Devices)
	assert.Equal(t, byte(0x76), f.selected)
	assert.True(t, f.progMode)
	assert.Equal(t, "SVvptTP", string(f.log))
}

func TestInitializeUnsupportedDevice(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	f.devices = []byte{0x13}
	a := New(f)
	require.NoError(t, a.Enable())

	err := a.Initialize(p)
	require.Error(t, err)
	assert.True(t, protocol.IsUnsupported(err))
	assert.Zero(t, f.selected)
}

func TestInitializeMissingAcknowledge(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	f.nack['P'] = true
	a := New(f)
	require.NoError(t, a.Enable())

	err := a.Initialize(p)
	require.Error(t, err)
	assert.True(t, protocol.IsProtocolError(err))
}

func TestSilentProgrammer(t *testing.T) {
	p := lookup(t, "m8")
	a := New(&silentLink{})

	err := a.Initialize(p)
	require.Error(t, err)
	assert.True(t, protocol.IsNotResponding(err))
}

func TestRawAndPagedOperationsUnsupported(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	a := New(f)
	flash := p.Mem(avr.MemFlash)

	_, err := a.Cmd([4]byte{0x30, 0, 0, 0})
	assert.True(t, protocol.IsUnsupported(err))
	_, err = a.PagedLoad(p, flash, flash.PageSize, 0, flash.PageSize)
	assert.True(t, protocol.IsUnsupported(err))
	_, err = a.PagedWrite(p, flash, flash.PageSize, 0, flash.PageSize)
	assert.True(t, protocol.IsUnsupported(err))
	_, err = a.ReadMemByte(p, p.Mem(avr.MemLFuse), 0)
	assert.True(t, protocol.IsUnsupported(err))
	assert.Equal(t, isp.Capabilities{}, a.Capabilities())
	assert.Empty(t, f.log)
}

func TestFlashReadCachesHighByte(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	f.flash[0x20], f.flash[0x21] = 0x0C, 0x94
	a := New(f)
	flash := p.Mem(avr.MemFlash)

	lo, err := a.ReadMemByte(p, flash, 0x20)
	require.NoError(t, err)
	hi, err := a.ReadMemByte(p, flash, 0x21)
	require.NoError(t, err)

	assert.Equal(t, byte(0x0C), lo)
	assert.Equal(t, byte(0x94), hi)
	// one address and one word read
	assert.Equal(t, "AR", string(f.log))

	// an odd address on its own needs its own read
	hi, err = a.ReadMemByte(p, flash, 0x21)
	require.NoError(t, err)
	assert.Equal(t, byte(0x94), hi)
	assert.Equal(t, "ARAR", string(f.log))
}

func TestEEPROMReadWrite(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	a := New(f)
	eeprom := p.Mem(avr.MemEEPROM)

	require.NoError(t, a.WriteMemByte(p, eeprom, 0x105, 0x5A))
	assert.Equal(t, byte(0x5A), f.eeprom[0x105])

	v, err := a.ReadMemByte(p, eeprom, 0x105)
	require.NoError(t, err)
	assert.Equal(t, byte(0x5A), v)
}

func TestReadSignatureReordersBytes(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	a := New(f)

	sig, err := a.ReadSignature()
	require.NoError(t, err)
	assert.Equal(t, p.Signature, sig)

	sigMem := p.Mem(avr.MemSignature)
	for i := range sig {
		v, err := a.ReadMemByte(p, sigMem, uint32(i))
		require.NoError(t, err)
		assert.Equal(t, p.Signature[i], v)
	}
	// read once, served from the cache afterwards
	assert.Equal(t, "s", string(f.log))
}

func TestChipErase(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	f.flash[0] = 0x00
	var slept time.Duration
	a := New(f, WithSleep(func(d time.Duration) { slept += d }))

	require.NoError(t, a.ChipErase(p))
	assert.Equal(t, byte(0xFF), f.flash[0])
	assert.Equal(t, p.ChipEraseDelay, slept)
}

func TestSession(t *testing.T) {
	p := lookup(t, "m8")
	f := newFake(p)
	a := New(f, WithSleep(noSleep))

	prog := isp.New(a, p)
	ctx := context.Background()
	require.NoError(t, prog.Start(ctx))

	sig, err := prog.CheckSignature(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.Signature, sig)

	flash := p.Mem(avr.MemFlash)
	data := make([]byte, flash.PageSize+6)
	for i := range data {
		data[i] = byte(0x10 + i)
	}
	n, err := prog.WriteMemory(ctx, avr.MemFlash, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, f.flash[:len(data)])
	assert.Equal(t, 2, bytes.Count(f.log, []byte{'m'}))

	require.NoError(t, prog.Verify(ctx, avr.MemFlash, data))

	require.NoError(t, prog.Close())
	assert.False(t, f.progMode)
	assert.True(t, f.closed)
}

// silentLink never answers.
type silentLink struct{}

func (silentLink) Read(p []byte) (int, error)  { return 0, nil }
func (silentLink) Write(p []byte) (int, error) { return len(p), nil }
