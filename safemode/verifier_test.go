package safemode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facchinm/avrdude/avr"
)

var errIO = errors.New("i/o error")

// read is one scripted read result.
type read struct {
	value byte
	err   error
}

// fakeDevice answers fuse reads from per-region scripts and records writes.
type fakeDevice struct {
	reads    map[string][]read
	writes   map[string][]byte
	writeErr error
	readLog  []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{reads: map[string][]read{}, writes: map[string][]byte{}}
}

func (d *fakeDevice) script(region string, values ...byte) {
	for _, v := range values {
		d.reads[region] = append(d.reads[region], read{value: v})
	}
}

func (d *fakeDevice) ReadMemByte(p *avr.Part, m *avr.Memory, addr uint32) (byte, error) {
	d.readLog = append(d.readLog, m.Desc)
	q := d.reads[m.Desc]
	if len(q) == 0 {
		return 0, errIO
	}
	d.reads[m.Desc] = q[1:]
	return q[0].value, q[0].err
}

func (d *fakeDevice) WriteMemByte(p *avr.Part, m *avr.Memory, addr uint32, value byte) error {
	d.writes[m.Desc] = append(d.writes[m.Desc], value)
	return d.writeErr
}

func part(t *testing.T, id string) *avr.Part {
	p, ok := avr.LookupPart(id)
	require.True(t, ok)
	return p
}

func TestReadFusesAgreement(t *testing.T) {
	d := newFakeDevice()
	d.script(avr.MemLFuse, 0xD9, 0xD9, 0xD9)
	d.script(avr.MemHFuse, 0xDF, 0xDF, 0xDF)
	d.script(avr.MemEFuse, 0xFD, 0xFD, 0xFD)

	f, err := New(d, part(t, "m328p")).ReadFuses(NewCache().Load())
	require.NoError(t, err)

	assert.Equal(t, byte(0xD9), f.LFuse)
	assert.Equal(t, byte(0xDF), f.HFuse)
	assert.Equal(t, byte(0xFD), f.EFuse)
	assert.Equal(t, byte(0xFF), f.Fuse, "absent region keeps its value")
}

func TestReadFusesDisagreement(t *testing.T) {
	d := newFakeDevice()
	d.script(avr.MemLFuse, 0xD9, 0xD9, 0xDA)

	_, err := New(d, part(t, "m328p")).ReadFuses(NewCache().Load())

	var re *ReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, avr.MemLFuse, re.Region)
	assert.Equal(t, CodeLFuse, re.Code)
	assert.NotContains(t, d.readLog, avr.MemHFuse, "later regions are not read")
}

func TestReadFusesDistinctCodes(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(d *fakeDevice)
		wantCode int
	}{
		{
			name:     "lfuse",
			setup:    func(d *fakeDevice) { d.script(avr.MemLFuse, 1, 2, 3) },
			wantCode: CodeLFuse,
		},
		{
			name: "hfuse",
			setup: func(d *fakeDevice) {
				d.script(avr.MemLFuse, 1, 1, 1)
				d.script(avr.MemHFuse, 1, 2)
			},
			wantCode: CodeHFuse,
		},
		{
			name: "efuse",
			setup: func(d *fakeDevice) {
				d.script(avr.MemLFuse, 1, 1, 1)
				d.script(avr.MemHFuse, 1, 1, 1)
				d.script(avr.MemEFuse, 7, 7, 6)
			},
			wantCode: CodeEFuse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDevice()
			tt.setup(d)

			_, err := New(d, part(t, "m328p")).ReadFuses(NewCache().Load())

			var re *ReadError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.wantCode, re.Code)
			assert.Equal(t, tt.name, re.Region)
		})
	}
}

func TestReadFusesMissingEfuse(t *testing.T) {
	d := newFakeDevice()
	d.script(avr.MemLFuse, 0x6A, 0x6A, 0x6A)
	d.script(avr.MemHFuse, 0xFF, 0xFF, 0xFF)

	f, err := New(d, part(t, "t13")).ReadFuses(Fuses{EFuse: 0x42})
	require.NoError(t, err)

	assert.Equal(t, byte(0x6A), f.LFuse)
	assert.Equal(t, byte(0x42), f.EFuse)
	assert.NotContains(t, d.readLog, avr.MemEFuse)
}

func TestReadFusesNoFusesAtAll(t *testing.T) {
	d := newFakeDevice()

	f, err := New(d, part(t, "1200")).ReadFuses(NewCache().Load())
	require.NoError(t, err)
	assert.Equal(t, NewCache().Load(), f)
	assert.Empty(t, d.readLog)
}

func TestReadFusesAllReadsFail(t *testing.T) {
	d := newFakeDevice()

	_, err := New(d, part(t, "m328p")).ReadFuses(NewCache().Load())
	assert.True(t, IsReadError(err))
	assert.Len(t, d.readLog, 2, "the second failed read already disagrees")
}

func TestReadFusesErrorOnLaterRead(t *testing.T) {
	d := newFakeDevice()
	d.reads[avr.MemLFuse] = []read{{value: 0xD9}, {value: 0xD9}, {err: errIO}}

	_, err := New(d, part(t, "m328p")).ReadFuses(NewCache().Load())
	assert.True(t, IsReadError(err))
}

func TestWriteFuseRetries(t *testing.T) {
	d := newFakeDevice()
	d.script(avr.MemLFuse, 0x00, 0x00, 0x62)

	err := New(d, part(t, "m328p")).WriteFuse(0x62, avr.MemLFuse, 3)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x62, 0x62, 0x62}, d.writes[avr.MemLFuse])
	assert.Len(t, d.readLog, 3, "no fourth attempt")
}

func TestWriteFuseStopsOnFirstMatch(t *testing.T) {
	d := newFakeDevice()
	d.script(avr.MemHFuse, 0xDE)

	err := New(d, part(t, "m328p")).WriteFuse(0xDE, avr.MemHFuse, 10)
	require.NoError(t, err)
	assert.Len(t, d.writes[avr.MemHFuse], 1)
}

func TestWriteFuseExhausted(t *testing.T) {
	d := newFakeDevice()
	d.script(avr.MemLFuse, 0x00, 0x00, 0x00)

	err := New(d, part(t, "m328p")).WriteFuse(0x62, avr.MemLFuse, 3)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 3, we.Tries)
	assert.Equal(t, byte(0x00), we.Last)
	assert.Nil(t, we.Err, "exhaustion is not an I/O error")
}

func TestWriteFuseIOErrorConsumesAttempt(t *testing.T) {
	d := newFakeDevice()
	d.writeErr = errIO

	err := New(d, part(t, "m328p")).WriteFuse(0x62, avr.MemLFuse, 4)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Len(t, d.writes[avr.MemLFuse], 4)
	assert.ErrorIs(t, err, errIO)
}

func TestWriteFuseNoSuchFuse(t *testing.T) {
	d := newFakeDevice()

	err := New(d, part(t, "t13")).WriteFuse(0xFF, avr.MemEFuse, 3)
	assert.ErrorIs(t, err, ErrNoSuchFuse)
	assert.Empty(t, d.writes)
}

func TestCheckRestoresChangedFuse(t *testing.T) {
	d := newFakeDevice()
	d.script(avr.MemLFuse, 0x62, 0x62, 0x62, 0x6A)
	d.script(avr.MemHFuse, 0xFF, 0xFF, 0xFF)

	cache := NewCache()
	cache.Save(Fuses{LFuse: 0x6A, HFuse: 0xFF})

	err := New(d, part(t, "t13")).Check(cache, 3)

	var ce *ChangedError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Restored)
	require.Len(t, ce.Changes, 1)
	assert.Equal(t, Change{Region: avr.MemLFuse, Was: 0x6A, Now: 0x62}, ce.Changes[0])
	assert.Equal(t, []byte{0x6A}, d.writes[avr.MemLFuse])
	assert.Contains(t, err.Error(), "lfuse changed 0x6A -> 0x62 (restored)")
}

func TestCheckUnchanged(t *testing.T) {
	d := newFakeDevice()
	d.script(avr.MemLFuse, 0x6A, 0x6A, 0x6A)
	d.script(avr.MemHFuse, 0xFF, 0xFF, 0xFF)

	cache := NewCache()
	cache.Save(Fuses{LFuse: 0x6A, HFuse: 0xFF})

	assert.NoError(t, New(d, part(t, "t13")).Check(cache, 3))
	assert.Empty(t, d.writes)
}

func TestCache(t *testing.T) {
	c := NewCache()
	assert.False(t, c.Saved())
	assert.Equal(t, Fuses{Fuse: 0xFF, LFuse: 0xFF, HFuse: 0xFF, EFuse: 0xFF}, c.Load())

	c.Save(Fuses{LFuse: 1})
	assert.True(t, c.Saved())
	assert.Equal(t, byte(1), c.Load().LFuse)
}
