package safemode

import (
	"fmt"

	"github.com/facchinm/avrdude/avr"
)

// ByteIO is the byte access a programmer backend provides.
type ByteIO interface {
	ReadMemByte(p *avr.Part, m *avr.Memory, addr uint32) (byte, error)
	WriteMemByte(p *avr.Part, m *avr.Memory, addr uint32, value byte) error
}

// Logger matches isp.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Config holds the verifier configuration.
type Config struct {
	Logger Logger
}

// Option configures a Verifier.
type Option func(*Config)

// WithLogger sets a logger for fuse reads and writes.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Verifier reads and writes fuses of one part through one backend. The
// caller must hold exclusive use of the backend while it runs.
type Verifier struct {
	dev    ByteIO
	part   *avr.Part
	config Config
}

// New creates a Verifier.
func New(dev ByteIO, part *avr.Part, opts ...Option) *Verifier {
	if dev == nil {
		panic("device cannot be nil")
	}
	if part == nil {
		panic("part cannot be nil")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Verifier{dev: dev, part: part, config: cfg}
}

// WriteFuse writes value to the named fuse and reads it back, up to tries
// times. An I/O error consumes an attempt. It returns nil as soon as the
// read-back matches and a *WriteError when every attempt failed.
func (v *Verifier) WriteFuse(value byte, name string, tries int) error {
	m := v.part.Mem(name)
	if m == nil {
		return fmt.Errorf("%s: %w", name, ErrNoSuchFuse)
	}

	werr := &WriteError{Region: name, Value: value, Tries: tries}
	for left := tries; left > 0; left-- {
		if err := v.dev.WriteMemByte(v.part, m, 0, value); err != nil {
			v.logDebug("fuse write failed", "fuse", name, "error", err, "left", left-1)
			werr.Err = err
			continue
		}
		got, err := v.dev.ReadMemByte(v.part, m, 0)
		if err != nil {
			v.logDebug("fuse read back failed", "fuse", name, "error", err, "left", left-1)
			werr.Err = err
			continue
		}
		werr.Err = nil
		werr.Last = got

		v.logDebug("wrote fuse",
			"fuse", name,
			"value", fmt.Sprintf("0x%02X", value),
			"read", fmt.Sprintf("0x%02X", got),
			"left", left-1,
		)
		if got == value {
			return nil
		}
	}

	return werr
}

// ReadFuses reads every fuse region of the part three times. A region is
// accepted only if all three reads agree. Regions the part does not have
// keep their value from cur.
func (v *Verifier) ReadFuses(cur Fuses) (Fuses, error) {
	out := cur
	for _, region := range Regions {
		m := v.part.Mem(region)
		if m == nil {
			continue
		}

		value, ok := v.readThrice(m, cur.Get(region))
		if !ok {
			v.logError("unable to read fuse properly", "fuse", region)
			return cur, &ReadError{Region: region, Code: regionCodes[region]}
		}

		v.logDebug("fuse reads", "fuse", region, "value", fmt.Sprintf("0x%02X", value))
		out = out.Set(region, value)
	}
	return out, nil
}

// readThrice reads m three times. A failed read yields one more than the
// value it is compared to, so it can never agree.
func (v *Verifier) readThrice(m *avr.Memory, prev byte) (byte, bool) {
	first, err := v.dev.ReadMemByte(v.part, m, 0)
	if err != nil {
		first = prev + 1
	}

	for i := 0; i < 2; i++ {
		next, err := v.dev.ReadMemByte(v.part, m, 0)
		if err != nil {
			next = first + 1
		}
		if next != first {
			return first, false
		}
	}
	return first, true
}

// Check re-reads the fuses and compares them with the saved values. Any
// region that changed is written back with up to tries attempts and
// reported in a *ChangedError.
func (v *Verifier) Check(cache *Cache, tries int) error {
	saved := cache.Load()
	now, err := v.ReadFuses(saved)
	if err != nil {
		return err
	}

	changed := &ChangedError{Restored: true}
	for _, region := range Regions {
		if v.part.Mem(region) == nil || now.Get(region) == saved.Get(region) {
			continue
		}

		changed.Changes = append(changed.Changes, Change{
			Region: region,
			Was:    saved.Get(region),
			Now:    now.Get(region),
		})
		v.logInfo("fuse changed, restoring",
			"fuse", region,
			"was", fmt.Sprintf("0x%02X", saved.Get(region)),
			"now", fmt.Sprintf("0x%02X", now.Get(region)),
		)
		if err := v.WriteFuse(saved.Get(region), region, tries); err != nil {
			v.logError("fuse restore failed", "fuse", region, "error", err)
			changed.Restored = false
		}
	}

	if len(changed.Changes) == 0 {
		return nil
	}
	return changed
}

func (v *Verifier) logDebug(msg string, keysAndValues ...interface{}) {
	if v.config.Logger != nil {
		v.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (v *Verifier) logInfo(msg string, keysAndValues ...interface{}) {
	if v.config.Logger != nil {
		v.config.Logger.Info(msg, keysAndValues...)
	}
}

func (v *Verifier) logError(msg string, keysAndValues ...interface{}) {
	if v.config.Logger != nil {
		v.config.Logger.Error(msg, keysAndValues...)
	}
}
