package isp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/protocol"
	"github.com/facchinm/avrdude/safemode"
)

// Programmer runs one programming session of a part through a backend.
// It owns the backend for the whole session; no other code may use the
// backend until Close returns.
type Programmer struct {
	backend Backend
	part    *avr.Part
	config  Config
	fuses   *safemode.Cache
	started bool
}

// New creates a new Programmer for part on the given backend.
//
// Example:
//
//	part, _ := avr.LookupPart("m328p")
//	prog := isp.New(backend, part,
//	    isp.WithProgressCallback(progressFunc),
//	    isp.WithSafemode(true),
//	)
func New(backend Backend, part *avr.Part, opts ...Option) *Programmer {
	if backend == nil {
		panic("backend cannot be nil")
	}
	if part == nil {
		panic("part cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Programmer{
		backend: backend,
		part:    part,
		config:  cfg,
		fuses:   safemode.NewCache(),
	}
}

// Part returns the part being programmed.
func (p *Programmer) Part() *avr.Part {
	return p.part
}

// Start enables the programmer and brings the target into programming
// mode. With safemode enabled the current fuse values are saved.
func (p *Programmer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}

	if err := p.backend.Enable(); err != nil {
		return fmt.Errorf("enable %s: %w", p.backend.Name(), err)
	}
	if err := p.backend.Initialize(p.part); err != nil {
		p.config.Indicator.Error(true)
		return fmt.Errorf("initialize: %w", err)
	}
	p.started = true
	p.config.Indicator.Ready(true)

	p.logDebug("programming mode entered",
		"backend", p.backend.Name(),
		"part", p.part.Desc,
	)

	if p.config.Safemode {
		if err := p.SaveFuses(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ReadSignature reads the 3-byte device signature.
func (p *Programmer) ReadSignature(ctx context.Context) ([3]byte, error) {
	var sig [3]byte
	m, err := p.mem(avr.MemSignature)
	if err != nil {
		return sig, err
	}

	for i := range sig {
		if err := ctx.Err(); err != nil {
			return sig, fmt.Errorf("cancelled: %w", err)
		}
		v, err := p.backend.ReadMemByte(p.part, m, uint32(i))
		if err != nil {
			return sig, fmt.Errorf("read signature: %w", err)
		}
		sig[i] = v
		if i < len(m.Buf) {
			m.Buf[i] = v
		}
	}
	return sig, nil
}

// CheckSignature reads the device signature and compares it with the
// part's. A mismatch is a *SignatureMismatchError unless the programmer
// was created WithForceSignature.
func (p *Programmer) CheckSignature(ctx context.Context) ([3]byte, error) {
	sig, err := p.ReadSignature(ctx)
	if err != nil {
		return sig, err
	}

	p.logInfo("device signature", "signature", fmt.Sprintf("%02X %02X %02X", sig[0], sig[1], sig[2]))

	if sig == p.part.Signature {
		return sig, nil
	}

	mismatch := &SignatureMismatchError{Part: p.part.Desc, Expected: p.part.Signature, Actual: sig}
	if p.config.ForceSignature {
		p.logError("signature mismatch ignored", "error", mismatch)
		return sig, nil
	}
	return sig, mismatch
}

// ChipErase erases flash and EEPROM and re-initializes the device.
func (p *Programmer) ChipErase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}

	p.reportProgress(Progress{Phase: PhaseErasing, Percentage: 0})
	start := time.Now()

	if err := p.backend.ChipErase(p.part); err != nil {
		return fmt.Errorf("chip erase: %w", err)
	}

	p.reportProgress(Progress{Phase: PhaseErasing, Percentage: 100, ElapsedTime: time.Since(start)})
	p.logInfo("chip erased", "elapsed", time.Since(start).String())
	return nil
}

// WriteMemory writes data to the start of the named memory. Paged
// memories use the backend's bulk page write when it has one; everything
// else is written byte by byte. With verification enabled the memory is
// read back afterwards.
//
// Example:
//
//	n, err := prog.WriteMemory(ctx, avr.MemFlash, image)
func (p *Programmer) WriteMemory(ctx context.Context, name string, data []byte) (int, error) {
	m, err := p.mem(name)
	if err != nil {
		return 0, err
	}
	if len(data) > m.Size {
		return 0, &OutOfRangeError{Memory: name, Size: m.Size, Length: len(data)}
	}

	copy(m.Buf, data)
	start := time.Now()
	n := len(data)

	var written int
	if p.usePaged(m, p.backend.Capabilities().PagedWrite) {
		written, err = p.writePaged(ctx, m, n, start)
		if err != nil && written == 0 && protocol.IsUnsupported(err) {
			p.logDebug("paged write unavailable, writing bytewise", "memory", name, "reason", err)
			written, err = p.writeBytes(ctx, m, n, start)
		}
	} else {
		written, err = p.writeBytes(ctx, m, n, start)
	}
	if err != nil {
		p.config.Indicator.Error(true)
		return written, fmt.Errorf("write %s: %w", name, err)
	}

	p.logInfo("memory written",
		"memory", name,
		"bytes", written,
		"elapsed", time.Since(start).String(),
	)

	if p.config.Verify {
		if err := p.Verify(ctx, name, data); err != nil {
			return written, err
		}
	}

	p.reportProgress(Progress{
		Phase:       PhaseComplete,
		Memory:      name,
		Done:        written,
		Total:       n,
		Percentage:  100,
		ElapsedTime: time.Since(start),
	})
	return written, nil
}

func (p *Programmer) writePaged(ctx context.Context, m *avr.Memory, n int, start time.Time) (int, error) {
	done := 0
	for addr := 0; addr < n; addr += m.PageSize {
		if err := ctx.Err(); err != nil {
			return done, fmt.Errorf("cancelled: %w", err)
		}

		chunk := min(m.PageSize, n-addr)
		w, err := p.backend.PagedWrite(p.part, m, m.PageSize, uint32(addr), chunk)
		done += w
		if err != nil {
			return done, err
		}
		p.reportTransfer(PhaseWriting, m.Desc, done, n, start)
	}
	return done, nil
}

func (p *Programmer) writeBytes(ctx context.Context, m *avr.Memory, n int, start time.Time) (int, error) {
	step := progressStep(m)
	for addr := 0; addr < n; addr++ {
		if err := ctx.Err(); err != nil {
			return addr, fmt.Errorf("cancelled: %w", err)
		}

		if err := p.backend.WriteMemByte(p.part, m, uint32(addr), m.Buf[addr]); err != nil {
			return addr, err
		}

		if m.Paged && m.PageSize > 0 && ((addr+1)%m.PageSize == 0 || addr == n-1) {
			if err := p.commitPage(m, uint32(addr)); err != nil {
				return addr, err
			}
		}

		if m.PowerOffAfterWrite {
			if err := p.powerCycle(); err != nil {
				return addr, err
			}
		}

		if (addr+1)%step == 0 || addr == n-1 {
			p.reportTransfer(PhaseWriting, m.Desc, addr+1, n, start)
		}
	}
	return n, nil
}

func (p *Programmer) commitPage(m *avr.Memory, addr uint32) error {
	p.config.Indicator.Programming(true)
	defer p.config.Indicator.Programming(false)

	if pc, ok := p.backend.(PageCommitter); ok {
		return pc.CommitPage(p.part, m, addr)
	}
	return avr.WritePage(p.backend, p.part, m, addr)
}

func (p *Programmer) powerCycle() error {
	if err := p.backend.PowerDown(); err != nil {
		return fmt.Errorf("power down: %w", err)
	}
	if err := p.backend.PowerUp(); err != nil {
		return fmt.Errorf("power up: %w", err)
	}
	if err := p.backend.Initialize(p.part); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// ReadMemory reads the first n bytes of the named memory into its
// back-buffer and returns a copy. n <= 0 reads the whole memory.
func (p *Programmer) ReadMemory(ctx context.Context, name string, n int) ([]byte, error) {
	m, err := p.mem(name)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = m.Size
	}
	if n > m.Size {
		return nil, &OutOfRangeError{Memory: name, Size: m.Size, Length: n}
	}

	start := time.Now()
	if p.usePaged(m, p.backend.Capabilities().PagedLoad) {
		var got int
		got, err = p.readPaged(ctx, m, n, start)
		if err != nil && got == 0 && protocol.IsUnsupported(err) {
			p.logDebug("paged read unavailable, reading bytewise", "memory", name, "reason", err)
			err = p.readBytes(ctx, m, n, start)
		}
	} else {
		err = p.readBytes(ctx, m, n, start)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	out := make([]byte, n)
	copy(out, m.Buf[:n])
	return out, nil
}

func (p *Programmer) readPaged(ctx context.Context, m *avr.Memory, n int, start time.Time) (int, error) {
	done := 0
	for addr := 0; addr < n; addr += m.PageSize {
		if err := ctx.Err(); err != nil {
			return done, fmt.Errorf("cancelled: %w", err)
		}

		chunk := min(m.PageSize, n-addr)
		r, err := p.backend.PagedLoad(p.part, m, m.PageSize, uint32(addr), chunk)
		done += r
		if err != nil {
			return done, err
		}
		p.reportTransfer(PhaseReading, m.Desc, done, n, start)
	}
	return done, nil
}

func (p *Programmer) readBytes(ctx context.Context, m *avr.Memory, n int, start time.Time) error {
	step := progressStep(m)
	for addr := 0; addr < n; addr++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		v, err := p.backend.ReadMemByte(p.part, m, uint32(addr))
		if err != nil {
			return err
		}
		m.Buf[addr] = v

		if (addr+1)%step == 0 || addr == n-1 {
			p.reportTransfer(PhaseReading, m.Desc, addr+1, n, start)
		}
	}
	return nil
}

// Verify reads the named memory back and compares it with data. The first
// difference is returned as a *VerificationError.
func (p *Programmer) Verify(ctx context.Context, name string, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	p.config.Indicator.Verify(true)
	defer p.config.Indicator.Verify(false)

	got, err := p.ReadMemory(ctx, name, len(data))
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	for i := range data {
		if got[i] != data[i] {
			p.config.Indicator.Error(true)
			return &VerificationError{Memory: name, Addr: i, Expected: data[i], Actual: got[i]}
		}
	}

	p.reportProgress(Progress{Phase: PhaseVerifying, Memory: name, Done: len(data), Total: len(data), Percentage: 100})
	p.logDebug("memory verified", "memory", name, "bytes", len(data))
	return nil
}

// Safemode returns a fuse verifier working through the session's backend.
func (p *Programmer) Safemode() *safemode.Verifier {
	var opts []safemode.Option
	if p.config.Logger != nil {
		opts = append(opts, safemode.WithLogger(p.config.Logger))
	}
	return safemode.New(p.backend, p.part, opts...)
}

// SaveFuses reads the fuses with three-way agreement and remembers them
// for CheckFuses.
func (p *Programmer) SaveFuses(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}

	f, err := p.Safemode().ReadFuses(p.fuses.Load())
	if err != nil {
		return fmt.Errorf("save fuses: %w", err)
	}
	p.fuses.Save(f)
	return nil
}

// Fuses returns the fuse values saved by SaveFuses.
func (p *Programmer) Fuses() safemode.Fuses {
	return p.fuses.Load()
}

// CheckFuses compares the fuses with the saved values and restores any
// that changed.
func (p *Programmer) CheckFuses(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	if !p.fuses.Saved() {
		return nil
	}
	return p.Safemode().Check(p.fuses, p.config.FuseRetries)
}

// WriteFuse writes one fuse, verifying it with retries. The saved value is
// updated so the change survives CheckFuses.
func (p *Programmer) WriteFuse(ctx context.Context, name string, value byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}

	if err := p.Safemode().WriteFuse(value, name, p.config.FuseRetries); err != nil {
		return err
	}
	if p.fuses.Saved() {
		p.fuses.Save(p.fuses.Load().Set(name, value))
	}
	p.logInfo("fuse written", "fuse", name, "value", fmt.Sprintf("0x%02X", value))
	return nil
}

// Close ends the session: fuses are checked in safemode, then the target
// is powered down and the backend released. All errors are returned
// joined.
func (p *Programmer) Close() error {
	var errs []error

	if p.started && p.config.Safemode {
		if err := p.CheckFuses(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}

	p.config.Indicator.Ready(false)

	if err := p.backend.PowerDown(); err != nil && !protocol.IsUnsupported(err) {
		errs = append(errs, fmt.Errorf("power down: %w", err))
	}
	if err := p.backend.Disable(); err != nil {
		errs = append(errs, fmt.Errorf("disable: %w", err))
	}
	if err := p.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	p.started = false

	return errors.Join(errs...)
}

func (p *Programmer) mem(name string) (*avr.Memory, error) {
	m := p.part.Mem(name)
	if m == nil {
		return nil, &MemoryNotFoundError{Part: p.part.Desc, Memory: name}
	}
	return m, nil
}

func (p *Programmer) usePaged(m *avr.Memory, capable bool) bool {
	return capable && m.Paged && m.PageSize > 0
}

func progressStep(m *avr.Memory) int {
	if m.PageSize > 0 {
		return m.PageSize
	}
	return 64
}

func (p *Programmer) reportTransfer(phase, memory string, done, total int, start time.Time) {
	p.reportProgress(Progress{
		Phase:       phase,
		Memory:      memory,
		Done:        done,
		Total:       total,
		Percentage:  float64(done) / float64(total) * 100,
		ElapsedTime: time.Since(start),
	})
}

// reportProgress calls the progress callback if configured.
func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (p *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (p *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (p *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}
