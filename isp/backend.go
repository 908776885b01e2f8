package isp

import "github.com/facchinm/avrdude/avr"

// Backend is a programmer driver. Every backend offers the same logical
// operations; those it cannot perform return a protocol.UnsupportedError
// before any I/O.
type Backend interface {
	// Name identifies the backend in logs, e.g. "bitbang" or "buspirate"
	Name() string

	Enable() error
	Disable() error

	// Initialize brings the target into programming mode
	Initialize(p *avr.Part) error

	PowerUp() error
	PowerDown() error

	ProgramEnable(p *avr.Part) error
	ChipErase(p *avr.Part) error

	// Cmd sends one 4-byte serial programming instruction
	Cmd(cmd [4]byte) ([4]byte, error)

	ReadMemByte(p *avr.Part, m *avr.Memory, addr uint32) (byte, error)
	WriteMemByte(p *avr.Part, m *avr.Memory, addr uint32, value byte) error

	// PagedLoad reads n bytes starting at addr into m.Buf
	PagedLoad(p *avr.Part, m *avr.Memory, pageSize int, addr uint32, n int) (int, error)

	// PagedWrite writes n bytes of m.Buf starting at addr
	PagedWrite(p *avr.Part, m *avr.Memory, pageSize int, addr uint32, n int) (int, error)

	Capabilities() Capabilities

	Close() error
}

// PageCommitter is implemented by backends that commit the device page
// buffer with their own command instead of the part's write page
// instruction.
type PageCommitter interface {
	CommitPage(p *avr.Part, m *avr.Memory, addr uint32) error
}

// Capabilities records which bulk operations a backend can perform in its
// current state.
type Capabilities struct {
	PagedLoad  bool
	PagedWrite bool
}

// Indicator shows the programmer state, typically on LEDs.
type Indicator interface {
	Ready(on bool)
	Error(on bool)
	Programming(on bool)
	Verify(on bool)
}

// NopIndicator ignores every state change.
type NopIndicator struct{}

func (NopIndicator) Ready(bool)       {}
func (NopIndicator) Error(bool)       {}
func (NopIndicator) Programming(bool) {}
func (NopIndicator) Verify(bool)      {}

// LogIndicator reports state changes to a Logger at debug level.
type LogIndicator struct {
	Logger Logger
}

func (l LogIndicator) Ready(on bool)       { l.log("ready", on) }
func (l LogIndicator) Error(on bool)       { l.log("error", on) }
func (l LogIndicator) Programming(on bool) { l.log("programming", on) }
func (l LogIndicator) Verify(on bool)      { l.log("verify", on) }

func (l LogIndicator) log(name string, on bool) {
	if l.Logger != nil {
		l.Logger.Debug("indicator", "name", name, "on", on)
	}
}
