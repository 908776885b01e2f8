package bitbang

import (
	"fmt"
	"strconv"
	"strings"
)

// Pin numbers carry a logical inversion flag in bit 7.
const (
	PinInverse = 0x80
	PinMask    = 0x7F
)

// Pins drives and samples individual programmer lines. Pin numbers are
// backend specific; PinInverse in a pin number inverts its logic level.
type Pins interface {
	SetPin(pin int, high bool) error
	GetPin(pin int) (bool, error)

	// HighPulsePin drives the pin high then low
	HighPulsePin(pin int) error
}

// PowerSwitch is implemented by pin backends that can switch target power.
type PowerSwitch interface {
	PowerUp() error
	PowerDown() error
}

// BufferSwitch is implemented by pin backends with an output buffer that
// must be enabled before talking to the target.
type BufferSwitch interface {
	Enable() error
	Disable() error
}

// PinMap assigns programmer lines to pin numbers. Zero means unconnected.
type PinMap struct {
	Reset int
	SCK   int
	MOSI  int
	MISO  int

	ErrLED int
	RdyLED int
	PgmLED int
	VfyLED int

	// VCC pins are driven high to power the target
	VCC []int

	// Buff pins enable an output buffer, active low
	Buff []int
}

// Validate checks that the four SPI lines are assigned.
func (pm PinMap) Validate() error {
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"reset", pm.Reset},
		{"sck", pm.SCK},
		{"mosi", pm.MOSI},
		{"miso", pm.MISO},
	} {
		if p.pin&PinMask == 0 {
			return fmt.Errorf("pin map: %s pin not assigned", p.name)
		}
	}
	return nil
}

// String lists the assignment, one line per signal.
func (pm PinMap) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  VCC     = %s\n", pinList(pm.VCC))
	fmt.Fprintf(&b, "  BUFF    = %s\n", pinList(pm.Buff))
	fmt.Fprintf(&b, "  RESET   = %s\n", FormatPin(pm.Reset))
	fmt.Fprintf(&b, "  SCK     = %s\n", FormatPin(pm.SCK))
	fmt.Fprintf(&b, "  MOSI    = %s\n", FormatPin(pm.MOSI))
	fmt.Fprintf(&b, "  MISO    = %s\n", FormatPin(pm.MISO))
	fmt.Fprintf(&b, "  ERR LED = %s\n", FormatPin(pm.ErrLED))
	fmt.Fprintf(&b, "  RDY LED = %s\n", FormatPin(pm.RdyLED))
	fmt.Fprintf(&b, "  PGM LED = %s\n", FormatPin(pm.PgmLED))
	fmt.Fprintf(&b, "  VFY LED = %s\n", FormatPin(pm.VfyLED))
	return b.String()
}

func pinList(pins []int) string {
	if len(pins) == 0 {
		return "(not used)"
	}
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = FormatPin(p)
	}
	return strings.Join(parts, ",")
}

// FormatPin renders a pin number, with a leading "~" when inverted.
func FormatPin(pin int) string {
	if pin&PinInverse != 0 {
		return "~" + strconv.Itoa(pin&PinMask)
	}
	return strconv.Itoa(pin)
}

// ParsePin parses a pin number, optionally prefixed with "~" or "!" for an
// inverted pin.
func ParsePin(s string) (int, error) {
	s = strings.TrimSpace(s)
	inv := 0
	if strings.HasPrefix(s, "~") || strings.HasPrefix(s, "!") {
		inv = PinInverse
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid pin %q: %w", s, err)
	}
	if n < 0 || n > PinMask {
		return 0, fmt.Errorf("invalid pin %d: out of range", n)
	}
	return n | inv, nil
}

// ParsePinList parses a comma separated list of pins.
func ParsePinList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var pins []int
	for _, f := range strings.Split(s, ",") {
		p, err := ParsePin(f)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return pins, nil
}
