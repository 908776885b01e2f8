// Package gpiopins drives programmer lines through host GPIO, for example
// the header of a Raspberry Pi wired straight to the target.
//
// Lines are looked up by their periph.io name and mapped to the pin
// numbers of a bitbang.PinMap:
//
//	pins, err := gpiopins.Open(map[int]string{1: "GPIO25", 2: "GPIO11", 3: "GPIO10", 4: "GPIO9"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bb, err := bitbang.New(pins, bitbang.PinMap{Reset: 1, SCK: 2, MOSI: 3, MISO: 4})
package gpiopins

import (
	"fmt"
	"sort"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/facchinm/avrdude/bitbang"
	"github.com/facchinm/avrdude/isp"
)

// Config holds the GPIO pin configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger isp.Logger

	// Delay is waited after every output change
	Delay time.Duration

	// Sleep is used for delays
	Sleep func(time.Duration)
}

// Option is a functional option for configuring the Pins.
type Option func(*Config)

// WithLogger sets a logger.
func WithLogger(logger isp.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithDelay slows every output change down by d.
func WithDelay(d time.Duration) Option {
	return func(c *Config) {
		c.Delay = d
	}
}

// WithSleep replaces time.Sleep, mainly for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Config) {
		if sleep != nil {
			c.Sleep = sleep
		}
	}
}

// Pins maps pin numbers to GPIO lines.
type Pins struct {
	lines  map[int]gpio.PinIO
	inputs map[int]bool
	config Config
}

// Open initializes the host drivers and resolves each assigned line name.
func Open(assign map[int]string, opts ...Option) (*Pins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize host drivers: %w", err)
	}

	lines := make(map[int]gpio.PinIO, len(assign))
	for _, pin := range sortedPins(assign) {
		name := assign[pin]
		line := gpioreg.ByName(name)
		if line == nil {
			return nil, fmt.Errorf("gpio line %q for pin %d not found", name, pin)
		}
		lines[pin] = line
	}
	return New(lines, opts...), nil
}

func sortedPins(assign map[int]string) []int {
	pins := make([]int, 0, len(assign))
	for pin := range assign {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// New wraps already resolved lines.
func New(lines map[int]gpio.PinIO, opts ...Option) *Pins {
	cfg := Config{Sleep: time.Sleep}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pins{lines: lines, inputs: map[int]bool{}, config: cfg}
}

func (p *Pins) line(pin int) (gpio.PinIO, error) {
	line, ok := p.lines[pin&bitbang.PinMask]
	if !ok {
		return nil, fmt.Errorf("pin %d is not assigned to a gpio line", pin&bitbang.PinMask)
	}
	return line, nil
}

// SetPin drives a line; an inverted pin number drives the opposite level.
func (p *Pins) SetPin(pin int, high bool) error {
	line, err := p.line(pin)
	if err != nil {
		return err
	}
	if pin&bitbang.PinInverse != 0 {
		high = !high
	}

	if err := line.Out(gpio.Level(high)); err != nil {
		return fmt.Errorf("set %s: %w", line, err)
	}
	p.inputs[pin&bitbang.PinMask] = false

	if p.config.Delay > 0 {
		p.config.Sleep(p.config.Delay)
	}
	return nil
}

// GetPin samples a line, switching it to input first if it was driven.
func (p *Pins) GetPin(pin int) (bool, error) {
	line, err := p.line(pin)
	if err != nil {
		return false, err
	}

	n := pin & bitbang.PinMask
	if !p.inputs[n] {
		if err := line.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return false, fmt.Errorf("configure %s as input: %w", line, err)
		}
		p.inputs[n] = true
	}

	v := line.Read() == gpio.High
	return v != (pin&bitbang.PinInverse != 0), nil
}

// HighPulsePin drives a line high, then low.
func (p *Pins) HighPulsePin(pin int) error {
	if err := p.SetPin(pin, true); err != nil {
		return err
	}
	return p.SetPin(pin, false)
}

// Close halts every line.
func (p *Pins) Close() error {
	var first error
	for _, pin := range p.sorted() {
		if err := p.lines[pin].Halt(); err != nil && first == nil {
			first = err
		}
	}
	if p.config.Logger != nil {
		p.config.Logger.Debug("gpio lines released", "count", len(p.lines))
	}
	return first
}

func (p *Pins) sorted() []int {
	pins := make([]int, 0, len(p.lines))
	for pin := range p.lines {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

var _ bitbang.Pins = (*Pins)(nil)
