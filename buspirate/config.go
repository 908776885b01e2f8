package buspirate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/facchinm/avrdude/isp"
)

// Reset line selection for the binary peripheral configuration byte.
const (
	ResetCS   = 0x01
	ResetAUX  = 0x02
	ResetAUX2 = 0x04
)

// Config holds the Bus Pirate configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger isp.Logger

	// Indicator shows programming state during paged writes
	Indicator isp.Indicator

	// ForceASCII skips binary mode negotiation
	ForceASCII bool

	// SPIFreq is the binary mode speed selector, 0 to 7
	SPIFreq    int
	spiFreqSet bool

	// RawFreq selects the raw-wire submode at speed 0 to 3
	RawFreq    int
	rawFreqSet bool

	// CPUFreq is the clock in kHz generated on AUX for the target, ASCII
	// mode only. 0 disables it.
	CPUFreq int

	// Reset is the set of lines used as target reset, ResetCS by default
	Reset int

	NoPagedWrite bool
	NoPagedRead  bool

	// RecvTimeout is the serial read timeout
	RecvTimeout time.Duration

	// LineTimeout bounds the wait for the first byte of a text line.
	// The rest of the line uses RecvTimeout.
	LineTimeout time.Duration

	// Sleep is used for all delays
	Sleep func(time.Duration)
}

func defaultConfig() Config {
	return Config{
		Indicator:   isp.NopIndicator{},
		RecvTimeout: 100 * time.Millisecond,
		LineTimeout: 5 * time.Second,
		Sleep:       time.Sleep,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithLogger sets a logger for Bus Pirate operations.
func WithLogger(logger isp.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithIndicator sets the indicator lit during paged writes.
func WithIndicator(ind isp.Indicator) Option {
	return func(c *Config) {
		if ind != nil {
			c.Indicator = ind
		}
	}
}

// WithASCII forces the text user interface instead of binary mode.
func WithASCII() Option {
	return func(c *Config) {
		c.ForceASCII = true
	}
}

// WithSPIFreq selects the binary SPI speed, 0 (30kHz) to 7 (8MHz).
func WithSPIFreq(freq int) Option {
	return func(c *Config) {
		c.SPIFreq, c.spiFreqSet = freq, true
		c.rawFreqSet = false
	}
}

// WithRawFreq selects the raw-wire submode, speed 0 (5kHz) to 3 (400kHz).
func WithRawFreq(freq int) Option {
	return func(c *Config) {
		c.RawFreq, c.rawFreqSet = freq, true
		c.spiFreqSet = false
	}
}

// WithCPUFreq generates a clock for the target on AUX, in kHz.
func WithCPUFreq(khz int) Option {
	return func(c *Config) {
		c.CPUFreq = khz
	}
}

// WithReset selects the reset lines, a combination of ResetCS, ResetAUX
// and ResetAUX2.
func WithReset(lines int) Option {
	return func(c *Config) {
		c.Reset = lines
	}
}

// WithoutPagedWrite disables paged flash writes.
func WithoutPagedWrite() Option {
	return func(c *Config) {
		c.NoPagedWrite = true
	}
}

// WithoutPagedRead disables paged flash reads.
func WithoutPagedRead() Option {
	return func(c *Config) {
		c.NoPagedRead = true
	}
}

// WithRecvTimeout sets the serial read timeout. Default is 100ms.
func WithRecvTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.RecvTimeout = d
		}
	}
}

// WithLineTimeout sets how long a text line may take to start. Default
// is 5s.
func WithLineTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.LineTimeout = d
		}
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

// rawWire reports whether the raw-wire submode was selected.
func (c *Config) rawWire() bool {
	return c.rawFreqSet
}

// speed returns the speed selector of the chosen submode.
func (c *Config) speed() int {
	if c.rawFreqSet {
		return c.RawFreq
	}
	return c.SPIFreq
}

// ParseExtParams turns extended parameters such as "spifreq=3" or
// "reset=cs,aux" into options. Values are range checked here;
// combinations are checked when the programmer is enabled.
func ParseExtParams(params []string) ([]Option, error) {
	var opts []Option
	for _, param := range params {
		key, value, hasValue := strings.Cut(param, "=")

		switch key {
		case "ascii":
			opts = append(opts, WithASCII())
		case "nopagedwrite":
			opts = append(opts, WithoutPagedWrite())
		case "nopagedread":
			opts = append(opts, WithoutPagedRead())
		case "spifreq":
			n, err := intParam(param, value, hasValue, 0, 7)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithSPIFreq(n))
		case "rawfreq":
			n, err := intParam(param, value, hasValue, 0, 3)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithRawFreq(n))
		case "cpufreq":
			n, err := intParam(param, value, hasValue, 125, 4000)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithCPUFreq(n))
		case "serial_recv_timeout":
			n, err := intParam(param, value, hasValue, 1, 1<<31-1)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithRecvTimeout(time.Duration(n)*time.Millisecond))
		case "reset":
			lines, err := parseReset(value)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithReset(lines))
		default:
			return nil, fmt.Errorf("buspirate: unknown extended parameter %q", param)
		}
	}
	return opts, nil
}

func intParam(param, value string, hasValue bool, lo, hi int) (int, error) {
	if !hasValue {
		return 0, fmt.Errorf("buspirate: %s needs a value", param)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("buspirate: invalid %s: %w", param, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("buspirate: %s out of range %d..%d", param, lo, hi)
	}
	return n, nil
}

func parseReset(s string) (int, error) {
	lines := 0
	for _, name := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cs":
			lines |= ResetCS
		case "aux", "aux1":
			lines |= ResetAUX
		case "aux2":
			lines |= ResetAUX2
		default:
			return 0, fmt.Errorf("buspirate: reset must be cs, aux or aux2, got %q", name)
		}
	}
	return lines, nil
}

// verify checks that the options make sense together. An unset reset
// defaults to CS.
func (c *Config) verify() error {
	if c.Reset == 0 {
		c.Reset = ResetCS
	}
	if !c.ForceASCII {
		if c.CPUFreq != 0 {
			return fmt.Errorf("buspirate: cpufreq is only supported in ASCII mode")
		}
		return nil
	}
	if c.Reset != ResetCS {
		return fmt.Errorf("buspirate: reset pin other than CS is not supported in ASCII mode")
	}
	if c.spiFreqSet || c.rawFreqSet {
		return fmt.Errorf("buspirate: SPI speed selection is not supported in ASCII mode")
	}
	return nil
}
