package bitbang

import (
	"time"

	"github.com/facchinm/avrdude/isp"
)

// Config holds the bitbang programmer configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger isp.Logger

	// Indicator replaces the LED pins of the pin map (optional)
	Indicator isp.Indicator

	// Sleep is used for every settle delay
	Sleep func(time.Duration)

	// SettleDelay is the wait between the reset steps of Initialize
	SettleDelay time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Sleep:       time.Sleep,
		SettleDelay: 20 * time.Millisecond,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithLogger sets a logger for the programmer operations.
//
// Example:
//
//	bb, err := bitbang.New(pins, pinMap, bitbang.WithLogger(myLogger))
func WithLogger(logger isp.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithIndicator sends status changes to ind instead of the LED pins.
func WithIndicator(ind isp.Indicator) Option {
	return func(c *Config) {
		c.Indicator = ind
	}
}

// WithSleep replaces time.Sleep for all delays, mainly for tests.
//
// Example:
//
//	bb, err := bitbang.New(pins, pinMap, bitbang.WithSleep(func(time.Duration) {}))
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Config) {
		if sleep != nil {
			c.Sleep = sleep
		}
	}
}

// WithSettleDelay sets the wait between the reset steps of Initialize.
// Default is 20ms.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SettleDelay = d
		}
	}
}
