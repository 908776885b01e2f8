package avr910

import (
	"time"

	"github.com/facchinm/avrdude/isp"
)

// Config holds the AVR910 programmer configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger isp.Logger

	// Sleep is used for the chip erase delay
	Sleep func(time.Duration)
}

func defaultConfig() Config {
	return Config{Sleep: time.Sleep}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithLogger sets a logger for AVR910 operations.
func WithLogger(logger isp.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
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
