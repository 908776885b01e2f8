package parport

import (
	"time"

	"github.com/facchinm/avrdude/isp"
)

// Config holds the parallel port configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger isp.Logger

	// ISPDelay is waited after every pin change when longer than 1µs
	ISPDelay time.Duration

	// Exit is the pin state left behind by Close
	Exit ExitSpec

	// Sleep is used for all delays
	Sleep func(time.Duration)
}

func defaultConfig() Config {
	return Config{Sleep: time.Sleep}
}

// Option is a functional option for configuring the Port.
type Option func(*Config)

// WithLogger sets a logger for port operations.
func WithLogger(logger isp.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithISPDelay slows down every pin change, for long cables or slow
// targets.
//
// Example:
//
//	port, err := parport.OpenDevice("/dev/parport0", pm, parport.WithISPDelay(10*time.Microsecond))
func WithISPDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ISPDelay = d
	}
}

// WithExitSpec sets the pin state left behind by Close.
func WithExitSpec(e ExitSpec) Option {
	return func(c *Config) {
		c.Exit = e
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
