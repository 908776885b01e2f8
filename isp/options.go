package isp

// Config holds the programmer configuration.
type Config struct {
	// ProgressCallback is called during transfers to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Indicator shows the session state (optional)
	Indicator Indicator

	// Verify enables reading back every memory after it is written
	Verify bool

	// Safemode enables saving the fuses at Start and checking them at Close
	Safemode bool

	// FuseRetries is the number of attempts for each fuse write
	FuseRetries int

	// ForceSignature continues when the device signature does not match
	ForceSignature bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Indicator:   NopIndicator{},
		Verify:      true,
		FuseRetries: 10,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithProgressCallback sets a callback function to track transfer progress.
//
// Example:
//
//	prog := isp.New(backend, part,
//	    isp.WithProgressCallback(func(p isp.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the programmer operations.
//
// Example:
//
//	prog := isp.New(backend, part, isp.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithIndicator sets the status indicator toggled during the session.
//
// Example:
//
//	prog := isp.New(backend, part, isp.WithIndicator(bb.LEDs()))
func WithIndicator(ind Indicator) Option {
	return func(c *Config) {
		if ind != nil {
			c.Indicator = ind
		}
	}
}

// WithVerify enables or disables read-back verification after writes.
// Default is true.
func WithVerify(verify bool) Option {
	return func(c *Config) {
		c.Verify = verify
	}
}

// WithSafemode enables fuse protection: fuses are read at Start and
// restored at Close if anything changed them.
//
// Example:
//
//	prog := isp.New(backend, part, isp.WithSafemode(true), isp.WithFuseRetries(5))
func WithSafemode(enabled bool) Option {
	return func(c *Config) {
		c.Safemode = enabled
	}
}

// WithFuseRetries sets the number of attempts for each fuse write.
func WithFuseRetries(tries int) Option {
	return func(c *Config) {
		if tries > 0 {
			c.FuseRetries = tries
		}
	}
}

// WithForceSignature makes a signature mismatch a warning instead of an error.
func WithForceSignature(force bool) Option {
	return func(c *Config) {
		c.ForceSignature = force
	}
}
