package isp

import "time"

// Progress phases.
const (
	PhaseErasing   = "erasing"
	PhaseWriting   = "writing"
	PhaseReading   = "reading"
	PhaseVerifying = "verifying"
	PhaseComplete  = "complete"
)

// Progress contains information about a memory transfer in progress.
// Passed to ProgressCallback during reads, writes and verification.
type Progress struct {
	// Phase is one of the Phase constants
	Phase string

	// Memory is the memory being transferred, e.g. "flash"
	Memory string

	// Done is the number of bytes transferred so far
	Done int

	// Total is the number of bytes to transfer
	Total int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the transfer started
	ElapsedTime time.Duration
}

// ProgressCallback is called periodically during transfers to report progress.
// Implementations should return quickly to avoid slowing the transfer down.
//
// Example:
//
//	prog := isp.New(backend, part,
//	    isp.WithProgressCallback(func(p isp.Progress) {
//	        fmt.Printf("[%s %s] %.1f%%\n", p.Phase, p.Memory, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the programmer.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	prog := isp.New(backend, part, isp.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
