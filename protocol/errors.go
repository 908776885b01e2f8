package protocol

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoInstruction is returned when encoding a template that is not defined.
	ErrNoInstruction = errors.New("instruction not defined")

	// ErrMissingInput is returned when a template with input bits is encoded
	// without a data byte.
	ErrMissingInput = errors.New("instruction needs an input byte")

	// ErrUnsupported matches every UnsupportedError via errors.Is.
	ErrUnsupported = errors.New("operation not supported")
)

// ProtocolError represents a non-success status byte returned by a programmer.
type ProtocolError struct {
	// Operation is the command that failed
	Operation string

	// StatusCode is the byte the programmer answered with
	StatusCode byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed: unexpected status 0x%02X", e.Operation, e.StatusCode)
}

// IsProtocolError returns true if the error is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// InstructionError indicates that a part or memory lacks the template an
// operation needs.
type InstructionError struct {
	Instruction Instruction
	Part        string
	Memory      string
}

func (e *InstructionError) Error() string {
	if e.Memory != "" {
		return fmt.Sprintf("%s instruction not defined for memory %q of part %q",
			e.Instruction, e.Memory, e.Part)
	}
	return fmt.Sprintf("%s instruction not defined for part %q", e.Instruction, e.Part)
}

func (e *InstructionError) Unwrap() error { return ErrNoInstruction }

// EchoMismatchError indicates that the device answered program enable but
// did not echo the expected byte, i.e. it is out of sync.
type EchoMismatchError struct {
	Expected byte
	Actual   byte
}

func (e *EchoMismatchError) Error() string {
	return fmt.Sprintf("program enable echo mismatch: expected 0x%02X, got 0x%02X",
		e.Expected, e.Actual)
}

// IsEchoMismatch returns true if the error is an EchoMismatchError.
func IsEchoMismatch(err error) bool {
	var em *EchoMismatchError
	return errors.As(err, &em)
}

// NotRespondingError indicates that the device or programmer stopped
// answering: a synchronisation loop ran out of attempts or a read timed out.
type NotRespondingError struct {
	Operation string

	// Attempts is the number of tries made, 0 for a single timed out read
	Attempts int

	// Timeout is the read timeout that expired, if any
	Timeout time.Duration
}

func (e *NotRespondingError) Error() string {
	switch {
	case e.Attempts > 0:
		return fmt.Sprintf("%s: device not responding after %d attempts", e.Operation, e.Attempts)
	case e.Timeout > 0:
		return fmt.Sprintf("%s: programmer not responding (no data within %s)", e.Operation, e.Timeout)
	default:
		return fmt.Sprintf("%s: programmer not responding", e.Operation)
	}
}

// IsNotResponding returns true if the error is a NotRespondingError.
func IsNotResponding(err error) bool {
	var nr *NotRespondingError
	return errors.As(err, &nr)
}

// NegotiationError indicates that a programmer did not confirm a mode switch.
type NegotiationError struct {
	// Stage is the mode being entered, e.g. "binary mode" or "SPI submode"
	Stage string

	// Response is what the programmer sent instead of the confirmation
	Response []byte
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s not confirmed: %q", e.Stage, e.Response)
}

// PartialTransferError indicates a bulk transfer that did not complete.
// The data written so far must not be trusted.
type PartialTransferError struct {
	Operation string

	// Offset is the byte offset of the chunk that failed
	Offset int

	Err error
}

func (e *PartialTransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed at offset %d: %v", e.Operation, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s failed at offset %d", e.Operation, e.Offset)
}

func (e *PartialTransferError) Unwrap() error { return e.Err }

// ShortResponseError indicates that fewer response bytes arrived than the
// command produces.
type ShortResponseError struct {
	Operation string
	Got       int
	Want      int
}

func (e *ShortResponseError) Error() string {
	return fmt.Sprintf("%s did not return %d bytes (got %d)", e.Operation, e.Want, e.Got)
}

// UnsupportedError indicates an operation the backend, memory or current
// mode cannot perform. It is returned before any I/O takes place.
type UnsupportedError struct {
	Operation string
	Reason    string
}

func (e *UnsupportedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: not supported", e.Operation)
	}
	return fmt.Sprintf("%s: not supported: %s", e.Operation, e.Reason)
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// IsUnsupported returns true if the error is an UnsupportedError.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
