package safemode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSuchFuse is returned when the part has no memory of the given name.
var ErrNoSuchFuse = errors.New("no such fuse memory")

// Distinct failure codes, one per fuse region.
const (
	CodeFuse  = 1
	CodeLFuse = 2
	CodeHFuse = 3
	CodeEFuse = 4
)

// ReadError indicates that three reads of a fuse did not agree.
type ReadError struct {
	Region string
	Code   int
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("safemode: unable to read %s properly, programmer may not be reliable", e.Region)
}

// WriteError indicates that a fuse never read back the written value.
type WriteError struct {
	Region string
	Value  byte
	Tries  int

	// Last is the last value read back, if any read succeeded
	Last byte

	// Err is the last I/O error, if the final attempt failed on I/O
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("safemode: %s not written as 0x%02X after %d attempts (last read 0x%02X)",
		e.Region, e.Value, e.Tries, e.Last)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Change records one fuse that differs from its saved value.
type Change struct {
	Region string
	Was    byte
	Now    byte
}

// ChangedError reports fuses that changed during the session. Restored is
// true when every change was written back successfully.
type ChangedError struct {
	Changes  []Change
	Restored bool
}

func (e *ChangedError) Error() string {
	parts := make([]string, len(e.Changes))
	for i, c := range e.Changes {
		parts[i] = fmt.Sprintf("%s changed 0x%02X -> 0x%02X", c.Region, c.Was, c.Now)
	}
	msg := "safemode: " + strings.Join(parts, ", ")
	if e.Restored {
		return msg + " (restored)"
	}
	return msg + " (not restored)"
}

// IsReadError returns true if the error is a ReadError.
func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
