package protocol

import "fmt"

// CommandSize is the length of every serial programming instruction and of
// the device response to it.
const CommandSize = 4

// Instruction identifies one of the serial programming instructions a part
// or memory may define a template for.
type Instruction int

// Serial programming instructions.
const (
	// InstRead reads a byte
	InstRead Instruction = iota

	// InstWrite writes a byte
	InstWrite

	// InstReadLo reads the low byte of a program memory word
	InstReadLo

	// InstReadHi reads the high byte of a program memory word
	InstReadHi

	// InstWriteLo writes the low byte of a program memory word
	InstWriteLo

	// InstWriteHi writes the high byte of a program memory word
	InstWriteHi

	// InstLoadPageLo loads the low byte of a word into the page buffer
	InstLoadPageLo

	// InstLoadPageHi loads the high byte of a word into the page buffer
	InstLoadPageHi

	// InstWritePage commits the page buffer to memory
	InstWritePage

	// InstChipErase erases flash and eeprom
	InstChipErase

	// InstProgramEnable enters serial programming mode
	InstProgramEnable

	// NumInstructions is the number of defined instructions
	NumInstructions
)

var instructionNames = [NumInstructions]string{
	InstRead:          "read",
	InstWrite:         "write",
	InstReadLo:        "read_lo",
	InstReadHi:        "read_hi",
	InstWriteLo:       "write_lo",
	InstWriteHi:       "write_hi",
	InstLoadPageLo:    "loadpage_lo",
	InstLoadPageHi:    "loadpage_hi",
	InstWritePage:     "writepage",
	InstChipErase:     "chip_erase",
	InstProgramEnable: "pgm_enable",
}

func (i Instruction) String() string {
	if i >= 0 && i < NumInstructions {
		return instructionNames[i]
	}
	return fmt.Sprintf("Instruction(%d)", int(i))
}

// Program enable synchronisation.
const (
	// ProgramEnableEchoIndex is the response byte that echoes the
	// previous command byte when the device is in sync
	ProgramEnableEchoIndex = 2

	// SyncAttempts is the number of program enable attempts made before a
	// device is declared not responding
	SyncAttempts = 65
)
