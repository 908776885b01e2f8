package avr

import (
	"strings"
	"time"

	"github.com/facchinm/avrdude/protocol"
)

// Common templates shared by the classic ATmega/ATtiny parts.
const (
	pgmEnable = "1 0 1 0 1 1 0 0  0 1 0 1 0 0 1 1  x x x x x x x x  x x x x x x x x"
	chipErase = "1 0 1 0 1 1 0 0  1 0 0 x x x x x  x x x x x x x x  x x x x x x x x"

	sigRead = "0 0 1 1 0 0 0 0  0 0 0 x x x x x  x x x x x x a1 a0  o o o o o o o o"

	lfuseRead  = "0 1 0 1 0 0 0 0  0 0 0 0 0 0 0 0  x x x x x x x x  o o o o o o o o"
	lfuseWrite = "1 0 1 0 1 1 0 0  1 0 1 0 0 0 0 0  x x x x x x x x  i i i i i i i i"
	hfuseRead  = "0 1 0 1 1 0 0 0  0 0 0 0 1 0 0 0  x x x x x x x x  o o o o o o o o"
	hfuseWrite = "1 0 1 0 1 1 0 0  1 0 1 0 1 0 0 0  x x x x x x x x  i i i i i i i i"
	efuseRead  = "0 1 0 1 0 0 0 0  0 0 0 0 1 0 0 0  x x x x x x x x  o o o o o o o o"
	efuseWrite = "1 0 1 0 1 1 0 0  1 0 1 0 0 1 0 0  x x x x x x x x  x x x x x i i i"
	lockRead   = "0 1 0 1 1 0 0 0  0 0 0 0 0 0 0 0  x x x x x x x x  x x o o o o o o"
	lockWrite  = "1 0 1 0 1 1 0 0  1 1 1 x x x x x  x x x x x x x x  1 1 i i i i i i"
)

type opText map[protocol.Instruction]string

func compile(t opText) [protocol.NumInstructions]*protocol.Opcode {
	var ops [protocol.NumInstructions]*protocol.Opcode
	for inst, text := range t {
		ops[inst] = protocol.MustParseOpcode(text)
	}
	return ops
}

func fuseMem(name, read, write string) *Memory {
	return &Memory{
		Desc:          name,
		Size:          1,
		MinWriteDelay: 4500 * time.Microsecond,
		MaxWriteDelay: 4500 * time.Microsecond,
		Ops: compile(opText{
			protocol.InstRead:  read,
			protocol.InstWrite: write,
		}),
	}
}

func sigMem() *Memory {
	return &Memory{
		Desc: MemSignature,
		Size: 3,
		Ops:  compile(opText{protocol.InstRead: sigRead}),
	}
}

func atmega328p() *Part {
	return &Part{
		Desc:           "ATmega328P",
		ID:             "m328p",
		Signature:      [3]byte{0x1E, 0x95, 0x0F},
		STK500DevCode:  0x86,
		ChipEraseDelay: 9 * time.Millisecond,
		Ops: compile(opText{
			protocol.InstProgramEnable: pgmEnable,
			protocol.InstChipErase:     chipErase,
		}),
		Mems: []*Memory{
			{
				Desc:          MemEEPROM,
				Size:          1024,
				PageSize:      4,
				NumPages:      256,
				MinWriteDelay: 3600 * time.Microsecond,
				MaxWriteDelay: 3600 * time.Microsecond,
				Readback:      [2]byte{0xFF, 0xFF},
				Ops: compile(opText{
					protocol.InstRead:       "1 0 1 0 0 0 0 0  0 0 0 x x x a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstWrite:      "1 1 0 0 0 0 0 0  0 0 0 x x x a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  i i i i i i i i",
					protocol.InstLoadPageLo: "1 1 0 0 0 0 0 1  0 0 0 0 0 0 0 0  0 0 0 0 0 0 a1 a0  i i i i i i i i",
					protocol.InstWritePage:  "1 1 0 0 0 0 1 0  0 0 x x x x a9 a8  a7 a6 a5 a4 a3 a2 0 0  x x x x x x x x",
				}),
			},
			{
				Desc:          MemFlash,
				Paged:         true,
				Size:          32768,
				PageSize:      128,
				NumPages:      256,
				MinWriteDelay: 4500 * time.Microsecond,
				MaxWriteDelay: 4500 * time.Microsecond,
				Readback:      [2]byte{0xFF, 0xFF},
				Ops: compile(opText{
					protocol.InstReadLo:     "0 0 1 0 0 0 0 0  0 0 a13 a12 a11 a10 a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstReadHi:     "0 0 1 0 1 0 0 0  0 0 a13 a12 a11 a10 a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstLoadPageLo: "0 1 0 0 0 0 0 0  0 0 0 x x x x x  x x a5 a4 a3 a2 a1 a0  i i i i i i i i",
					protocol.InstLoadPageHi: "0 1 0 0 1 0 0 0  0 0 0 x x x x x  x x a5 a4 a3 a2 a1 a0  i i i i i i i i",
					protocol.InstWritePage:  "0 1 0 0 1 1 0 0  0 0 a13 a12 a11 a10 a9 a8  a7 a6 x x x x x x  x x x x x x x x",
				}),
			},
			fuseMem(MemLFuse, lfuseRead, lfuseWrite),
			fuseMem(MemHFuse, hfuseRead, hfuseWrite),
			fuseMem(MemEFuse, efuseRead, efuseWrite),
			fuseMem(MemLock, lockRead, lockWrite),
			sigMem(),
		},
	}
}

func atmega8() *Part {
	return &Part{
		Desc:           "ATmega8",
		ID:             "m8",
		Signature:      [3]byte{0x1E, 0x93, 0x07},
		STK500DevCode:  0x70,
		AVR910DevCode:  0x76,
		ChipEraseDelay: 10 * time.Millisecond,
		Ops: compile(opText{
			protocol.InstProgramEnable: pgmEnable,
			protocol.InstChipErase:     chipErase,
		}),
		Mems: []*Memory{
			{
				Desc:          MemEEPROM,
				Size:          512,
				PageSize:      4,
				NumPages:      128,
				MinWriteDelay: 9000 * time.Microsecond,
				MaxWriteDelay: 9000 * time.Microsecond,
				Readback:      [2]byte{0xFF, 0xFF},
				Ops: compile(opText{
					protocol.InstRead:  "1 0 1 0 0 0 0 0  0 0 0 x x x x a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstWrite: "1 1 0 0 0 0 0 0  0 0 0 x x x x a8  a7 a6 a5 a4 a3 a2 a1 a0  i i i i i i i i",
				}),
			},
			{
				Desc:          MemFlash,
				Paged:         true,
				Size:          8192,
				PageSize:      64,
				NumPages:      128,
				MinWriteDelay: 4500 * time.Microsecond,
				MaxWriteDelay: 4500 * time.Microsecond,
				Readback:      [2]byte{0xFF, 0x00},
				Ops: compile(opText{
					protocol.InstReadLo:     "0 0 1 0 0 0 0 0  0 0 0 0 a11 a10 a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstReadHi:     "0 0 1 0 1 0 0 0  0 0 0 0 a11 a10 a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstLoadPageLo: "0 1 0 0 0 0 0 0  0 0 0 x x x x x  x x x a4 a3 a2 a1 a0  i i i i i i i i",
					protocol.InstLoadPageHi: "0 1 0 0 1 0 0 0  0 0 0 x x x x x  x x x a4 a3 a2 a1 a0  i i i i i i i i",
					protocol.InstWritePage:  "0 1 0 0 1 1 0 0  0 0 0 0 a11 a10 a9 a8  a7 a6 a5 x x x x x  x x x x x x x x",
				}),
			},
			fuseMem(MemLFuse, lfuseRead, lfuseWrite),
			fuseMem(MemHFuse, hfuseRead, hfuseWrite),
			fuseMem(MemLock, lockRead, lockWrite),
			sigMem(),
		},
	}
}

func attiny13() *Part {
	return &Part{
		Desc:           "ATtiny13",
		ID:             "t13",
		Signature:      [3]byte{0x1E, 0x90, 0x07},
		ChipEraseDelay: 4 * time.Millisecond,
		Ops: compile(opText{
			protocol.InstProgramEnable: pgmEnable,
			protocol.InstChipErase:     chipErase,
		}),
		Mems: []*Memory{
			{
				Desc:          MemEEPROM,
				Size:          64,
				MinWriteDelay: 4 * time.Millisecond,
				MaxWriteDelay: 4 * time.Millisecond,
				Readback:      [2]byte{0xFF, 0xFF},
				Ops: compile(opText{
					protocol.InstRead:  "1 0 1 0 0 0 0 0  0 0 0 x x x x x  x x a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstWrite: "1 1 0 0 0 0 0 0  0 0 0 x x x x x  x x a5 a4 a3 a2 a1 a0  i i i i i i i i",
				}),
			},
			{
				Desc:          MemFlash,
				Paged:         true,
				Size:          1024,
				PageSize:      32,
				NumPages:      32,
				MinWriteDelay: 4500 * time.Microsecond,
				MaxWriteDelay: 4500 * time.Microsecond,
				Readback:      [2]byte{0xFF, 0xFF},
				Ops: compile(opText{
					protocol.InstReadLo:     "0 0 1 0 0 0 0 0  0 0 0 0 0 0 0 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstReadHi:     "0 0 1 0 1 0 0 0  0 0 0 0 0 0 0 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstLoadPageLo: "0 1 0 0 0 0 0 0  0 0 0 x x x x x  x x x x a3 a2 a1 a0  i i i i i i i i",
					protocol.InstLoadPageHi: "0 1 0 0 1 0 0 0  0 0 0 x x x x x  x x x x a3 a2 a1 a0  i i i i i i i i",
					protocol.InstWritePage:  "0 1 0 0 1 1 0 0  0 0 0 0 0 0 0 a8  a7 a6 a5 a4 x x x x  x x x x x x x x",
				}),
			},
			fuseMem(MemLFuse, lfuseRead, lfuseWrite),
			fuseMem(MemHFuse, hfuseRead, hfuseWrite),
			fuseMem(MemLock, lockRead, lockWrite),
			sigMem(),
		},
	}
}

// at90s1200 does not echo program enable and has no fuses.
func at90s1200() *Part {
	return &Part{
		Desc:           LegacyNoEchoPart,
		ID:             "1200",
		Signature:      [3]byte{0x1E, 0x90, 0x01},
		STK500DevCode:  0x33,
		AVR910DevCode:  0x13,
		ChipEraseDelay: 20 * time.Millisecond,
		Ops: compile(opText{
			protocol.InstProgramEnable: pgmEnable,
			protocol.InstChipErase:     chipErase,
		}),
		Mems: []*Memory{
			{
				Desc:          MemEEPROM,
				Size:          64,
				MinWriteDelay: 4 * time.Millisecond,
				MaxWriteDelay: 9 * time.Millisecond,
				Readback:      [2]byte{0x00, 0xFF},
				Ops: compile(opText{
					protocol.InstRead:  "1 0 1 0 0 0 0 0  x x x x x x x x  x x a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstWrite: "1 1 0 0 0 0 0 0  x x x x x x x x  x x a5 a4 a3 a2 a1 a0  i i i i i i i i",
				}),
			},
			{
				Desc:          MemFlash,
				Size:          1024,
				MinWriteDelay: 4 * time.Millisecond,
				MaxWriteDelay: 9 * time.Millisecond,
				Readback:      [2]byte{0xFF, 0x00},
				Ops: compile(opText{
					protocol.InstReadLo:  "0 0 1 0 0 0 0 0  x x x x x x x a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstReadHi:  "0 0 1 0 1 0 0 0  x x x x x x x a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o",
					protocol.InstWriteLo: "0 1 0 0 0 0 0 0  x x x x x x x a8  a7 a6 a5 a4 a3 a2 a1 a0  i i i i i i i i",
					protocol.InstWriteHi: "0 1 0 0 1 0 0 0  x x x x x x x a8  a7 a6 a5 a4 a3 a2 a1 a0  i i i i i i i i",
				}),
			},
			{
				Desc: MemLock,
				Size: 1,
				Ops: compile(opText{
					protocol.InstWrite: "1 0 1 0 1 1 0 0  1 1 1 x x i i x  x x x x x x x x  x x x x x x x x",
				}),
			},
			{
				Desc: MemSignature,
				Size: 3,
				Ops: compile(opText{
					protocol.InstRead: "0 0 1 1 0 0 0 0  x x x x x x x x  x x x x x x a1 a0  o o o o o o o o",
				}),
			},
		},
	}
}

var builtin = []*Part{atmega328p(), atmega8(), attiny13(), at90s1200()}

// Parts returns the built-in part descriptors. The returned parts are
// shared and must not be modified; use LookupPart to get a session copy.
func Parts() []*Part {
	out := make([]*Part, len(builtin))
	copy(out, builtin)
	return out
}

// LookupPart finds a built-in part by ID or name, case-insensitively, and
// returns a copy with fresh back-buffers.
func LookupPart(name string) (*Part, bool) {
	for _, p := range builtin {
		if strings.EqualFold(p.ID, name) || strings.EqualFold(p.Desc, name) {
			return p.Clone(), true
		}
	}
	return nil, false
}
