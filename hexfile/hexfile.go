// Package hexfile moves memory images between files and the back-buffers
// of AVR memories.
//
// Intel HEX is read and written with github.com/marcinbor85/gohex; raw
// binary images are copied byte for byte.
//
// Example:
//
//	flash := part.Mem(avr.MemFlash)
//	n, err := hexfile.ReadFile("blink.hex", hexfile.FormatAuto, flash)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	written, err := prog.WriteMemory(ctx, avr.MemFlash, flash.Buf[:n])
package hexfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/marcinbor85/gohex"

	"github.com/facchinm/avrdude/avr"
)

// Format is an image file format.
type Format int

const (
	// FormatAuto detects Intel HEX by its leading ':' when reading and
	// writes Intel HEX
	FormatAuto Format = iota
	FormatIntelHex
	FormatRaw
)

func (f Format) String() string {
	switch f {
	case FormatIntelHex:
		return "ihex"
	case FormatRaw:
		return "raw"
	default:
		return "auto"
	}
}

// ParseFormat accepts the one-letter codes a, i and r as well as the
// names auto, ihex and raw.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "a", "auto":
		return FormatAuto, nil
	case "i", "ihex":
		return FormatIntelHex, nil
	case "r", "raw", "bin":
		return FormatRaw, nil
	}
	return FormatAuto, fmt.Errorf("unknown file format %q", s)
}

// hexLineLength is the number of data bytes per Intel HEX record.
const hexLineLength = 16

// RangeError indicates image data outside the memory.
type RangeError struct {
	Memory  string
	Size    int
	Address uint32
	Length  int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%d bytes at 0x%04X do not fit in %s (%d bytes)",
		e.Length, e.Address, e.Memory, e.Size)
}

// Read loads an image into m.Buf. Bytes the image does not cover are
// erased (0xFF). It returns the size of the image, one past its highest
// address. m.Buf is left untouched when the image cannot be loaded.
func Read(r io.Reader, f Format, m *avr.Memory) (int, error) {
	br := bufio.NewReader(r)
	if f == FormatAuto {
		f = detect(br)
	}

	if f == FormatRaw {
		data, err := io.ReadAll(br)
		if err != nil {
			return 0, fmt.Errorf("read raw image: %w", err)
		}
		if len(data) > len(m.Buf) {
			return 0, &RangeError{Memory: m.Desc, Size: len(m.Buf), Length: len(data)}
		}
		erase(m.Buf)
		copy(m.Buf, data)
		return len(data), nil
	}

	skipBlank(br)
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(br); err != nil {
		return 0, fmt.Errorf("parse intel hex: %w", err)
	}

	segs := mem.GetDataSegments()
	size := 0
	for _, seg := range segs {
		end := int(seg.Address) + len(seg.Data)
		if end > len(m.Buf) {
			return 0, &RangeError{Memory: m.Desc, Size: len(m.Buf), Address: seg.Address, Length: len(seg.Data)}
		}
		size = max(size, end)
	}

	erase(m.Buf)
	for _, seg := range segs {
		copy(m.Buf[seg.Address:], seg.Data)
	}
	return size, nil
}

func erase(buf []byte) {
	for i := range buf {
		buf[i] = 0xFF
	}
}

// detect peeks at the first non-blank byte.
func detect(br *bufio.Reader) Format {
	for i := 1; ; i++ {
		peek, _ := br.Peek(i)
		if len(peek) < i {
			return FormatRaw
		}
		switch peek[i-1] {
		case ' ', '\t', '\r', '\n':
			continue
		case ':':
			return FormatIntelHex
		default:
			return FormatRaw
		}
	}
}

func skipBlank(br *bufio.Reader) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return
		}
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			_ = br.UnreadByte()
			return
		}
	}
}

// Write stores the first n bytes of m.Buf.
func Write(w io.Writer, f Format, m *avr.Memory, n int) error {
	if n < 0 || n > len(m.Buf) {
		return &RangeError{Memory: m.Desc, Size: len(m.Buf), Length: n}
	}

	if f == FormatRaw {
		_, err := w.Write(m.Buf[:n])
		return err
	}

	mem := gohex.NewMemory()
	if n > 0 {
		if err := mem.AddBinary(0, m.Buf[:n]); err != nil {
			return fmt.Errorf("build intel hex: %w", err)
		}
	}
	return mem.DumpIntelHex(w, hexLineLength)
}

// ReadFile reads an image file into m.Buf.
func ReadFile(path string, f Format, m *avr.Memory) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	n, err := Read(file, f, m)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// WriteFile writes the first n bytes of m.Buf to an image file.
func WriteFile(path string, f Format, m *avr.Memory, n int) error {
	var buf bytes.Buffer
	if err := Write(&buf, f, m, n); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Used returns the length of data without its trailing erased bytes.
func Used(data []byte) int {
	n := len(data)
	for n > 0 && data[n-1] == 0xFF {
		n--
	}
	return n
}
