// Package avr describes AVR parts and their memories and implements the
// default byte access every SPI-class programmer shares.
//
// A Part carries its instruction templates and a list of Memory regions.
// Each Memory owns a back-buffer holding the in-tool copy of its contents;
// the protocol engine only ever mutates those buffers.
//
//	part, ok := avr.LookupPart("m328p")
//	flash := part.Mem(avr.MemFlash)
//	v, err := avr.ReadByte(prog, part, flash, 0x100)
//
// Flash is word addressed on the wire: byte address n is word n/2, using
// the low or high byte instruction depending on n&1.
package avr
