// Package isp runs in-system programming sessions for AVR parts.
//
// # Overview
//
// A session pairs one Backend (the programmer hardware driver) with one
// part descriptor and orchestrates the usual sequence:
//   - Enabling the programmer and entering programming mode
//   - Checking the device signature
//   - Erasing, writing, reading and verifying memories
//   - Guarding the fuses (safemode)
//   - Powering down and releasing the programmer
//
// # Basic Usage
//
//	part, _ := avr.LookupPart("m328p")
//	prog := isp.New(backend, part)
//	if err := prog.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer prog.Close()
//
//	if _, err := prog.CheckSignature(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := prog.ChipErase(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := prog.WriteMemory(ctx, avr.MemFlash, image); err != nil {
//	    log.Fatal(err)
//	}
//
// # Backends
//
// Backends report what bulk operations they support through
// Capabilities. Paged memories are written page by page with PagedWrite
// when available and byte by byte with explicit page commits otherwise.
// Operations a backend cannot perform return an error matching
// protocol.ErrUnsupported before any I/O takes place.
//
// # Indicators
//
// The Indicator interface receives the ready, error, programming and
// verify states. Bitbang programmers drive LEDs; LogIndicator writes them
// to a Logger; NopIndicator is the default.
//
// # Thread Safety
//
// A Programmer and its Backend belong to one goroutine. Programming several
// devices at once needs one Backend and one Programmer per device.
package isp
