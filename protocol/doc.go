// Package protocol implements the AVR serial programming instruction set.
//
// Every in-system programming operation (read a byte, load a page, erase
// the chip, enter programming mode) is a 4-byte instruction whose bits
// come from a per-part template. This package renders templates into
// command words and extracts result bytes from device responses. It does
// no I/O.
//
// # Templates
//
// An Opcode holds 32 bit specifications, most significant bit first. Each
// bit is fixed (0 or 1), ignored, or taken from the address, the input
// byte, or the output byte:
//
//	op := protocol.MustParseOpcode(
//	    "0 0 1 0 0 0 0 0  0 0 a13 a12 a11 a10 a9 a8  a7 a6 a5 a4 a3 a2 a1 a0  o o o o o o o o")
//
// # Encoding
//
//	cmd, err := protocol.Encode(op, wordAddr)
//	cmd, err := protocol.EncodeInput(op, wordAddr, value)
//	value := protocol.DecodeOutput(op, res)
//
// A nil template is an instruction the part does not define; encoding it
// returns ErrNoInstruction rather than a garbage command word.
//
// # Errors
//
// The error types shared by all programmer backends live here:
//
//	InstructionError      template missing for the requested operation
//	EchoMismatchError     program enable answered but out of sync
//	NotRespondingError    retries exhausted or read timed out
//	NegotiationError      programmer did not confirm a mode switch
//	PartialTransferError  bulk transfer aborted midway
//	ShortResponseError    fewer response bytes than expected
//	UnsupportedError      rejected before any I/O (errors.Is ErrUnsupported)
//	ProtocolError         non-success status byte from a programmer
package protocol
