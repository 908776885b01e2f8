package protocol

// DecodeOutput extracts the result byte from a 4-byte device response using
// the output bits of op. A nil template decodes to 0.
//
// Example:
//
//	res, err := backend.Cmd(cmd)
//	value := protocol.DecodeOutput(mem.Op(protocol.InstRead), res)
func DecodeOutput(op *Opcode, res [4]byte) byte {
	if op == nil {
		return 0
	}

	var v byte
	for i, b := range op.Bits {
		if b.Kind == BitOutput && getBit(res, i) {
			v |= 1 << (b.Index & 7)
		}
	}
	return v
}

// EchoMatches reports whether a program enable response shows the device in
// sync: the third response byte must echo the second command byte.
func EchoMatches(cmd, res [4]byte) bool {
	return res[ProgramEnableEchoIndex] == cmd[ProgramEnableEchoIndex-1]
}
