package protocol

// Encode renders op into a 4-byte command word for the given address.
// Templates that contain input bits must be encoded with EncodeInput.
//
// Example:
//
//	cmd, err := protocol.Encode(mem.Op(protocol.InstReadLo), addr/2)
func Encode(op *Opcode, addr uint32) ([4]byte, error) {
	var cmd [4]byte
	if op == nil {
		return cmd, ErrNoInstruction
	}
	if op.HasKind(BitInput) {
		return cmd, ErrMissingInput
	}

	SetBits(op, &cmd)
	SetAddr(op, &cmd, addr)
	return cmd, nil
}

// EncodeInput renders op into a 4-byte command word for the given address
// and data byte.
func EncodeInput(op *Opcode, addr uint32, in byte) ([4]byte, error) {
	var cmd [4]byte
	if op == nil {
		return cmd, ErrNoInstruction
	}

	SetBits(op, &cmd)
	SetAddr(op, &cmd, addr)
	SetInput(op, &cmd, in)
	return cmd, nil
}

// SetBits sets the fixed value bits of op in cmd.
func SetBits(op *Opcode, cmd *[4]byte) {
	for i, b := range op.Bits {
		if b.Kind == BitValue {
			putBit(cmd, i, b.Value&1 == 1)
		}
	}
}

// SetAddr sets the address bits of op in cmd from addr.
func SetAddr(op *Opcode, cmd *[4]byte, addr uint32) {
	for i, b := range op.Bits {
		if b.Kind == BitAddress {
			putBit(cmd, i, addr>>b.Index&1 == 1)
		}
	}
}

// SetInput sets the input bits of op in cmd from in.
func SetInput(op *Opcode, cmd *[4]byte, in byte) {
	for i, b := range op.Bits {
		if b.Kind == BitInput {
			putBit(cmd, i, in>>(b.Index&7)&1 == 1)
		}
	}
}

// putBit writes wire bit pos, counted from the most significant bit of
// cmd[0].
func putBit(cmd *[4]byte, pos int, set bool) {
	mask := byte(0x80) >> (pos % 8)
	if set {
		cmd[pos/8] |= mask
	} else {
		cmd[pos/8] &^= mask
	}
}

func getBit(res [4]byte, pos int) bool {
	return res[pos/8]&(byte(0x80)>>(pos%8)) != 0
}
