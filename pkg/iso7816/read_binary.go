package iso7816

import "fmt"

// MaxReadBinaryLe is the largest Le the Type 4 read path asks for. Le 00
// (256) is legal in short framing but a tag announcing MLe below 256 would
// reject it, so READ BINARY stays within one byte of payload length.
const MaxReadBinaryLe = 255

// ReadBinary builds CLA B0 offHi offLo Le for the currently selected EF.
func ReadBinary(cla Class, offset uint16, length int) (*CommandAPDU, error) {
	if length < 1 || length > MaxReadBinaryLe {
		return nil, fmt.Errorf("%w: READ BINARY length %d outside 1..%d", ErrInvalidLength, length, MaxReadBinaryLe)
	}
	return NewCommandAPDU(cla, mustInstruction(INS_READ_BINARY), byte(offset>>8), byte(offset), nil, length), nil
}

// EncodeReadBinary is ReadBinary with CLA 00.
func EncodeReadBinary(offset uint16, length int) (*CommandAPDU, error) {
	return ReadBinary(InterindustryClass, offset, length)
}

// ReadBinaryOffset returns the offset carried by P1-P2 of a READ BINARY.
func ReadBinaryOffset(cmd *CommandAPDU) uint16 {
	return uint16(cmd.P1)<<8 | uint16(cmd.P2)
}
