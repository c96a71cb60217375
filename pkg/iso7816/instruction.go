package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/nfc-type4/pkg/bits"
)

// Instruction byte (INS), ISO/IEC 7816-4 section 5.4.2.
//
// An odd INS asks for BER-TLV encoded data (READ BINARY B0 vs B1).
// Values 6X and 9X collide with SW1 procedure bytes under T=0 and are
// therefore invalid.

// InsCode is the raw instruction byte.
type InsCode byte

// Instructions used by the NFC Forum Type 4 Tag operation set and by the
// PC/SC pseudo-APDUs.
const (
	INS_SELECT          InsCode = 0xA4
	INS_READ_BINARY     InsCode = 0xB0
	INS_READ_BINARY_BER InsCode = 0xB1
	INS_GET_RESPONSE    InsCode = 0xC0
	INS_GET_DATA        InsCode = 0xCA
	INS_UPDATE_BINARY   InsCode = 0xD6
)

var insNames = map[InsCode]string{
	INS_SELECT:          "SELECT",
	INS_READ_BINARY:     "READ BINARY",
	INS_READ_BINARY_BER: "READ BINARY (BER-TLV)",
	INS_GET_RESPONSE:    "GET RESPONSE",
	INS_GET_DATA:        "GET DATA",
	INS_UPDATE_BINARY:   "UPDATE BINARY",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// ErrInvalidInstruction is returned for INS values in the 6X and 9X ranges.
var ErrInvalidInstruction = errors.New("invalid instruction byte")

// Instruction is a validated INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction validates ins and decodes its data-format bit.
func NewInstruction(ins InsCode) (Instruction, error) {
	switch byte(ins) & 0xF0 {
	case 0x60, 0x90:
		return Instruction{}, fmt.Errorf("%w: 0x%02X, 6X and 9X are reserved", ErrInvalidInstruction, byte(ins))
	}
	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// mustInstruction is for the package's own constant instructions.
func mustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw, format)
}
