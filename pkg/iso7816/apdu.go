package iso7816

import (
	"bytes"
	"errors"
	"fmt"
)

// APDU framing, ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU:
//
//	CLA INS P1 P2 [Lc Data] [Le]
//
//	Case 1: header only.
//	Case 2: header + Le.
//	Case 3: header + Lc + Data.
//	Case 4: header + Lc + Data + Le.
//
// Only short length fields are produced: Lc is one byte (1..255) and Le is
// one byte (1..256, where 00 stands for 256). NFC Forum Type 4 tags are not
// required to support extended lengths, so a command that would need them is
// rejected instead of being silently re-framed.
//
// RESPONSE APDU:
//
//	[Data] SW1 SW2

const (
	// MaxShortLc is the largest data field in short framing.
	MaxShortLc = 255

	// MaxShortLe is the largest Ne in short framing, encoded as 00.
	MaxShortLe = 256

	// MaxShortAPDUSize is the size of the longest short command APDU.
	MaxShortAPDUSize = 4 + 1 + MaxShortLc + 1
)

var (
	// ErrInvalidLength is returned when Lc or Le does not fit short framing.
	ErrInvalidLength = errors.New("invalid length")

	// ErrMalformedResponse is returned when a response cannot carry a
	// status word or its data is inconsistent with the command.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMalformedCommand is returned when raw bytes are not a valid short
	// command APDU.
	ErrMalformedCommand = errors.New("malformed command")
)

// CommandAPDU is a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length, 0 means no Le field.
}

// NewCommandAPDU creates a command. Nothing is validated until Bytes.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// Bytes encodes the command. The returned slice is freshly allocated.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc := len(c.Data)
	if nc > MaxShortLc {
		return nil, fmt.Errorf("%w: Lc %d exceeds %d", ErrInvalidLength, nc, MaxShortLc)
	}
	if c.Ne < 0 || c.Ne > MaxShortLe {
		return nil, fmt.Errorf("%w: Le %d outside 0..%d", ErrInvalidLength, c.Ne, MaxShortLe)
	}

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+1+nc+1))
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	if nc > 0 {
		buf.WriteByte(byte(nc))
		buf.Write(c.Data)
	}

	if c.Ne > 0 {
		// 256 wraps to 00.
		buf.WriteByte(byte(c.Ne))
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ParseCommandAPDU decodes a short command APDU. It is the card-side mirror
// of Bytes and is what an emulated tag uses to read incoming commands.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, header needs 4", ErrMalformedCommand, len(raw))
	}

	cla, err := NewClass(raw[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}

	cmd := &CommandAPDU{Class: cla, Instruction: ins, P1: raw[2], P2: raw[3]}
	body := raw[4:]

	switch {
	case len(body) == 0:
		// Case 1.
	case len(body) == 1:
		// Case 2.
		cmd.Ne = decodeShortLe(body[0])
	default:
		lc := int(body[0])
		if lc == 0 {
			return nil, fmt.Errorf("%w: Lc 00 announces extended framing", ErrMalformedCommand)
		}
		switch len(body) {
		case 1 + lc:
			// Case 3.
		case 1 + lc + 1:
			// Case 4.
			cmd.Ne = decodeShortLe(body[1+lc])
		default:
			return nil, fmt.Errorf("%w: Lc %d does not match body of %d bytes", ErrMalformedCommand, lc, len(body))
		}
		cmd.Data = append([]byte(nil), body[1:1+lc]...)
	}

	return cmd, nil
}

func decodeShortLe(b byte) int {
	if b == 0 {
		return MaxShortLe
	}
	return int(b)
}

// ResponseAPDU is the reply from the card.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// DecodeResponse splits a raw response into data and trailer. Data is copied
// so the result never aliases the transport's receive buffer.
func DecodeResponse(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: %d bytes, trailer needs 2", ErrMalformedResponse, len(raw))
	}

	n := len(raw) - 2
	data := make([]byte, n)
	copy(data, raw[:n])

	return &ResponseAPDU{
		Data:   data,
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

// Bytes encodes the response, data first then the trailer.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
