package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/nfc-type4/pkg/bits"
)

// Class byte (CLA) layout, ISO/IEC 7816-4 section 5.4.1.
//
//	b8      1 = proprietary class, the rest of the byte is opaque.
//	b7      0 = first interindustry range (channels 0-3),
//	        1 = further interindustry range (channels 4-19).
//	b5      command chaining.
//	first:   b4-b3 secure messaging, b2-b1 channel.
//	further: b6 secure messaging, b4-b1 channel minus 4.
//
// Type 4 tags only ever see CLA 00, but the reader keeps the full decoding so
// that traces taken on multi-application cards stay readable.

// SecureMessaging is the SM indication carried by the class byte.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1
	SMHeaderNoProc SecureMessaging = 2
	SMHeaderAuth   SecureMessaging = 3
)

func (s SecureMessaging) String() string {
	switch s {
	case SMNone:
		return "None"
	case SMProprietary:
		return "Proprietary"
	case SMHeaderNoProc:
		return "ISO (Header not processed)"
	case SMHeaderAuth:
		return "ISO (Header authenticated)"
	default:
		return fmt.Sprintf("SecureMessaging(%d)", int(s))
	}
}

// ErrInvalidClass is returned for the reserved CLA value FF and for class
// parameters that have no encoding.
var ErrInvalidClass = errors.New("invalid class byte")

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// InterindustryClass is CLA 00: basic channel, no chaining, no SM.
var InterindustryClass = Class{}

// NewClass decodes a raw CLA byte.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("%w: 0xFF is reserved for PPS", ErrInvalidClass)
	}

	c := Class{Raw: cla}
	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)
	if bits.IsSet(cla, 7) {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
		return c, nil
	}

	c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
	c.Channel = bits.GetRange(cla, 2, 1)
	return c, nil
}

// Encode rebuilds the CLA byte from the decoded fields.
func (c Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > 19 {
		return 0, fmt.Errorf("%w: channel %d out of range", ErrInvalidClass, c.Channel)
	}

	var res byte
	if c.IsChained {
		res = bits.Set(res, 5)
	}

	if c.Channel <= 3 {
		res = bits.SetRange(res, 4, 3, byte(c.SecureMessaging))
		return bits.SetRange(res, 2, 1, c.Channel), nil
	}

	if c.SecureMessaging == SMProprietary || c.SecureMessaging == SMHeaderAuth {
		return 0, fmt.Errorf("%w: SM %s unavailable on channel %d", ErrInvalidClass, c.SecureMessaging, c.Channel)
	}
	res = bits.Set(res, 7)
	if c.SecureMessaging != SMNone {
		res = bits.Set(res, 6)
	}
	return bits.SetRange(res, 4, 1, c.Channel-4), nil
}

// Verbose describes the class byte on a single line.
func (c Class) Verbose() string {
	if c.IsProprietary {
		return fmt.Sprintf("Proprietary (0x%02X)", c.Raw)
	}
	chaining := "last"
	if c.IsChained {
		chaining = "more follow"
	}
	return fmt.Sprintf("Interindustry | Channel: %d | SM: %s | Chaining: %s", c.Channel, c.SecureMessaging, chaining)
}
