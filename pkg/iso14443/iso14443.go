// Package iso14443 describes what the RF layer reports about a card that was
// just activated. Anticollision and ISO-DEP framing live in the reader
// hardware or its driver; this package only carries the outcome.
package iso14443

import (
	"errors"
	"fmt"

	"github.com/gregLibert/nfc-type4/pkg/bits"
)

// sakISO14443_4 is the SAK bit (b6, 0x20) telling that the card speaks
// ISO/IEC 14443-4.
const sakISO14443_4 = 6

var (
	// ErrNoTarget means the field is empty.
	ErrNoTarget = errors.New("no target in field")

	// ErrMultipleCards means anticollision found more than one card.
	ErrMultipleCards = errors.New("more than one card in field")

	// ErrNotISO14443_4 means the card does not support ISO/IEC 14443-4
	// and therefore cannot carry APDUs.
	ErrNotISO14443_4 = errors.New("card is not ISO14443-4 compliant")
)

// Activation is the result of bringing a card to the active state.
type Activation struct {
	UID              []byte
	SAK              byte
	ATS              []byte
	MoreCardsPresent bool
}

// SupportsISO14443_4 reports whether the SAK advertises ISO/IEC 14443-4.
func (a Activation) SupportsISO14443_4() bool {
	return bits.IsSet(a.SAK, sakISO14443_4)
}

// Check returns nil when exactly one ISO/IEC 14443-4 card is active, and
// the reason to skip this activation otherwise.
func (a Activation) Check() error {
	if a.MoreCardsPresent {
		return ErrMultipleCards
	}
	if !a.SupportsISO14443_4() {
		return fmt.Errorf("%w: SAK %02X", ErrNotISO14443_4, a.SAK)
	}
	return nil
}

func (a Activation) String() string {
	return fmt.Sprintf("UID %X SAK %02X", a.UID, a.SAK)
}

// Activator brings the next card in the field to the active state. It
// returns an error wrapping ErrNoTarget when the field is empty.
type Activator interface {
	Activate() (Activation, error)
}

// Deselecter releases the active card (S(DESELECT) or the reader's
// equivalent) so that the next activation starts from scratch.
type Deselecter interface {
	Deselect() error
}
