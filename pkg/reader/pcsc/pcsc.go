// Package pcsc drives contactless PC/SC readers (ACR122U, OMNIKEY 5x22
// and the like) through github.com/ebfe/scard.
//
// PC/SC hides anticollision and ISO-DEP: a card is "activated" by
// connecting to it, and the reader answers with an ATR synthesized from the
// ATS or, for memory cards, from the PC/SC Part 3 storage-card template. The
// UID comes from the pseudo-APDU GET DATA (FF CA 00 00 00).
package pcsc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ebfe/scard"
	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/gregLibert/nfc-type4/pkg/iso7816"
	"github.com/rs/zerolog"
)

// storageCardRID is the registered application provider of PC/SC Part 3.
// Readers put it in the historical bytes of ATRs built for memory cards,
// which cannot carry APDUs.
var storageCardRID = []byte{0xA0, 0x00, 0x00, 0x03, 0x06}

// getUID is the PC/SC Part 3 pseudo-APDU returning the card UID.
var getUID = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}

const (
	sakISODEP  = 0x20
	sakStorage = 0x08
)

// ErrNoReader means no PC/SC reader matched.
var ErrNoReader = errors.New("no PC/SC reader found")

// Card is the part of *scard.Card the reader uses.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Status() (*scard.CardStatus, error)
	Disconnect(d scard.Disposition) error
}

// Reader is one PC/SC reader slot. It implements iso7816.Transmitter,
// iso14443.Activator and iso14443.Deselecter.
type Reader struct {
	name    string
	connect func() (Card, error)
	release func() error

	mu   sync.Mutex
	card Card
	atr  []byte
	log  zerolog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger. Logging is disabled by default.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) {
		r.log = l
	}
}

// Open establishes a PC/SC context and picks the first reader whose name
// contains match. An empty match selects the first reader.
func Open(match string, opts ...Option) (*Reader, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establishing PC/SC context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("listing readers: %w", err)
	}

	name, ok := pickReader(readers, match)
	if !ok {
		_ = ctx.Release()
		return nil, fmt.Errorf("%w matching %q (%d available)", ErrNoReader, match, len(readers))
	}

	connect := func() (Card, error) {
		// Force T=0 or T=1 to avoid "Parameter Incorrect" errors.
		card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
		if err != nil {
			return nil, err
		}
		return card, nil
	}

	r := newReader(name, connect, opts...)
	r.release = ctx.Release
	return r, nil
}

func newReader(name string, connect func() (Card, error), opts ...Option) *Reader {
	r := &Reader{name: name, connect: connect, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func pickReader(readers []string, match string) (string, bool) {
	for _, name := range readers {
		if strings.Contains(name, match) {
			return name, true
		}
	}
	return "", false
}

// Name returns the PC/SC reader name.
func (r *Reader) Name() string {
	return r.name
}

// ATR returns the ATR of the active card, or nil.
func (r *Reader) ATR() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Clone(r.atr)
}

// Activate connects to the card on the reader. A card still connected from
// a previous cycle is left as is and reconnected.
func (r *Reader) Activate() (iso14443.Activation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.card != nil {
		_ = r.card.Disconnect(scard.LeaveCard)
		r.card, r.atr = nil, nil
	}

	card, err := r.connect()
	if err != nil {
		if isCardAbsent(err) {
			return iso14443.Activation{}, fmt.Errorf("%w: %w", iso14443.ErrNoTarget, err)
		}
		return iso14443.Activation{}, fmt.Errorf("connecting to %s: %w", r.name, err)
	}

	status, err := card.Status()
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		if isCardAbsent(err) {
			return iso14443.Activation{}, fmt.Errorf("%w: %w", iso14443.ErrNoTarget, err)
		}
		return iso14443.Activation{}, fmt.Errorf("reading card status: %w", err)
	}

	act := iso14443.Activation{SAK: sakFromATR(status.Atr)}

	uid, err := readUID(card)
	if err != nil {
		r.log.Warn().Err(err).Str("reader", r.name).Msg("GET DATA UID failed")
	} else {
		act.UID = uid
	}

	r.card, r.atr = card, status.Atr
	r.log.Debug().Str("reader", r.name).Hex("atr", status.Atr).Stringer("card", act).Msg("card connected")
	return act, nil
}

// Transmit sends one APDU to the active card.
func (r *Reader) Transmit(cmd []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.card == nil {
		return nil, fmt.Errorf("%w: not connected", iso14443.ErrNoTarget)
	}
	rsp, err := r.card.Transmit(cmd)
	if err != nil {
		if isCardAbsent(err) {
			r.card, r.atr = nil, nil
			return nil, fmt.Errorf("%w: %w", iso14443.ErrNoTarget, err)
		}
		return nil, err
	}
	return rsp, nil
}

// Deselect disconnects and resets the card so that the next Activate
// starts a new session.
func (r *Reader) Deselect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnect(scard.ResetCard)
}

// Close disconnects from the card and releases the PC/SC context.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.disconnect(scard.LeaveCard)
	if r.release != nil {
		err = errors.Join(err, r.release())
		r.release = nil
	}
	return err
}

func (r *Reader) disconnect(d scard.Disposition) error {
	if r.card == nil {
		return nil
	}
	err := r.card.Disconnect(d)
	r.card, r.atr = nil, nil
	if err != nil && !isCardAbsent(err) {
		return fmt.Errorf("disconnecting from %s: %w", r.name, err)
	}
	return nil
}

func readUID(card Card) ([]byte, error) {
	raw, err := card.Transmit(getUID)
	if err != nil {
		return nil, err
	}
	resp, err := iso7816.DecodeResponse(raw)
	if err != nil {
		return nil, err
	}
	if !resp.Status.IsSuccess() {
		return nil, fmt.Errorf("GET DATA UID: %s", resp.Status.Verbose())
	}
	return resp.Data, nil
}

// sakFromATR rebuilds the part of the SAK we care about. PC/SC does not
// expose it, but storage cards are recognisable from their ATR.
func sakFromATR(atr []byte) byte {
	if bytes.Contains(atr, storageCardRID) {
		return sakStorage
	}
	return sakISODEP
}

func isCardAbsent(err error) bool {
	return errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrResetCard) ||
		errors.Is(err, scard.ErrUnpoweredCard)
}
