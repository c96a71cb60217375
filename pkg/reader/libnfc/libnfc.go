// Package libnfc drives PN53x-class readers through libnfc, using
// github.com/clausecker/nfc/v2. Unlike PC/SC, libnfc exposes the
// anticollision outcome, so the SAK and ATS are the card's own.
package libnfc

import (
	"bytes"
	"fmt"

	"github.com/clausecker/nfc/v2"
	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/rs/zerolog"
)

// maxFrame is the largest response libnfc hands back: 256 data bytes,
// the status word and the reader's own framing.
const maxFrame = 262

var modulation = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}

// Device is the part of nfc.Device the reader uses.
type Device interface {
	InitiatorInit() error
	InitiatorListPassiveTargets(m nfc.Modulation) ([]nfc.Target, error)
	InitiatorSelectPassiveTarget(m nfc.Modulation, initData []byte) (nfc.Target, error)
	InitiatorTransceiveBytes(tx, rx []byte, timeout int) (int, error)
	InitiatorDeselectTarget() error
	Close() error
	String() string
}

// Reader implements iso7816.Transmitter, iso14443.Activator and
// iso14443.Deselecter on top of a libnfc device in initiator mode.
// It is not safe for concurrent use.
type Reader struct {
	dev     Device
	timeout int
	active  bool
	log     zerolog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger. Logging is disabled by default.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) {
		r.log = l
	}
}

// WithTimeout sets the exchange timeout in milliseconds. 0, the default,
// lets libnfc wait as long as the card keeps requesting more time.
func WithTimeout(ms int) Option {
	return func(r *Reader) {
		r.timeout = ms
	}
}

// Open opens the libnfc device named by connstring ("" picks the first one,
// "pn532_uart:/dev/ttyUSB0" a specific one) and puts it in initiator mode.
func Open(connstring string, opts ...Option) (*Reader, error) {
	dev, err := nfc.Open(connstring)
	if err != nil {
		return nil, fmt.Errorf("opening libnfc device %q: %w", connstring, err)
	}
	r, err := New(&dev, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an already opened device and puts it in initiator mode.
func New(dev Device, opts ...Option) (*Reader, error) {
	r := &Reader{dev: dev, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	if err := dev.InitiatorInit(); err != nil {
		return nil, fmt.Errorf("initiator init on %s: %w", dev, err)
	}
	return r, nil
}

// Name returns the device name reported by libnfc.
func (r *Reader) Name() string {
	return r.dev.String()
}

// Activate polls ISO14443A at 106 kbps and selects the first card found.
func (r *Reader) Activate() (iso14443.Activation, error) {
	r.active = false

	targets, err := r.dev.InitiatorListPassiveTargets(modulation)
	if err != nil {
		return iso14443.Activation{}, fmt.Errorf("listing targets: %w", err)
	}

	var cards []*nfc.ISO14443aTarget
	for _, t := range targets {
		if a, ok := t.(*nfc.ISO14443aTarget); ok {
			cards = append(cards, a)
		}
	}
	if len(cards) == 0 {
		return iso14443.Activation{}, iso14443.ErrNoTarget
	}

	selected, err := r.dev.InitiatorSelectPassiveTarget(modulation, uidOf(cards[0]))
	if err != nil {
		return iso14443.Activation{}, fmt.Errorf("selecting %X: %w", uidOf(cards[0]), err)
	}
	card, ok := selected.(*nfc.ISO14443aTarget)
	if !ok {
		return iso14443.Activation{}, fmt.Errorf("%w: selected target is %T", iso14443.ErrNoTarget, selected)
	}

	r.active = true
	act := iso14443.Activation{
		UID:              uidOf(card),
		SAK:              card.Sak,
		ATS:              atsOf(card),
		MoreCardsPresent: len(cards) > 1,
	}
	r.log.Debug().Str("device", r.dev.String()).Stringer("card", act).Hex("ats", act.ATS).Msg("target selected")
	return act, nil
}

// Transmit exchanges one APDU with the selected card.
func (r *Reader) Transmit(cmd []byte) ([]byte, error) {
	if !r.active {
		return nil, fmt.Errorf("%w: no target selected", iso14443.ErrNoTarget)
	}
	var rx [maxFrame]byte
	n, err := r.dev.InitiatorTransceiveBytes(cmd, rx[:], r.timeout)
	if err != nil {
		return nil, fmt.Errorf("transceive: %w", err)
	}
	return bytes.Clone(rx[:n]), nil
}

// Deselect sends S(DESELECT) and leaves the field on.
func (r *Reader) Deselect() error {
	if !r.active {
		return nil
	}
	r.active = false
	if err := r.dev.InitiatorDeselectTarget(); err != nil {
		return fmt.Errorf("deselecting target: %w", err)
	}
	return nil
}

// Close releases the device.
func (r *Reader) Close() error {
	r.active = false
	return r.dev.Close()
}

func uidOf(t *nfc.ISO14443aTarget) []byte {
	n := min(int(t.UIDLen), len(t.UID))
	return bytes.Clone(t.UID[:n])
}

func atsOf(t *nfc.ISO14443aTarget) []byte {
	n := min(int(t.AtsLen), len(t.Ats))
	if n == 0 {
		return nil
	}
	return bytes.Clone(t.Ats[:n])
}
