// Package hce emulates an NFC Forum Type 4 Tag holding a read-only NDEF
// message, the way a phone in host card emulation answers a reader. It
// implements iso7816.Transmitter, iso14443.Activator and
// iso14443.Deselecter, and is what the tests and the demo's "sim" reader
// drive the detection procedure against.
package hce

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/gregLibert/nfc-type4/pkg/iso7816"
	"github.com/gregLibert/nfc-type4/pkg/ndef"
	"github.com/rs/zerolog"
)

var (
	aid = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}

	// ErrRemoved is returned by Transmit while the tag is out of the field.
	ErrRemoved = errors.New("hce: tag removed from field")

	bo = binary.BigEndian
)

const (
	ccFileID        = 0xE103
	defaultFileID   = 0xE104
	defaultMLe      = 0x00FF
	defaultMaxFile  = 0x0800
	mappingVersion2 = 0x20
	mappingVersion3 = 0x30
)

type protoState int

const (
	initState protoState = iota
	appState
	ccFileState
	ndefFileState
)

// Tag is an emulated Type 4 Tag. It is safe to Present and Remove it from
// another goroutine while a reader polls it.
type Tag struct {
	mu sync.Mutex

	uid       []byte
	sak       byte
	ats       []byte
	moreCards bool
	present   bool

	fileID      uint16
	mle         int
	maxFile     int
	readAccess  byte
	version3    bool
	cc          []byte
	file        []byte
	shortReads  int
	getResponse bool
	faults      map[int]iso7816.StatusWord
	transportAt map[int]error

	state     protoState
	step      int
	pending   []byte
	sent      [][]byte
	deselects int

	log zerolog.Logger
}

// Option configures a Tag.
type Option func(*Tag)

// WithUID sets the UID reported on activation.
func WithUID(uid []byte) Option {
	return func(t *Tag) { t.uid = append([]byte(nil), uid...) }
}

// WithSAK sets the SAK reported on activation, 0x20 by default.
func WithSAK(sak byte) Option {
	return func(t *Tag) { t.sak = sak }
}

// WithMoreCards makes activations report a collision.
func WithMoreCards() Option {
	return func(t *Tag) { t.moreCards = true }
}

// WithFileID sets the NDEF file identifier announced in the CC.
func WithFileID(fid uint16) Option {
	return func(t *Tag) { t.fileID = fid }
}

// WithMaxReadSize sets MLe. READ BINARY asking for more answers 6700.
func WithMaxReadSize(mle int) Option {
	return func(t *Tag) { t.mle = mle }
}

// WithMaxFileSize sets the NDEF file size announced in the CC, even when
// the message does not fit it.
func WithMaxFileSize(n int) Option {
	return func(t *Tag) { t.maxFile = n }
}

// WithReadAccess sets the read access byte of the NDEF file control.
func WithReadAccess(b byte) Option {
	return func(t *Tag) { t.readAccess = b }
}

// WithExtendedFileControl announces mapping version 3.0 and an Extended NDEF
// File Control TLV (tag 06), which makes the CC 17 bytes long.
func WithExtendedFileControl() Option {
	return func(t *Tag) { t.version3 = true }
}

// WithShortReads caps every READ BINARY answer to n bytes.
func WithShortReads(n int) Option {
	return func(t *Tag) { t.shortReads = n }
}

// WithGetResponse makes READ BINARY answer 61XX and hand the data over on
// GET RESPONSE, like a T=0 bridge does.
func WithGetResponse() Option {
	return func(t *Tag) { t.getResponse = true }
}

// WithFault answers the n-th command after activation (1-based) with sw.
func WithFault(n int, sw iso7816.StatusWord) Option {
	return func(t *Tag) { t.faults[n] = sw }
}

// WithTransportError fails the n-th command after activation with err.
func WithTransportError(n int, err error) Option {
	return func(t *Tag) { t.transportAt[n] = err }
}

// WithLogger traces every command at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tag) { t.log = l }
}

// NewTag creates a tag holding message, present in the field.
func NewTag(message []byte, opts ...Option) (*Tag, error) {
	if len(message) > 0xFFFF-2 {
		return nil, fmt.Errorf("hce: message of %d bytes does not fit a 16-bit NLEN", len(message))
	}

	t := &Tag{
		uid:         []byte{0x08, 0x12, 0x34, 0x56},
		sak:         0x20,
		ats:         []byte{0x05, 0x78, 0x80, 0x70, 0x02},
		present:     true,
		fileID:      defaultFileID,
		mle:         defaultMLe,
		faults:      make(map[int]iso7816.StatusWord),
		transportAt: make(map[int]error),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.file = bo.AppendUint16(make([]byte, 0, 2+len(message)), uint16(len(message)))
	t.file = append(t.file, message...)
	if t.maxFile == 0 {
		t.maxFile = max(defaultMaxFile, len(t.file))
	}
	t.cc = t.buildCC()
	return t, nil
}

// NewTextTag creates a tag holding a single Text record.
func NewTextTag(text string, opts ...Option) (*Tag, error) {
	msg, err := ndef.NewText(text, "en")
	if err != nil {
		return nil, fmt.Errorf("hce: %w", err)
	}
	return NewTag(msg, opts...)
}

func (t *Tag) buildCC() []byte {
	ccLen := 15
	version := byte(mappingVersion2)
	if t.version3 {
		ccLen = 17
		version = mappingVersion3
	}

	cc := make([]byte, 0, ccLen)
	cc = bo.AppendUint16(cc, uint16(ccLen))
	cc = append(cc, version)
	cc = bo.AppendUint16(cc, uint16(t.mle))
	cc = bo.AppendUint16(cc, uint16(t.mle))

	if t.version3 {
		cc = append(cc, 0x06, 0x08)
		cc = bo.AppendUint16(cc, t.fileID)
		cc = bo.AppendUint32(cc, uint32(t.maxFile))
	} else {
		cc = append(cc, 0x04, 0x06)
		cc = bo.AppendUint16(cc, t.fileID)
		cc = bo.AppendUint16(cc, uint16(t.maxFile))
	}
	cc = append(cc, t.readAccess) // Read access.
	cc = append(cc, 0xFF)         // No write access.
	return cc
}

// Present puts the tag back in the field.
func (t *Tag) Present() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.present = true
}

// Remove takes the tag out of the field.
func (t *Tag) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.present = false
	t.reset()
}

// Activate implements iso14443.Activator.
func (t *Tag) Activate() (iso14443.Activation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.present {
		return iso14443.Activation{}, iso14443.ErrNoTarget
	}
	t.reset()
	return iso14443.Activation{
		UID:              append([]byte(nil), t.uid...),
		SAK:              t.sak,
		ATS:              append([]byte(nil), t.ats...),
		MoreCardsPresent: t.moreCards,
	}, nil
}

// Deselect implements iso14443.Deselecter.
func (t *Tag) Deselect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deselects++
	t.reset()
	return nil
}

func (t *Tag) reset() {
	t.state = initState
	t.step = 0
	t.pending = nil
}

// Sent returns every command received since the last activation.
func (t *Tag) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// Deselects counts Deselect calls.
func (t *Tag) Deselects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deselects
}

// Transmit implements iso7816.Transmitter.
func (t *Tag) Transmit(raw []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.present {
		return nil, ErrRemoved
	}
	if t.step == 0 {
		t.sent = nil
	}
	t.step++
	t.sent = append(t.sent, append([]byte(nil), raw...))

	if err, ok := t.transportAt[t.step]; ok {
		return nil, err
	}

	resp := t.process(raw)
	t.log.Debug().Int("step", t.step).Hex("cmd", raw).Stringer("sw", resp.Status).Msg("hce")
	return resp.Bytes(), nil
}

func (t *Tag) process(raw []byte) *iso7816.ResponseAPDU {
	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}
	if sw, ok := t.faults[t.step]; ok {
		return status(sw)
	}
	if cmd.Class.Raw != 0x00 {
		return status(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
	}

	switch cmd.Instruction.Raw {
	case iso7816.INS_SELECT:
		return t.selectFile(cmd)
	case iso7816.INS_READ_BINARY:
		return t.readBinary(cmd)
	case iso7816.INS_GET_RESPONSE:
		if t.pending == nil {
			return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
		}
		data := t.pending
		t.pending = nil
		return &iso7816.ResponseAPDU{Data: data, Status: iso7816.SW_NO_ERROR}
	default:
		return status(iso7816.SW_ERR_INS_INVALID)
	}
}

func (t *Tag) selectFile(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	switch {
	case cmd.P1 == 0x04 && cmd.P2 == 0x00:
		if !bytes.Equal(cmd.Data, aid) {
			t.state = initState
			return status(iso7816.SW_ERR_FILE_NOT_FOUND)
		}
		t.state = appState
	case cmd.P1 == 0x00 && cmd.P2 == 0x0C:
		if t.state == initState || len(cmd.Data) != 2 {
			return status(iso7816.SW_ERR_FILE_NOT_FOUND)
		}
		switch bo.Uint16(cmd.Data) {
		case ccFileID:
			t.state = ccFileState
		case t.fileID:
			t.state = ndefFileState
		default:
			return status(iso7816.SW_ERR_FILE_NOT_FOUND)
		}
	default:
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	}
	return status(iso7816.SW_NO_ERROR)
}

func (t *Tag) readBinary(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	var file []byte
	switch t.state {
	case ccFileState:
		file = t.cc
	case ndefFileState:
		if t.readAccess != 0x00 {
			return status(iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT)
		}
		file = t.file
	default:
		return status(iso7816.SW_ERR_CMD_NOT_ALLOWED_NO_EF)
	}

	off := int(iso7816.ReadBinaryOffset(cmd))
	n := cmd.Ne
	if n == 0 || n > t.mle {
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}
	if off >= len(file) {
		return status(iso7816.SW_ERR_WRONG_P1P2)
	}
	if t.shortReads > 0 {
		n = min(n, t.shortReads)
	}

	sw := iso7816.SW_NO_ERROR
	end := off + n
	if end > len(file) {
		end = len(file)
		sw = iso7816.SW_WARN_EOF_REACHED
	}
	data := append([]byte(nil), file[off:end]...)

	if t.getResponse && sw == iso7816.SW_NO_ERROR {
		t.pending = data
		return status(iso7816.NewStatusWord(0x61, byte(len(data))))
	}
	return &iso7816.ResponseAPDU{Data: data, Status: sw}
}

func status(sw iso7816.StatusWord) *iso7816.ResponseAPDU {
	return &iso7816.ResponseAPDU{Status: sw}
}
