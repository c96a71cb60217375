package type4

import (
	"encoding/binary"
	"fmt"

	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/gregLibert/nfc-type4/pkg/iso7816"
)

// State is the position of a Session in the detection procedure.
type State int

const (
	Idle State = iota
	Activated
	AppSelected
	CCSelected
	CCRead
	NDEFSelected
	LenRead
	Reading
	Complete
	Aborted
)

var stateNames = map[State]string{
	Idle:         "Idle",
	Activated:    "Activated",
	AppSelected:  "AppSelected",
	CCSelected:   "CCSelected",
	CCRead:       "CCRead",
	NDEFSelected: "NDEFSelected",
	LenRead:      "LenRead",
	Reading:      "Reading",
	Complete:     "Complete",
	Aborted:      "Aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further command follows.
func (s State) Terminal() bool {
	return s == Complete || s == Aborted
}

// Config tunes a Session. The zero value reads with CLA 00 and chunks of
// DefaultMaxChunk bytes.
type Config struct {
	Class iso7816.Class

	// MaxChunk caps payload reads. Zero or anything above 255 means
	// DefaultMaxChunk. The CC's MLe lowers it further.
	MaxChunk int

	// StrictFileSize aborts when NLEN+2 exceeds the file size the CC
	// declares.
	StrictFileSize bool
}

// Session is one detection cycle. Methods never modify the receiver; every
// transition returns a new Session.
type Session struct {
	state      State
	cfg        Config
	activation iso14443.Activation

	ccHead   []byte
	cc       *CapabilityContainer
	maxChunk int
	nlen     int
	chunks   ChunkedReader
	file     *NDEFFile
	err      error
}

// Begin starts a session for a freshly activated card. Cards that cannot run
// the procedure leave the session Idle and the reason is returned; this is a
// skip, not a failure.
func Begin(act iso14443.Activation, cfg Config) (Session, error) {
	s := Session{state: Idle, cfg: cfg, activation: act}
	if err := act.Check(); err != nil {
		return s, err
	}
	s.state = Activated
	return s, nil
}

// Command returns the APDU the current state expects next.
func (s Session) Command() (*iso7816.CommandAPDU, error) {
	cla := s.cfg.Class

	switch s.state {
	case Activated:
		return iso7816.SelectByAID(cla, NDEFApplicationID), nil
	case AppSelected:
		return iso7816.SelectFileID(cla, CCFileID), nil
	case CCSelected:
		if s.ccHead != nil {
			return s.chunks.Request(cla)
		}
		return iso7816.ReadBinary(cla, 0, ccReadLength)
	case CCRead:
		return iso7816.SelectFileID(cla, s.cc.NDEFFile.ID), nil
	case NDEFSelected:
		return iso7816.ReadBinary(cla, 0, nlenSize)
	case LenRead, Reading:
		return s.chunks.Request(cla)
	case Idle:
		return nil, fmt.Errorf("session not started")
	default:
		return nil, ErrSessionDone
	}
}

// Advance consumes the final response to the last Command.
func (s Session) Advance(resp *iso7816.ResponseAPDU) Session {
	if s.state.Terminal() || s.state == Idle {
		return s
	}
	if resp == nil {
		return s.Abort(fmt.Errorf("%w: no response in state %s", iso7816.ErrMalformedResponse, s.state))
	}

	switch s.state {
	case Activated:
		if err := s.expect(resp, ErrApplicationNotFound); err != nil {
			return s.Abort(err)
		}
		s.state = AppSelected

	case AppSelected:
		if err := s.expect(resp, ErrCCNotFound); err != nil {
			return s.Abort(err)
		}
		s.state = CCSelected

	case CCSelected:
		return s.advanceCC(resp)

	case CCRead:
		if err := s.expect(resp, ErrNDEFFileNotFound); err != nil {
			return s.Abort(err)
		}
		s.state = NDEFSelected

	case NDEFSelected:
		return s.advanceNLEN(resp)

	case LenRead, Reading:
		next, err := s.chunks.Accept(resp)
		if err != nil {
			return s.Abort(err)
		}
		s.chunks = next
		s.state = Reading
		if next.Done() {
			return s.complete(next.Payload())
		}
	}
	return s
}

func (s Session) advanceCC(resp *iso7816.ResponseAPDU) Session {
	if err := s.expect(resp, ErrCCReadFailed); err != nil {
		return s.Abort(err)
	}

	data := resp.Data
	if s.ccHead != nil {
		next, err := s.chunks.Accept(resp)
		if err != nil {
			return s.Abort(err)
		}
		if !next.Done() {
			s.chunks = next
			return s
		}
		data = append(append([]byte(nil), s.ccHead...), next.Payload()...)
		s.ccHead = nil
		s.chunks = ChunkedReader{}
	} else if len(data) >= ccReadLength {
		// A CC longer than the first read carries extra TLV blocks. The rest
		// is read from where the first read stopped, in chunks the CC's own
		// MLe allows.
		declared := int(binary.BigEndian.Uint16(data))
		if declared > len(data) {
			mle := int(binary.BigEndian.Uint16(data[3:5]))
			rest, err := NewChunkedReader(len(data), declared-len(data), s.chunkSize(mle))
			if err != nil {
				return s.Abort(fmt.Errorf("%w: %w", ErrCapabilityContainerMalformed, err))
			}
			s.ccHead = append([]byte(nil), data...)
			s.chunks = rest
			return s
		}
	}

	cc, err := ParseCapabilityContainer(data)
	if err != nil {
		return s.Abort(err)
	}
	if !cc.NDEFFile.Readable() {
		return s.Abort(fmt.Errorf("%w: read access %02X on file %04X", ErrReadAccessDenied, cc.NDEFFile.ReadAccess, cc.NDEFFile.ID))
	}

	s.cc = cc
	s.maxChunk = s.chunkSize(cc.MLe)
	s.state = CCRead
	return s
}

func (s Session) advanceNLEN(resp *iso7816.ResponseAPDU) Session {
	if err := s.expect(resp, ErrNLENReadFailed); err != nil {
		return s.Abort(err)
	}
	if len(resp.Data) != nlenSize {
		return s.Abort(fmt.Errorf("%w: NLEN of %d bytes", iso7816.ErrMalformedResponse, len(resp.Data)))
	}

	nlen := int(binary.BigEndian.Uint16(resp.Data))
	if s.cfg.StrictFileSize && nlen+nlenSize > s.cc.NDEFFile.MaxSize {
		return s.Abort(fmt.Errorf("%w: NLEN %d, file size %d", ErrNLENExceedsFileSize, nlen, s.cc.NDEFFile.MaxSize))
	}

	chunks, err := NewChunkedReader(nlenSize, nlen, s.maxChunk)
	if err != nil {
		return s.Abort(err)
	}

	s.nlen = nlen
	s.chunks = chunks
	s.state = LenRead
	if nlen == 0 {
		return s.complete([]byte{})
	}
	return s
}

func (s Session) complete(payload []byte) Session {
	s.file = &NDEFFile{ID: s.cc.NDEFFile.ID, NLEN: s.nlen, Payload: payload}
	s.chunks = ChunkedReader{}
	s.state = Complete
	return s
}

// expect turns a non-success trailer into a StatusError carrying reason.
func (s Session) expect(resp *iso7816.ResponseAPDU, reason error) error {
	if resp.Status.IsSuccess() {
		return nil
	}
	return &StatusError{State: s.state, Status: resp.Status, Reason: reason}
}

// chunkSize is the configured chunk size lowered to the tag's MLe.
func (s Session) chunkSize(mle int) int {
	n := s.cfg.MaxChunk
	if n <= 0 || n > DefaultMaxChunk {
		n = DefaultMaxChunk
	}
	if mle > 0 && mle < n {
		n = mle
	}
	return n
}

// Abort ends the session with err. Any partial payload is dropped.
func (s Session) Abort(err error) Session {
	s.err = err
	s.ccHead = nil
	s.chunks = ChunkedReader{}
	s.file = nil
	s.state = Aborted
	return s
}

// State returns the current state.
func (s Session) State() State { return s.state }

// Activation returns what the RF layer reported for this card.
func (s Session) Activation() iso14443.Activation { return s.activation }

// CapabilityContainer is nil until the CC was read.
func (s Session) CapabilityContainer() *CapabilityContainer { return s.cc }

// MaxChunk is the payload read size in use, known once the CC was read.
func (s Session) MaxChunk() int { return s.maxChunk }

// NLEN is the declared message length, known once it was read.
func (s Session) NLEN() int { return s.nlen }

// File returns the NDEF file once the session is Complete, nil otherwise.
// The payload is a copy.
func (s Session) File() *NDEFFile {
	if s.file == nil {
		return nil
	}
	f := *s.file
	f.Payload = append([]byte{}, s.file.Payload...)
	return &f
}

// Err returns why the session aborted.
func (s Session) Err() error {
	return s.err
}

// Done reports whether the session reached Complete or Aborted.
func (s Session) Done() bool {
	return s.state.Terminal()
}
