package type4

import (
	"errors"

	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/gregLibert/nfc-type4/pkg/iso7816"
	"github.com/rs/zerolog"
)

// Result is everything one detection cycle learned. It is returned even when
// the cycle failed, so that callers can report the trace.
type Result struct {
	Activation iso14443.Activation
	CC         *CapabilityContainer
	File       *NDEFFile
	Trace      iso7816.Trace
	State      State
}

// Reader runs detection cycles over a transmitter and an activator, which
// are often the same reader object.
type Reader struct {
	tx     iso7816.Transmitter
	act    iso14443.Activator
	client *iso7816.Client
	cfg    Config
	log    zerolog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger. APDUs are traced at debug level, aborts at
// info. Logging is disabled by default.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) {
		r.log = l
	}
}

// WithMaxChunk caps payload reads to n bytes (1..255).
func WithMaxChunk(n int) Option {
	return func(r *Reader) {
		r.cfg.MaxChunk = n
	}
}

// WithStrictFileSize aborts cycles whose NLEN does not fit the file size
// declared in the CC.
func WithStrictFileSize() Option {
	return func(r *Reader) {
		r.cfg.StrictFileSize = true
	}
}

// WithClass sets the CLA byte used for every command, a logical channel
// typically.
func WithClass(cla iso7816.Class) Option {
	return func(r *Reader) {
		r.cfg.Class = cla
	}
}

// NewReader creates a Reader.
func NewReader(tx iso7816.Transmitter, act iso14443.Activator, opts ...Option) *Reader {
	r := &Reader{tx: tx, act: act, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	r.client = iso7816.NewClient(tx, iso7816.WithClientLogger(r.log))
	return r
}

// Read activates the next card and reads its NDEF file. A nil error means
// res.File holds the complete message. Errors are *ActivationError for
// skipped activations, *TransportError, *StatusError or errors wrapping
// ErrCapabilityContainerMalformed and iso7816.ErrMalformedResponse.
func (r *Reader) Read() (*Result, error) {
	res := &Result{State: Idle}

	act, err := r.act.Activate()
	if err != nil {
		if errors.Is(err, iso14443.ErrNoTarget) {
			return res, &ActivationError{Err: err}
		}
		return res, &TransportError{Op: "activate", Err: err}
	}
	res.Activation = act
	log := r.log.With().Hex("uid", act.UID).Logger()

	defer r.deselect(log)

	s, err := Begin(act, r.cfg)
	if err != nil {
		log.Debug().Err(err).Msg("card skipped")
		return res, &ActivationError{Err: err}
	}

	s, res.Trace = r.run(s, log)

	res.State = s.State()
	res.CC = s.CapabilityContainer()
	if s.State() != Complete {
		log.Info().Err(s.Err()).Stringer("state", s.State()).Msg("detection aborted")
		return res, s.Err()
	}

	res.File = s.File()
	log.Debug().Int("nlen", res.File.NLEN).Msg("NDEF file read")
	return res, nil
}

// run exchanges APDUs until the session is terminal.
func (r *Reader) run(s Session, log zerolog.Logger) (Session, iso7816.Trace) {
	var trace iso7816.Trace
	for !s.Done() {
		cmd, err := s.Command()
		if err != nil {
			return s.Abort(err), trace
		}

		t, err := r.client.Send(cmd)
		trace = append(trace, t...)
		if err != nil {
			if errors.Is(err, iso7816.ErrTransmission) {
				err = &TransportError{Op: cmd.Instruction.Raw.String(), Err: err}
			}
			return s.Abort(err), trace
		}

		prev := s.State()
		s = s.Advance(t.Response())
		log.Debug().Stringer("from", prev).Stringer("to", s.State()).Msg("transition")
	}
	return s, trace
}

func (r *Reader) deselect(log zerolog.Logger) {
	d, ok := r.act.(iso14443.Deselecter)
	if !ok {
		d, ok = r.tx.(iso14443.Deselecter)
	}
	if !ok {
		return
	}
	if err := d.Deselect(); err != nil {
		log.Warn().Err(err).Msg("deselect failed")
	}
}
