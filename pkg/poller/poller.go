// Package poller runs Type 4 detection cycles in a loop and reports each
// card once per presentation.
package poller

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/gregLibert/nfc-type4/pkg/type4"
	"github.com/rs/zerolog"
)

// Source runs one detection cycle. *type4.Reader implements it.
type Source interface {
	Read() (*type4.Result, error)
}

// Handler receives the outcome of the cycles worth reporting. Cycle ids
// let callers correlate their output with the poller's logs.
type Handler interface {
	HandleTag(ctx context.Context, cycle uuid.UUID, res *type4.Result)
	HandleError(ctx context.Context, cycle uuid.UUID, res *type4.Result, err error)
}

// HandlerFuncs adapts plain functions to a Handler. Nil fields are ignored.
type HandlerFuncs struct {
	OnTag   func(ctx context.Context, cycle uuid.UUID, res *type4.Result)
	OnError func(ctx context.Context, cycle uuid.UUID, res *type4.Result, err error)
}

func (h HandlerFuncs) HandleTag(ctx context.Context, cycle uuid.UUID, res *type4.Result) {
	if h.OnTag != nil {
		h.OnTag(ctx, cycle, res)
	}
}

func (h HandlerFuncs) HandleError(ctx context.Context, cycle uuid.UUID, res *type4.Result, err error) {
	if h.OnError != nil {
		h.OnError(ctx, cycle, res, err)
	}
}

// Config tunes the loop.
type Config struct {
	// Interval separates two cycles while the reader is healthy.
	Interval time.Duration
	// IdleNotice logs a "waiting" line every IdleNotice empty polls. 0
	// disables it.
	IdleNotice int
	// MaxBackoff caps the delay between cycles after transport failures.
	MaxBackoff time.Duration
	// Once stops the loop after the first reported outcome.
	Once bool
}

// DefaultConfig polls four times a second.
func DefaultConfig() Config {
	return Config{
		Interval:   250 * time.Millisecond,
		IdleNotice: 40,
		MaxBackoff: 10 * time.Second,
	}
}

// Poller drives a Source.
type Poller struct {
	src Source
	cfg Config
	log zerolog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger. Logging is disabled by default.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) {
		p.log = l
	}
}

// New creates a Poller. Zero fields of cfg take their DefaultConfig value,
// except IdleNotice and Once.
func New(src Source, cfg Config, opts ...Option) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	cfg.MaxBackoff = max(cfg.MaxBackoff, cfg.Interval)

	p := &Poller{src: src, cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// outcome identifies what was last reported, so that a card resting on the
// reader is reported once. Cards without a UID cannot be told apart and are
// reported on every cycle.
type outcome struct {
	uid []byte
	ok  bool
}

func (o *outcome) same(uid []byte, ok bool) bool {
	return o != nil && len(uid) > 0 && o.ok == ok && bytes.Equal(o.uid, uid)
}

// Run polls until ctx is done and returns ctx.Err(). With Config.Once it
// returns after the first reported outcome instead: nil for a tag, the
// cycle's error otherwise.
func (p *Poller) Run(ctx context.Context, h Handler) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.Interval
	bo.MaxInterval = p.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	var last *outcome
	idle := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cycle := uuid.New()
		log := p.log.With().Str("cycle", cycle.String()).Logger()
		wait := p.cfg.Interval

		res, err := p.src.Read()
		if res == nil {
			res = &type4.Result{State: type4.Idle}
		}
		uid := res.Activation.UID

		var ae *type4.ActivationError
		var te *type4.TransportError
		switch {
		case err == nil:
			bo.Reset()
			idle = 0
			if last.same(uid, true) {
				log.Debug().Hex("uid", uid).Msg("card still present")
				break
			}
			last = &outcome{uid: bytes.Clone(uid), ok: true}
			log.Info().Hex("uid", uid).Int("nlen", res.File.NLEN).Msg("NDEF message read")
			h.HandleTag(ctx, cycle, res)
			if p.cfg.Once {
				return nil
			}

		case errors.As(err, &ae):
			bo.Reset()
			if !errors.Is(err, iso14443.ErrNoTarget) {
				log.Debug().Err(err).Hex("uid", uid).Msg("card skipped")
				break
			}
			if last != nil {
				log.Debug().Msg("card removed")
			}
			last = nil
			idle++
			if p.cfg.IdleNotice > 0 && idle%p.cfg.IdleNotice == 0 {
				log.Info().Int("polls", idle).Msg("waiting for a card")
			}

		case errors.As(err, &te):
			last = nil
			if next := bo.NextBackOff(); next != backoff.Stop {
				wait = next
			} else {
				wait = p.cfg.MaxBackoff
			}
			log.Warn().Err(err).Dur("retry_in", wait).Msg("transport failure")
			h.HandleError(ctx, cycle, res, err)
			if p.cfg.Once {
				return err
			}

		default:
			bo.Reset()
			idle = 0
			if last.same(uid, false) {
				log.Debug().Err(err).Hex("uid", uid).Msg("card still failing")
				break
			}
			last = &outcome{uid: bytes.Clone(uid), ok: false}
			h.HandleError(ctx, cycle, res, err)
			if p.cfg.Once {
				return err
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
