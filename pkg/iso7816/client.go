package iso7816

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// The Client sits on top of the raw exchange primitive and resolves the two
// transport-level answers that T=0 cards (and some contactless bridges) leak
// to the application layer:
//
//  1. 61XX: XX more bytes are waiting. A GET RESPONSE with Le=XX is sent on
//     the same logical channel.
//  2. 6CXX: the Le was wrong. The same command is re-sent with Le=XX.
//
// Send returns the Trace of every physical exchange it made.

// Transmitter is the synchronous exchange primitive: one command buffer in,
// one response buffer out. *scard.Card satisfies it.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// ErrTransmission marks errors reported by the Transmitter itself, as
// opposed to encoding or decoding failures.
var ErrTransmission = errors.New("transmission error")

// maxFollowUps bounds the 61XX/6CXX chain of a single Send.
const maxFollowUps = 8

// Client manages the communication with the card. It is not safe for
// concurrent use; the protocol is strictly half-duplex.
type Client struct {
	Card Transmitter
	log  zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger APDUs are traced to at debug level.
func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a new Client instance. Logging is disabled by default.
func NewClient(card Transmitter, opts ...ClientOption) *Client {
	c := &Client{Card: card, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send transmits cmd and follows 61XX/6CXX answers. The returned trace holds
// every exchange made so far, even when err is non-nil.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	for step := 0; ; step++ {
		if step > maxFollowUps {
			return trace, fmt.Errorf("%w: more than %d chained responses", ErrMalformedResponse, maxFollowUps)
		}

		resp, err := c.exchange(cmd)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: cmd, Response: resp})

		sw1, sw2 := resp.Status.SW1(), resp.Status.SW2()
		switch sw1 {
		case 0x61:
			// GET RESPONSE stays on the channel of the original command.
			cls := cmd.Class
			cls.IsChained = false
			cmd = NewCommandAPDU(cls, mustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, decodeShortLe(sw2))
		case 0x6C:
			retry := *cmd
			retry.Ne = decodeShortLe(sw2)
			cmd = &retry
		default:
			return trace, nil
		}
		c.log.Debug().Str("sw", fmt.Sprintf("%04X", uint16(resp.Status))).Msg("follow-up required")
	}
}

func (c *Client) exchange(cmd *CommandAPDU) (*ResponseAPDU, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	c.log.Debug().Hex("apdu", rawCmd).Msg("->")
	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransmission, err)
	}
	c.log.Debug().Hex("apdu", rawResp).Msg("<-")

	return DecodeResponse(rawResp)
}
