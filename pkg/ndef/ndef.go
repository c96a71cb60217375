// Package ndef decodes the NDEF message read from a tag into records, and
// builds the small messages used by the emulator and the demo.
//
// Decoding is done by hsanjuan/go-ndef; this package flattens its records and
// expands the two well-known types a reader usually wants: Text (T) and URI (U).
package ndef

import (
	"errors"
	"fmt"
	"strings"

	gondef "github.com/hsanjuan/go-ndef"
	"github.com/hsanjuan/go-ndef/types/wkt/text"
	"github.com/hsanjuan/go-ndef/types/wkt/uri"
)

// TNF values, NFC Forum NDEF 1.0 section 3.2.6.
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMedia       byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
)

// ErrEmptyMessage is returned when there is nothing to decode.
var ErrEmptyMessage = errors.New("empty NDEF message")

// Record is one decoded NDEF record. Text and Language are set for
// well-known Text records, URI for well-known URI records.
type Record struct {
	TNF     byte
	Type    string
	Payload []byte

	Text     string
	Language string
	URI      string
}

// Message is a decoded NDEF message.
type Message struct {
	Records []Record
}

// Parse decodes an NDEF message, as found after NLEN in a Type 4 NDEF file.
func Parse(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}

	msg := &gondef.Message{}
	if _, err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to parse NDEF message: %w", err)
	}

	out := &Message{Records: make([]Record, 0, len(msg.Records))}
	for i, rec := range msg.Records {
		r, err := convert(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out.Records = append(out.Records, r)
	}
	return out, nil
}

func convert(rec *gondef.Record) (Record, error) {
	payload, err := rec.Payload()
	if err != nil {
		return Record{}, fmt.Errorf("failed to get payload: %w", err)
	}

	r := Record{
		TNF:     byte(rec.TNF()),
		Type:    rec.Type(),
		Payload: payload.Marshal(),
	}

	switch p := payload.(type) {
	case *text.Payload:
		r.Language, r.Text = p.Language, p.Text
	case *uri.Payload:
		if _, ok := uri.URIProtocols[p.IdentCode]; !ok {
			return r, fmt.Errorf("invalid URI prefix code: %d", p.IdentCode)
		}
		r.URI = p.String()
	}
	return r, nil
}

// NewText builds a one-record message holding a Text record.
func NewText(text, lang string) ([]byte, error) {
	return gondef.NewTextMessage(text, lang).Marshal()
}

// NewURI builds a one-record message holding a URI record.
func NewURI(uri string) ([]byte, error) {
	rec := gondef.NewURIRecord(uri)
	rec.SetMB(true)
	rec.SetME(true)
	msg := &gondef.Message{Records: []*gondef.Record{rec}}
	return msg.Marshal()
}

// Describe renders the message, one line per record.
func (m *Message) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== NDEF MESSAGE (%d record(s)) ===", len(m.Records))
	for i, r := range m.Records {
		fmt.Fprintf(&sb, "\n[%d] %s", i+1, r.String())
	}
	return sb.String()
}

func (r Record) String() string {
	switch {
	case r.TNF == TNFWellKnown && r.Type == "T":
		return fmt.Sprintf("Text (%s): %s", r.Language, r.Text)
	case r.TNF == TNFWellKnown && r.Type == "U":
		return "URI: " + r.URI
	default:
		return fmt.Sprintf("TNF %d, type %q, %d byte payload", r.TNF, r.Type, len(r.Payload))
	}
}
