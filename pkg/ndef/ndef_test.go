package ndef

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/nfc-type4/pkg/tlv"
)

func TestParse_Text(t *testing.T) {
	// MB ME SR, TNF 1, type "T", payload 02 "en" "Hello"
	raw := tlv.Hex("D1 01 08 54 02 65 6E 48 65 6C 6C 6F")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	expected := []Record{{
		TNF:      TNFWellKnown,
		Type:     "T",
		Payload:  tlv.Hex("02 65 6E 48 65 6C 6C 6F"),
		Text:     "Hello",
		Language: "en",
	}}
	if diff := cmp.Diff(expected, msg.Records); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_UTF16Text(t *testing.T) {
	// Status 82: UTF-16, 2 byte language code.
	raw := tlv.Hex("D1 01 07 54 82 65 6E 00 48 00 69")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if r := msg.Records[0]; r.Text != "Hi" || r.Language != "en" {
		t.Errorf("got text %q lang %q, want \"Hi\" in en", r.Text, r.Language)
	}
}

func TestParse_URI(t *testing.T) {
	// Prefix 04 is "https://".
	raw := tlv.Hex("D1 01 0C 55 04 65 78 61 6D 70 6C 65 2E 63 6F 6D")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(msg.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(msg.Records))
	}
	if got := msg.Records[0].URI; got != "https://example.com" {
		t.Errorf("URI = %q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse(nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Parse(nil) = %v, want ErrEmptyMessage", err)
	}
	if _, err := Parse(tlv.Hex("D1 01 30 54")); err == nil {
		t.Error("truncated record should fail")
	}
	if _, err := Parse(tlv.Hex("D1 01 02 55 40 61")); err == nil {
		t.Error("unknown URI prefix code should fail")
	}
}

func TestBuilders_RoundTrip(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		raw, err := NewText("bonjour", "fr")
		if err != nil {
			t.Fatalf("NewText() error = %v", err)
		}
		msg, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		r := msg.Records[0]
		if r.Text != "bonjour" || r.Language != "fr" {
			t.Errorf("got text %q lang %q", r.Text, r.Language)
		}
	})

	t.Run("URI", func(t *testing.T) {
		raw, err := NewURI("https://nfc-forum.org")
		if err != nil {
			t.Fatalf("NewURI() error = %v", err)
		}
		msg, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if got := msg.Records[0].URI; got != "https://nfc-forum.org" {
			t.Errorf("URI = %q", got)
		}
	})
}

func TestMessage_Describe(t *testing.T) {
	msg := &Message{Records: []Record{
		{TNF: TNFWellKnown, Type: "T", Text: "Hi", Language: "en"},
		{TNF: TNFWellKnown, Type: "U", URI: "tel:123"},
		{TNF: TNFMedia, Type: "text/plain", Payload: []byte("abc")},
	}}

	want := "=== NDEF MESSAGE (3 record(s)) ===\n" +
		"[1] Text (en): Hi\n" +
		"[2] URI: tel:123\n" +
		"[3] TNF 2, type \"text/plain\", 3 byte payload"

	if diff := cmp.Diff(want, msg.Describe()); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}
