package type4_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/nfc-type4/pkg/hce"
	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/gregLibert/nfc-type4/pkg/iso7816"
	"github.com/gregLibert/nfc-type4/pkg/ndef"
	"github.com/gregLibert/nfc-type4/pkg/tlv"
	"github.com/gregLibert/nfc-type4/pkg/type4"
	"github.com/rs/zerolog"
)

func newTag(t *testing.T, msg []byte, opts ...hce.Option) *hce.Tag {
	t.Helper()
	tag, err := hce.NewTag(msg, opts...)
	if err != nil {
		t.Fatalf("hce.NewTag() error = %v", err)
	}
	return tag
}

func hexes(cmds [][]byte) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = fmt.Sprintf("% X", c)
	}
	return out
}

func TestReader_ScenarioA(t *testing.T) {
	payload := tlv.Hex("D0 00 00 00 00")
	tag := newTag(t, payload)

	res, err := type4.NewReader(tag, tag).Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := []string{
		"00 A4 04 00 07 D2 76 00 00 85 01 01",
		"00 A4 00 0C 02 E1 03",
		"00 B0 00 00 0F",
		"00 A4 00 0C 02 E1 04",
		"00 B0 00 00 02",
		"00 B0 00 02 05",
	}
	if diff := cmp.Diff(want, hexes(tag.Sent())); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}

	if res.State != type4.Complete || res.File.NLEN != 5 || !bytes.Equal(res.File.Payload, payload) {
		t.Errorf("unexpected result: state %s file %+v", res.State, res.File)
	}
	if len(res.Trace) != len(want) || !res.Trace.IsSuccess() {
		t.Errorf("trace of %d exchanges, success %v", len(res.Trace), res.Trace.IsSuccess())
	}
	if tag.Deselects() != 1 {
		t.Errorf("card deselected %d times, want 1", tag.Deselects())
	}
}

func TestReader_ScenarioB(t *testing.T) {
	tag := newTag(t, nil, hce.WithFault(1, iso7816.SW_ERR_FILE_NOT_FOUND))

	res, err := type4.NewReader(tag, tag).Read()
	if !errors.Is(err, type4.ErrApplicationNotFound) {
		t.Fatalf("Read() error = %v, want ErrApplicationNotFound", err)
	}

	var se *type4.StatusError
	if !errors.As(err, &se) || se.Status != 0x6A82 || se.Classification() != iso7816.FileNotFound {
		t.Errorf("error %v does not carry 6A82/FileNotFound", err)
	}
	if n := len(tag.Sent()); n != 1 {
		t.Errorf("%d APDUs sent, want 1", n)
	}
	if res.State != type4.Aborted || res.File != nil {
		t.Errorf("state %s file %v, want Aborted without file", res.State, res.File)
	}
}

func TestReader_ScenarioC(t *testing.T) {
	tag := newTag(t, nil, hce.WithMoreCards())

	res, err := type4.NewReader(tag, tag).Read()

	var ae *type4.ActivationError
	if !errors.As(err, &ae) || !errors.Is(err, iso14443.ErrMultipleCards) {
		t.Fatalf("Read() error = %v, want ActivationError for several cards", err)
	}
	if res.State != type4.Idle {
		t.Errorf("state = %s, want Idle", res.State)
	}
	if n := len(tag.Sent()); n != 0 {
		t.Errorf("%d APDUs sent, want none", n)
	}
}

func TestReader_Skips(t *testing.T) {
	t.Run("Empty field", func(t *testing.T) {
		tag := newTag(t, nil)
		tag.Remove()

		_, err := type4.NewReader(tag, tag).Read()
		var ae *type4.ActivationError
		if !errors.As(err, &ae) || !errors.Is(err, iso14443.ErrNoTarget) {
			t.Errorf("Read() error = %v, want ActivationError(ErrNoTarget)", err)
		}
	})

	t.Run("Not ISO14443-4", func(t *testing.T) {
		tag := newTag(t, nil, hce.WithSAK(0x08))

		_, err := type4.NewReader(tag, tag).Read()
		if !errors.Is(err, iso14443.ErrNotISO14443_4) {
			t.Errorf("Read() error = %v, want ErrNotISO14443_4", err)
		}
		if tag.Deselects() != 1 {
			t.Errorf("skipped card deselected %d times, want 1", tag.Deselects())
		}
	})
}

func TestReader_TransportFailure(t *testing.T) {
	boom := errors.New("RF field lost")
	tag := newTag(t, tlv.Hex("01 02 03"), hce.WithTransportError(4, boom))

	res, err := type4.NewReader(tag, tag).Read()

	var te *type4.TransportError
	if !errors.As(err, &te) || !errors.Is(err, boom) || !errors.Is(err, iso7816.ErrTransmission) {
		t.Fatalf("Read() error = %v, want TransportError wrapping %v", err, boom)
	}
	if te.Op != "SELECT" {
		t.Errorf("Op = %q, want SELECT", te.Op)
	}
	if res.State != type4.Aborted || len(res.Trace) != 3 {
		t.Errorf("state %s with %d exchanges", res.State, len(res.Trace))
	}
}

func TestReader_Payloads(t *testing.T) {
	long := bytes.Repeat([]byte("0123456789"), 120)

	tests := []struct {
		name      string
		msg       []byte
		tagOpts   []hce.Option
		readOpts  []type4.Option
		wantReads int // READ BINARY commands for the payload
	}{
		{
			name:      "Single chunk",
			msg:       tlv.Hex("D1 01 04 54 02 65 6E 61"),
			wantReads: 1,
		},
		{
			name:      "Chunked by MLe",
			msg:       long,
			tagOpts:   []hce.Option{hce.WithMaxReadSize(0x3B)},
			wantReads: 21,
		},
		{
			name:      "Chunked by option",
			msg:       long,
			readOpts:  []type4.Option{type4.WithMaxChunk(100)},
			wantReads: 12,
		},
		{
			name:      "Short reads",
			msg:       long,
			tagOpts:   []hce.Option{hce.WithShortReads(200)},
			wantReads: 6,
		},
		{
			name:      "GET RESPONSE bridge",
			msg:       long,
			tagOpts:   []hce.Option{hce.WithGetResponse()},
			wantReads: 5,
		},
		{
			name:      "Mapping 3.0 file control",
			msg:       long,
			tagOpts:   []hce.Option{hce.WithExtendedFileControl(), hce.WithFileID(0x0001)},
			wantReads: 5,
		},
		{
			name:      "Mapping 3.0 CC longer than MLe",
			msg:       long,
			tagOpts:   []hce.Option{hce.WithExtendedFileControl(), hce.WithMaxReadSize(0x0F)},
			wantReads: 80,
		},
		{
			name:      "Empty message",
			msg:       nil,
			wantReads: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := newTag(t, tt.msg, tt.tagOpts...)

			res, err := type4.NewReader(tag, tag, tt.readOpts...).Read()
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !bytes.Equal(res.File.Payload, tt.msg) {
				t.Fatalf("payload mismatch: got %d bytes, want %d", len(res.File.Payload), len(tt.msg))
			}

			// Payload reads follow the 2 byte NLEN read.
			reads, payload := 0, false
			for _, tx := range res.Trace {
				if tx.Command.Instruction.Raw != iso7816.INS_READ_BINARY {
					continue
				}
				if payload {
					reads++
				} else if iso7816.ReadBinaryOffset(tx.Command) == 0 && tx.Command.Ne == 2 {
					payload = true
				}
			}
			if reads != tt.wantReads {
				t.Errorf("%d payload reads, want %d", reads, tt.wantReads)
			}
		})
	}
}

func TestReader_StrictFileSize(t *testing.T) {
	// NLEN 3 plus its own 2 bytes does not fit the 4-byte file announced
	// in the CC.
	tag := newTag(t, tlv.Hex("01 02 03"), hce.WithMaxFileSize(4))

	if _, err := type4.NewReader(tag, tag).Read(); err != nil {
		t.Errorf("lenient Read() error = %v", err)
	}
	if _, err := type4.NewReader(tag, tag, type4.WithStrictFileSize()).Read(); !errors.Is(err, type4.ErrNLENExceedsFileSize) {
		t.Errorf("strict Read() error = %v, want ErrNLENExceedsFileSize", err)
	}
}

func TestReader_DecodesText(t *testing.T) {
	tag, err := hce.NewTextTag("Hello, Type 4")
	if err != nil {
		t.Fatalf("NewTextTag() error = %v", err)
	}

	res, err := type4.NewReader(tag, tag, type4.WithLogger(zerolog.Nop())).Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	msg, err := ndef.Parse(res.File.Payload)
	if err != nil {
		t.Fatalf("ndef.Parse() error = %v", err)
	}
	if len(msg.Records) != 1 || msg.Records[0].Text != "Hello, Type 4" {
		t.Errorf("records = %+v", msg.Records)
	}
}

func TestReader_Class(t *testing.T) {
	cla, _ := iso7816.NewClass(0x01)
	tag := newTag(t, nil)

	_, err := type4.NewReader(tag, tag, type4.WithClass(cla)).Read()
	if !errors.Is(err, type4.ErrApplicationNotFound) {
		t.Fatalf("Read() error = %v, want ErrApplicationNotFound", err)
	}
	if sent := tag.Sent(); len(sent) != 1 || sent[0][0] != 0x01 {
		t.Errorf("sent %X, want a single command on channel 1", sent)
	}
}
