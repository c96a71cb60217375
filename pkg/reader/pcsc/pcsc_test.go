package pcsc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ebfe/scard"
	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/gregLibert/nfc-type4/pkg/tlv"
)

type fakeCard struct {
	atr         []byte
	uidResponse []byte
	responses   map[string][]byte
	transmitErr error
	disposed    []scard.Disposition
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	if c.transmitErr != nil {
		return nil, c.transmitErr
	}
	if bytes.Equal(cmd, getUID) {
		return c.uidResponse, nil
	}
	if rsp, ok := c.responses[string(cmd)]; ok {
		return rsp, nil
	}
	return []byte{0x6D, 0x00}, nil
}

func (c *fakeCard) Status() (*scard.CardStatus, error) {
	return &scard.CardStatus{Atr: c.atr}, nil
}

func (c *fakeCard) Disconnect(d scard.Disposition) error {
	c.disposed = append(c.disposed, d)
	return nil
}

func connectTo(card *fakeCard, err error) func() (Card, error) {
	return func() (Card, error) {
		if err != nil {
			return nil, err
		}
		return card, nil
	}
}

func TestReader_Activate(t *testing.T) {
	tests := []struct {
		name    string
		atr     []byte
		uid     []byte
		wantSAK byte
		wantUID []byte
	}{
		{
			name:    "ISO14443-4 card",
			atr:     tlv.Hex("3B 81 80 01 80 80"),
			uid:     tlv.Hex("04 A2 24 92 5C 61 80 90 00"),
			wantSAK: 0x20,
			wantUID: tlv.Hex("04 A2 24 92 5C 61 80"),
		},
		{
			name:    "Storage card",
			atr:     tlv.Hex("3B 8F 80 01 80 4F 0C A0 00 00 03 06 03 00 03 00 00 00 00 68"),
			uid:     tlv.Hex("04 11 22 33 44 55 66 90 00"),
			wantSAK: 0x08,
			wantUID: tlv.Hex("04 11 22 33 44 55 66"),
		},
		{
			name:    "UID not available",
			atr:     tlv.Hex("3B 81 80 01 80 80"),
			uid:     tlv.Hex("6A 81"),
			wantSAK: 0x20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := &fakeCard{atr: tt.atr, uidResponse: tt.uid}
			r := newReader("ACS ACR122U", connectTo(card, nil))

			act, err := r.Activate()
			if err != nil {
				t.Fatalf("Activate() error = %v", err)
			}
			if act.SAK != tt.wantSAK || !bytes.Equal(act.UID, tt.wantUID) {
				t.Errorf("Activate() = %s, want SAK %02X UID %X", act, tt.wantSAK, tt.wantUID)
			}
			if !bytes.Equal(r.ATR(), tt.atr) {
				t.Errorf("ATR() = %X", r.ATR())
			}
		})
	}
}

func TestReader_ActivateEmptyField(t *testing.T) {
	r := newReader("ACS ACR122U", connectTo(nil, scard.ErrNoSmartcard))

	_, err := r.Activate()
	if !errors.Is(err, iso14443.ErrNoTarget) || !errors.Is(err, scard.ErrNoSmartcard) {
		t.Errorf("Activate() error = %v, want ErrNoTarget", err)
	}
}

func TestReader_ActivateFailure(t *testing.T) {
	r := newReader("ACS ACR122U", connectTo(nil, scard.ErrSharingViolation))

	_, err := r.Activate()
	if err == nil || errors.Is(err, iso14443.ErrNoTarget) {
		t.Errorf("Activate() error = %v, want a reader failure", err)
	}
}

func TestReader_Transmit(t *testing.T) {
	card := &fakeCard{
		atr:         tlv.Hex("3B 81 80 01 80 80"),
		uidResponse: tlv.Hex("01 02 03 04 90 00"),
		responses: map[string][]byte{
			string(tlv.Hex("00 A4 04 00 07 D2 76 00 00 85 01 01")): tlv.Hex("90 00"),
		},
	}
	r := newReader("ACS ACR122U", connectTo(card, nil))

	if _, err := r.Transmit(tlv.Hex("00 A4 04 00 07 D2 76 00 00 85 01 01")); !errors.Is(err, iso14443.ErrNoTarget) {
		t.Errorf("Transmit() before Activate error = %v, want ErrNoTarget", err)
	}

	if _, err := r.Activate(); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	rsp, err := r.Transmit(tlv.Hex("00 A4 04 00 07 D2 76 00 00 85 01 01"))
	if err != nil || !bytes.Equal(rsp, tlv.Hex("90 00")) {
		t.Errorf("Transmit() = %X, %v", rsp, err)
	}

	card.transmitErr = scard.ErrRemovedCard
	if _, err := r.Transmit(tlv.Hex("00 B0 00 00 0F")); !errors.Is(err, iso14443.ErrNoTarget) {
		t.Errorf("Transmit() after removal error = %v, want ErrNoTarget", err)
	}
	if r.ATR() != nil {
		t.Error("removed card still reported as connected")
	}
}

func TestReader_Deselect(t *testing.T) {
	card := &fakeCard{atr: tlv.Hex("3B 81 80 01 80 80"), uidResponse: tlv.Hex("90 00")}
	released := 0
	r := newReader("ACS ACR122U", connectTo(card, nil))
	r.release = func() error {
		released++
		return nil
	}

	if err := r.Deselect(); err != nil {
		t.Errorf("Deselect() without card error = %v", err)
	}

	if _, err := r.Activate(); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if err := r.Deselect(); err != nil {
		t.Fatalf("Deselect() error = %v", err)
	}
	if len(card.disposed) != 1 || card.disposed[0] != scard.ResetCard {
		t.Errorf("dispositions = %v, want [ResetCard]", card.disposed)
	}

	if _, err := r.Activate(); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(card.disposed) != 2 || card.disposed[1] != scard.LeaveCard || released != 1 {
		t.Errorf("dispositions = %v, released %d", card.disposed, released)
	}
}

func TestPickReader(t *testing.T) {
	readers := []string{"Yubico YubiKey OTP+FIDO+CCID 00 00", "ACS ACR122U PICC Interface 01 00"}

	if name, ok := pickReader(readers, "ACR122"); !ok || name != readers[1] {
		t.Errorf("pickReader(ACR122) = %q, %v", name, ok)
	}
	if name, ok := pickReader(readers, ""); !ok || name != readers[0] {
		t.Errorf("pickReader(\"\") = %q, %v", name, ok)
	}
	if _, ok := pickReader(readers, "OMNIKEY"); ok {
		t.Error("pickReader(OMNIKEY) matched")
	}
	if _, ok := pickReader(nil, ""); ok {
		t.Error("pickReader on no readers matched")
	}
}
