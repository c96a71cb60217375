package tlv

import (
	"bytes"
	"testing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		name    string
		parts   []string
		want    []byte
		wantErr bool
	}{
		{"SELECT header split over parts", []string{"00 A4", "04 00"}, []byte{0x00, 0xA4, 0x04, 0x00}, false},
		{"Packed AID", []string{"D2760000850101"}, []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}, false},
		{"Colon separated UID", []string{"04:A2:2B:1A"}, []byte{0x04, 0xA2, 0x2B, 0x1A}, false},
		{"Lower case trailer", []string{"90", "00", "6a82"}, []byte{0x90, 0x00, 0x6A, 0x82}, false},
		{"Nothing", nil, []byte{}, false},
		{"Not hex", []string{"E1 0G"}, nil, true},
		{"Odd digit count", []string{"D2 7"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHex(tt.parts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHex() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, tt.want) {
				t.Errorf("ParseHex() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestHex_PanicsOnBadFixture(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Hex() did not panic on an invalid fixture")
		}
	}()
	Hex("00 B0 00 0")
}
