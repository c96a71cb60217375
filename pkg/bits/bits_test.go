package bits

import "testing"

func TestBit(t *testing.T) {
	tests := []struct {
		n        uint
		expected byte
	}{
		{1, 0x01}, {6, 0x20}, {8, 0x80},
		{0, 0x00}, {9, 0x00}, // out of range
	}

	for _, tt := range tests {
		if res := Bit(tt.n); res != tt.expected {
			t.Errorf("Bit(%d) = 0x%02X; want 0x%02X", tt.n, res, tt.expected)
		}
	}
}

func TestIsSet_SAK(t *testing.T) {
	tests := []struct {
		name string
		sak  byte
		want bool
	}{
		{"ISO14443-4 compliant", 0x20, true},
		{"DESFire", 0x24, true},
		{"MIFARE Classic 1K", 0x08, false},
		{"Ultralight", 0x00, false},
		{"Classic with -4 emulation", 0x28, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSet(tt.sak, 6); got != tt.want {
				t.Errorf("IsSet(0x%02X, 6) = %v; want %v", tt.sak, got, tt.want)
			}
		})
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		name     string
		input    byte
		high     uint
		low      uint
		expected byte
	}{
		{"Bits 4-3 of 0x0C", 0b0000_1100, 4, 3, 3},
		{"Bits 2-1 of 0x03", 0b0000_0011, 2, 1, 3},
		{"Bits 8-5 of 0xC3", 0b1100_0011, 8, 5, 0x0C},
		{"Full Byte", 0xAA, 8, 1, 0xAA},
		{"Inverted range", 0xFF, 1, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := GetRange(tt.input, tt.high, tt.low); res != tt.expected {
				t.Errorf("GetRange(0x%02X, %d, %d) = %d; want %d", tt.input, tt.high, tt.low, res, tt.expected)
			}
		})
	}
}

func TestSet(t *testing.T) {
	if b := Set(0, 5); b != 0x10 {
		t.Errorf("Set(0, 5) = 0b%08b; want 0b%08b", b, 0x10)
	}
	if b := Set(0x20, 6); b != 0x20 {
		t.Errorf("Set(0x20, 6) = 0x%02X; want it unchanged", b)
	}
}

func TestSetRange(t *testing.T) {
	tests := []struct {
		name      string
		b         byte
		high, low uint
		v         byte
		want      byte
	}{
		{"P2 control bits", 0x00, 4, 3, 0b11, 0x0C},
		{"Overwrites field", 0xFF, 2, 1, 0b00, 0xFC},
		{"Truncates wide value", 0x00, 2, 1, 0xFF, 0x03},
		{"Invalid range keeps input", 0x5A, 3, 4, 0x01, 0x5A},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SetRange(tt.b, tt.high, tt.low, tt.v); got != tt.want {
				t.Errorf("SetRange(0x%02X, %d, %d, 0x%02X) = 0x%02X; want 0x%02X",
					tt.b, tt.high, tt.low, tt.v, got, tt.want)
			}
		})
	}
}
