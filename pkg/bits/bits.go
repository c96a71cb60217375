// Package bits reads and writes single bits of protocol bytes using the
// 1-based numbering found in ISO/IEC 7816 and ISO/IEC 14443 tables, where
// b8 is the most significant bit and b1 the least significant one.
package bits

// Bit returns a mask with only bit n set. Out of range positions give 0.
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet reports whether bit n of b is 1.
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// Set returns b with bit n forced to 1.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// GetRange extracts the field spanning bits high..low, shifted down.
// GetRange(0b0000_1100, 4, 3) == 3.
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}
	width := high - low + 1
	mask := byte((1 << width) - 1)
	return (b >> (low - 1)) & mask
}

// SetRange writes v into bits high..low of b. Bits of v beyond the field
// width are dropped.
func SetRange(b byte, high, low uint, v byte) byte {
	if high < low || high > 8 || low < 1 {
		return b
	}
	width := high - low + 1
	mask := byte((1<<width)-1) << (low - 1)
	return (b &^ mask) | ((v << (low - 1)) & mask)
}
