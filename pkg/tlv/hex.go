package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

var hexSeparators = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "")

// ParseHex decodes hex text as it appears in traces and datasheets:
// "D2 76 00 00 85 01 01", "d2:76:00" and "D2760000" are all accepted.
func ParseHex(parts ...string) ([]byte, error) {
	clean := hexSeparators.Replace(strings.Join(parts, ""))
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", clean, err)
	}
	return data, nil
}

// Hex is ParseHex for literals known to be valid. It panics on bad input.
func Hex(parts ...string) []byte {
	data, err := ParseHex(parts...)
	if err != nil {
		panic(err.Error())
	}
	return data
}
