package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// DescribeBlocks renders one report line per block, in the
// "    - <prefix>.Tag <tag>: <HEX>" layout used by the trace reports.
func DescribeBlocks(prefix string, blocks []bertlv.TLV) []string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		lines = append(lines, fmt.Sprintf("    - %s.Tag %s: %X", prefix, strings.ToUpper(b.Tag), rawValue(b)))
	}
	return lines
}

// MakeSafeASCII replaces every non-printable character with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
