package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/moov-io/bertlv"
)

// ErrTruncated reports a simple-TLV block running past the end of its data.
var ErrTruncated = errors.New("simple-TLV block truncated")

// DecodeSimple walks NFC Forum simple-TLV blocks: a one byte tag, then a one
// byte length, or FF followed by a two byte big-endian length. Tags never
// nest, so every block comes back with Value set and no children.
//
// On ErrTruncated the blocks decoded before the damaged one are returned
// along with the error.
func DecodeSimple(data []byte) ([]bertlv.TLV, error) {
	var packets []bertlv.TLV
	for off := 0; off < len(data); {
		tag := data[off]
		off++
		if off >= len(data) {
			return packets, fmt.Errorf("%w: tag %02X has no length", ErrTruncated, tag)
		}

		n := int(data[off])
		off++
		if n == 0xFF {
			if off+2 > len(data) {
				return packets, fmt.Errorf("%w: tag %02X has an incomplete 3 byte length", ErrTruncated, tag)
			}
			n = int(binary.BigEndian.Uint16(data[off : off+2]))
			off += 2
		}
		if off+n > len(data) {
			return packets, fmt.Errorf("%w: tag %02X declares %d bytes, %d left", ErrTruncated, tag, n, len(data)-off)
		}

		packets = append(packets, bertlv.TLV{
			Tag:   fmt.Sprintf("%02X", tag),
			Value: append([]byte(nil), data[off:off+n]...),
		})
		off += n
	}
	return packets, nil
}
