package type4

import (
	"fmt"

	"github.com/gregLibert/nfc-type4/pkg/iso7816"
)

const maxOffset = 0xFFFF

// ChunkedReader plans and reassembles the READ BINARY sequence covering
// [start, start+length) of the selected file. It is a value: Accept returns
// the next reader and leaves the receiver usable as it was.
type ChunkedReader struct {
	start    int
	length   int
	maxChunk int
	read     int
	tail     *chunk
}

// chunk is an immutable list of received data, newest first.
type chunk struct {
	data []byte
	prev *chunk
}

// NewChunkedReader validates the window. maxChunk must be 1..255, and the
// tail of the window must stay reachable from a 16-bit offset.
func NewChunkedReader(start, length, maxChunk int) (ChunkedReader, error) {
	if maxChunk < 1 || maxChunk > iso7816.MaxReadBinaryLe {
		return ChunkedReader{}, fmt.Errorf("%w: chunk size %d outside 1..%d", iso7816.ErrInvalidLength, maxChunk, iso7816.MaxReadBinaryLe)
	}
	if start < 0 || start > maxOffset || length < 0 {
		return ChunkedReader{}, fmt.Errorf("%w: window %d+%d", iso7816.ErrInvalidLength, start, length)
	}
	if end := start + length; end > maxOffset+1 && end-maxOffset > maxChunk {
		return ChunkedReader{}, fmt.Errorf("%w: %d bytes past offset %04X with chunks of %d", iso7816.ErrInvalidLength, end-maxOffset, maxOffset, maxChunk)
	}
	return ChunkedReader{
		start:    start,
		length:   length,
		maxChunk: maxChunk,
	}, nil
}

// Next returns the offset and length of the next READ BINARY. ok is false
// once the window is complete.
func (r ChunkedReader) Next() (offset uint16, n int, ok bool) {
	remaining := r.length - r.read
	if remaining <= 0 {
		return 0, 0, false
	}

	off := r.start + r.read
	n = min(r.maxChunk, remaining)

	// Keep the following chunk addressable: stop this one at FFFF when it
	// would otherwise end on the 64K boundary with bytes left over.
	if off+n > maxOffset && remaining > n {
		n = maxOffset - off
	}
	return uint16(off), n, true
}

// Request builds the next READ BINARY under cla.
func (r ChunkedReader) Request(cla iso7816.Class) (*iso7816.CommandAPDU, error) {
	off, n, ok := r.Next()
	if !ok {
		return nil, ErrSessionDone
	}
	return iso7816.ReadBinary(cla, off, n)
}

// Accept consumes the response to the request planned by Next. A short but
// non-empty answer advances by what was returned.
func (r ChunkedReader) Accept(resp *iso7816.ResponseAPDU) (ChunkedReader, error) {
	off, n, ok := r.Next()
	if !ok {
		return r, ErrSessionDone
	}
	if resp == nil {
		return r, fmt.Errorf("%w: no response", iso7816.ErrMalformedResponse)
	}
	if !resp.Status.IsSuccess() {
		return r, &StatusError{State: Reading, Status: resp.Status, Reason: ErrNDEFReadFailed}
	}

	switch got := len(resp.Data); {
	case got == 0:
		return r, fmt.Errorf("%w: empty chunk at offset %04X", iso7816.ErrMalformedResponse, off)
	case got > n:
		return r, fmt.Errorf("%w: %d bytes returned for %d requested at offset %04X", iso7816.ErrMalformedResponse, got, n, off)
	}

	next := r
	next.tail = &chunk{data: append([]byte(nil), resp.Data...), prev: r.tail}
	next.read += len(resp.Data)
	if !next.Done() && next.start+next.read > maxOffset {
		return r, fmt.Errorf("%w: short read at %04X leaves bytes past offset %04X", iso7816.ErrMalformedResponse, off, maxOffset)
	}
	return next, nil
}

// Done reports whether the whole window was read.
func (r ChunkedReader) Done() bool {
	return r.read == r.length
}

// Read returns how many bytes were reassembled so far.
func (r ChunkedReader) Read() int {
	return r.read
}

// Payload returns a copy of the window, or nil while it is incomplete.
func (r ChunkedReader) Payload() []byte {
	if !r.Done() {
		return nil
	}
	out := make([]byte, r.length)
	pos := r.length
	for c := r.tail; c != nil; c = c.prev {
		pos -= len(c.data)
		copy(out[pos:], c.data)
	}
	return out
}
