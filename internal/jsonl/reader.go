package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
)

// DefaultMaxLineBytes caps a single input line.
const DefaultMaxLineBytes = 64 << 20

const readBufferSize = 64 * 1024

// Reader yields the non-blank lines of a JSONL stream in order.
type Reader struct {
	br   *bufio.Reader
	max  int
	line int
	buf  []byte
}

// NewReader wraps r. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func NewReader(r io.Reader, maxLineBytes int) *Reader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Reader{
		br:  bufio.NewReaderSize(r, readBufferSize),
		max: maxLineBytes,
	}
}

// Next returns a copy of the next non-blank line with any trailing \r
// removed, and its 1-based line number. It returns io.EOF at the end.
//
// A line longer than the limit is skipped up to its newline and reported
// as an ErrMalformedRecord carrying its line number; reading can continue
// after it. Any other error comes from the underlying reader.
func (r *Reader) Next() ([]byte, int, error) {
	for {
		raw, tooLong, err := r.readLine()
		if err != nil {
			return nil, r.line, err
		}
		r.line++
		if tooLong {
			return nil, r.line, fmt.Errorf("line %d: %w: longer than %d bytes", r.line, internalerr.ErrMalformedRecord, r.max)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		return bytes.Clone(raw), r.line, nil
	}
}

// readLine reads up to the next newline. Once a line outgrows the limit
// its bytes are discarded instead of buffered.
func (r *Reader) readLine() ([]byte, bool, error) {
	r.buf = r.buf[:0]
	tooLong := false
	for {
		chunk, err := r.br.ReadSlice('\n')
		if !tooLong {
			r.buf = append(r.buf, chunk...)
			// Leave room for a trailing \r\n.
			if len(r.buf) > r.max+2 {
				tooLong = true
				r.buf = r.buf[:0]
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(r.buf) == 0 && !tooLong {
				return nil, false, io.EOF
			}
		default:
			return nil, false, err
		}

		if tooLong {
			return nil, true, nil
		}
		raw := bytes.TrimSuffix(r.buf, []byte{'\n'})
		raw = bytes.TrimSuffix(raw, []byte{'\r'})
		if len(raw) > r.max {
			return nil, true, nil
		}
		return raw, false, nil
	}
}
