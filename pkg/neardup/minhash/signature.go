package minhash

import (
	"encoding/binary"
	"fmt"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
)

// Signature is a MinHash signature: one minimum per hash function.
type Signature []uint64

// Len returns the number of positions.
func (s Signature) Len() int { return len(s) }

// IsEmpty reports whether s is the signature of an empty token set.
func (s Signature) IsEmpty() bool {
	for _, v := range s {
		if v != Empty {
			return false
		}
	}
	return true
}

// Jaccard estimates the Jaccard similarity of the underlying sets as the
// fraction of matching positions.
func (s Signature) Jaccard(other Signature) (float64, error) {
	if len(s) != len(other) {
		return 0, fmt.Errorf("%w: signature lengths differ (%d vs %d)", internalerr.ErrInvalidInput, len(s), len(other))
	}
	if len(s) == 0 {
		return 0, nil
	}
	matches := 0
	for i := range s {
		if s[i] == other[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(s)), nil
}

// Clone returns a copy that does not alias s.
func (s Signature) Clone() Signature {
	out := make(Signature, len(s))
	copy(out, s)
	return out
}

// MarshalBinary encodes the signature as little-endian uint64s.
func (s Signature) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf, nil
}

// UnmarshalBinary decodes a signature written by MarshalBinary.
func (s *Signature) UnmarshalBinary(data []byte) error {
	if len(data)%8 != 0 {
		return fmt.Errorf("%w: signature blob length %d is not a multiple of 8", internalerr.ErrInvalidInput, len(data))
	}
	out := make(Signature, len(data)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	*s = out
	return nil
}
