package lsh

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/minhash"
)

// BandHash derives a bucket key from one band of a signature.
type BandHash func(band []uint64) uint64

// DefaultBandHash hashes the little-endian bytes of the band with xxhash64.
func DefaultBandHash(band []uint64) uint64 {
	buf := make([]byte, 8*len(band))
	for i, v := range band {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return xxhash.Sum64(buf)
}

// Entry is a representative stored in the index.
type Entry struct {
	Handle    int
	ID        string
	Signature minhash.Signature
}

// Stats summarizes bucket occupancy.
type Stats struct {
	Entries       int `json:"entries"`
	Buckets       int `json:"buckets"`
	LargestBucket int `json:"largest_bucket"`
}

// Option configures an Index.
type Option func(*Index)

// WithBandHash replaces the band key function.
func WithBandHash(h BandHash) Option {
	return func(ix *Index) {
		if h != nil {
			ix.hash = h
		}
	}
}

// Index is a banded LSH index over MinHash signatures.
//
// Each of the b bands maps a band key to the handles of the entries whose
// signature produced that key. Handles are insertion positions, so query
// results come back oldest-first.
//
// An Index is not safe for concurrent use. Callers that interleave Query and
// Insert must serialize each query/insert pair.
type Index struct {
	numPerm int
	params  Params
	hash    BandHash
	bands   []map[uint64][]int
	entries []Entry
}

// NewIndex builds an empty index for numPerm-long signatures.
func NewIndex(numPerm int, p Params, opts ...Option) (*Index, error) {
	if err := p.Validate(numPerm); err != nil {
		return nil, err
	}
	ix := &Index{
		numPerm: numPerm,
		params:  p,
		hash:    DefaultBandHash,
		bands:   make([]map[uint64][]int, p.Bands),
	}
	for i := range ix.bands {
		ix.bands[i] = make(map[uint64][]int)
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Params returns the banding layout.
func (ix *Index) Params() Params { return ix.params }

// NumPerm returns the signature length the index accepts.
func (ix *Index) NumPerm() int { return ix.numPerm }

func (ix *Index) bandKeys(sig minhash.Signature) ([]uint64, error) {
	if len(sig) != ix.numPerm {
		return nil, fmt.Errorf("%w: signature length %d, index expects %d", internalerr.ErrInvalidInput, len(sig), ix.numPerm)
	}
	keys := make([]uint64, ix.params.Bands)
	r := ix.params.Rows
	for j := range keys {
		keys[j] = ix.hash(sig[j*r : (j+1)*r])
	}
	return keys, nil
}

// Insert adds id to the bucket of every band of sig.
func (ix *Index) Insert(id string, sig minhash.Signature) (Entry, error) {
	keys, err := ix.bandKeys(sig)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Handle: len(ix.entries), ID: id, Signature: sig.Clone()}
	ix.entries = append(ix.entries, entry)
	for j, key := range keys {
		ix.bands[j][key] = append(ix.bands[j][key], entry.Handle)
	}
	return entry, nil
}

// QueryEntries returns every entry sharing at least one band bucket with
// sig, oldest first. No similarity verification is performed.
func (ix *Index) QueryEntries(sig minhash.Signature) ([]Entry, error) {
	keys, err := ix.bandKeys(sig)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]struct{})
	for j, key := range keys {
		for _, h := range ix.bands[j][key] {
			seen[h] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, nil
	}
	handles := make([]int, 0, len(seen))
	for h := range seen {
		handles = append(handles, h)
	}
	sort.Ints(handles)

	out := make([]Entry, len(handles))
	for i, h := range handles {
		out[i] = ix.entries[h]
	}
	return out, nil
}

// Query returns the IDs of all candidates for sig, oldest first.
func (ix *Index) Query(sig minhash.Signature) ([]string, error) {
	entries, err := ix.QueryEntries(sig)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Stats reports bucket occupancy across all bands.
func (ix *Index) Stats() Stats {
	st := Stats{Entries: len(ix.entries)}
	for _, band := range ix.bands {
		st.Buckets += len(band)
		for _, members := range band {
			if len(members) > st.LargestBucket {
				st.LargestBucket = len(members)
			}
		}
	}
	return st
}
