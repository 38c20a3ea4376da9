package minhash

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
)

const (
	// MersennePrime is the modulus of the universal hash family (2^61 - 1).
	MersennePrime uint64 = (1 << 61) - 1

	// Empty is the value every position takes for an empty token set.
	// Permuted values are always below MersennePrime, so it never collides
	// with a real minimum.
	Empty uint64 = math.MaxUint64

	DefaultNumPerm = 256
	DefaultSeed    = uint64(1)
)

// TokenHash maps a token to the base hash the family permutes.
type TokenHash func(token string) uint64

// DefaultTokenHash hashes tokens with xxhash64.
func DefaultTokenHash(token string) uint64 {
	return xxhash.Sum64String(token)
}

// Family is an indexed set of independent hash functions over base token
// hashes. Apply(i, x) is h_i(x). Implementations must be deterministic.
type Family interface {
	Size() int
	Apply(i int, x uint64) uint64
}

// UniversalFamily implements h_i(x) = (a_i*x + b_i) mod (2^61 - 1) with
// coefficients drawn from a PCG generator seeded by a fixed constant.
type UniversalFamily struct {
	a []uint64
	b []uint64
}

// NewUniversalFamily draws size coefficient pairs from seed.
// The same (size, seed) always yields the same family.
func NewUniversalFamily(size int, seed uint64) *UniversalFamily {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	f := &UniversalFamily{
		a: make([]uint64, size),
		b: make([]uint64, size),
	}
	for i := 0; i < size; i++ {
		f.a[i] = 1 + rng.Uint64N(MersennePrime-1)
		f.b[i] = rng.Uint64N(MersennePrime)
	}
	return f
}

// Size returns the number of hash functions in the family.
func (f *UniversalFamily) Size() int { return len(f.a) }

// Apply evaluates h_i(x) with exact 128-bit arithmetic.
func (f *UniversalFamily) Apply(i int, x uint64) uint64 {
	x = mod61(x)
	hi, lo := bits.Mul64(f.a[i], x)
	lo, carry := bits.Add64(lo, f.b[i], 0)
	hi += carry
	// 2^61 ≡ 1 (mod p): fold the 128-bit value into 61-bit limbs.
	s := (lo & MersennePrime) + (lo>>61 | hi<<3)
	s = (s & MersennePrime) + (s >> 61)
	if s >= MersennePrime {
		s -= MersennePrime
	}
	return s
}

func mod61(x uint64) uint64 {
	x = (x & MersennePrime) + (x >> 61)
	if x >= MersennePrime {
		x -= MersennePrime
	}
	return x
}

// Hasher computes MinHash signatures of token sets.
type Hasher struct {
	base   TokenHash
	family Family
}

// New returns a Hasher with numPerm universal hash functions seeded by seed
// and xxhash64 as the base token hash.
func New(numPerm int, seed uint64) (*Hasher, error) {
	if numPerm <= 0 {
		return nil, fmt.Errorf("%w: num_perm must be positive (got %d)", internalerr.ErrInvalidConfig, numPerm)
	}
	return NewWithFamily(DefaultTokenHash, NewUniversalFamily(numPerm, seed)), nil
}

// NewWithFamily returns a Hasher over an arbitrary base hash and family.
// Tests use it to inject stub families with fully controlled collisions.
func NewWithFamily(base TokenHash, family Family) *Hasher {
	if base == nil {
		base = DefaultTokenHash
	}
	return &Hasher{base: base, family: family}
}

// NumPerm returns the signature length.
func (h *Hasher) NumPerm() int { return h.family.Size() }

// Signature returns signature[i] = min over tokens of h_i(hash(token)).
// An empty set yields Empty at every position.
func (h *Hasher) Signature(tokens map[string]struct{}) Signature {
	n := h.family.Size()
	sig := make(Signature, n)
	for i := range sig {
		sig[i] = Empty
	}
	for tok := range tokens {
		x := h.base(tok)
		for i := 0; i < n; i++ {
			if v := h.family.Apply(i, x); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Jaccard computes the exact Jaccard similarity of two token sets.
// Two empty sets are identical (1.0).
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
