package ingest

import "github.com/cognicore/neardup/pkg/neardup/minhash"

// Pipeline orchestrates the per-document flow:
// raw text → canonical text → token set → MinHash signature
type Pipeline struct {
	canon    Canonicalizer
	shingler *Shingler
	hasher   *minhash.Hasher
}

// NewPipeline creates a pipeline with the given components
func NewPipeline(canon Canonicalizer, shingler *Shingler, hasher *minhash.Hasher) *Pipeline {
	if canon == nil {
		canon = RawCanonicalizer{}
	}
	if shingler == nil {
		shingler = NewShingler(1)
	}
	return &Pipeline{
		canon:    canon,
		shingler: shingler,
		hasher:   hasher,
	}
}

// ProcessedDoc represents a document after signing
type ProcessedDoc struct {
	Canonical string
	Tokens    TokenSet
	Signature minhash.Signature
}

// NumPerm returns the signature length every processed document gets.
func (p *Pipeline) NumPerm() int { return p.hasher.NumPerm() }

// Process runs a document through the full pipeline. It shares no state
// between calls and is safe to run from many goroutines.
func (p *Pipeline) Process(text string) ProcessedDoc {
	// 1. Strip template decoration
	canonical := p.canon.Canonicalize(text)

	// 2. Distinct whitespace tokens
	tokens := p.shingler.Shingle(canonical)

	// 3. Signature
	sig := p.hasher.Signature(tokens)

	return ProcessedDoc{
		Canonical: canonical,
		Tokens:    tokens,
		Signature: sig,
	}
}
