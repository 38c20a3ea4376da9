package dedup

import (
	"github.com/cognicore/neardup/pkg/neardup/ingest"
	"github.com/cognicore/neardup/pkg/neardup/lsh"
	"github.com/cognicore/neardup/pkg/neardup/minhash"
)

// Verifier confirms LSH candidates. A nil Verifier accepts the first one.
type Verifier interface {
	// Match reports whether doc is a near-duplicate of the indexed entry.
	Match(rep lsh.Entry, doc Signed) bool
	// Remember is called for every record inserted into the index.
	Remember(rep lsh.Entry, doc Signed)
}

// NewVerifier returns the verifier for mode, or nil for VerifyNone.
func NewVerifier(mode VerifyMode, threshold float64) Verifier {
	switch mode {
	case VerifySignature:
		return signatureVerifier{threshold: threshold}
	case VerifyExact:
		return &exactVerifier{
			threshold: threshold,
			tokens:    make(map[int]ingest.TokenSet),
		}
	default:
		return nil
	}
}

type signatureVerifier struct {
	threshold float64
}

func (v signatureVerifier) Match(rep lsh.Entry, doc Signed) bool {
	est, err := rep.Signature.Jaccard(doc.Doc.Signature)
	return err == nil && est >= v.threshold
}

func (signatureVerifier) Remember(lsh.Entry, Signed) {}

// exactVerifier keeps the token set of every representative. Entries
// restored from a state store have no tokens and fall back to the estimate.
type exactVerifier struct {
	threshold float64
	tokens    map[int]ingest.TokenSet
}

func (v *exactVerifier) Match(rep lsh.Entry, doc Signed) bool {
	tokens, ok := v.tokens[rep.Handle]
	if !ok {
		return signatureVerifier{threshold: v.threshold}.Match(rep, doc)
	}
	return minhash.Jaccard(tokens, doc.Doc.Tokens) >= v.threshold
}

func (v *exactVerifier) Remember(rep lsh.Entry, doc Signed) {
	v.tokens[rep.Handle] = doc.Doc.Tokens
}
