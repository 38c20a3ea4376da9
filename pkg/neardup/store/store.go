package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/minhash"
)

// Store persists the representatives of past runs so later runs (or other
// shards) deduplicate against them, plus an audit trail of dropped records.
type Store interface {
	Close() error

	// Meta describes how stored signatures were computed.
	Meta(ctx context.Context) (Meta, bool, error)
	SaveMeta(ctx context.Context, m Meta) error

	// Commit writes a batch of representatives and drops atomically.
	Commit(ctx context.Context, b Batch) error

	// Representatives
	Representatives(ctx context.Context, fn func(Representative) error) error
	CountRepresentatives(ctx context.Context) (int, error)

	// Audit trail
	Drops(ctx context.Context, runID string) ([]Drop, error)

	// Runs
	UpsertRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
}

// Meta is the signature layout a store was built with. Signatures are only
// comparable when every field matches.
type Meta struct {
	NumPerm       int    `json:"num_perm"`
	Bands         int    `json:"bands"`
	Rows          int    `json:"rows"`
	Seed          uint64 `json:"seed"`
	ShingleSize   int    `json:"shingle_size"`
	Canonicalizer string `json:"canonicalizer"`
}

// Compatible returns ErrInvalidConfig when other was built differently.
func (m Meta) Compatible(other Meta) error {
	if m != other {
		return fmt.Errorf("%w: state was built with %+v, current run uses %+v", internalerr.ErrInvalidConfig, m, other)
	}
	return nil
}

// Representative is a kept record's identity and signature.
type Representative struct {
	ID        string
	RunID     string
	Signature minhash.Signature
}

// Drop records that DocID was dropped as a near-duplicate of RepresentativeID.
type Drop struct {
	RunID            string
	DocID            string
	RepresentativeID string
	Line             int
}

// Batch groups the state produced by records whose output has been flushed.
type Batch struct {
	Representatives []Representative
	Drops           []Drop
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int { return len(b.Representatives) + len(b.Drops) }

// Run is the summary row of one dedup run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Threshold  float64
	Total      int
	Kept       int
	Dropped    int
	Errors     int
}
