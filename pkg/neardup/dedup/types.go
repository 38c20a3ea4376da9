package dedup

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/cognicore/neardup/pkg/neardup/ingest"
	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/lsh"
)

// DefaultQueueSize bounds the number of records between the reader and the
// decision consumer.
const DefaultQueueSize = 1024

// DefaultCommitBatch is the number of store rows staged between output
// flushes.
const DefaultCommitBatch = 4096

// State is the lifecycle position of a record.
type State int

const (
	StateReceived State = iota
	StateCanonicalized
	StateSigned
	StateQueried
	StateKept
	StateDropped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateCanonicalized:
		return "canonicalized"
	case StateSigned:
		return "signed"
	case StateQueried:
		return "queried"
	case StateKept:
		return "kept"
	case StateDropped:
		return "dropped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// VerifyMode selects how LSH candidates are confirmed before a drop.
type VerifyMode string

const (
	// VerifyNone trusts the first LSH candidate.
	VerifyNone VerifyMode = "none"
	// VerifySignature requires the MinHash estimate to reach the threshold.
	VerifySignature VerifyMode = "signature"
	// VerifyExact requires the true Jaccard similarity to reach the threshold.
	VerifyExact VerifyMode = "exact"
)

// ParseVerifyMode maps a mode name; the empty string means VerifyNone.
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch m := VerifyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return VerifyNone, nil
	case VerifyNone, VerifySignature, VerifyExact:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown verify mode %q", internalerr.ErrInvalidConfig, s)
	}
}

// Config holds the decision engine settings.
type Config struct {
	Threshold        float64
	NumPerm          int
	Params           lsh.Params
	Verify           VerifyMode
	MaxAuditExamples int
	Workers          int
	QueueSize        int
	CommitBatch      int
}

// Validate checks the settings and fills in zero-valued concurrency knobs.
func (c *Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("%w: threshold %v outside (0,1)", internalerr.ErrInvalidConfig, c.Threshold)
	}
	if err := c.Params.Validate(c.NumPerm); err != nil {
		return err
	}
	mode, err := ParseVerifyMode(string(c.Verify))
	if err != nil {
		return err
	}
	c.Verify = mode
	if c.MaxAuditExamples < 0 {
		return fmt.Errorf("%w: max audit examples %d is negative", internalerr.ErrInvalidConfig, c.MaxAuditExamples)
	}
	if c.Workers < 0 || c.QueueSize < 0 || c.CommitBatch < 0 {
		return fmt.Errorf("%w: workers, queue size and commit batch must not be negative", internalerr.ErrInvalidConfig)
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.CommitBatch == 0 {
		c.CommitBatch = DefaultCommitBatch
	}
	return nil
}

// Signed is a record after the parallel stage: parsed, canonicalized,
// shingled and signed. Err is set when the record failed before signing.
type Signed struct {
	Seq    int
	Record ingest.Record
	Doc    ingest.ProcessedDoc
	State  State
	Err    error
}

// Decision is the outcome for one record. RepresentativeID is set only for
// dropped records and always names a kept record. Handle is the index entry
// of the kept record itself, or of the representative when dropped.
type Decision struct {
	Seq              int
	Line             int
	DocID            string
	Kept             bool
	RepresentativeID string
	Handle           int
	Candidates       int
	State            State
	Err              error
}
