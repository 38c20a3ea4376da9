package dedup

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognicore/neardup/internal/logger"
	"github.com/cognicore/neardup/pkg/neardup/ingest"
	"github.com/cognicore/neardup/pkg/neardup/lsh"
	"github.com/cognicore/neardup/pkg/neardup/minhash"
)

type lineSource struct {
	lines []string
	next  int
}

func newSource(lines ...string) *lineSource {
	return &lineSource{lines: lines}
}

func (s *lineSource) Next() ([]byte, int, error) {
	if s.next >= len(s.lines) {
		return nil, 0, io.EOF
	}
	s.next++
	return []byte(s.lines[s.next-1]), s.next, nil
}

// collectSink buffers written lines until Flush, like a buffered writer.
type collectSink struct {
	lines    []string
	flushed  int
	flushes  int
	failAt   int
	flushErr error
}

var errSinkFull = errors.New("sink full")

func (s *collectSink) Write(raw []byte) error {
	if s.failAt > 0 && len(s.lines)+1 >= s.failAt {
		return errSinkFull
	}
	s.lines = append(s.lines, string(raw))
	return nil
}

func (s *collectSink) Flush() error {
	if s.flushErr != nil {
		return s.flushErr
	}
	s.flushes++
	s.flushed = len(s.lines)
	return nil
}

// errSource fails with err in place of the line at position at.
type errSource struct {
	*lineSource
	at  int
	err error
}

func (s *errSource) Next() ([]byte, int, error) {
	if s.next == s.at {
		s.next++
		return nil, s.next, s.err
	}
	return s.lineSource.Next()
}

// identityFamily leaves base hashes untouched, so every signature position
// holds the smallest base hash of the set.
type identityFamily int

func (f identityFamily) Size() int                    { return int(f) }
func (f identityFamily) Apply(_ int, x uint64) uint64 { return x }

// rankHasher gives chosen tokens small fixed ranks. Two documents then
// share every band exactly when their lowest-ranked tokens agree.
func rankHasher(numPerm int, ranks map[string]uint64) *minhash.Hasher {
	return minhash.NewWithFamily(func(tok string) uint64 {
		if r, ok := ranks[tok]; ok {
			return r
		}
		return 100 + uint64(len(tok))
	}, identityFamily(numPerm))
}

func testConfig() Config {
	return Config{
		Threshold: 0.85,
		NumPerm:   256,
		Params:    lsh.Params{Bands: 16, Rows: 16},
		Workers:   4,
		QueueSize: 8,
	}
}

func newTestEngine(t *testing.T, cfg Config, hasher *minhash.Hasher, opts ...Option) *Engine {
	t.Helper()
	if hasher == nil {
		var err error
		hasher, err = minhash.New(cfg.NumPerm, minhash.DefaultSeed)
		require.NoError(t, err)
	}
	opts = append([]Option{WithLogger(logger.NewLogger(logger.TestConfig()))}, opts...)
	e, err := NewEngine(cfg, ingest.NewPipeline(nil, nil, hasher), opts...)
	require.NoError(t, err)
	return e
}

func record(id, text string) string {
	return fmt.Sprintf(`{"id":%q,"text":%q}`, id, text)
}

func tokenRange(prefix string, n int) ingest.TokenSet {
	set := make(ingest.TokenSet, n)
	for i := 0; i < n; i++ {
		set[fmt.Sprintf("%s_%d", prefix, i)] = struct{}{}
	}
	return set
}

func union(sets ...ingest.TokenSet) ingest.TokenSet {
	out := make(ingest.TokenSet)
	for _, s := range sets {
		for tok := range s {
			out[tok] = struct{}{}
		}
	}
	return out
}

func signedTokens(h *minhash.Hasher, seq int, id string, tokens ingest.TokenSet) Signed {
	return Signed{
		Seq:    seq,
		Record: ingest.Record{Seq: seq, Line: seq + 1, ID: id},
		Doc:    ingest.ProcessedDoc{Tokens: tokens, Signature: h.Signature(tokens)},
		State:  StateSigned,
	}
}
