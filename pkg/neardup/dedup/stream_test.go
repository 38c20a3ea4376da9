package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/minhash"
	"github.com/cognicore/neardup/pkg/neardup/store"
	"github.com/cognicore/neardup/pkg/neardup/store/memstore"
)

func TestRunScenario(t *testing.T) {
	// A/B share their lowest-ranked token, as do C/D. E shares nothing.
	h := rankHasher(256, map[string]uint64{"the": 1, "completely": 2, "a": 3})
	st := memstore.New()
	e := newTestEngine(t, testConfig(), h, WithStore(st, "scenario"))

	lines := []string{
		record("A", "the cat sat on the mat"),
		record("B", "the cat sat on the mat today"),
		record("C", "completely unrelated content here"),
		record("D", "completely unrelated content over there"),
		record("E", "a third distinct sentence"),
	}
	sink := &collectSink{}
	sum, err := e.Run(context.Background(), newSource(lines...), sink)
	require.NoError(t, err)

	assert.Equal(t, []string{lines[0], lines[2], lines[4]}, sink.lines)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 3, sum.Kept)
	assert.Equal(t, 2, sum.Dropped)
	assert.Zero(t, sum.Errors)
	assert.Equal(t, "scenario", sum.RunID)

	drops, err := st.Drops(context.Background(), "scenario")
	require.NoError(t, err)
	assert.Equal(t, []store.Drop{
		{RunID: "scenario", DocID: "B", RepresentativeID: "A", Line: 2},
		{RunID: "scenario", DocID: "D", RepresentativeID: "C", Line: 4},
	}, drops)
}

func TestRunIsDeterministic(t *testing.T) {
	var lines []string
	for i := 0; i < 300; i++ {
		// Every third record repeats an earlier one with one extra word.
		base := fmt.Sprintf("record %d says something about topic %d and topic %d", i/3, i%7, i%11)
		if i%3 == 2 {
			base += " again"
		}
		lines = append(lines, record(fmt.Sprintf("r%d", i), base))
	}

	run := func(workers, queue int) ([]string, Summary) {
		cfg := testConfig()
		cfg.Workers, cfg.QueueSize = workers, queue
		e := newTestEngine(t, cfg, nil)
		sink := &collectSink{}
		sum, err := e.Run(context.Background(), newSource(lines...), sink)
		require.NoError(t, err)
		return sink.lines, sum
	}

	want, wantSum := run(1, 1)
	for _, shape := range [][2]int{{1, 1}, {4, 2}, {16, 64}} {
		got, sum := run(shape[0], shape[1])
		assert.Equal(t, want, got, "workers=%d queue=%d", shape[0], shape[1])
		assert.Equal(t, wantSum.Kept, sum.Kept)
		assert.Equal(t, wantSum.Index, sum.Index)
	}
	assert.Less(t, wantSum.Kept, len(lines))
}

func TestRunCountsRecordErrors(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil)

	lines := []string{
		record("ok", "fine text"),
		`{"id":"broken", "text": `,
		`{"id":"no-text"}`,
		`{"id":"numeric","text":42}`,
		`["not","an","object"]`,
		record("dup", "fine text"),
	}
	sink := &collectSink{}
	sum, err := e.Run(context.Background(), newSource(lines...), sink)
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 1, sum.Kept)
	assert.Equal(t, 1, sum.Dropped)
	assert.Equal(t, 4, sum.Errors)
	assert.Equal(t, 2, sum.MalformedErrors)
	assert.Equal(t, 2, sum.MissingFieldErrors)
	assert.Equal(t, sum.Total, sum.Kept+sum.Dropped+sum.Errors)
	assert.Equal(t, []string{lines[0]}, sink.lines)
}

func TestRunPreservesBytes(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil)

	lines := []string{
		`{"text":"first entry",  "meta": {"z": 1, "a": [true, null]}, "id": 7}`,
		`{ "lang":"en","text":"something else entirely","score":1.50 }`,
	}
	sink := &collectSink{}
	_, err := e.Run(context.Background(), newSource(lines...), sink)
	require.NoError(t, err)
	assert.Equal(t, lines, sink.lines)
}

func TestRunStopsOnSinkError(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil)

	sink := &collectSink{failAt: 2}
	sum, err := e.Run(context.Background(), newSource(
		record("a", "one"),
		record("b", "two"),
		record("c", "three"),
	), sink)
	require.ErrorIs(t, err, errSinkFull)
	assert.ErrorContains(t, err, "write output")
	assert.Len(t, sink.lines, 1)
	assert.Equal(t, 1, sum.Kept, "only records accepted by the sink count as kept")
	assert.Equal(t, sum.Total, sum.Kept+sum.Dropped+sum.Errors)
}

func TestRunCountsUnreadableLines(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil)

	lineErr := fmt.Errorf("line 2: %w: longer than 64 bytes", internalerr.ErrMalformedRecord)
	src := &errSource{
		lineSource: newSource(record("a", "first text"), "", record("c", "third text")),
		at:         1,
		err:        lineErr,
	}
	sink := &collectSink{}
	sum, err := e.Run(context.Background(), src, sink)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Kept)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 1, sum.MalformedErrors)
	assert.Equal(t, []string{record("a", "first text"), record("c", "third text")}, sink.lines)
}

func TestRunStopsOnReadError(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil)

	boom := errors.New("disk gone")
	src := &errSource{lineSource: newSource(record("a", "first text"), ""), at: 1, err: boom}
	_, err := e.Run(context.Background(), src, &collectSink{})
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "read input")
}

func TestRunCommitsOnlyWrittenRepresentatives(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	meta := store.Meta{NumPerm: 256, Bands: 16, Rows: 16, Seed: minhash.DefaultSeed, ShingleSize: 1, Canonicalizer: "raw"}
	input := []string{record("a", "a line that must reach some output")}

	t.Run("Should leave the store empty when the write fails", func(t *testing.T) {
		first := newTestEngine(t, testConfig(), nil, WithStore(st, "run-1"))
		_, err := first.Restore(ctx, meta)
		require.NoError(t, err)

		_, err = first.Run(ctx, newSource(input...), &collectSink{failAt: 1})
		require.ErrorIs(t, err, errSinkFull)
		assert.Zero(t, first.Staged())

		n, err := st.CountRepresentatives(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should keep the record on the rerun", func(t *testing.T) {
		second := newTestEngine(t, testConfig(), nil, WithStore(st, "run-2"))
		restored, err := second.Restore(ctx, meta)
		require.NoError(t, err)
		assert.Zero(t, restored)

		sink := &collectSink{}
		sum, err := second.Run(ctx, newSource(input...), sink)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Kept)
		assert.Zero(t, sum.Dropped)
		assert.Equal(t, input, sink.lines)
	})
}

func TestRunCommitsAfterFlush(t *testing.T) {
	ctx := context.Background()

	t.Run("Should not commit when the flush fails", func(t *testing.T) {
		st := memstore.New()
		e := newTestEngine(t, testConfig(), nil, WithStore(st, "run"))

		flushErr := errors.New("disk full")
		_, err := e.Run(ctx, newSource(record("a", "alpha text"), record("b", "beta text")), &collectSink{flushErr: flushErr})
		require.ErrorIs(t, err, flushErr)

		n, err := st.CountRepresentatives(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		drops, err := st.Drops(ctx, "run")
		require.NoError(t, err)
		assert.Empty(t, drops)
	})

	t.Run("Should commit in batches behind flushes", func(t *testing.T) {
		st := memstore.New()
		cfg := testConfig()
		cfg.CommitBatch = 2
		e := newTestEngine(t, cfg, nil, WithStore(st, "run"))

		var lines []string
		for i := 0; i < 5; i++ {
			lines = append(lines, record(fmt.Sprintf("r%d", i), fmt.Sprintf("alpha%d beta%d gamma%d", i, i, i)))
		}
		sink := &collectSink{}
		sum, err := e.Run(ctx, newSource(lines...), sink)
		require.NoError(t, err)
		assert.Equal(t, 5, sum.Kept)

		assert.Equal(t, 3, sink.flushes)
		assert.Equal(t, 5, sink.flushed)
		n, err := st.CountRepresentatives(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Zero(t, e.Staged())
	})
}

func TestRunScenarioWithRealHashing(t *testing.T) {
	// A/B (J=0.83) and C/D (J=0.5) sit below the threshold, so only the
	// outcomes that hold for every seed are checked.
	e := newTestEngine(t, testConfig(), nil)

	lines := []string{
		record("A", "the cat sat on the mat"),
		record("B", "the cat sat on the mat today"),
		record("C", "completely unrelated content here"),
		record("D", "completely unrelated content over there"),
		record("E", "a third distinct sentence"),
	}
	sink := &collectSink{}
	sum, err := e.Run(context.Background(), newSource(lines...), sink)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Total)
	assert.Zero(t, sum.Errors)
	assert.Equal(t, sum.Total, sum.Kept+sum.Dropped)
	assert.Contains(t, sink.lines, lines[0])
	assert.Contains(t, sink.lines, lines[2])
	assert.Contains(t, sink.lines, lines[4])
	assert.Contains(t, sink.lines, lines[3], "C and D share half their tokens and must not merge")
}

func TestRunHonorsCancellation(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, newSource(record("a", "one")), &collectSink{})
	assert.ErrorIs(t, err, context.Canceled)
}
