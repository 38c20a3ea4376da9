package neardup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/neardup/internal/logger"
	"github.com/cognicore/neardup/internal/metrics"
	"github.com/cognicore/neardup/pkg/neardup/config"
	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/store/sqlite"
)

func quietOptions(cfg config.Config) Options {
	return Options{Config: cfg, Logger: logger.NewLogger(logger.TestConfig())}
}

const (
	llamaA = `<|start_header_id|>system<|end_header_id|>You are terse.<|eot_id|>` +
		`<|start_header_id|>user<|end_header_id|>What is the capital of France?<|eot_id|>` +
		`<|start_header_id|>assistant<|end_header_id|>Paris is the capital of France.<|eot_id|>`
	llamaB = `<|start_header_id|>system<|end_header_id|>You are a friendly and verbose assistant.<|eot_id|>` +
		`<|start_header_id|>user<|end_header_id|> What is the capital of France? <|eot_id|>` +
		`<|start_header_id|>assistant<|end_header_id|>Paris is the capital of France.<|eot_id|>`
)

func jsonLine(id, text string) string {
	q, _ := json.Marshal(text)
	return `{"id":"` + id + `","text":` + string(q) + `}`
}

func TestRunDropsTemplatedDuplicates(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, quietOptions(config.Default()))
	require.NoError(t, err)
	defer d.Close()

	input := strings.Join([]string{
		jsonLine("a", llamaA),
		"",
		jsonLine("b", llamaB),
		jsonLine("c", "an unrelated plain sentence"),
	}, "\n") + "\n"

	var out bytes.Buffer
	sum, err := d.Run(ctx, strings.NewReader(input), &out)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total, "blank lines are not records")
	assert.Equal(t, 2, sum.Kept)
	assert.Equal(t, 1, sum.Dropped)
	assert.Equal(t, jsonLine("a", llamaA)+"\n"+jsonLine("c", "an unrelated plain sentence")+"\n", out.String())
	assert.NotEmpty(t, d.RunID())
}

func TestStatePersistsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Canonicalizer = "raw"
	cfg.StateDB = filepath.Join(t.TempDir(), "state.db")

	first, err := New(ctx, quietOptions(cfg))
	require.NoError(t, err)
	_, err = first.Run(ctx, strings.NewReader(jsonLine("a", "shard one owns this line")+"\n"), &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, quietOptions(cfg))
	require.NoError(t, err)
	var out bytes.Buffer
	sum, err := second.Run(ctx, strings.NewReader(jsonLine("b", "shard one owns this line")+"\n"), &out)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	assert.Equal(t, 1, sum.Restored)
	assert.Equal(t, 1, sum.Dropped)
	assert.Empty(t, out.String())

	st, err := sqlite.OpenSQLite(ctx, cfg.StateDB)
	require.NoError(t, err)
	defer st.Close()
	drops, err := st.Drops(ctx, second.RunID())
	require.NoError(t, err)
	require.Len(t, drops, 1)
	assert.Equal(t, "a", drops[0].RepresentativeID)

	t.Run("Should refuse a state built with other parameters", func(t *testing.T) {
		other := cfg
		other.NumPerm, other.Bands, other.Rows = 128, 16, 8
		_, err := New(ctx, quietOptions(other))
		assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	})
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Verify = "sometimes"
	_, err := New(context.Background(), quietOptions(cfg))
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestRunRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	rec := metrics.New()
	opts := quietOptions(config.Default())
	opts.Metrics = rec

	d, err := New(ctx, opts)
	require.NoError(t, err)
	defer d.Close()

	input := jsonLine("a", "x y z") + "\n" + jsonLine("b", "x y z") + "\n" + "{not json}\n"
	_, err = d.Run(ctx, strings.NewReader(input), &bytes.Buffer{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "neardup.prom")
	require.NoError(t, rec.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `neardup_records_total{outcome="kept"} 1`)
	assert.Contains(t, string(data), `neardup_records_total{outcome="dropped"} 1`)
	assert.Contains(t, string(data), `neardup_records_total{outcome="error"} 1`)
	assert.Contains(t, string(data), "neardup_index_entries 1")
}

func TestRunSkipsOversizedLines(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.MaxLineBytes = 64

	d, err := New(ctx, quietOptions(cfg))
	require.NoError(t, err)
	defer d.Close()

	input := strings.Join([]string{
		jsonLine("a", "short first line"),
		jsonLine("big", strings.Repeat("word ", 40)),
		jsonLine("c", "short third line"),
	}, "\n") + "\n"

	var out bytes.Buffer
	sum, err := d.Run(ctx, strings.NewReader(input), &out)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Kept)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 1, sum.MalformedErrors)
	assert.Equal(t, jsonLine("a", "short first line")+"\n"+jsonLine("c", "short third line")+"\n", out.String())
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestFailedOutputLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Canonicalizer = "raw"
	cfg.StateDB = filepath.Join(t.TempDir(), "state.db")
	input := jsonLine("a", "this line must land in some output") + "\n"

	first, err := New(ctx, quietOptions(cfg))
	require.NoError(t, err)
	diskFull := errors.New("no space left on device")
	_, err = first.Run(ctx, strings.NewReader(input), failingWriter{err: diskFull})
	require.ErrorIs(t, err, diskFull)
	require.NoError(t, first.Close())

	second, err := New(ctx, quietOptions(cfg))
	require.NoError(t, err)
	defer second.Close()

	var out bytes.Buffer
	sum, err := second.Run(ctx, strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Zero(t, sum.Restored)
	assert.Equal(t, 1, sum.Kept)
	assert.Equal(t, input, out.String())
}
