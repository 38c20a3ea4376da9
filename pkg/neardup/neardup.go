// Package neardup removes near-duplicate records from JSONL corpora using
// MinHash signatures and LSH banding.
package neardup

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cognicore/neardup/internal/jsonl"
	"github.com/cognicore/neardup/internal/logger"
	"github.com/cognicore/neardup/internal/metrics"
	"github.com/cognicore/neardup/pkg/neardup/config"
	"github.com/cognicore/neardup/pkg/neardup/dedup"
	"github.com/cognicore/neardup/pkg/neardup/lsh"
	"github.com/cognicore/neardup/pkg/neardup/report"
	"github.com/cognicore/neardup/pkg/neardup/store"
	"github.com/cognicore/neardup/pkg/neardup/store/sqlite"
)

// Options configures a Deduper.
type Options struct {
	Config config.Config

	// Store, when set, is used for cross-run state. Otherwise Config.StateDB
	// names a SQLite file to open. With neither, the run is self-contained.
	Store store.Store

	// RunID labels the run in the state store; generated when empty.
	RunID string

	Metrics *metrics.Recorder
	Logger  logger.Logger
}

// Deduper is a configured near-duplicate filter. Each Deduper owns its own
// index; use one per shard.
type Deduper struct {
	comp      *config.Components
	engine    *dedup.Engine
	store     store.Store
	ownsStore bool
	runID     string
	maxLine   int
	log       logger.Logger
}

// New builds the components, opens the state store if any, and restores
// the representatives of earlier runs.
func New(ctx context.Context, opts Options) (*Deduper, error) {
	comp, err := config.Build(opts.Config)
	if err != nil {
		return nil, err
	}

	d := &Deduper{
		comp:    comp,
		store:   opts.Store,
		runID:   opts.RunID,
		maxLine: opts.Config.MaxLineBytes,
		log:     opts.Logger,
	}
	if d.log == nil {
		d.log = logger.FromContext(ctx)
	}
	if d.runID == "" {
		d.runID = report.New().NewRunID()
	}
	if d.store == nil && opts.Config.StateDB != "" {
		st, err := sqlite.OpenSQLite(ctx, opts.Config.StateDB)
		if err != nil {
			return nil, err
		}
		d.store = st
		d.ownsStore = true
	}

	engineOpts := []dedup.Option{dedup.WithMetrics(opts.Metrics)}
	if opts.Logger != nil {
		engineOpts = append(engineOpts, dedup.WithLogger(opts.Logger))
	}
	if d.store != nil {
		engineOpts = append(engineOpts, dedup.WithStore(d.store, d.runID))
	}
	d.engine, err = dedup.NewEngine(comp.Engine, comp.Pipeline, engineOpts...)
	if err != nil {
		d.Close()
		return nil, err
	}

	if _, err := d.engine.Restore(ctx, comp.Meta); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// RunID identifies this run.
func (d *Deduper) RunID() string { return d.runID }

// Params returns the LSH layout in use.
func (d *Deduper) Params() lsh.Params { return d.comp.Params }

// Run reads JSONL from r and writes the kept lines to w. Per-record
// problems are counted in the summary; read, write and store failures
// end the run with an error. The summary is valid either way.
func (d *Deduper) Run(ctx context.Context, r io.Reader, w io.Writer) (dedup.Summary, error) {
	out := jsonl.NewWriter(w)
	sum, err := d.engine.Run(ctx, jsonl.NewReader(r, d.maxLine), out)
	if ferr := out.Flush(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("write output: %w", ferr))
	}
	d.log.Debug("Output written", "lines", out.Lines(), "kept", sum.Kept)
	return sum, err
}

// Close releases the state store if this Deduper opened it.
func (d *Deduper) Close() error {
	if d.ownsStore && d.store != nil {
		return d.store.Close()
	}
	return nil
}
