package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/cognicore/neardup/internal/logger"
	"github.com/cognicore/neardup/internal/metrics"
	"github.com/cognicore/neardup/pkg/neardup/ingest"
	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/lsh"
	"github.com/cognicore/neardup/pkg/neardup/store"
)

// Fold advances the index by one record. Candidates are examined in
// insertion order; the first one the verifier accepts (or simply the first,
// when v is nil) becomes the representative and the record is dropped.
// Otherwise the record is kept and inserted. Only kept records ever enter
// the index.
func Fold(idx *lsh.Index, doc Signed, v Verifier) (Decision, error) {
	d := Decision{
		Seq:   doc.Seq,
		Line:  doc.Record.Line,
		DocID: doc.Record.ID,
		State: doc.State,
	}
	if doc.Err != nil {
		d.State = StateFailed
		d.Err = doc.Err
		return d, nil
	}

	candidates, err := idx.QueryEntries(doc.Doc.Signature)
	if err != nil {
		return d, err
	}
	d.State = StateQueried
	d.Candidates = len(candidates)

	for _, c := range candidates {
		if v != nil && !v.Match(c, doc) {
			continue
		}
		d.State = StateDropped
		d.RepresentativeID = c.ID
		d.Handle = c.Handle
		return d, nil
	}

	entry, err := idx.Insert(doc.Record.ID, doc.Doc.Signature)
	if err != nil {
		return d, err
	}
	if v != nil {
		v.Remember(entry, doc)
	}
	d.State = StateKept
	d.Kept = true
	d.Handle = entry.Handle
	return d, nil
}

// Engine owns one LSH index and decides records strictly in the order
// they are handed to Decide. Independent engines share nothing, so a
// corpus can be sharded across several of them.
type Engine struct {
	cfg      Config
	pipeline *ingest.Pipeline
	index    *lsh.Index
	verifier Verifier
	audit    *Audit

	store   store.Store
	runID   string
	metrics *metrics.Recorder
	log     logger.Logger

	counts   counts
	restored int
	staged   store.Batch
}

type counts struct {
	total        int
	kept         int
	dropped      int
	malformed    int
	missingField int
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	store    store.Store
	runID    string
	metrics  *metrics.Recorder
	log      logger.Logger
	bandHash lsh.BandHash
}

// WithStore persists representatives and drops of run runID to st.
func WithStore(st store.Store, runID string) Option {
	return func(o *engineOptions) {
		o.store = st
		o.runID = runID
	}
}

// WithMetrics records decisions on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *engineOptions) { o.metrics = rec }
}

// WithLogger overrides the context logger.
func WithLogger(l logger.Logger) Option {
	return func(o *engineOptions) { o.log = l }
}

// WithBandHash replaces the LSH band hash.
func WithBandHash(h lsh.BandHash) Option {
	return func(o *engineOptions) { o.bandHash = h }
}

// NewEngine validates cfg and builds an engine around pipeline.
func NewEngine(cfg Config, pipeline *ingest.Pipeline, opts ...Option) (*Engine, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline is required", internalerr.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pipeline.NumPerm() != cfg.NumPerm {
		return nil, fmt.Errorf("%w: pipeline signs with %d permutations, engine expects %d",
			internalerr.ErrInvalidConfig, pipeline.NumPerm(), cfg.NumPerm)
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	var idxOpts []lsh.Option
	if o.bandHash != nil {
		idxOpts = append(idxOpts, lsh.WithBandHash(o.bandHash))
	}
	idx, err := lsh.NewIndex(cfg.NumPerm, cfg.Params, idxOpts...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		pipeline: pipeline,
		index:    idx,
		verifier: NewVerifier(cfg.Verify, cfg.Threshold),
		audit:    NewAudit(cfg.MaxAuditExamples),
		store:    o.store,
		runID:    o.runID,
		metrics:  o.metrics,
		log:      o.log,
	}, nil
}

// Config returns the validated settings.
func (e *Engine) Config() Config { return e.cfg }

// RunID returns the identifier given with WithStore, if any.
func (e *Engine) RunID() string { return e.runID }

func (e *Engine) loggerFor(ctx context.Context) logger.Logger {
	if e.log != nil {
		return e.log
	}
	return logger.FromContext(ctx)
}

// Sign runs the parallel stage for one raw line. It touches no engine
// state beyond the immutable pipeline.
func (e *Engine) Sign(raw []byte, seq, line int) Signed {
	rec, err := ingest.ParseRecord(raw, seq, line)
	if err != nil {
		return Signed{
			Seq:    seq,
			Record: ingest.Record{Seq: seq, Line: line, ID: ingest.SyntheticID(seq), Raw: raw},
			State:  StateReceived,
			Err:    err,
		}
	}
	return Signed{
		Seq:    seq,
		Record: rec,
		Doc:    e.pipeline.Process(rec.Text),
		State:  StateSigned,
	}
}

// Decide folds one signed record into the index and does the bookkeeping:
// counts, audit examples and metrics. With a store attached, the record's
// row is staged until Commit.
func (e *Engine) Decide(ctx context.Context, doc Signed) (Decision, error) {
	return e.decide(ctx, doc, nil)
}

// decide hands a kept record to emit before any bookkeeping. If emit fails
// the record is neither counted nor staged.
func (e *Engine) decide(ctx context.Context, doc Signed, emit func(raw []byte) error) (Decision, error) {
	d, err := Fold(e.index, doc, e.verifier)
	if err != nil {
		return d, err
	}
	if d.Kept && emit != nil {
		if err := emit(doc.Record.Raw); err != nil {
			return d, err
		}
	}
	e.counts.total++

	if d.Err != nil {
		if !internalerr.IsRecordError(d.Err) {
			return d, d.Err
		}
		if errors.Is(d.Err, internalerr.ErrMalformedRecord) {
			e.counts.malformed++
		} else {
			e.counts.missingField++
		}
		e.metrics.ObserveError()
		e.loggerFor(ctx).Warn("Skipping record", "line", d.Line, "error", d.Err)
		return d, nil
	}

	if d.Kept {
		e.counts.kept++
		e.audit.Kept(d.Handle, doc.Doc.Canonical)
		e.metrics.ObserveDecision(metrics.OutcomeKept, d.Candidates)
		e.metrics.SetIndexEntries(e.index.Len())
		if e.store != nil {
			e.staged.Representatives = append(e.staged.Representatives, store.Representative{
				ID:        d.DocID,
				RunID:     e.runID,
				Signature: doc.Doc.Signature,
			})
		}
		return d, nil
	}

	e.counts.dropped++
	e.audit.Dropped(d.Handle, d.RepresentativeID, d.DocID, doc.Doc.Canonical)
	e.metrics.ObserveDecision(metrics.OutcomeDropped, d.Candidates)
	e.loggerFor(ctx).Debug("Dropped near-duplicate", "id", d.DocID, "representative", d.RepresentativeID, "candidates", d.Candidates)
	if e.store != nil {
		e.staged.Drops = append(e.staged.Drops, store.Drop{
			RunID:            e.runID,
			DocID:            d.DocID,
			RepresentativeID: d.RepresentativeID,
			Line:             d.Line,
		})
	}
	return d, nil
}

// Staged returns the number of store rows waiting for Commit.
func (e *Engine) Staged() int { return e.staged.Len() }

// Commit writes the staged rows to the store in one batch. Call it only
// once the output of the staged kept records is durable.
func (e *Engine) Commit(ctx context.Context) error {
	if e.store == nil || e.staged.Len() == 0 {
		return nil
	}
	if err := e.store.Commit(ctx, e.staged); err != nil {
		return fmt.Errorf("%w: commit %d rows: %v", internalerr.ErrStoreUnavailable, e.staged.Len(), err)
	}
	e.staged = store.Batch{}
	return nil
}

// Restore loads the representatives of earlier runs from the store into
// the index. The store's signature layout must equal meta; an empty store
// adopts meta.
func (e *Engine) Restore(ctx context.Context, meta store.Meta) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	if meta.NumPerm != e.cfg.NumPerm || meta.Bands != e.cfg.Params.Bands || meta.Rows != e.cfg.Params.Rows {
		return 0, fmt.Errorf("%w: state layout %+v does not match the engine", internalerr.ErrInvalidConfig, meta)
	}

	saved, ok, err := e.store.Meta(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: load meta: %v", internalerr.ErrStoreUnavailable, err)
	}
	if !ok {
		if err := e.store.SaveMeta(ctx, meta); err != nil {
			return 0, fmt.Errorf("%w: save meta: %v", internalerr.ErrStoreUnavailable, err)
		}
		return 0, nil
	}
	if err := saved.Compatible(meta); err != nil {
		return 0, err
	}

	n := 0
	err = e.store.Representatives(ctx, func(r store.Representative) error {
		if _, err := e.index.Insert(r.ID, r.Signature); err != nil {
			return fmt.Errorf("restore %q: %w", r.ID, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	e.restored += n
	e.metrics.SetIndexEntries(e.index.Len())
	e.loggerFor(ctx).Info("Restored representatives", "count", n)
	return n, nil
}
