package dedup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/neardup/pkg/neardup/ingest"
	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/lsh"
	"github.com/cognicore/neardup/pkg/neardup/store"
)

// Source yields raw input lines in order. Next returns io.EOF when the
// input is exhausted. A record error (see internalerr.IsRecordError) marks
// one unreadable line and reading continues; any other error ends the run.
type Source interface {
	Next() (raw []byte, line int, err error)
}

// Sink receives the raw bytes of every kept record, in input order.
type Sink interface {
	Write(raw []byte) error
}

// Flusher is implemented by sinks that buffer. Run flushes before every
// store commit.
type Flusher interface {
	Flush() error
}

// Summary reports the outcome of a run. Total counts every non-blank input
// line; Kept + Dropped + Errors == Total.
type Summary struct {
	RunID              string        `json:"run_id,omitempty"`
	Threshold          float64       `json:"threshold"`
	NumPerm            int           `json:"num_perm"`
	Params             lsh.Params    `json:"params"`
	Verify             VerifyMode    `json:"verify"`
	Total              int           `json:"total"`
	Kept               int           `json:"kept"`
	Dropped            int           `json:"dropped"`
	Errors             int           `json:"errors"`
	MalformedErrors    int           `json:"malformed_errors"`
	MissingFieldErrors int           `json:"missing_field_errors"`
	Restored           int           `json:"restored"`
	Index              lsh.Stats     `json:"index"`
	Examples           []Example     `json:"examples,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration_ns"`
}

// Summary snapshots the counters. It must not race with Decide.
func (e *Engine) Summary() Summary {
	errs := e.counts.malformed + e.counts.missingField
	return Summary{
		RunID:              e.runID,
		Threshold:          e.cfg.Threshold,
		NumPerm:            e.cfg.NumPerm,
		Params:             e.cfg.Params,
		Verify:             e.cfg.Verify,
		Total:              e.counts.total,
		Kept:               e.counts.kept,
		Dropped:            e.counts.dropped,
		Errors:             errs,
		MalformedErrors:    e.counts.malformed,
		MissingFieldErrors: e.counts.missingField,
		Restored:           e.restored,
		Index:              e.index.Stats(),
		Examples:           e.audit.Examples(),
	}
}

type job struct {
	seq  int
	line int
	raw  []byte
	out  chan Signed
}

// Run streams src through the engine and writes kept records to sink.
//
// One reader feeds a pool of signing workers and, in the same order, a
// bounded queue of result slots. A single consumer drains that queue,
// waiting on each slot in turn, so every index query and insert happens on
// one goroutine in input order. A full queue blocks the reader.
//
// Store rows are committed in batches, each after the sink has been
// flushed. Rows staged when the run fails are discarded.
//
// The summary is returned even when err is non-nil.
func (e *Engine) Run(ctx context.Context, src Source, sink Sink) (Summary, error) {
	started := time.Now()
	log := e.loggerFor(ctx)

	if e.store != nil && e.runID != "" {
		if err := e.store.UpsertRun(ctx, store.Run{ID: e.runID, StartedAt: started, Threshold: e.cfg.Threshold}); err != nil {
			log.Warn("Failed to record run start", "run_id", e.runID, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, e.cfg.Workers)
	pending := make(chan chan Signed, e.cfg.QueueSize)

	g.Go(func() error {
		defer close(jobs)
		defer close(pending)
		for seq := 0; ; seq++ {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, line, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil && !internalerr.IsRecordError(err) {
				return fmt.Errorf("read input: %w", err)
			}

			out := make(chan Signed, 1)
			select {
			case pending <- out:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err != nil {
				// Nothing to sign; the consumer counts the failure in order.
				out <- Signed{
					Seq:    seq,
					Record: ingest.Record{Seq: seq, Line: line, ID: ingest.SyntheticID(seq)},
					State:  StateReceived,
					Err:    err,
				}
				continue
			}
			select {
			case jobs <- job{seq: seq, line: line, raw: raw, out: out}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for w := 0; w < e.cfg.Workers; w++ {
		g.Go(func() error {
			for j := range jobs {
				j.out <- e.Sign(j.raw, j.seq, j.line)
			}
			return nil
		})
	}

	emit := func(raw []byte) error {
		if err := sink.Write(raw); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	g.Go(func() error {
		for out := range pending {
			var doc Signed
			select {
			case doc = <-out:
			case <-gctx.Done():
				return gctx.Err()
			}
			if _, err := e.decide(gctx, doc, emit); err != nil {
				return err
			}
			if e.staged.Len() >= e.cfg.CommitBatch {
				if err := e.checkpoint(gctx, sink); err != nil {
					return err
				}
			}
		}
		return e.checkpoint(gctx, sink)
	})

	err := g.Wait()
	if n := e.staged.Len(); err != nil && n > 0 {
		log.Warn("Discarding uncommitted state", "rows", n)
		e.staged = store.Batch{}
	}

	sum := e.Summary()
	sum.StartedAt = started
	sum.Duration = time.Since(started)

	if e.store != nil && e.runID != "" {
		run := store.Run{
			ID:         e.runID,
			StartedAt:  started,
			FinishedAt: started.Add(sum.Duration),
			Threshold:  e.cfg.Threshold,
			Total:      sum.Total,
			Kept:       sum.Kept,
			Dropped:    sum.Dropped,
			Errors:     sum.Errors,
		}
		if serr := e.store.UpsertRun(context.WithoutCancel(ctx), run); serr != nil {
			log.Warn("Failed to record run summary", "run_id", e.runID, "error", serr)
		}
	}

	log.Info("Deduplication finished",
		"total", sum.Total,
		"kept", sum.Kept,
		"dropped", sum.Dropped,
		"errors", sum.Errors,
		"duration", sum.Duration,
	)
	return sum, err
}

// checkpoint flushes the sink and then commits the staged store rows, so
// the store never names a representative that is missing from the output.
func (e *Engine) checkpoint(ctx context.Context, sink Sink) error {
	if e.store == nil || e.staged.Len() == 0 {
		return nil
	}
	if f, ok := sink.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return e.Commit(ctx)
}
