package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognicore/neardup/internal/logger"
	"github.com/cognicore/neardup/internal/metrics"
	"github.com/cognicore/neardup/pkg/neardup"
	"github.com/cognicore/neardup/pkg/neardup/config"
	"github.com/cognicore/neardup/pkg/neardup/report"
)

type dedupFlags struct {
	input       string
	output      string
	configPath  string
	summaryJSON string
	metricsFile string

	threshold     float64
	numPerm       int
	bands         int
	rows          int
	showExamples  int
	verify        string
	canonicalizer string
	shingleSize   int
	workers       int
	stateDB       string
}

func newDedupCmd() *cobra.Command {
	var f dedupFlags

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Deduplicate a JSONL file",
		Long: `Read {id, text, ...} records from --input and write the records that are not
near-duplicates of an earlier record to --output, byte for byte.

Settings are layered: defaults, then --config (YAML), then NEARDUP_* environment
variables (a .env file is honored), then flags.

Examples:
  neardup dedup --input corpus.jsonl --output deduped.jsonl
  neardup dedup --input corpus.jsonl --output deduped.jsonl --threshold 0.9 --show-examples 5
  neardup dedup --input shard-2.jsonl --output out-2.jsonl --state-db state.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDedup(cmd, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "Input JSONL file, - for stdin (required)")
	fl.StringVarP(&f.output, "output", "o", "", "Output JSONL file, - for stdout (required)")
	fl.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fl.StringVar(&f.summaryJSON, "summary-json", "", "Write the run summary as JSON to this file")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	fl.Float64Var(&f.threshold, "threshold", 0.85, "Jaccard similarity threshold in (0,1)")
	fl.IntVar(&f.numPerm, "num-perm", 256, "MinHash signature length")
	fl.IntVar(&f.bands, "bands", 0, "LSH bands (with --rows; derived when unset)")
	fl.IntVar(&f.rows, "rows", 0, "LSH rows per band (with --bands)")
	fl.IntVar(&f.showExamples, "show-examples", 0, "Print up to N kept/removed pairs")
	fl.StringVar(&f.verify, "verify", "none", "Candidate verification: none, signature or exact")
	fl.StringVar(&f.canonicalizer, "canonicalizer", "chat", "Text canonicalizer: chat, html or raw")
	fl.IntVar(&f.shingleSize, "shingle-size", 1, "Words per shingle")
	fl.IntVar(&f.workers, "workers", 0, "Signing workers (0 = number of CPUs)")
	fl.StringVar(&f.stateDB, "state-db", "", "SQLite state shared across runs and shards")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// applyFlags overrides cfg with the flags the user actually set.
func applyFlags(cmd *cobra.Command, f *dedupFlags, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("threshold") {
		cfg.Threshold = f.threshold
	}
	if fl.Changed("num-perm") {
		cfg.NumPerm = f.numPerm
	}
	if fl.Changed("bands") {
		cfg.Bands = f.bands
	}
	if fl.Changed("rows") {
		cfg.Rows = f.rows
	}
	if fl.Changed("show-examples") {
		cfg.MaxAuditExamples = f.showExamples
	}
	if fl.Changed("verify") {
		cfg.Verify = f.verify
	}
	if fl.Changed("canonicalizer") {
		cfg.Canonicalizer = f.canonicalizer
	}
	if fl.Changed("shingle-size") {
		cfg.ShingleSize = f.shingleSize
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("state-db") {
		cfg.StateDB = f.stateDB
	}
}

func runDedup(cmd *cobra.Command, f *dedupFlags) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)

	cfg, err := (&config.Loader{Path: f.configPath}).Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, f, &cfg)

	var rec *metrics.Recorder
	if f.metricsFile != "" {
		rec = metrics.New()
	}
	d, err := neardup.New(ctx, neardup.Options{Config: cfg, Metrics: rec, Logger: log})
	if err != nil {
		return err
	}
	defer d.Close()

	in, closeIn, err := openInput(cmd, f.input)
	if err != nil {
		return err
	}
	defer closeIn()

	out, closeOut, err := openOutput(cmd, f.output)
	if err != nil {
		return err
	}

	// Keep stdout clean when it carries the records.
	reportTo := cmd.OutOrStdout()
	if f.output == "-" {
		reportTo = cmd.ErrOrStderr()
	}

	log.Info("Deduplicating",
		"input", f.input,
		"threshold", cfg.Threshold,
		"num_perm", cfg.NumPerm,
		"params", d.Params().String(),
		"run_id", d.RunID(),
	)

	sum, runErr := d.Run(ctx, in, out)
	if err := closeOut(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}

	report.Render(reportTo, sum)
	report.RenderExamples(reportTo, sum.Examples)

	if f.summaryJSON != "" {
		if err := report.WriteJSON(f.summaryJSON, sum); err != nil {
			log.Error("Failed to write summary", "path", f.summaryJSON, "error", err)
		}
	}
	if rec != nil {
		if err := rec.WriteTextfile(f.metricsFile); err != nil {
			log.Error("Failed to write metrics", "path", f.metricsFile, "error", err)
		}
	}
	return runErr
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return file, func() { file.Close() }, nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return file, file.Close, nil
}
